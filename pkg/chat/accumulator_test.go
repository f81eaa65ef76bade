package chat

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/motifchat/pkg/models"
)

func TestAccumulator(t *testing.T) {
	a := NewAccumulator(0)
	require.NoError(t, a.Append("Hel"))
	require.NoError(t, a.Append("lo"))
	assert.Equal(t, "Hello", a.String())
	assert.Equal(t, 5, a.Len())

	assert.Equal(t, "Hello", a.Take())
	assert.Equal(t, "", a.String())
}

func TestAccumulatorLimit(t *testing.T) {
	a := NewAccumulator(4)
	require.NoError(t, a.Append("abc"))
	err := a.Append("de")
	require.ErrorIs(t, err, ErrAllocation)
	assert.Equal(t, 0, a.Len(), "buffer resets on overflow")
}

func TestAccumulatorConcurrent(t *testing.T) {
	a := NewAccumulator(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = a.Append("x")
				_ = a.String()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, a.Len())
}

func TestUserFacingMessages(t *testing.T) {
	assert.Equal(t, "Stream error: boom", StreamMessage(errors.New("boom")))
	assert.Equal(t, "LLM request failed (setup) (HTTP 403): denied",
		SetupMessage(&models.SetupError{StatusCode: 403, Message: "denied"}))
	assert.Equal(t, "LLM request failed (setup): dial tcp: refused",
		SetupMessage(&models.SetupError{Err: errors.New("dial tcp: refused")}))
}
