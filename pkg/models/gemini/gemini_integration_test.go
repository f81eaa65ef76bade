package gemini_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nstogner/motifchat/pkg/domain"
	"github.com/nstogner/motifchat/pkg/models"
	"github.com/nstogner/motifchat/pkg/models/gemini"
)

func TestGemini_Integration(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	p, err := gemini.New(ctx, gemini.Options{APIKey: apiKey})
	require.NoError(t, err)
	defer p.Close()

	names, err := p.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, names)
	t.Logf("Available models: %v", names)

	var sb strings.Builder
	final := false
	err = p.Stream(ctx, models.Request{
		Model:       "gemini-2.0-flash",
		Temperature: 0.7,
		MaxTokens:   64,
		Stream:      true,
		Turns:       []domain.Turn{domain.UserTurn("Reply with the single word: pong", nil)},
	}, func(c models.Chunk) {
		require.NoError(t, c.Err)
		if c.Final {
			final = true
			return
		}
		sb.WriteString(c.Text)
	})
	require.NoError(t, err)
	require.True(t, final)
	require.NotEmpty(t, sb.String())
}

func TestGemini_Integration_BadKey(t *testing.T) {
	if os.Getenv("GEMINI_API_KEY") == "" {
		t.Skip("GEMINI_API_KEY not set")
	}

	ctx := context.Background()
	p, err := gemini.New(ctx, gemini.Options{APIKey: "invalid"})
	require.NoError(t, err)
	defer p.Close()

	called := false
	err = p.Stream(ctx, models.Request{
		Model: "gemini-2.0-flash",
		Turns: []domain.Turn{domain.UserTurn("hi", nil)},
	}, func(models.Chunk) { called = true })

	var setupErr *models.SetupError
	require.ErrorAs(t, err, &setupErr)
	require.False(t, called)
	require.NotZero(t, setupErr.StatusCode)
}
