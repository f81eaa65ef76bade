package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/motifchat/pkg/domain"
	"github.com/nstogner/motifchat/pkg/models"
	"github.com/nstogner/motifchat/pkg/models/openai"
)

func sseChunk(text string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"model":   "gpt-test",
		"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": text}}},
	})
	return "data: " + string(b) + "\n\n"
}

func newServer(t *testing.T, handler http.HandlerFunc) *openai.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return openai.New(openai.Options{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
}

func collect(t *testing.T, p *openai.Provider, req models.Request) ([]models.Chunk, error) {
	t.Helper()
	var chunks []models.Chunk
	err := p.Stream(context.Background(), req, func(c models.Chunk) {
		chunks = append(chunks, c)
	})
	return chunks, err
}

func TestStreamTokens(t *testing.T) {
	var body map[string]any
	p := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"Hel", "lo"} {
			fmt.Fprint(w, sseChunk(tok))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	chunks, err := collect(t, p, models.Request{
		Model:       "gpt-test",
		Temperature: 0.5,
		MaxTokens:   32,
		Stream:      true,
		Turns: []domain.Turn{
			domain.UserTurn("hi", nil),
			domain.AssistantTurn(""),
			domain.UserTurn("again", nil),
		},
	})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Hel", chunks[0].Text)
	assert.Equal(t, "lo", chunks[1].Text)
	assert.True(t, chunks[2].Final)

	assert.Equal(t, "gpt-test", body["model"])
	assert.Equal(t, true, body["stream"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2, "empty assistant turn is not sent")
}

func TestStreamImageAsDataURL(t *testing.T) {
	var raw string
	p := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		raw = string(b)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	img := &domain.Image{MIMEType: "image/png", Data: []byte("png")}
	chunks, err := collect(t, p, models.Request{Model: "gpt-test", Turns: []domain.Turn{domain.UserTurn("what?", img)}})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Final)
	assert.Contains(t, raw, "data:image/png;base64,cG5n")
	assert.Contains(t, raw, `"image_url"`)
}

func TestStreamSetupError(t *testing.T) {
	p := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	})

	chunks, err := collect(t, p, models.Request{Model: "gpt-test", Turns: []domain.Turn{domain.UserTurn("hi", nil)}})
	require.Empty(t, chunks)

	var setupErr *models.SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, http.StatusUnauthorized, setupErr.StatusCode)
	assert.Equal(t, "Incorrect API key provided", setupErr.Message)
}

func TestStreamEmptyConversation(t *testing.T) {
	p := openai.New(openai.Options{BaseURL: "http://127.0.0.1:1/v1"})
	_, err := collect(t, p, models.Request{Model: "gpt-test", Turns: []domain.Turn{domain.AssistantTurn("")}})

	var setupErr *models.SetupError
	require.ErrorAs(t, err, &setupErr)
}

func TestList(t *testing.T) {
	p := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"gpt-b","object":"model"},{"id":"gpt-a","object":"model"}]}`)
	})

	names, err := p.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-a", "gpt-b"}, names)
}
