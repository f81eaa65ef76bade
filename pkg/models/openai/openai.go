// Package openai implements models.Provider for OpenAI and compatible
// chat-completions endpoints.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/nstogner/motifchat/pkg/domain"
	"github.com/nstogner/motifchat/pkg/models"
)

const providerName = "openai"

// Options configure the provider.
type Options struct {
	APIKey string
	// BaseURL points at a compatible server, e.g. "http://localhost:11434/v1".
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Provider implements models.Provider on top of go-openai.
type Provider struct {
	client *goopenai.Client
	log    *slog.Logger
}

// Verify interface compliance.
var _ models.Provider = (*Provider)(nil)

// New creates a provider. An empty key is allowed for local servers.
func New(opts Options) *Provider {
	cfg := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Provider{client: goopenai.NewClientWithConfig(cfg), log: opts.Logger}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return providerName }

// Close is a no-op; the HTTP client holds no per-provider resources.
func (p *Provider) Close() error { return nil }

// List returns model ids sorted by name.
func (p *Provider) List(ctx context.Context) ([]string, error) {
	resp, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing openai models: %w", err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.ID)
	}
	sort.Strings(names)
	return names, nil
}

// Stream runs a streaming chat completion.
func (p *Provider) Stream(ctx context.Context, req models.Request, onChunk func(models.Chunk)) error {
	p.log.Debug("OpenAI.Stream", "model", req.Model, "turnCount", len(req.Turns))

	msgs := toMessages(req.Turns)
	if len(msgs) == 0 {
		return &models.SetupError{Provider: providerName, Message: "conversation has no content"}
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return setupError(err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			onChunk(models.Chunk{Err: err})
			return nil
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content != "" {
				onChunk(models.Chunk{Text: choice.Delta.Content})
			}
		}
	}
	onChunk(models.Chunk{Final: true})
	return nil
}

// toMessages converts turns to chat messages. Text-only turns use Content;
// turns with an image use MultiContent with a base64 data URL. Turns without
// any content are dropped.
func toMessages(turns []domain.Turn) []goopenai.ChatCompletionMessage {
	var msgs []goopenai.ChatCompletionMessage
	for _, turn := range turns {
		role := goopenai.ChatMessageRoleUser
		if turn.Role == domain.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}

		var parts []goopenai.ChatMessagePart
		hasImage := false
		for _, part := range turn.Parts {
			switch part.Type {
			case domain.PartTypeText:
				if part.Text != "" {
					parts = append(parts, goopenai.ChatMessagePart{Type: goopenai.ChatMessagePartTypeText, Text: part.Text})
				}
			case domain.PartTypeImage:
				if part.Image != nil && len(part.Image.Data) > 0 {
					hasImage = true
					parts = append(parts, goopenai.ChatMessagePart{
						Type:     goopenai.ChatMessagePartTypeImageURL,
						ImageURL: &goopenai.ChatMessageImageURL{URL: dataURL(part.Image)},
					})
				}
			}
		}
		if len(parts) == 0 {
			continue
		}

		msg := goopenai.ChatCompletionMessage{Role: role}
		if hasImage {
			msg.MultiContent = parts
		} else {
			msg.Content = turn.Text()
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func dataURL(img *domain.Image) string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func setupError(err error) *models.SetupError {
	se := &models.SetupError{Provider: providerName, Message: err.Error(), Err: err}

	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		se.StatusCode = apiErr.HTTPStatusCode
		if apiErr.Message != "" {
			se.Message = apiErr.Message
		}
	case errors.As(err, &reqErr):
		se.StatusCode = reqErr.HTTPStatusCode
		if reqErr.Err != nil {
			se.Message = reqErr.Err.Error()
		}
	}
	return se
}
