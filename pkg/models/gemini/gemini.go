package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/nstogner/motifchat/pkg/domain"
	"github.com/nstogner/motifchat/pkg/models"
)

const (
	// LevelTrace is a custom log level for detailed HTTP traffic.
	LevelTrace = slog.Level(-8)

	providerName = "gemini"
)

// Options configure the Gemini provider.
type Options struct {
	APIKey string
	// Endpoint overrides the API host, mostly for proxies.
	Endpoint string
	Logger   *slog.Logger
}

// Provider implements models.Provider using the Google Gemini API.
type Provider struct {
	client *genai.Client
	log    *slog.Logger
}

// Verify interface compliance.
var _ models.Provider = (*Provider)(nil)

// New creates a new Gemini provider.
func New(ctx context.Context, opts Options) (*Provider, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	httpClient := &http.Client{
		Transport: &loggingTransport{
			base:   http.DefaultTransport,
			apiKey: opts.APIKey,
			log:    opts.Logger,
		},
	}
	clientOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey), option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client, log: opts.Logger}, nil
}

type loggingTransport struct {
	base   http.RoundTripper
	apiKey string
	log    *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// A custom http.Client bypasses the SDK's own key injection.
	if t.apiKey != "" && req.Header.Get("x-goog-api-key") == "" && req.URL.Query().Get("key") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("x-goog-api-key", t.apiKey)
	}

	if !t.log.Enabled(req.Context(), LevelTrace) {
		return t.base.RoundTrip(req)
	}

	reqDump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		t.log.Debug("Failed to dump Gemini request", "error", err)
	} else {
		t.log.Log(req.Context(), LevelTrace, "Gemini REST Request", "url", req.URL.Redacted(), "dump", redact(string(reqDump), t.apiKey))
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// Streaming bodies are not dumped; reading them would block the reply.
	isStream := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") ||
		strings.Contains(req.URL.Query().Get("alt"), "sse")

	respDump, err := httputil.DumpResponse(resp, !isStream)
	if err != nil {
		t.log.Debug("Failed to dump Gemini response", "error", err)
	} else {
		t.log.Log(req.Context(), LevelTrace, "Gemini REST Response", "isStream", isStream, "dump", string(respDump))
	}

	return resp, nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "REDACTED")
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return providerName }

// Close releases resources.
func (p *Provider) Close() error {
	return p.client.Close()
}

// List returns the models that support generateContent.
func (p *Provider) List(ctx context.Context) ([]string, error) {
	iter := p.client.ListModels(ctx)
	var names []string
	for {
		m, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing gemini models: %w", err)
		}
		if !supportsGenerate(m.SupportedGenerationMethods) {
			continue
		}
		p.log.Debug("Found Gemini model", "name", m.Name)
		names = append(names, m.Name)
	}
	return names, nil
}

func supportsGenerate(methods []string) bool {
	for _, m := range methods {
		if m == "generateContent" {
			return true
		}
	}
	return false
}

// Stream sends the conversation to Gemini and reports each text delta.
func (p *Provider) Stream(ctx context.Context, req models.Request, onChunk func(models.Chunk)) error {
	p.log.Debug("Gemini.Stream", "model", req.Model, "turnCount", len(req.Turns))

	contents := toContents(req.Turns)
	if len(contents) == 0 {
		return &models.SetupError{Provider: providerName, Message: "conversation has no content"}
	}

	gm := p.client.GenerativeModel(req.Model)
	gm.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	cs := gm.StartChat()
	cs.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	iter := cs.SendMessageStream(ctx, last.Parts...)
	started := false
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if !started {
				return setupError(err)
			}
			onChunk(models.Chunk{Err: err})
			return nil
		}
		started = true
		for _, text := range textOf(resp) {
			onChunk(models.Chunk{Text: text})
		}
	}
	onChunk(models.Chunk{Final: true})
	return nil
}

func textOf(resp *genai.GenerateContentResponse) []string {
	var out []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok && txt != "" {
				out = append(out, string(txt))
			}
		}
	}
	return out
}

// toContents converts turns to Gemini contents. Empty text parts are skipped
// because the API rejects them; a turn left without parts is dropped.
func toContents(turns []domain.Turn) []*genai.Content {
	var contents []*genai.Content
	for _, turn := range turns {
		var parts []genai.Part
		for _, part := range turn.Parts {
			switch part.Type {
			case domain.PartTypeText:
				if part.Text != "" {
					parts = append(parts, genai.Text(part.Text))
				}
			case domain.PartTypeImage:
				if part.Image != nil && len(part.Image.Data) > 0 {
					parts = append(parts, genai.Blob{MIMEType: part.Image.MIMEType, Data: part.Image.Data})
				}
			}
		}
		if len(parts) == 0 {
			continue
		}

		role := "user"
		if turn.Role == domain.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

// httpCoder matches API errors that expose their HTTP status.
type httpCoder interface {
	HTTPCode() int
}

func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	var hc httpCoder
	if errors.As(err, &hc) {
		return hc.HTTPCode()
	}
	return 0
}

func setupError(err error) *models.SetupError {
	msg := err.Error()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		msg = gerr.Message
	}
	return &models.SetupError{
		Provider:   providerName,
		StatusCode: statusCode(err),
		Message:    msg,
		Err:        err,
	}
}
