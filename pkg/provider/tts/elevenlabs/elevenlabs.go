// Package elevenlabs provides an ElevenLabs-backed speech provider.
//
// It implements all three synthesis capabilities of package tts:
//
//   - [Provider.SynthesizeDialogue] uses POST /v1/text-to-dialogue/with-timestamps.
//   - [Provider.Synthesize] uses POST /v1/text-to-speech/{voice_id}.
//   - [Provider.SynthesizeStream] uses the stream-input WebSocket with
//     alignment synchronisation enabled.
//
// Provider timing payloads are converted to package alignment types before
// they leave this package.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	providerName = "elevenlabs"

	defaultBaseURL      = "https://api.elevenlabs.io"
	defaultModel        = "eleven_multilingual_v2"
	defaultOutputFormat = "mp3_44100_128"

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 2048
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the model used for single utterances and streaming
// (e.g. "eleven_multilingual_v2", "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithDialogueModel sets the model used for dialogue synthesis. Empty leaves
// the choice to the service.
func WithDialogueModel(model string) Option {
	return func(p *Provider) {
		p.dialogueModel = model
	}
}

// WithOutputFormat sets the default audio output format (e.g. "mp3_44100_128",
// "pcm_16000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURL overrides the API base URL. The WebSocket endpoint is derived
// from it by switching the scheme.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets the HTTP client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements the tts interfaces backed by the ElevenLabs API.
type Provider struct {
	apiKey        string
	model         string
	dialogueModel string
	outputFormat  string
	baseURL       string
	httpClient    *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFormat,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// OutputFormat returns the configured default output format.
func (p *Provider) OutputFormat() string {
	return p.outputFormat
}

// postJSON sends body as JSON to path and returns the response for a 200
// status. Any other status is reported as a *tts.StatusError.
func (p *Provider) postJSON(ctx context.Context, op, path string, body any, accept string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %s: %w", op, err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	return p.do(req, op)
}

func (p *Provider) do(req *http.Request, op string) (*http.Response, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %s HTTP: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &tts.StatusError{
			Provider:   providerName,
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}
	return resp, nil
}

// wsBaseURL derives the WebSocket base URL from an HTTP base URL.
func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
