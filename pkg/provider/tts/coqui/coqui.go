// Package coqui provides a speech provider backed by a locally running Coqui
// TTS server. It implements [tts.Speaker] and serves as the offline fallback
// for pronunciation playback.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis via GET /api/tts with query
//     parameters; voices via GET /details.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis via
//     POST /tts_to_audio/ with a JSON body; voices via GET /studio_speakers.
//
// Both servers answer with a WAV file, which is returned unchanged after its
// RIFF header has been validated.
package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Speaker = (*Provider)(nil)

const (
	providerName = "coqui"

	defaultLanguage        = "en"
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"

	outputFormat = "wav"
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the default language code sent to the server when a
// request carries none. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// Provider implements tts.Speaker backed by a Coqui TTS server. It is safe for
// concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
}

// New creates a new Coqui Provider that targets the server at serverURL
// (e.g. "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown API mode %q", p.apiMode)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Synthesize renders req.Text and returns the WAV file produced by the server.
// The output format and model fields of req are ignored.
func (p *Provider) Synthesize(ctx context.Context, req tts.SpeechRequest) (*tts.Speech, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("coqui: text must not be empty")
	}
	if req.Voice.ID == "" && p.apiMode == APIModeXTTS {
		return nil, errors.New("coqui: voice.ID must not be empty (required for XTTS mode)")
	}
	lang := req.LanguageCode
	if lang == "" {
		lang = p.language
	}

	var (
		httpReq *http.Request
		err     error
	)
	if p.apiMode == APIModeXTTS {
		httpReq, err = p.xttsRequest(ctx, req.Text, req.Voice.ID, lang)
	} else {
		httpReq, err = p.standardRequest(ctx, req.Text, req.Voice.ID, lang)
	}
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", httpReq.Method, httpReq.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &tts.StatusError{
			Provider:   providerName,
			Op:         httpReq.Method + " " + httpReq.URL.Path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	info, err := parseWAV(wav)
	if err != nil {
		return nil, err
	}
	if info.DataOffset >= len(wav) {
		return nil, fmt.Errorf("coqui: %w", tts.ErrNoAudio)
	}

	voice := req.Voice
	voice.Provider = providerName
	return &tts.Speech{
		Audio:        wav,
		MIMEType:     tts.MIMEType(outputFormat),
		OutputFormat: fmt.Sprintf("%s_%d", outputFormat, info.SampleRate),
		Voice:        voice,
	}, nil
}

func (p *Provider) xttsRequest(ctx context.Context, text, voiceID, lang string) (*http.Request, error) {
	data, err := json.Marshal(ttsRequest{Text: text, SpeakerWav: voiceID, Language: lang})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *Provider) standardRequest(ctx context.Context, text, voiceID, lang string) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", text)
	if voiceID != "" {
		params.Set("speaker_id", voiceID)
	}
	if lang != "" {
		params.Set("language_id", lang)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}

// ListVoices retrieves the voices offered by the server. In standard mode a
// single-speaker model yields one profile named after the model.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	endpoint := detailsEndpoint
	if p.apiMode == APIModeXTTS {
		endpoint = studioSpeakersEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", endpoint, resp.StatusCode)
	}

	if p.apiMode == APIModeXTTS {
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return nil, fmt.Errorf("coqui: decode studio speakers: %w", err)
		}
		names := make([]string, 0, len(raw))
		for name := range raw {
			names = append(names, name)
		}
		return profiles(names, map[string]string{"type": "studio"}), nil
	}

	var details detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("coqui: decode details response: %w", err)
	}
	if len(details.Speakers) > 0 {
		return profiles(details.Speakers, map[string]string{"type": "speaker", "model_name": details.ModelName}), nil
	}
	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return profiles([]string{name}, map[string]string{"type": "single-speaker", "model_name": name}), nil
}

// profiles builds sorted voice profiles sharing the same metadata.
func profiles(names []string, meta map[string]string) []tts.VoiceProfile {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	out := make([]tts.VoiceProfile, 0, len(sorted))
	for _, n := range sorted {
		m := make(map[string]string, len(meta))
		for k, v := range meta {
			m[k] = v
		}
		out = append(out, tts.VoiceProfile{ID: n, Name: n, Provider: providerName, Metadata: m})
	}
	return out
}

// wavInfo holds the fields of a WAV header needed by the provider.
type wavInfo struct {
	SampleRate int
	Channels   int
	DataOffset int
}

// parseWAV walks the RIFF chunks of wav to locate the fmt and data chunks.
// The fmt chunk size varies between encoders, so no fixed offset is assumed.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("coqui: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("coqui: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("coqui: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if odd size.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("coqui: WAV response missing data chunk")
}
