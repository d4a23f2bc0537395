package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

const (
	speechPathFmt = "/v1/text-to-speech/%s"
	voicesPath    = "/v1/voices"
)

// speechRequest is the JSON body of a text-to-speech call.
type speechRequest struct {
	Text         string `json:"text"`
	ModelID      string `json:"model_id"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Synthesize renders a single utterance and returns the encoded audio.
func (p *Provider) Synthesize(ctx context.Context, req tts.SpeechRequest) (*tts.Speech, error) {
	if req.Voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}
	if req.Text == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}

	format := req.OutputFormat
	if format == "" {
		format = p.outputFormat
	}
	model := req.ModelID
	if model == "" {
		model = p.model
	}

	resp, err := p.postJSON(ctx, "text-to-speech", buildSpeechPath(req.Voice.ID, format, req.OptimizeStreamingLatency),
		speechRequest{Text: req.Text, ModelID: model, LanguageCode: req.LanguageCode}, tts.MIMEType(format))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: text-to-speech read: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs: text-to-speech: %w", tts.ErrNoAudio)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = tts.MIMEType(format)
	}
	return &tts.Speech{
		Audio:        audio,
		MIMEType:     mime,
		OutputFormat: format,
		Voice:        req.Voice,
	}, nil
}

// buildSpeechPath constructs the text-to-speech path with its query string.
func buildSpeechPath(voiceID, format string, latency int) string {
	q := url.Values{}
	q.Set("output_format", format)
	if latency > 0 {
		q.Set("optimize_streaming_latency", strconv.Itoa(latency))
	}
	return fmt.Sprintf(speechPathFmt, url.PathEscape(voiceID)) + "?" + q.Encode()
}

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.do(req, "list voices")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return convertVoices(vr), nil
}

// parseVoicesResponse parses a raw /v1/voices body.
func parseVoicesResponse(data []byte) ([]tts.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	return convertVoices(vr), nil
}

func convertVoices(vr voicesResponse) []tts.VoiceProfile {
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: providerName,
			Language: v.Labels["language"],
			Metadata: meta,
		})
	}
	return profiles
}
