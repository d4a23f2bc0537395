package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

const streamPathFmt = "/v1/text-to-speech/%s/stream-input"

// textMessage is the JSON payload sent for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// boiMessage is the initial "beginning of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// streamResponse is one message received over the WebSocket.
type streamResponse struct {
	Audio     string            `json:"audio"`
	IsFinal   bool              `json:"isFinal"`
	Alignment *alignment.Stream `json:"alignment"`
	Message   string            `json:"message,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// SynthesizeStream opens a stream-input WebSocket, pipes text fragments from
// text, and emits audio chunks together with their character alignment.
//
// The returned channel is closed when the final message arrives, the
// connection fails, or ctx is cancelled. A failure after the handshake is
// delivered as a last chunk carrying Err.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan tts.StreamChunk, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice.ID), &websocket.DialOptions{
		HTTPClient: p.httpClient,
		HTTPHeader: http.Header{"xi-api-key": []string{p.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	conn.SetReadLimit(1 << 22)

	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	boi, _ := json.Marshal(boiMessage{
		Text:          " ", // the first message must carry non-empty text
		VoiceSettings: vs,
		XiAPIKey:      p.apiKey,
	})
	if err := conn.Write(ctx, websocket.MessageText, boi); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send BOI")
		return nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	out := make(chan tts.StreamChunk, 64)
	readDone := make(chan struct{})
	go readStream(ctx, conn, out, readDone)

	go func() {
		defer close(out)
		var werr error
		defer func() {
			if werr != nil {
				conn.Close(websocket.StatusInternalError, "send failed")
			} else {
				conn.Close(websocket.StatusNormalClosure, "done")
			}
			<-readDone
			if werr != nil {
				emit(ctx, out, tts.StreamChunk{Err: werr})
			}
		}()

		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					flush, _ := buildWSMessage("", nil)
					if err := conn.Write(ctx, websocket.MessageText, flush); err != nil {
						werr = fmt.Errorf("elevenlabs: send flush: %w", err)
						return
					}
					<-readDone
					return
				}
				if fragment == "" {
					continue
				}
				msg, _ := buildWSMessage(fragment, nil)
				if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
					werr = fmt.Errorf("elevenlabs: send text: %w", err)
					return
				}
			case <-readDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// readStream forwards received audio and alignment to out until the final
// message. A provider error, an undecodable message or an abnormal close ends
// the stream with an error chunk.
func readStream(ctx context.Context, conn *websocket.Conn, out chan<- tts.StreamChunk, done chan<- struct{}) {
	defer close(done)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				emit(ctx, out, tts.StreamChunk{Err: fmt.Errorf("elevenlabs: stream read: %w", err)})
			}
			return
		}
		chunk, final, err := decodeStreamMessage(msg)
		if err != nil {
			emit(ctx, out, tts.StreamChunk{Err: fmt.Errorf("elevenlabs: stream: %w", err)})
			return
		}
		if len(chunk.Audio) > 0 || chunk.Alignment != nil {
			if !emit(ctx, out, chunk) {
				return
			}
		}
		if final {
			return
		}
	}
}

func emit(ctx context.Context, out chan<- tts.StreamChunk, c tts.StreamChunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// streamURL constructs the stream-input URL for a voice.
func (p *Provider) streamURL(voiceID string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	q.Set("sync_alignment", "true")
	return wsBaseURL(p.baseURL) + fmt.Sprintf(streamPathFmt, url.PathEscape(voiceID)) + "?" + q.Encode()
}

// buildWSMessage constructs the JSON text payload for a single fragment. An
// empty text is the end-of-input signal.
func buildWSMessage(text string, vs *voiceSettings) ([]byte, error) {
	return json.Marshal(textMessage{Text: text, VoiceSettings: vs})
}

// decodeStreamMessage parses one WebSocket message. It reports whether the
// message is the last of the stream.
func decodeStreamMessage(msg []byte) (tts.StreamChunk, bool, error) {
	var resp streamResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return tts.StreamChunk{}, false, fmt.Errorf("decode: %w", err)
	}
	if resp.Error != "" {
		return tts.StreamChunk{}, true, fmt.Errorf("provider error: %s", resp.Error)
	}

	chunk := tts.StreamChunk{Alignment: resp.Alignment}
	if resp.Audio != "" {
		audio, err := base64.StdEncoding.DecodeString(resp.Audio)
		if err != nil {
			return tts.StreamChunk{}, resp.IsFinal, fmt.Errorf("decode audio: %w", err)
		}
		chunk.Audio = audio
	}
	return chunk, resp.IsFinal, nil
}
