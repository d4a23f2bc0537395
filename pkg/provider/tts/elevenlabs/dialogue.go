package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

const dialoguePath = "/v1/text-to-dialogue/with-timestamps"

// dialogueRequest is the JSON body of a text-to-dialogue call.
type dialogueRequest struct {
	Inputs       []tts.DialogueInput `json:"inputs"`
	ModelID      string              `json:"model_id,omitempty"`
	LanguageCode string              `json:"language_code,omitempty"`
}

// dialogueResponse is the JSON body returned by text-to-dialogue.
type dialogueResponse struct {
	AudioBase64         string             `json:"audio_base64"`
	Alignment           *alignment.Seconds `json:"alignment"`
	NormalizedAlignment *alignment.Seconds `json:"normalized_alignment"`
	VoiceSegments       []voiceSegment     `json:"voice_segments"`
}

type voiceSegment struct {
	VoiceID             string  `json:"voice_id"`
	StartTimeSeconds    float64 `json:"start_time_seconds"`
	EndTimeSeconds      float64 `json:"end_time_seconds"`
	CharacterStartIndex int     `json:"character_start_index"`
	CharacterEndIndex   int     `json:"character_end_index"`
	DialogueInputIndex  int     `json:"dialogue_input_index"`
}

// SynthesizeDialogue renders req.Inputs as one audio file with character
// timing for the concatenated input texts.
func (p *Provider) SynthesizeDialogue(ctx context.Context, req tts.DialogueRequest) (*tts.DialogueResult, error) {
	if len(req.Inputs) == 0 {
		return nil, errors.New("elevenlabs: text-to-dialogue: no inputs")
	}
	for i, in := range req.Inputs {
		if in.VoiceID == "" {
			return nil, fmt.Errorf("elevenlabs: text-to-dialogue: input %d has no voice", i)
		}
	}

	format := req.OutputFormat
	if format == "" {
		format = p.outputFormat
	}
	model := req.ModelID
	if model == "" {
		model = p.dialogueModel
	}

	body := dialogueRequest{
		Inputs:       req.Inputs,
		ModelID:      model,
		LanguageCode: req.LanguageCode,
	}
	resp, err := p.postJSON(ctx, "text-to-dialogue", dialoguePath+"?output_format="+url.QueryEscape(format), body, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dr dialogueResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("elevenlabs: text-to-dialogue decode: %w", err)
	}
	return convertDialogueResponse(&dr, format)
}

// convertDialogueResponse turns the wire response into a tts.DialogueResult.
func convertDialogueResponse(dr *dialogueResponse, format string) (*tts.DialogueResult, error) {
	if dr.AudioBase64 == "" {
		return nil, fmt.Errorf("elevenlabs: text-to-dialogue: %w", tts.ErrNoAudio)
	}
	audio, err := base64.StdEncoding.DecodeString(dr.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: text-to-dialogue: decode audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs: text-to-dialogue: %w", tts.ErrNoAudio)
	}

	res := &tts.DialogueResult{
		Audio:               audio,
		MIMEType:            tts.MIMEType(format),
		OutputFormat:        format,
		Alignment:           alignment.FromSeconds(dr.Alignment),
		NormalizedAlignment: alignment.FromSeconds(dr.NormalizedAlignment),
	}
	for _, s := range dr.VoiceSegments {
		res.VoiceSegments = append(res.VoiceSegments, tts.VoiceSegment{
			VoiceID:        s.VoiceID,
			Start:          s.StartTimeSeconds,
			End:            s.EndTimeSeconds,
			CharacterStart: s.CharacterStartIndex,
			CharacterEnd:   s.CharacterEndIndex,
			InputIndex:     s.DialogueInputIndex,
		})
	}
	return res, nil
}
