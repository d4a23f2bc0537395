package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/dialoguelab/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		msg   llm.Message
		check func(t *testing.T, sys, user, asst bool)
	}{
		{
			name: "system",
			msg:  llm.Message{Role: llm.RoleSystem, Content: "You are an expert dialogue writer."},
			check: func(t *testing.T, sys, user, asst bool) {
				if !sys {
					t.Error("expected OfSystem to be set")
				}
			},
		},
		{
			name: "user",
			msg:  llm.Message{Role: llm.RoleUser, Content: "Translate the following text:"},
			check: func(t *testing.T, sys, user, asst bool) {
				if !user {
					t.Error("expected OfUser to be set")
				}
			},
		},
		{
			name: "assistant",
			msg:  llm.Message{Role: llm.RoleAssistant, Content: "A: Bonjour", Name: "writer"},
			check: func(t *testing.T, sys, user, asst bool) {
				if !asst {
					t.Error("expected OfAssistant to be set")
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := convertMessage(tt.msg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, p.OfSystem != nil, p.OfUser != nil, p.OfAssistant != nil)
		})
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	t.Parallel()
	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p, err := New("sk-test", "gpt-4.1-nano")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "sys",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature:  0.2,
		MaxTokens:    100,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 || params.Messages[0].OfSystem == nil {
		t.Errorf("messages = %d, want system prompt first", len(params.Messages))
	}
	if string(params.Model) != "gpt-4.1-nano" {
		t.Errorf("model = %q", params.Model)
	}
	if params.Temperature.Value != 0.2 || params.MaxCompletionTokens.Value != 100 {
		t.Errorf("temperature/max = %v/%v", params.Temperature.Value, params.MaxCompletionTokens.Value)
	}

	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Error("expected error for empty request")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4.1-mini"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	p, err := New("sk-test", "gpt-4.1-mini",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
		WithTimeout(0),
	)
	if err != nil {
		t.Fatalf("unexpected error with valid options: %v", err)
	}
	if p.Model() != "gpt-4.1-mini" {
		t.Errorf("Model() = %q", p.Model())
	}
}

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := New("sk-test", "gpt-4.1-mini", WithBaseURL(srv.URL+"/"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestComplete(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["model"] != "gpt-4.1-mini" {
			t.Errorf("model = %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"gpt-4.1-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Bonjour"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":7,"completion_tokens":2,"total_tokens":9}}`)
	})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Bonjour" || resp.Usage.TotalTokens != 9 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestStreamCompletion(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{`{"content":"A: Hi"}`, `{"content":"\nB: Hello"}`} {
			io.WriteString(w, `data: {"id":"c","object":"chat.completion.chunk","created":1,"model":"gpt-4.1-mini","choices":[{"index":0,"delta":`+delta+`,"finish_reason":null}]}`+"\n\n")
		}
		io.WriteString(w, `data: {"id":"c","object":"chat.completion.chunk","created":1,"model":"gpt-4.1-mini","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	})

	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "Write"}},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	text, err := llm.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "A: Hi\nB: Hello" {
		t.Errorf("text = %q", text)
	}
}
