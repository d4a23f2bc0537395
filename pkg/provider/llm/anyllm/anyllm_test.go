package anyllm

import (
	"slices"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/dialoguelab/pkg/provider/llm"
)

func TestParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		req      llm.CompletionRequest
		wantMsgs []string
		wantTemp bool
		wantMax  bool
	}{
		{
			name: "translation request",
			req: llm.CompletionRequest{
				SystemPrompt: "You are a professional interpreter.",
				Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Translate the following text:\n\nHallo"}},
				Temperature:  0.2,
				MaxTokens:    256,
			},
			wantMsgs: []string{anyllmlib.RoleSystem, llm.RoleUser},
			wantTemp: true,
			wantMax:  true,
		},
		{
			name:     "zero knobs use backend defaults",
			req:      llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}},
			wantMsgs: []string{llm.RoleUser},
		},
		{
			name: "named assistant turn",
			req: llm.CompletionRequest{Messages: []llm.Message{
				{Role: llm.RoleUser, Content: "Write a dialogue"},
				{Role: llm.RoleAssistant, Content: "A: Bonjour", Name: "writer"},
			}},
			wantMsgs: []string{llm.RoleUser, llm.RoleAssistant},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &Provider{name: "anthropic", model: "claude-haiku-4-5"}
			got := p.params(tt.req)

			if got.Model != "claude-haiku-4-5" {
				t.Errorf("model = %q", got.Model)
			}
			var roles []string
			for _, m := range got.Messages {
				roles = append(roles, m.Role)
			}
			if !slices.Equal(roles, tt.wantMsgs) {
				t.Errorf("roles = %v, want %v", roles, tt.wantMsgs)
			}
			last := got.Messages[len(got.Messages)-1]
			in := tt.req.Messages[len(tt.req.Messages)-1]
			if last.ContentString() != in.Content || last.Name != in.Name {
				t.Errorf("last message = %+v, want %+v", last, in)
			}
			if (got.Temperature != nil) != tt.wantTemp {
				t.Errorf("temperature set = %v, want %v", got.Temperature != nil, tt.wantTemp)
			}
			if tt.wantTemp && *got.Temperature != tt.req.Temperature {
				t.Errorf("temperature = %v", *got.Temperature)
			}
			if (got.MaxTokens != nil) != tt.wantMax {
				t.Errorf("max tokens set = %v, want %v", got.MaxTokens != nil, tt.wantMax)
			}
		})
	}
}

func TestNames(t *testing.T) {
	t.Parallel()
	names := Names()
	if !slices.IsSorted(names) || len(names) != 9 {
		t.Errorf("Names() = %v", names)
	}
	for _, n := range []string{"anthropic", "gemini", "ollama"} {
		if !slices.Contains(names, n) {
			t.Errorf("Names() lacks %q", n)
		}
	}
	if !Local("Ollama") || Local("anthropic") {
		t.Error("Local misclassifies backends")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		model   string
		opts    []anyllmlib.Option
		wantErr bool
	}{
		{"anthropic with key", "anthropic", "claude-haiku-4-5", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}, false},
		{"case insensitive", "OpenAI", "gpt-4.1-mini", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}, false},
		{"ollama needs no key", "ollama", "llama3", nil, false},
		{"llamacpp needs no key", "llamacpp", "llama3", nil, false},
		{"missing model", "anthropic", "", nil, true},
		{"unknown backend", "fakecloud", "m", []anyllmlib.Option{anyllmlib.WithAPIKey("k")}, true},
		{"hosted without key", "openai", "gpt-4.1-mini", nil, true},
	}
	// "hosted without key" relies on the environment fallback being empty.
	t.Setenv("OPENAI_API_KEY", "")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.backend, tt.model, tt.opts...)
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.Model() != tt.model || p.Name() == "" {
				t.Errorf("provider = %s/%s", p.Name(), p.Model())
			}
		})
	}
}

func TestNewOllama(t *testing.T) {
	p, err := NewOllama("llama3", anyllmlib.WithBaseURL("http://ollama:11434"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "ollama" {
		t.Errorf("Name() = %q", p.Name())
	}
}
