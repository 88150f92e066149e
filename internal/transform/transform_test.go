package transform

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kalviis/factory-bridge/internal/config"
	"github.com/kalviis/factory-bridge/internal/types"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func decode(t *testing.T, body string) *types.ChatRequest {
	t.Helper()
	var req types.ChatRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return &req
}

func encodedSystem(t *testing.T, req *types.ChatRequest) string {
	t.Helper()
	out, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	var fields map[string]json.RawMessage
	json.Unmarshal(out, &fields)
	return string(fields["system"])
}

func TestClampMaxTokens(t *testing.T) {
	tests := []struct {
		in      *int
		want    *int
		applied bool
	}{
		{intPtr(20000), intPtr(8192), true},
		{intPtr(8193), intPtr(8192), true},
		{intPtr(8192), intPtr(8192), false},
		{intPtr(100), intPtr(100), false},
		{intPtr(0), intPtr(0), false},
		{nil, nil, false},
	}

	for _, tt := range tests {
		req := &types.ChatRequest{MaxTokens: tt.in}
		res := ClampMaxTokens(8192).Apply(req)
		if res.Applied != tt.applied {
			t.Errorf("max_tokens=%v: applied=%v, want %v", tt.in, res.Applied, tt.applied)
		}
		if (req.MaxTokens == nil) != (tt.want == nil) {
			t.Fatalf("max_tokens=%v: got %v, want %v", tt.in, req.MaxTokens, tt.want)
		}
		if req.MaxTokens != nil && *req.MaxTokens != *tt.want {
			t.Errorf("max_tokens=%d: got %d, want %d", *tt.in, *req.MaxTokens, *tt.want)
		}
	}
}

func TestClampMaxTokens_DefaultLimit(t *testing.T) {
	req := &types.ChatRequest{MaxTokens: intPtr(100000)}
	ClampMaxTokens(0).Apply(req)
	if *req.MaxTokens != DefaultMaxTokens {
		t.Errorf("expected %d, got %d", DefaultMaxTokens, *req.MaxTokens)
	}
}

func TestReplaceMode(t *testing.T) {
	originals := []string{
		`{"system":"You are helpful."}`,
		`{"system":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`,
		`{}`,
		`{"system":""}`,
	}
	override := &config.PromptOverride{Mode: config.ModeReplace, Prompt: strPtr("Be terse.")}
	want := `[{"type":"text","text":"Be terse.","cache_control":{"type":"ephemeral"}}]`

	for _, body := range originals {
		req := decode(t, body)
		res := SystemPrompt(override).Apply(req)
		if !res.Applied {
			t.Errorf("%s: expected override to apply", body)
		}
		if got := encodedSystem(t, req); got != want {
			t.Errorf("%s: system = %s, want %s", body, got, want)
		}
	}
}

func TestAppendMode(t *testing.T) {
	override := &config.PromptOverride{Mode: config.ModeAppend, Prompt: strPtr("Extra rules.")}

	tests := []struct {
		body string
		want string
	}{
		{
			`{"system":"You are helpful."}`,
			`[{"type":"text","text":"You are helpful."},{"type":"text","text":"\n\nExtra rules.","cache_control":{"type":"ephemeral"}}]`,
		},
		{
			`{"system":[{"type":"text","text":"a","cache_control":{"type":"ephemeral"}},{"type":"text","text":"b"}]}`,
			`[{"type":"text","text":"a","cache_control":{"type":"ephemeral"}},{"type":"text","text":"b"},{"type":"text","text":"\n\nExtra rules.","cache_control":{"type":"ephemeral"}}]`,
		},
		{
			`{}`,
			`[{"type":"text","text":"\n\nExtra rules.","cache_control":{"type":"ephemeral"}}]`,
		},
		{
			// an empty string yields no original block; the backend rejects empty text blocks
			`{"system":""}`,
			`[{"type":"text","text":"\n\nExtra rules.","cache_control":{"type":"ephemeral"}}]`,
		},
	}

	for _, tt := range tests {
		req := decode(t, tt.body)
		SystemPrompt(override).Apply(req)
		if got := encodedSystem(t, req); got != tt.want {
			t.Errorf("%s:\n got  %s\n want %s", tt.body, got, tt.want)
		}
	}
}

func TestSystemPrompt_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.md")
	if err := os.WriteFile(path, []byte("\n File prompt \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	req := decode(t, `{"system":"orig"}`)
	SystemPrompt(&config.PromptOverride{Mode: config.ModeReplace, PromptFile: &path}).Apply(req)

	blocks := req.System.Normalize()
	if len(blocks) != 1 || blocks[0].Text != "File prompt" {
		t.Errorf("unexpected blocks %+v", blocks)
	}
}

func TestSystemPrompt_LeavesRequestUntouched(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.txt")
	tests := []struct {
		name     string
		override *config.PromptOverride
	}{
		{"missing prompt file", &config.PromptOverride{Mode: config.ModeReplace, PromptFile: &missing}},
		{"unknown mode", &config.PromptOverride{Mode: "prepend", Prompt: strPtr("x")}},
		{"no prompt", &config.PromptOverride{Mode: config.ModeReplace}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := decode(t, `{"system":"You are helpful."}`)
			res := SystemPrompt(tt.override).Apply(req)
			if res.Applied {
				t.Error("override should not apply")
			}
			if got := encodedSystem(t, req); got != `"You are helpful."` {
				t.Errorf("system changed to %s", got)
			}
		})
	}
}

func TestSystemPrompt_MalformedSystemUntouched(t *testing.T) {
	bodies := []string{
		`{"system":[1]}`,
		`{"system":[{"type":"text","text":"keep"},"stray"]}`,
		`{"system":42}`,
		`{"system":{"text":"x"}}`,
	}
	modes := []config.PromptMode{config.ModeReplace, config.ModeAppend}

	for _, body := range bodies {
		for _, mode := range modes {
			req := decode(t, body)
			var want map[string]json.RawMessage
			json.Unmarshal([]byte(body), &want)

			res := SystemPrompt(&config.PromptOverride{Mode: mode, Prompt: strPtr("X")}).Apply(req)
			if res.Applied {
				t.Errorf("%s (%s): override should not apply", body, mode)
			}
			if res.Detail != "error" {
				t.Errorf("%s (%s): detail = %q, want error", body, mode, res.Detail)
			}
			if got := encodedSystem(t, req); got != string(want["system"]) {
				t.Errorf("%s (%s): system changed to %s", body, mode, got)
			}
		}
	}
}

func TestClampMaxTokens_NumberSpellings(t *testing.T) {
	tests := []struct {
		body    string
		want    string
		applied bool
	}{
		{`{"max_tokens":20000.0}`, `8192`, true},
		{`{"max_tokens":2e4}`, `8192`, true},
		{`{"max_tokens":99999999999999999999}`, `8192`, true},
		{`{"max_tokens":1e400}`, `8192`, true},
		{`{"max_tokens":8192.5}`, `8192`, true},
		{`{"max_tokens":8192.0}`, `8192.0`, false},
		{`{"max_tokens":100.0}`, `100.0`, false},
		{`{"max_tokens":1e2}`, `1e2`, false},
		{`{"max_tokens":-5}`, `-5`, false},
		{`{"max_tokens":"20000"}`, `"20000"`, false},
	}

	for _, tt := range tests {
		req := decode(t, tt.body)
		res := ClampMaxTokens(8192).Apply(req)
		if res.Applied != tt.applied {
			t.Errorf("%s: applied = %v, want %v", tt.body, res.Applied, tt.applied)
		}
		out, err := json.Marshal(req)
		if err != nil {
			t.Fatalf("%s: encode: %v", tt.body, err)
		}
		var fields map[string]json.RawMessage
		json.Unmarshal(out, &fields)
		if got := string(fields["max_tokens"]); got != tt.want {
			t.Errorf("%s: max_tokens = %s, want %s", tt.body, got, tt.want)
		}
	}
}

// Replace override with an oversized max_tokens: both rewrites happen.
func TestRequest_ReplaceAndClamp(t *testing.T) {
	req := decode(t, `{"system":"You are helpful.","max_tokens":20000,"stream":false}`)
	override := &config.PromptOverride{Mode: config.ModeReplace, Prompt: strPtr("Be terse.")}

	results := Request(req, override, 8192)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	out, _ := json.Marshal(req)
	var got map[string]interface{}
	json.Unmarshal(out, &got)

	if got["max_tokens"] != float64(8192) {
		t.Errorf("max_tokens = %v, want 8192", got["max_tokens"])
	}
	system, _ := json.Marshal(got["system"])
	want := `[{"cache_control":{"type":"ephemeral"},"text":"Be terse.","type":"text"}]`
	if string(system) != want {
		t.Errorf("system = %s, want %s", system, want)
	}
	if got["stream"] != false {
		t.Errorf("stream = %v, want false", got["stream"])
	}
}

// Without an override only the clamp runs and system passes through.
func TestRequest_NoOverride(t *testing.T) {
	req := decode(t, `{"system":[{"type":"text","text":"keep me"}],"max_tokens":9000}`)
	results := Request(req, nil, 8192)
	if len(results) != 1 || results[0].Step != "max_tokens" {
		t.Fatalf("unexpected results %+v", results)
	}
	if got := encodedSystem(t, req); got != `[{"type":"text","text":"keep me"}]` {
		t.Errorf("system changed to %s", got)
	}
	if *req.MaxTokens != 8192 {
		t.Errorf("max_tokens = %d, want 8192", *req.MaxTokens)
	}
}
