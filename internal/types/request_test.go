package types

import (
	"encoding/json"
	"math"
	"testing"
)

func TestChatRequest_DecodeStringSystem(t *testing.T) {
	var req ChatRequest
	body := `{"model":"claude-sonnet-4-20250514","system":"You are helpful.","max_tokens":20000,"stream":true,"messages":[{"role":"user","content":"hi"}]}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if req.Model != "claude-sonnet-4-20250514" {
		t.Errorf("unexpected model %q", req.Model)
	}
	if !req.Stream {
		t.Error("expected stream=true")
	}
	if req.MaxTokens == nil || *req.MaxTokens != 20000 {
		t.Errorf("unexpected max_tokens %v", req.MaxTokens)
	}
	if req.System == nil || req.System.Kind != SystemText || req.System.Text != "You are helpful." {
		t.Errorf("unexpected system %+v", req.System)
	}
	if req.SystemChars() != len("You are helpful.") {
		t.Errorf("SystemChars() = %d", req.SystemChars())
	}
}

func TestChatRequest_DecodeBlockSystem(t *testing.T) {
	var req ChatRequest
	body := `{"system":[{"type":"text","text":"abc"},{"type":"text","text":"de","cache_control":{"type":"ephemeral"}}]}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.System == nil || req.System.Kind != SystemBlocks || len(req.System.Blocks) != 2 {
		t.Fatalf("unexpected system %+v", req.System)
	}
	if req.System.Blocks[1].CacheControl == nil || req.System.Blocks[1].CacheControl.Type != CacheEphemeral {
		t.Error("expected cache_control on second block")
	}
	if req.SystemChars() != 5 {
		t.Errorf("SystemChars() = %d, want 5", req.SystemChars())
	}
}

func TestChatRequest_PassthroughFields(t *testing.T) {
	body := `{"model":"m","messages":[{"role":"user","content":"hi"}],"temperature":0.2,"metadata":{"user_id":"u"},"system":[{"type":"text","text":"x","citations":{"enabled":true}}]}`
	var req ChatRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	out, err := json.Marshal(&req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got, want map[string]interface{}
	json.Unmarshal(out, &got)
	json.Unmarshal([]byte(body), &want)

	for _, key := range []string{"model", "messages", "temperature", "metadata", "system"} {
		g, _ := json.Marshal(got[key])
		w, _ := json.Marshal(want[key])
		if string(g) != string(w) {
			t.Errorf("field %s changed: got %s, want %s", key, g, w)
		}
	}
	if _, ok := got["max_tokens"]; ok {
		t.Error("max_tokens should not be added when absent")
	}
}

func TestChatRequest_NullFieldsUntouched(t *testing.T) {
	var req ChatRequest
	if err := json.Unmarshal([]byte(`{"system":null,"max_tokens":null}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.System != nil || req.MaxTokens != nil {
		t.Fatalf("null fields should stay untyped: %+v", req)
	}
	out, _ := json.Marshal(&req)
	if string(out) != `{"max_tokens":null,"system":null}` {
		t.Errorf("unexpected encoding %s", out)
	}
}

func TestChatRequest_RejectsNonObject(t *testing.T) {
	for _, body := range []string{`null`, `[1,2]`, `"x"`, `{"model":`} {
		var req ChatRequest
		if err := json.Unmarshal([]byte(body), &req); err == nil {
			t.Errorf("expected error for %s", body)
		}
	}
}

func TestSystemPrompt_Normalize(t *testing.T) {
	tests := []struct {
		name string
		sp   *SystemPrompt
		want int
	}{
		{"nil", nil, 0},
		{"empty string", TextSystem(""), 0},
		{"string", TextSystem("x"), 1},
		{"blocks", BlockSystem(SystemBlock{Type: "text", Text: "a"}, SystemBlock{Type: "text", Text: "b"}), 2},
	}
	for _, tt := range tests {
		if got := tt.sp.Normalize(); len(got) != tt.want {
			t.Errorf("%s: Normalize() returned %d blocks, want %d", tt.name, len(got), tt.want)
		}
	}
}

func TestEphemeralTextBlock_Encoding(t *testing.T) {
	out, err := json.Marshal(EphemeralTextBlock("Be terse."))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"text","text":"Be terse.","cache_control":{"type":"ephemeral"}}`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

func TestChatRequest_MaxTokensNumberForms(t *testing.T) {
	tests := []struct {
		raw  string
		want *int
	}{
		{`20000`, intPtr(20000)},
		{`20000.0`, intPtr(20000)},
		{`2e4`, intPtr(20000)},
		{`100.2`, intPtr(101)},
		{`99999999999999999999`, intPtr(math.MaxInt)},
		{`-99999999999999999999`, intPtr(math.MinInt)},
		{`"20000"`, nil},
		{`true`, nil},
	}

	for _, tt := range tests {
		var req ChatRequest
		if err := json.Unmarshal([]byte(`{"max_tokens":`+tt.raw+`}`), &req); err != nil {
			t.Fatalf("%s: unmarshal: %v", tt.raw, err)
		}
		switch {
		case tt.want == nil && req.MaxTokens != nil:
			t.Errorf("%s: MaxTokens = %d, want nil", tt.raw, *req.MaxTokens)
		case tt.want != nil && (req.MaxTokens == nil || *req.MaxTokens != *tt.want):
			t.Errorf("%s: MaxTokens = %v, want %d", tt.raw, req.MaxTokens, *tt.want)
		}

		// an untouched value keeps the client's spelling
		out, err := json.Marshal(&req)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tt.raw, err)
		}
		if string(out) != `{"max_tokens":`+tt.raw+`}` {
			t.Errorf("%s: re-encoded as %s", tt.raw, out)
		}
	}
}

func TestChatRequest_InvalidSystem(t *testing.T) {
	tests := []struct {
		body    string
		invalid bool
	}{
		{`{"system":"x"}`, false},
		{`{"system":[{"type":"text","text":"x"}]}`, false},
		{`{"system":null}`, false},
		{`{}`, false},
		{`{"system":[1]}`, true},
		{`{"system":42}`, true},
	}

	for _, tt := range tests {
		var req ChatRequest
		if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
			t.Fatalf("%s: unmarshal: %v", tt.body, err)
		}
		if req.HasInvalidSystem() != tt.invalid {
			t.Errorf("%s: HasInvalidSystem() = %v, want %v", tt.body, req.HasInvalidSystem(), tt.invalid)
		}
		if tt.invalid && req.System != nil {
			t.Errorf("%s: System should be nil", tt.body)
		}
	}
}

func intPtr(n int) *int { return &n }
