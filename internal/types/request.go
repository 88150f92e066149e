package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ChatRequest is a Messages API request body. Only the fields the bridge
// reads or rewrites are typed; everything else is carried through verbatim.
type ChatRequest struct {
	Model     string
	Stream    bool
	MaxTokens *int
	// System is nil when the request has no system field, or one that is
	// neither a string nor a list of blocks.
	System *SystemPrompt

	// Fields holds every top-level field as received. Typed fields that
	// were set override their entry on encode.
	Fields map[string]json.RawMessage

	// decodedMaxTokens is MaxTokens as first decoded; an unchanged value
	// re-encodes with the client's own spelling.
	decodedMaxTokens *int
	// invalidSystem marks a system field that is present but neither a
	// string nor a list of blocks.
	invalidSystem bool
}

func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("request body must be a JSON object")
	}
	*r = ChatRequest{Fields: fields}

	if raw, ok := fields["model"]; ok {
		if err := json.Unmarshal(raw, &r.Model); err != nil {
			return fmt.Errorf("decode model: %w", err)
		}
	}
	if raw, ok := fields["stream"]; ok {
		// non-boolean stream values are treated as false and passed through
		_ = json.Unmarshal(raw, &r.Stream)
	}
	if raw, ok := fields["max_tokens"]; ok && !isNull(raw) {
		if n, ok := decodeTokenCount(raw); ok {
			r.MaxTokens = &n
			decoded := n
			r.decodedMaxTokens = &decoded
		}
	}
	if raw, ok := fields["system"]; ok && !isNull(raw) {
		var sp SystemPrompt
		if err := json.Unmarshal(raw, &sp); err == nil {
			r.System = &sp
		} else {
			r.invalidSystem = true
		}
	}
	return nil
}

// decodeTokenCount reads any JSON number as an int. Fractions round up and
// values beyond the int range saturate, so comparisons against a limit
// keep their outcome. Strings and other non-numbers are not token counts.
func decodeTokenCount(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return 0, false
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0, false
	}
	if i, err := num.Int64(); err == nil && i >= math.MinInt && i <= math.MaxInt {
		return int(i), true
	}
	f, err := strconv.ParseFloat(num.String(), 64)
	if err != nil && !math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Ceil(f)
	switch {
	case f >= math.MaxInt:
		return math.MaxInt, true
	case f <= math.MinInt:
		return math.MinInt, true
	}
	return int(f), true
}

// HasInvalidSystem reports whether the request carried a system field
// that could not be decoded. Such a field is forwarded as received.
func (r *ChatRequest) HasInvalidSystem() bool {
	return r.invalidSystem
}

func (r ChatRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	if r.MaxTokens != nil && (r.decodedMaxTokens == nil || *r.decodedMaxTokens != *r.MaxTokens) {
		raw, err := json.Marshal(*r.MaxTokens)
		if err != nil {
			return nil, err
		}
		out["max_tokens"] = raw
	}
	if r.System != nil {
		raw, err := json.Marshal(r.System)
		if err != nil {
			return nil, fmt.Errorf("encode system: %w", err)
		}
		out["system"] = raw
	}
	return json.Marshal(out)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// SystemChars returns the length of the system prompt text that will be forwarded.
func (r *ChatRequest) SystemChars() int {
	if r.System == nil {
		return 0
	}
	if r.System.Kind == SystemText {
		return len(r.System.Text)
	}
	n := 0
	for _, b := range r.System.Blocks {
		if b.Type == BlockTypeText {
			n += len(b.Text)
		}
	}
	return n
}

type SystemKind int

const (
	SystemText SystemKind = iota
	SystemBlocks
)

// SystemPrompt is the system field: either a bare string or a list of blocks.
type SystemPrompt struct {
	Kind   SystemKind
	Text   string
	Blocks []SystemBlock
}

func TextSystem(s string) *SystemPrompt {
	return &SystemPrompt{Kind: SystemText, Text: s}
}

func BlockSystem(blocks ...SystemBlock) *SystemPrompt {
	return &SystemPrompt{Kind: SystemBlocks, Blocks: blocks}
}

// Normalize returns the prompt as an ordered list of blocks. An empty
// string yields no blocks, since the backend rejects empty text blocks.
func (s *SystemPrompt) Normalize() []SystemBlock {
	if s == nil {
		return nil
	}
	if s.Kind == SystemBlocks {
		return append([]SystemBlock(nil), s.Blocks...)
	}
	if s.Text == "" {
		return nil
	}
	return []SystemBlock{{Type: BlockTypeText, Text: s.Text}}
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty system field")
	}
	switch data[0] {
	case '"':
		s.Kind = SystemText
		s.Blocks = nil
		return json.Unmarshal(data, &s.Text)
	case '[':
		s.Kind = SystemBlocks
		s.Text = ""
		return json.Unmarshal(data, &s.Blocks)
	default:
		return fmt.Errorf("system must be a string or a list of blocks")
	}
}

func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if s.Kind == SystemText {
		return json.Marshal(s.Text)
	}
	if s.Blocks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Blocks)
}

const (
	BlockTypeText  = "text"
	CacheEphemeral = "ephemeral"
)

type CacheControl struct {
	Type string `json:"type"`
}

// SystemBlock is one entry of a list-shaped system prompt. Blocks decoded
// from a client request re-encode byte-for-byte, keeping fields the bridge
// does not model.
type SystemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`

	raw json.RawMessage
}

// EphemeralTextBlock builds a text block marked for backend prompt caching.
func EphemeralTextBlock(text string) SystemBlock {
	return SystemBlock{
		Type:         BlockTypeText,
		Text:         text,
		CacheControl: &CacheControl{Type: CacheEphemeral},
	}
}

func (b *SystemBlock) UnmarshalJSON(data []byte) error {
	type plain SystemBlock
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = SystemBlock(p)
	b.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (b SystemBlock) MarshalJSON() ([]byte, error) {
	if b.raw != nil {
		return b.raw, nil
	}
	type plain SystemBlock
	return json.Marshal(plain(b))
}
