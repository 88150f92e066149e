package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

type PromptMode string

const (
	ModeReplace PromptMode = "replace"
	ModeAppend  PromptMode = "append"
)

var (
	ErrNoPrompt          = errors.New("no custom prompt specified")
	ErrPromptFileMissing = errors.New("custom prompt file not found")
)

// PromptOverride is the operator-supplied system prompt document.
// When both Prompt and PromptFile are set, PromptFile wins.
type PromptOverride struct {
	Mode       PromptMode `json:"mode"`
	Prompt     *string    `json:"prompt,omitempty"`
	PromptFile *string    `json:"prompt_file,omitempty"`
}

// ParsePromptOverride decodes an override document. A missing mode means replace.
func ParsePromptOverride(data []byte) (*PromptOverride, error) {
	var o PromptOverride
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse prompt override: %w", err)
	}
	if o.Mode == "" {
		o.Mode = ModeReplace
	}
	return &o, nil
}

// LoadPromptOverride reads the override document at path.
// It returns (nil, nil) when the file does not exist.
func LoadPromptOverride(path string) (*PromptOverride, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prompt override %s: %w", path, err)
	}
	return ParsePromptOverride(data)
}

// Text resolves the override prompt, reading PromptFile when configured.
// Surrounding whitespace is trimmed.
func (o *PromptOverride) Text() (string, error) {
	switch {
	case o.PromptFile != nil:
		path := ExpandHome(*o.PromptFile)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrPromptFileMissing, path)
		}
		if err != nil {
			return "", fmt.Errorf("read prompt file %s: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil
	case o.Prompt != nil:
		return strings.TrimSpace(*o.Prompt), nil
	default:
		return "", ErrNoPrompt
	}
}

// PromptResolver re-reads the override document on every call so operators
// can edit it without restarting the bridge.
type PromptResolver struct {
	path func() string
}

func NewPromptResolver(path func() string) *PromptResolver {
	return &PromptResolver{path: path}
}

// Resolve returns the current override, or nil when there is none or it cannot be parsed.
func (r *PromptResolver) Resolve() *PromptOverride {
	path := ExpandHome(r.path())
	o, err := LoadPromptOverride(path)
	if err != nil {
		slog.Error("ignoring prompt override", "path", path, "error", err)
		return nil
	}
	return o
}

// Exists reports whether an override document is currently present.
func (r *PromptResolver) Exists() bool {
	_, err := os.Stat(ExpandHome(r.path()))
	return err == nil
}
