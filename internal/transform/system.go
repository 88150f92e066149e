package transform

import (
	"log/slog"

	"github.com/kalviis/factory-bridge/internal/config"
	"github.com/kalviis/factory-bridge/internal/types"
)

type systemStep struct {
	override *config.PromptOverride
}

// SystemPrompt replaces or appends to the request's system prompt according
// to the override. A failed override leaves the request untouched.
func SystemPrompt(override *config.PromptOverride) Step {
	return systemStep{override: override}
}

func (s systemStep) Name() string { return "system_prompt" }

func (s systemStep) Apply(req *types.ChatRequest) Result {
	res := Result{Step: s.Name(), Detail: string(s.override.Mode)}

	if req.HasInvalidSystem() {
		slog.Warn("custom system prompt not applied, request system field is malformed")
		res.Detail = "error"
		return res
	}

	original := req.System.Normalize()
	slog.Debug("original system prompt", "chars", req.SystemChars(), "blocks", len(original))

	text, err := s.override.Text()
	if err != nil {
		slog.Warn("custom system prompt not applied", "error", err)
		res.Detail = "error"
		return res
	}

	switch s.override.Mode {
	case config.ModeReplace:
		req.System = types.BlockSystem(types.EphemeralTextBlock(text))
	case config.ModeAppend:
		blocks := append(original, types.EphemeralTextBlock("\n\n"+text))
		req.System = types.BlockSystem(blocks...)
	default:
		slog.Warn("unknown prompt mode", "mode", s.override.Mode)
		res.Detail = "unknown_mode"
		return res
	}

	slog.Info("applied custom system prompt",
		"mode", s.override.Mode,
		"chars", len(text),
		"cache_control", types.CacheEphemeral,
	)
	res.Applied = true
	return res
}
