package transform

import (
	"log/slog"

	"github.com/kalviis/factory-bridge/internal/types"
)

// DefaultMaxTokens is the largest max_tokens the backend accepts for OAuth tokens.
const DefaultMaxTokens = 8192

type clampStep struct {
	limit int
}

// ClampMaxTokens lowers max_tokens to limit. A non-positive limit means DefaultMaxTokens.
func ClampMaxTokens(limit int) Step {
	if limit <= 0 {
		limit = DefaultMaxTokens
	}
	return clampStep{limit: limit}
}

func (s clampStep) Name() string { return "max_tokens" }

func (s clampStep) Apply(req *types.ChatRequest) Result {
	res := Result{Step: s.Name()}
	if req.MaxTokens == nil || *req.MaxTokens <= s.limit {
		return res
	}
	slog.Info("clamped max_tokens", "requested", *req.MaxTokens, "limit", s.limit)
	n := s.limit
	req.MaxTokens = &n
	res.Applied = true
	res.Detail = "clamped"
	return res
}
