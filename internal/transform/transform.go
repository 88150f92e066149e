package transform

import (
	"github.com/kalviis/factory-bridge/internal/config"
	"github.com/kalviis/factory-bridge/internal/types"
)

// Result is returned by each step.
type Result struct {
	Step    string
	Applied bool
	// Detail is a short label for metrics and logs, e.g. the prompt mode.
	Detail string
}

// Step is one in-place rewrite of a request body.
type Step interface {
	Name() string
	Apply(req *types.ChatRequest) Result
}

// Chain runs steps in order.
type Chain struct {
	steps []Step
}

// NewChain creates a chain from the given steps. Nil steps are skipped.
func NewChain(steps ...Step) *Chain {
	c := &Chain{}
	for _, s := range steps {
		if s != nil {
			c.steps = append(c.steps, s)
		}
	}
	return c
}

// Run applies every step and returns their results in order.
func (c *Chain) Run(req *types.ChatRequest) []Result {
	results := make([]Result, 0, len(c.steps))
	for _, s := range c.steps {
		results = append(results, s.Apply(req))
	}
	return results
}

// Request rewrites req for forwarding: the system prompt override (if any)
// and the max_tokens clamp.
func Request(req *types.ChatRequest, override *config.PromptOverride, maxTokens int) []Result {
	var prompt Step
	if override != nil {
		prompt = SystemPrompt(override)
	}
	return NewChain(prompt, ClampMaxTokens(maxTokens)).Run(req)
}
