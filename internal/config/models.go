package config

// Provider is reported for every catalog entry on /v1/models.
const Provider = "anthropic"

// DefaultModels lists the models usable with Claude Code OAuth tokens.
// Opus is not served by the backend for these tokens.
func DefaultModels() []string {
	return []string{
		"claude-sonnet-4-5-20250929",
		"claude-sonnet-4-20250514",
		"claude-3-5-haiku-20241022",
	}
}
