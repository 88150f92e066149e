package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalviis/factory-bridge/internal/types"
)

const (
	ErrorTypeRateLimit      = "rate_limit_error"
	ErrorTypeAuthentication = "authentication_error"

	// maxLoggedBody bounds how much of an unparseable error body is logged.
	maxLoggedBody = 500
)

var errNoErrorType = errors.New("error envelope has no error.type")

// ParseError decodes a backend error envelope. Bodies without an error.type are rejected.
func ParseError(body []byte) (*types.BackendError, error) {
	var env types.ErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode error envelope: %w", err)
	}
	if env.Error == nil || env.Error.Type == "" {
		return nil, errNoErrorType
	}
	return env.Error, nil
}

// TranslateStatus maps a non-2xx backend error body to the status the client
// should see. Rate limits become 429 and authentication failures 401;
// everything else keeps the original status.
func TranslateStatus(body []byte, status int) int {
	be, err := ParseError(body)
	if err != nil {
		slog.Error("could not parse backend error response",
			"status", status,
			"error", err,
			"body", truncate(body, maxLoggedBody),
		)
		return status
	}

	switch be.Type {
	case ErrorTypeRateLimit:
		slog.Warn("backend rate limit exceeded", "message", be.Message)
		return http.StatusTooManyRequests
	case ErrorTypeAuthentication:
		slog.Error("backend authentication failed, check the OAuth login", "message", be.Message)
		return http.StatusUnauthorized
	default:
		slog.Error("backend api error", "type", be.Type, "message", be.Message, "status", status)
		return status
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
