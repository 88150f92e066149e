package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// APIError is the bridge's own error envelope: {"error":{"message","code"}}.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message: message,
			Code:    statusCode,
		},
	})
}

func WriteNotFound(w http.ResponseWriter, requestID string) {
	WriteError(w, requestID, http.StatusNotFound, "Not Found")
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, message)
}

func WriteRateLimitError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, message)
}

// WriteJSON writes v with status 200.
func WriteJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write json response", "error", err)
	}
}
