package types

// ErrorEnvelope is the backend's error shape:
// {"error":{"type":"rate_limit_error","message":"..."}}.
type ErrorEnvelope struct {
	Error *BackendError `json:"error"`
}

type BackendError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Model struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Provider string `json:"provider"`
}

type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

type HealthStatus struct {
	Status string `json:"status"`
}
