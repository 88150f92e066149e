package backend

import (
	"log/slog"
	"sync"
)

// State is the bridge's view of backend reachability.
type State int

const (
	StateUp   State = iota // requests reach the backend
	StateDown              // consecutive transport failures hit the threshold
)

func (s State) String() string {
	switch s {
	case StateUp:
		return "up"
	case StateDown:
		return "down"
	default:
		return "unknown"
	}
}

const defaultFailureThreshold = 3

// Health tracks consecutive transport failures to the backend. It never
// blocks requests; it only reports transitions.
type Health struct {
	mu sync.Mutex

	state    State
	failures int

	failureThreshold int
	onChange         []func(State)
}

func NewHealth(failureThreshold int) *Health {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	return &Health{state: StateUp, failureThreshold: failureThreshold}
}

// OnChange registers fn to run after every state transition.
// Register callbacks before the first request.
func (h *Health) OnChange(fn func(State)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// State returns the current state.
func (h *Health) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// RecordSuccess records a request that got any HTTP response.
func (h *Health) RecordSuccess() {
	h.mu.Lock()
	h.failures = 0
	changed := h.state == StateDown
	h.state = StateUp
	h.mu.Unlock()

	if changed {
		slog.Info("backend reachable again")
		h.notify(StateUp)
	}
}

// RecordFailure records a request that failed before any response arrived.
func (h *Health) RecordFailure(err error) {
	h.mu.Lock()
	h.failures++
	failures := h.failures
	changed := h.state == StateUp && h.failures >= h.failureThreshold
	if changed {
		h.state = StateDown
	}
	h.mu.Unlock()

	if changed {
		slog.Error("backend unreachable, is the API gateway running?", "consecutive_failures", failures, "error", err)
		h.notify(StateDown)
	}
}

func (h *Health) notify(s State) {
	h.mu.Lock()
	fns := append(([]func(State))(nil), h.onChange...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
