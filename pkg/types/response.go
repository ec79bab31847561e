package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the body of every failed call. RequestID echoes the
// X-Request-Id header so support can find the matching log line.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// StreamEvent is one server-sent event frame on the market stream.
type StreamEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
