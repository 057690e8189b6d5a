package models

// RateLimitExceededResponse is the wire body for a throttled request.
type RateLimitExceededResponse struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	RetryAfterMs int64  `json:"retry_after_ms"`
}
