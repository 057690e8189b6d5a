// Package recovery decides what to do about a classified failure before the
// response is composed: serve a stale cached payload, hand the client a
// retry hint, or concede a graceful degradation notice. Strategies are
// consulted in priority order and the first one to produce an outcome wins.
package recovery

// Outcome is a recovery decision. Recovered means the client gets a usable
// degraded payload instead of a plain error.
type Outcome struct {
	Recovered bool
	// Strategy names the strategy that produced the outcome.
	Strategy string
	// Payload is a previously captured response body, present only when
	// Recovered is true. Served verbatim inside the degraded envelope.
	Payload     []byte
	ContentType string
	// Stale marks a payload that came out of the fallback cache.
	Stale        bool
	RetryAfterMs int64
	Message      string
}
