package circuit

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the breaker position for one dependency.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// record is the shared circuit state for one dependency, stored as a single
// JSON value so transitions are one compare-and-set. Legal transitions:
// closed->open, open->half_open, half_open->closed|open. Never skips states.
type record struct {
	State               State `json:"state"`
	ConsecutiveFailures int   `json:"failures"`
	LastFailureAtMs     int64 `json:"last_failure_ms,omitempty"`
	NextProbeAtMs       int64 `json:"next_probe_ms,omitempty"`
	// OpenCycles counts open->half_open->open round trips and drives the
	// exponential probe backoff.
	OpenCycles int `json:"open_cycles,omitempty"`
	// ProbeClaimed marks that the single half-open probe slot is taken.
	ProbeClaimed bool `json:"probe_claimed,omitempty"`
}

func closedRecord() record {
	return record{State: StateClosed}
}

func (r record) encode() string {
	raw, err := json.Marshal(r)
	if err != nil {
		// record has no unmarshalable fields; this cannot happen.
		panic(fmt.Sprintf("encode circuit record: %v", err))
	}
	return string(raw)
}

func decodeRecord(raw string) (record, error) {
	if raw == "" {
		return closedRecord(), nil
	}
	var r record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return record{}, fmt.Errorf("decode circuit record: %w", err)
	}
	if r.State == "" {
		r.State = StateClosed
	}
	return r, nil
}

func (r record) nextProbeAt() time.Time {
	if r.NextProbeAtMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.NextProbeAtMs).UTC()
}

// Snapshot is the read-only view handed to callers.
type Snapshot struct {
	Dependency          string
	State               State
	ConsecutiveFailures int
	LastFailureAt       time.Time
	NextProbeAt         time.Time
}
