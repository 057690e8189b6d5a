// Package bins exposes read endpoints for smart waste bin telemetry. It is
// the reference consumer of the resilience layer: its handlers return errors
// instead of writing failures, its store calls run behind the circuit
// tracker, and its reads are eligible for cached fallback.
package bins

import "time"

// BinStatus is the operational state reported by the bin's sensor unit.
type BinStatus string

const (
	StatusActive      BinStatus = "active"
	StatusFull        BinStatus = "full"
	StatusMaintenance BinStatus = "maintenance"
)

// Bin is one monitored container.
type Bin struct {
	ID              string    `json:"id"`
	Location        string    `json:"location"`
	FillPercent     int       `json:"fill_percent"`
	Status          BinStatus `json:"status"`
	LastCollectedAt time.Time `json:"last_collected_at"`
}
