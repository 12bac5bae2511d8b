package history

import "time"

// Status enum
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Record is one completed analysis run. Records are written after the
// pipeline finishes and are never read back by it; the analyze path
// itself stays stateless.
type Record struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	CodeBytes  int       `json:"code_bytes"`
	Status     Status    `json:"status"`
	FailKind   string    `json:"fail_kind,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Critical   int       `json:"critical"`
	High       int       `json:"high"`
	Medium     int       `json:"medium"`
	Low        int       `json:"low"`
	Summary    string    `json:"summary,omitempty"`
}
