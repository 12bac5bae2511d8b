package analysis

// Severity enum
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid reports whether s is one of the four enumerated levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Request is the inbound analysis request. The code is opaque data:
// it is never executed locally, only forwarded to the backend.
type Request struct {
	Code string `json:"code"`
}

// Issue is one vulnerability reported by the backend. Every field is
// mandatory; the backend is the producer of truth and nothing is
// default-filled on its behalf.
type Issue struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Code        string   `json:"code"`
	Fix         string   `json:"fix"`
	CVSSScore   float64  `json:"cvss_score"`
	Severity    Severity `json:"severity"`
}

// Report is the final analysis result. Issues keep the backend
// emission order and may be empty.
type Report struct {
	Summary string  `json:"summary"`
	Issues  []Issue `json:"issues"`
}

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Counts tallies issues per severity level.
func (r *Report) Counts() SeverityCounts {
	var c SeverityCounts
	for _, is := range r.Issues {
		switch is.Severity {
		case SeverityCritical:
			c.Critical++
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		case SeverityLow:
			c.Low++
		}
	}
	c.Total = c.Critical + c.High + c.Medium + c.Low
	return c
}
