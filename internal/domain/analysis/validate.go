package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// wire types use pointers so an absent field is distinguishable from
// a zero value. Validation is strict: no repair, no coercion, no
// default-filling. A malformed reply rejects the whole report.
type wireIssue struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Code        *string  `json:"code"`
	Fix         *string  `json:"fix"`
	CVSSScore   *float64 `json:"cvss_score"`
	Severity    *string  `json:"severity"`
}

type wireReport struct {
	Summary *string     `json:"summary"`
	Issues  []wireIssue `json:"issues"`
}

// ParseReport validates the backend's raw reply against the report
// schema and returns a Report guaranteed to satisfy the data-model
// invariants: all mandatory fields present, cvss_score in [0,10],
// severity one of the four enumerated values.
func ParseReport(raw []byte) (*Report, error) {
	var wire wireReport
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("reply is not valid JSON: %w", err)
	}
	if wire.Summary == nil {
		return nil, fmt.Errorf("reply is missing required field %q", "summary")
	}
	if wire.Issues == nil {
		return nil, fmt.Errorf("reply is missing required field %q", "issues")
	}

	rep := &Report{
		Summary: *wire.Summary,
		Issues:  make([]Issue, 0, len(wire.Issues)),
	}
	for i, w := range wire.Issues {
		issue, err := w.toIssue()
		if err != nil {
			return nil, fmt.Errorf("issue %d: %w", i, err)
		}
		rep.Issues = append(rep.Issues, issue)
	}
	return rep, nil
}

func (w wireIssue) toIssue() (Issue, error) {
	for field, v := range map[string]*string{
		"title":       w.Title,
		"description": w.Description,
		"code":        w.Code,
		"fix":         w.Fix,
	} {
		if v == nil || strings.TrimSpace(*v) == "" {
			return Issue{}, fmt.Errorf("missing required field %q", field)
		}
	}
	if w.CVSSScore == nil {
		return Issue{}, fmt.Errorf("missing required field %q", "cvss_score")
	}
	if *w.CVSSScore < 0.0 || *w.CVSSScore > 10.0 {
		return Issue{}, fmt.Errorf("cvss_score %v out of range [0.0, 10.0]", *w.CVSSScore)
	}
	if w.Severity == nil {
		return Issue{}, fmt.Errorf("missing required field %q", "severity")
	}
	sev := Severity(strings.ToLower(*w.Severity))
	if !sev.Valid() {
		return Issue{}, fmt.Errorf("invalid severity %q (allowed: critical, high, medium, low)", *w.Severity)
	}
	return Issue{
		Title:       *w.Title,
		Description: *w.Description,
		Code:        *w.Code,
		Fix:         *w.Fix,
		CVSSScore:   *w.CVSSScore,
		Severity:    sev,
	}, nil
}

// ValidateRequest checks the inbound request shape: code must be
// non-empty after trimming and, when maxBytes > 0, within the size
// bound.
func ValidateRequest(req Request, maxBytes int) error {
	if strings.TrimSpace(req.Code) == "" {
		return fmt.Errorf("no code provided for analysis")
	}
	if maxBytes > 0 && len(req.Code) > maxBytes {
		return fmt.Errorf("code exceeds maximum size of %d bytes", maxBytes)
	}
	return nil
}
