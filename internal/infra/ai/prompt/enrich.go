package prompt

import (
	"fmt"
	"strings"
)

// Enrich appends a scale qualifier derived from the analyzed code
// length onto the backend-produced summary. Pure and deterministic;
// it never touches the issues list. This is the only place this
// formatting policy lives.
func Enrich(codeLen int, summary string) string {
	scale := "small code snippet"
	switch {
	case codeLen >= 10000:
		scale = "large code sample"
	case codeLen >= 1000:
		scale = "medium-sized code sample"
	}
	return fmt.Sprintf("%s\n\nThis analysis covered a %s (%d characters).",
		strings.TrimSpace(summary), scale, codeLen)
}
