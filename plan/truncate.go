package plan

import (
	"fmt"
	"regexp"
	"strings"
)

// Output limits for step results and events. Full output is written to the
// run's artifact directory; results carry a bounded excerpt.
const (
	// MaxOutputLines is the most content lines a truncated output keeps:
	// the first and last keepLines each.
	MaxOutputLines = 100
	// MaxOutputBytes bounds the byte size of a truncated output.
	MaxOutputBytes = 4000

	keepLines = 50
)

var lineMarkerRe = regexp.MustCompile(`^\.\.\. \[\d+ lines truncated\] \.\.\.$`)

const byteMarker = "... [output truncated] ..."

// TruncateOutput bounds command output for storage in results and events.
// Long outputs keep their first and last 50 lines around an elision marker,
// then the whole excerpt is capped at MaxOutputBytes, trimming from the
// middle so both the beginning and the end survive.
//
// Idempotent: truncating an already truncated output returns it unchanged.
func TruncateOutput(s string) string {
	s = truncateLines(s)
	return truncateBytes(s)
}

func truncateLines(s string) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= MaxOutputLines {
		return s
	}
	// An elision marker means a previous pass already did the work.
	for _, line := range lines {
		if lineMarkerRe.MatchString(line) {
			return s
		}
	}

	dropped := len(lines) - 2*keepLines
	out := make([]string, 0, 2*keepLines+1)
	out = append(out, lines[:keepLines]...)
	out = append(out, fmt.Sprintf("... [%d lines truncated] ...", dropped))
	out = append(out, lines[len(lines)-keepLines:]...)
	return strings.Join(out, "\n")
}

func truncateBytes(s string) string {
	if len(s) <= MaxOutputBytes {
		return s
	}

	budget := MaxOutputBytes - len(byteMarker) - 2
	head := budget / 2
	tail := budget - head

	// Prefer cutting at line boundaries so the excerpt stays readable.
	headPart := s[:head]
	if i := strings.LastIndexByte(headPart, '\n'); i > 0 {
		headPart = headPart[:i]
	}
	tailPart := s[len(s)-tail:]
	if i := strings.IndexByte(tailPart, '\n'); i >= 0 && i < len(tailPart)-1 {
		tailPart = tailPart[i+1:]
	}

	return headPart + "\n" + byteMarker + "\n" + tailPart
}

// StripANSI removes ANSI escape sequences so output patterns match what a
// human sees rather than terminal control codes. An escape runs from ESC
// until the next ASCII letter.
func StripANSI(s string) string {
	if !strings.ContainsRune(s, '\x1b') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inEscape := false
	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
