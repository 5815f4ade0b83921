package plan

import (
	"fmt"
	"strings"
	"testing"
)

func lineBlock(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(lines, "\n")
}

func TestTruncateOutputShortPassesThrough(t *testing.T) {
	in := lineBlock(100)
	if got := TruncateOutput(in); got != in {
		t.Error("TruncateOutput changed output within limits")
	}
}

func TestTruncateOutputKeepsHeadAndTail(t *testing.T) {
	got := TruncateOutput(lineBlock(500))

	lines := strings.Split(got, "\n")
	if len(lines) != 101 {
		t.Fatalf("truncated output has %d lines, want 101 (50 + marker + 50)", len(lines))
	}
	if lines[0] != "line 1" || lines[49] != "line 50" {
		t.Errorf("head lines wrong: first %q, fiftieth %q", lines[0], lines[49])
	}
	if lines[50] != "... [400 lines truncated] ..." {
		t.Errorf("marker = %q, want 400 lines noted", lines[50])
	}
	if lines[51] != "line 451" || lines[100] != "line 500" {
		t.Errorf("tail lines wrong: %q .. %q", lines[51], lines[100])
	}
}

func TestTruncateOutputByteCap(t *testing.T) {
	// A few very long lines blow the byte cap without hitting the line cap.
	long := strings.Repeat("x", 3000)
	in := long + "\nmiddle\n" + strings.Repeat("y", 3000)

	got := TruncateOutput(in)
	if len(got) > MaxOutputBytes {
		t.Fatalf("truncated output is %d bytes, cap %d", len(got), MaxOutputBytes)
	}
	if !strings.Contains(got, "[output truncated]") {
		t.Error("byte-capped output missing its marker")
	}
	if !strings.HasPrefix(got, "x") || !strings.HasSuffix(got, "y") {
		t.Error("byte cap did not preserve both head and tail")
	}
}

func TestTruncateOutputIdempotent(t *testing.T) {
	inputs := []string{
		lineBlock(500),
		strings.Repeat("z", 10000),
		lineBlock(300) + strings.Repeat("w", 5000),
		"short",
		"",
	}
	for i, in := range inputs {
		once := TruncateOutput(in)
		twice := TruncateOutput(once)
		if twice != once {
			t.Errorf("input %d: TruncateOutput not idempotent", i)
		}
		if len(once) > MaxOutputBytes {
			t.Errorf("input %d: output %d bytes exceeds cap", i, len(once))
		}
	}
}

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"color", "\x1b[32mPASS\x1b[0m ok", "PASS ok"},
		{"cursor", "\x1b[2K\rprogress 50%", "\rprogress 50%"},
		{"bold red", "\x1b[1;31merror:\x1b[0m bad", "error: bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripANSI(tt.in); got != tt.want {
				t.Errorf("StripANSI(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
