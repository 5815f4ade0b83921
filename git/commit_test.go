package git

import (
	"strings"
	"testing"
)

func TestCommitMessage_String(t *testing.T) {
	msg := NewCommitMessage(CommitTypeFeat, "add user authentication").
		WithScope("auth").
		WithBody("Implements login and session handling.").
		WithIssueRef("GH-421")

	got := msg.String()

	if !strings.HasPrefix(got, "feat(auth): add user authentication") {
		t.Errorf("subject line wrong: %q", got)
	}
	if !strings.Contains(got, "Refs: GH-421") {
		t.Errorf("missing issue ref footer: %q", got)
	}
	if !strings.Contains(got, "Generated-By: conductor") {
		t.Errorf("missing generated-by footer: %q", got)
	}
}

func TestCommitMessage_WithoutGeneratedBy(t *testing.T) {
	msg := NewCommitMessage(CommitTypeFix, "handle nil pointer").WithoutGeneratedBy()

	if strings.Contains(msg.String(), "Generated-By") {
		t.Errorf("Generated-By footer present: %q", msg.String())
	}
}

func TestCommitMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     CommitMessage
		wantErr bool
	}{
		{"valid", CommitMessage{Type: CommitTypeFeat, Subject: "x"}, false},
		{"missing type", CommitMessage{Subject: "x"}, true},
		{"missing subject", CommitMessage{Type: CommitTypeFix}, true},
		{"subject too long", CommitMessage{Type: CommitTypeFix, Subject: strings.Repeat("a", 101)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWrapText(t *testing.T) {
	long := strings.Repeat("word ", 30)
	wrapped := wrapText(strings.TrimSpace(long), 72)

	for _, line := range strings.Split(wrapped, "\n") {
		if len(line) > 72 {
			t.Errorf("line exceeds 72 chars: %q", line)
		}
	}
}
