package git

import (
	"strings"
	"testing"
)

func TestBranchNamer_ForIssue(t *testing.T) {
	namer := DefaultBranchNamer()

	got := namer.ForIssue("GH-421", "Add User Authentication")
	want := "conductor/gh-421-add-user-authentication"
	if got != want {
		t.Errorf("ForIssue = %q, want %q", got, want)
	}
}

func TestBranchNamer_ForIssue_NoTitle(t *testing.T) {
	namer := &BranchNamer{Prefix: "conductor", IncludeTitle: false, MaxLength: 100}

	got := namer.ForIssue("#42", "ignored title")
	if got != "conductor/42" {
		t.Errorf("ForIssue = %q, want %q", got, "conductor/42")
	}
}

func TestBranchNamer_ForIssue_TruncatesLongTitle(t *testing.T) {
	namer := DefaultBranchNamer()

	title := strings.Repeat("very long title ", 20)
	got := namer.ForIssue("GH-1", title)

	if len(got) > namer.MaxLength {
		t.Errorf("branch length = %d, want <= %d", len(got), namer.MaxLength)
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("branch %q has trailing hyphen", got)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Add User Auth", "add-user-auth"},
		{"fix_the_thing", "fix-the-thing"},
		{"Special!@#Chars", "specialchars"},
		{"--edges--", "edges"},
	}

	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
