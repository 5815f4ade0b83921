package git

import (
	"regexp"
	"strings"
)

// BranchNamer generates workflow branch names following conventions.
type BranchNamer struct {
	Prefix       string // Branch prefix (e.g., "conductor")
	IncludeTitle bool   // Whether to include a title slug in the name
	MaxLength    int    // Maximum branch name length
}

// DefaultBranchNamer returns a namer with default settings.
func DefaultBranchNamer() *BranchNamer {
	return &BranchNamer{
		Prefix:       "conductor",
		IncludeTitle: true,
		MaxLength:    100,
	}
}

// ForIssue generates a branch name from an issue reference and title.
// Example: "GH-421", "Add User Authentication" -> "conductor/gh-421-add-user-authentication"
func (n *BranchNamer) ForIssue(issueRef, title string) string {
	parts := []string{strings.ToLower(Slugify(issueRef))}

	if n.IncludeTitle && title != "" {
		slug := Slugify(title)
		if len(slug) > 50 {
			slug = slug[:50]
			slug = strings.TrimRight(slug, "-")
		}
		parts = append(parts, slug)
	}

	branch := n.Prefix + "/" + strings.Join(parts, "-")

	if n.MaxLength > 0 && len(branch) > n.MaxLength {
		branch = branch[:n.MaxLength]
	}

	return CleanBranch(branch)
}

// Slugify converts a string to a URL-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = regexp.MustCompile(`[^a-z0-9-]`).ReplaceAllString(s, "")
	s = regexp.MustCompile(`-+`).ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return s
}

// CleanBranch ensures a branch name is valid.
func CleanBranch(s string) string {
	s = regexp.MustCompile(`-+`).ReplaceAllString(s, "-")

	// Remove trailing hyphens (but not before /)
	parts := strings.Split(s, "/")
	for i, part := range parts {
		parts[i] = strings.TrimRight(part, "-")
	}
	s = strings.Join(parts, "/")

	return s
}
