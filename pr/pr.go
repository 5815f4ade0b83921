package pr

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// State represents the state of a pull request.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
	StateMerged State = "merged"
)

// Provider is the forge-side API for pull requests. Implementations
// exist for GitHub and GitLab.
type Provider interface {
	// Name identifies the forge ("github", "gitlab").
	Name() string

	// CreatePR creates a new pull request.
	CreatePR(ctx context.Context, opts Options) (*PullRequest, error)

	// UpdatePR updates the title, body, or labels of an existing
	// pull request.
	UpdatePR(ctx context.Context, number int, opts UpdateOptions) (*PullRequest, error)

	// ListPRs lists pull requests matching the filter.
	ListPRs(ctx context.Context, filter Filter) ([]*PullRequest, error)
}

// Options configures pull request creation.
type Options struct {
	Title  string   // PR title (required)
	Body   string   // PR description (markdown)
	Base   string   // Target branch (default: "main")
	Head   string   // Source branch
	Labels []string // Labels to apply
	Draft  bool     // Create as draft
}

// UpdateOptions configures pull request updates. Nil fields are left
// unchanged.
type UpdateOptions struct {
	Title  *string
	Body   *string
	Base   *string
	Labels []string // Labels to set (replaces existing)
}

// Filter configures pull request listing.
type Filter struct {
	State State  // Filter by state (empty = all)
	Base  string // Filter by base branch
	Head  string // Filter by head branch
	Limit int    // Maximum number to return (0 = provider default)
}

// PullRequest represents a pull request on the forge.
type PullRequest struct {
	Number    int       // PR number (GitLab: MR IID)
	URL       string    // Web URL
	Title     string    // PR title
	Body      string    // PR description
	State     State     // Current state
	Draft     bool      // Whether it's a draft
	Head      string    // Source branch
	Base      string    // Target branch
	Labels    []string  // Applied labels
	CreatedAt time.Time // Creation time
	UpdatedAt time.Time // Last update time
}

// DetectProvider attempts to detect the forge from a remote URL.
func DetectProvider(remoteURL string) (string, error) {
	remoteURL = strings.ToLower(remoteURL)

	if strings.Contains(remoteURL, "github.com") {
		return "github", nil
	}
	if strings.Contains(remoteURL, "gitlab.com") || strings.Contains(remoteURL, "gitlab") {
		return "gitlab", nil
	}
	if strings.Contains(remoteURL, "bitbucket") {
		return "bitbucket", nil
	}

	return "", ErrUnknownProvider
}

// ParseRepoFromURL extracts owner and repo from a git remote URL.
func ParseRepoFromURL(remoteURL string) (owner, repo string, err error) {
	// Handle SSH URLs: git@github.com:owner/repo.git
	if strings.HasPrefix(remoteURL, "git@") {
		parts := strings.Split(remoteURL, ":")
		if len(parts) != 2 {
			return "", "", fmt.Errorf("invalid SSH URL format")
		}
		path := strings.TrimSuffix(parts[1], ".git")
		pathParts := strings.Split(path, "/")
		if len(pathParts) != 2 {
			return "", "", fmt.Errorf("invalid repository path")
		}
		return pathParts[0], pathParts[1], nil
	}

	// Handle HTTPS URLs: https://github.com/owner/repo.git
	remoteURL = strings.TrimPrefix(remoteURL, "https://")
	remoteURL = strings.TrimPrefix(remoteURL, "http://")
	remoteURL = strings.TrimSuffix(remoteURL, ".git")

	parts := strings.Split(remoteURL, "/")
	if len(parts) < 3 {
		return "", "", fmt.Errorf("invalid URL format")
	}

	// Last two parts are owner/repo
	return parts[len(parts)-2], parts[len(parts)-1], nil
}
