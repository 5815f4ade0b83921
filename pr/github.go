package pr

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHubProvider implements Provider for GitHub repositories.
type GitHubProvider struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubProvider creates a new GitHub provider. token is a personal
// access token or GitHub App token, owner and repo identify the
// repository.
func NewGitHubProvider(token, owner, repo string) (*GitHubProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("GitHub token is required")
	}
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	return &GitHubProvider{
		client: github.NewClient(tc),
		owner:  owner,
		repo:   repo,
	}, nil
}

// NewGitHubProviderFromURL creates a GitHub provider from a remote URL.
// Example: "https://github.com/randalmurphal/conductor.git"
func NewGitHubProviderFromURL(token, remoteURL string) (*GitHubProvider, error) {
	owner, repo, err := ParseRepoFromURL(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote URL: %w", err)
	}
	return NewGitHubProvider(token, owner, repo)
}

// Name implements Provider.
func (p *GitHubProvider) Name() string { return "github" }

// CreatePR creates a new pull request.
func (p *GitHubProvider) CreatePR(ctx context.Context, opts Options) (*PullRequest, error) {
	base := opts.Base
	if base == "" {
		base = "main"
	}

	newPR := &github.NewPullRequest{
		Title: github.String(opts.Title),
		Body:  github.String(opts.Body),
		Base:  github.String(base),
		Head:  github.String(opts.Head),
		Draft: github.Bool(opts.Draft),
	}

	pull, resp, err := p.client.PullRequests.Create(ctx, p.owner, p.repo, newPR)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
			if strings.Contains(err.Error(), "A pull request already exists") {
				return nil, ErrExists
			}
			if strings.Contains(err.Error(), "No commits between") {
				return nil, ErrNoChanges
			}
		}
		return nil, fmt.Errorf("create PR: %w", err)
	}

	if len(opts.Labels) > 0 {
		_, _, err = p.client.Issues.AddLabelsToIssue(ctx, p.owner, p.repo, pull.GetNumber(), opts.Labels)
		if err != nil {
			// Log but don't fail - PR was created successfully
			slog.Warn("failed to add labels to PR", "error", err, "pr", pull.GetNumber(), "labels", opts.Labels)
		}
	}

	return p.fromGitHub(pull), nil
}

// UpdatePR updates an existing pull request.
func (p *GitHubProvider) UpdatePR(ctx context.Context, number int, opts UpdateOptions) (*PullRequest, error) {
	update := &github.PullRequest{}

	if opts.Title != nil {
		update.Title = opts.Title
	}
	if opts.Body != nil {
		update.Body = opts.Body
	}
	if opts.Base != nil {
		update.Base = &github.PullRequestBranch{Ref: opts.Base}
	}

	pull, resp, err := p.client.PullRequests.Edit(ctx, p.owner, p.repo, number, update)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update PR: %w", err)
	}

	if opts.Labels != nil {
		_, _, err = p.client.Issues.ReplaceLabelsForIssue(ctx, p.owner, p.repo, number, opts.Labels)
		if err != nil {
			slog.Warn("failed to update labels", "error", err, "pr", number, "labels", opts.Labels)
		}
	}

	return p.fromGitHub(pull), nil
}

// ListPRs lists pull requests matching the filter.
func (p *GitHubProvider) ListPRs(ctx context.Context, filter Filter) ([]*PullRequest, error) {
	opts := &github.PullRequestListOptions{
		ListOptions: github.ListOptions{PerPage: 30},
	}

	if filter.State != "" {
		opts.State = string(filter.State)
	} else {
		opts.State = "all"
	}
	if filter.Base != "" {
		opts.Base = filter.Base
	}
	if filter.Head != "" {
		// GitHub wants "owner:branch" for head filters.
		opts.Head = p.owner + ":" + filter.Head
	}
	if filter.Limit > 0 {
		opts.PerPage = filter.Limit
	}

	prs, _, err := p.client.PullRequests.List(ctx, p.owner, p.repo, opts)
	if err != nil {
		return nil, fmt.Errorf("list PRs: %w", err)
	}

	result := make([]*PullRequest, len(prs))
	for i, pull := range prs {
		result[i] = p.fromGitHub(pull)
	}
	return result, nil
}

// fromGitHub converts a GitHub PR to our PullRequest type.
func (p *GitHubProvider) fromGitHub(pull *github.PullRequest) *PullRequest {
	result := &PullRequest{
		Number: pull.GetNumber(),
		URL:    pull.GetHTMLURL(),
		Title:  pull.GetTitle(),
		Body:   pull.GetBody(),
		Draft:  pull.GetDraft(),
	}

	switch pull.GetState() {
	case "open":
		result.State = StateOpen
	case "closed":
		if pull.GetMerged() {
			result.State = StateMerged
		} else {
			result.State = StateClosed
		}
	}

	if pull.Head != nil {
		result.Head = pull.Head.GetRef()
	}
	if pull.Base != nil {
		result.Base = pull.Base.GetRef()
	}

	if pull.CreatedAt != nil {
		result.CreatedAt = pull.CreatedAt.Time
	}
	if pull.UpdatedAt != nil {
		result.UpdatedAt = pull.UpdatedAt.Time
	}

	for _, label := range pull.Labels {
		result.Labels = append(result.Labels, label.GetName())
	}

	return result
}
