package pr

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/xanzy/go-gitlab"
)

// GitLabProvider implements Provider for GitLab repositories.
type GitLabProvider struct {
	client    *gitlab.Client
	projectID string // Can be numeric ID or "namespace/project"
}

// NewGitLabProvider creates a new GitLab provider.
// token is a personal access token.
// baseURL is the GitLab instance URL (empty for gitlab.com).
// projectID can be numeric ID or "namespace/project" path.
func NewGitLabProvider(token, baseURL, projectID string) (*GitLabProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("GitLab token is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	var client *gitlab.Client
	var err error

	if baseURL != "" {
		client, err = gitlab.NewClient(token, gitlab.WithBaseURL(baseURL))
	} else {
		client, err = gitlab.NewClient(token)
	}

	if err != nil {
		return nil, fmt.Errorf("create GitLab client: %w", err)
	}

	return &GitLabProvider{
		client:    client,
		projectID: projectID,
	}, nil
}

// NewGitLabProviderFromURL creates a GitLab provider from a remote URL.
// Example: "https://gitlab.com/namespace/project.git"
func NewGitLabProviderFromURL(token, remoteURL string) (*GitLabProvider, error) {
	owner, repo, err := ParseRepoFromURL(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote URL: %w", err)
	}

	// Extract base URL for self-hosted instances
	var baseURL string
	if !strings.Contains(remoteURL, "gitlab.com") {
		remoteURL = strings.TrimPrefix(remoteURL, "https://")
		remoteURL = strings.TrimPrefix(remoteURL, "http://")
		parts := strings.Split(remoteURL, "/")
		if len(parts) > 0 {
			baseURL = "https://" + parts[0]
		}
	}

	projectID := owner + "/" + repo
	return NewGitLabProvider(token, baseURL, projectID)
}

// Name implements Provider.
func (p *GitLabProvider) Name() string { return "gitlab" }

// CreatePR creates a new merge request.
func (p *GitLabProvider) CreatePR(ctx context.Context, opts Options) (*PullRequest, error) {
	targetBranch := opts.Base
	if targetBranch == "" {
		targetBranch = "main"
	}

	mrOpts := &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.Ptr(opts.Title),
		Description:  gitlab.Ptr(opts.Body),
		SourceBranch: gitlab.Ptr(opts.Head),
		TargetBranch: gitlab.Ptr(targetBranch),
	}

	// GitLab has no draft flag in the create API; the "Draft: "
	// title prefix is the convention.
	if opts.Draft {
		mrOpts.Title = gitlab.Ptr("Draft: " + opts.Title)
	}

	if len(opts.Labels) > 0 {
		mrOpts.Labels = gitlab.Ptr(gitlab.LabelOptions(opts.Labels))
	}

	mr, resp, err := p.client.MergeRequests.CreateMergeRequest(p.projectID, mrOpts, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return nil, ErrExists
		}
		if resp != nil && resp.StatusCode == http.StatusBadRequest {
			if strings.Contains(err.Error(), "No commits between") {
				return nil, ErrNoChanges
			}
		}
		return nil, fmt.Errorf("create MR: %w", err)
	}

	return p.fromGitLab(mr), nil
}

// UpdatePR updates an existing merge request.
func (p *GitLabProvider) UpdatePR(ctx context.Context, number int, opts UpdateOptions) (*PullRequest, error) {
	updateOpts := &gitlab.UpdateMergeRequestOptions{}

	if opts.Title != nil {
		updateOpts.Title = opts.Title
	}
	if opts.Body != nil {
		updateOpts.Description = opts.Body
	}
	if opts.Base != nil {
		updateOpts.TargetBranch = opts.Base
	}
	if opts.Labels != nil {
		updateOpts.Labels = gitlab.Ptr(gitlab.LabelOptions(opts.Labels))
	}

	mr, resp, err := p.client.MergeRequests.UpdateMergeRequest(p.projectID, number, updateOpts, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update MR: %w", err)
	}

	return p.fromGitLab(mr), nil
}

// ListPRs lists merge requests matching the filter.
func (p *GitLabProvider) ListPRs(ctx context.Context, filter Filter) ([]*PullRequest, error) {
	opts := &gitlab.ListProjectMergeRequestsOptions{
		ListOptions: gitlab.ListOptions{PerPage: 20},
	}

	switch filter.State {
	case StateOpen:
		opts.State = gitlab.Ptr("opened")
	case StateClosed:
		opts.State = gitlab.Ptr("closed")
	case StateMerged:
		opts.State = gitlab.Ptr("merged")
	}
	if filter.Base != "" {
		opts.TargetBranch = gitlab.Ptr(filter.Base)
	}
	if filter.Head != "" {
		opts.SourceBranch = gitlab.Ptr(filter.Head)
	}
	if filter.Limit > 0 {
		opts.PerPage = filter.Limit
	}

	mrs, _, err := p.client.MergeRequests.ListProjectMergeRequests(p.projectID, opts, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list MRs: %w", err)
	}

	result := make([]*PullRequest, len(mrs))
	for i, mr := range mrs {
		result[i] = p.fromGitLab(mr)
	}
	return result, nil
}

// fromGitLab converts a GitLab MR to our PullRequest type.
func (p *GitLabProvider) fromGitLab(mr *gitlab.MergeRequest) *PullRequest {
	result := &PullRequest{
		Number: mr.IID,
		URL:    mr.WebURL,
		Title:  mr.Title,
		Body:   mr.Description,
		Head:   mr.SourceBranch,
		Base:   mr.TargetBranch,
		Labels: mr.Labels,
	}

	// Draft detection (title starts with "Draft: " or "WIP:")
	result.Draft = strings.HasPrefix(mr.Title, "Draft:") ||
		strings.HasPrefix(mr.Title, "WIP:")

	switch mr.State {
	case "opened":
		result.State = StateOpen
	case "merged":
		result.State = StateMerged
	case "closed":
		result.State = StateClosed
	}

	if mr.CreatedAt != nil {
		result.CreatedAt = *mr.CreatedAt
	}
	if mr.UpdatedAt != nil {
		result.UpdatedAt = *mr.UpdatedAt
	}

	return result
}
