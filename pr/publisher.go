package pr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/conductor/git"
)

// Request describes a branch that is ready to publish.
type Request struct {
	Worktree string // Worktree holding the branch (empty = skip git preparation)
	Branch   string // Source branch
	IssueRef string // Issue the work came from; applied as a label
	Title    string // Pull request title
	Body     string // Pull request body (markdown)
	Draft    bool   // Open as draft
}

// Result identifies the published pull request.
type Result struct {
	URL      string
	Number   int
	Provider string
}

// Publisher publishes finished work as a pull request.
type Publisher interface {
	Publish(ctx context.Context, req Request) (*Result, error)
}

// Repo is the slice of git the publisher needs to prepare a branch.
type Repo interface {
	IsClean() (bool, error)
	CommitAll(message string) (*git.CommitResult, error)
	IsBranchPushed(branch string) bool
	Push(remote, branch string, setUpstream bool) error
}

var _ Repo = (*git.Context)(nil)

// RepoOpener opens a Repo rooted at a worktree path.
type RepoOpener func(worktree string) (Repo, error)

// ForgePublisher implements Publisher on top of a forge Provider. It
// commits leftover changes, pushes the branch, and opens the pull
// request, reusing an open one for the same branch when it exists.
type ForgePublisher struct {
	provider Provider
	base     string
	remote   string
	open     RepoOpener
	logger   *slog.Logger
}

// PublisherOption configures a ForgePublisher.
type PublisherOption func(*ForgePublisher)

// WithBaseBranch sets the target branch for new pull requests.
// Defaults to "main".
func WithBaseBranch(base string) PublisherOption {
	return func(f *ForgePublisher) { f.base = base }
}

// WithRemote sets the remote branches are pushed to. Defaults to
// "origin".
func WithRemote(remote string) PublisherOption {
	return func(f *ForgePublisher) { f.remote = remote }
}

// WithRepoOpener overrides how worktrees are opened. Mainly for tests.
func WithRepoOpener(open RepoOpener) PublisherOption {
	return func(f *ForgePublisher) { f.open = open }
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(f *ForgePublisher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewForgePublisher creates a publisher backed by the given provider.
func NewForgePublisher(provider Provider, opts ...PublisherOption) *ForgePublisher {
	f := &ForgePublisher{
		provider: provider,
		base:     "main",
		remote:   "origin",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.open == nil {
		f.open = func(worktree string) (Repo, error) {
			return git.NewContext(worktree)
		}
	}
	return f
}

// Publish prepares the branch and opens the pull request.
func (f *ForgePublisher) Publish(ctx context.Context, req Request) (*Result, error) {
	if f.provider == nil {
		return nil, ErrNoProvider
	}
	if req.Branch == "" {
		return nil, fmt.Errorf("publish: branch is required")
	}
	if req.Title == "" {
		return nil, fmt.Errorf("publish: title is required")
	}

	if req.Worktree != "" {
		repo, err := f.open(req.Worktree)
		if err != nil {
			return nil, fmt.Errorf("open worktree: %w", err)
		}
		if err := f.prepare(repo, req); err != nil {
			return nil, err
		}
	}

	if existing := f.findOpen(ctx, req.Branch); existing != nil {
		return f.refresh(ctx, existing, req)
	}

	pull, err := f.provider.CreatePR(ctx, Options{
		Title:  req.Title,
		Body:   req.Body,
		Base:   f.base,
		Head:   req.Branch,
		Draft:  req.Draft,
		Labels: labelsFor(req),
	})
	if errors.Is(err, ErrExists) {
		// Lost a race or a stale listing; pick up the existing one.
		if existing := f.findOpen(ctx, req.Branch); existing != nil {
			return f.refresh(ctx, existing, req)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create pull request: %w", err)
	}
	return f.result(pull), nil
}

// prepare commits any uncommitted changes and pushes the branch.
func (f *ForgePublisher) prepare(repo Repo, req Request) error {
	clean, err := repo.IsClean()
	if err != nil {
		return fmt.Errorf("check worktree: %w", err)
	}
	if !clean {
		if _, err := repo.CommitAll(req.Title); err != nil && !errors.Is(err, git.ErrNothingToCommit) {
			return fmt.Errorf("commit changes: %w", err)
		}
	}
	setUpstream := !repo.IsBranchPushed(req.Branch)
	if err := repo.Push(f.remote, req.Branch, setUpstream); err != nil {
		return fmt.Errorf("push %s: %w", req.Branch, err)
	}
	return nil
}

// findOpen returns the open pull request whose head is the given
// branch, or nil.
func (f *ForgePublisher) findOpen(ctx context.Context, branch string) *PullRequest {
	pulls, err := f.provider.ListPRs(ctx, Filter{State: StateOpen, Head: branch})
	if err != nil {
		f.logger.Warn("list pull requests failed", "branch", branch, "error", err)
		return nil
	}
	for _, p := range pulls {
		if p.Head == branch {
			return p
		}
	}
	return nil
}

// refresh rewrites the title and body of an existing pull request.
func (f *ForgePublisher) refresh(ctx context.Context, existing *PullRequest, req Request) (*Result, error) {
	updated, err := f.provider.UpdatePR(ctx, existing.Number, UpdateOptions{
		Title: &req.Title,
		Body:  &req.Body,
	})
	if err != nil {
		// The pull request is there; stale text is not fatal.
		f.logger.Warn("update pull request failed", "number", existing.Number, "error", err)
		return f.result(existing), nil
	}
	return f.result(updated), nil
}

func (f *ForgePublisher) result(p *PullRequest) *Result {
	return &Result{URL: p.URL, Number: p.Number, Provider: f.provider.Name()}
}

func labelsFor(req Request) []string {
	if strings.TrimSpace(req.IssueRef) == "" {
		return nil
	}
	return []string{req.IssueRef}
}
