package pr

import (
	"context"
	"errors"
	"testing"

	"github.com/randalmurphal/conductor/git"
)

type pushCall struct {
	remote   string
	branch   string
	upstream bool
}

type fakeRepo struct {
	clean     bool
	pushed    bool
	commits   []string
	pushes    []pushCall
	commitErr error
	pushErr   error
}

func (r *fakeRepo) IsClean() (bool, error) { return r.clean, nil }

func (r *fakeRepo) CommitAll(message string) (*git.CommitResult, error) {
	if r.commitErr != nil {
		return nil, r.commitErr
	}
	r.commits = append(r.commits, message)
	return &git.CommitResult{SHA: "abc123", Message: message}, nil
}

func (r *fakeRepo) IsBranchPushed(branch string) bool { return r.pushed }

func (r *fakeRepo) Push(remote, branch string, setUpstream bool) error {
	if r.pushErr != nil {
		return r.pushErr
	}
	r.pushes = append(r.pushes, pushCall{remote, branch, setUpstream})
	return nil
}

func openerFor(repo *fakeRepo) RepoOpener {
	return func(worktree string) (Repo, error) { return repo, nil }
}

func TestForgePublisher_Publish(t *testing.T) {
	repo := &fakeRepo{clean: false, pushed: false}

	var created Options
	provider := &MockProvider{
		CreatePRFunc: func(ctx context.Context, opts Options) (*PullRequest, error) {
			created = opts
			return &PullRequest{Number: 7, URL: "https://example.com/pr/7", Head: opts.Head}, nil
		},
	}

	pub := NewForgePublisher(provider, WithRepoOpener(openerFor(repo)))
	res, err := pub.Publish(context.Background(), Request{
		Worktree: "/tmp/wt",
		Branch:   "conductor/gh-42",
		IssueRef: "gh-42",
		Title:    "gh-42: add rate limiting",
		Body:     "body",
		Draft:    true,
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(repo.commits) != 1 || repo.commits[0] != "gh-42: add rate limiting" {
		t.Errorf("commits = %v, want the PR title as commit message", repo.commits)
	}
	if len(repo.pushes) != 1 {
		t.Fatalf("pushes = %d, want 1", len(repo.pushes))
	}
	push := repo.pushes[0]
	if push.remote != "origin" || push.branch != "conductor/gh-42" || !push.upstream {
		t.Errorf("push = %+v, want origin/conductor/gh-42 with upstream", push)
	}

	if created.Head != "conductor/gh-42" || created.Base != "main" {
		t.Errorf("CreatePR head/base = %q/%q", created.Head, created.Base)
	}
	if !created.Draft {
		t.Error("CreatePR should carry the draft flag")
	}
	if len(created.Labels) != 1 || created.Labels[0] != "gh-42" {
		t.Errorf("labels = %v, want [gh-42]", created.Labels)
	}

	if res.Number != 7 || res.URL != "https://example.com/pr/7" || res.Provider != "mock" {
		t.Errorf("result = %+v", res)
	}
}

func TestForgePublisher_CleanWorktreeSkipsCommit(t *testing.T) {
	repo := &fakeRepo{clean: true, pushed: true}
	pub := NewForgePublisher(&MockProvider{}, WithRepoOpener(openerFor(repo)))

	_, err := pub.Publish(context.Background(), Request{
		Worktree: "/tmp/wt",
		Branch:   "feature",
		Title:    "title",
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(repo.commits) != 0 {
		t.Errorf("commits = %v, want none on a clean worktree", repo.commits)
	}
	if len(repo.pushes) != 1 || repo.pushes[0].upstream {
		t.Errorf("pushes = %+v, want one push without upstream", repo.pushes)
	}
}

func TestForgePublisher_NothingToCommitIsFine(t *testing.T) {
	repo := &fakeRepo{clean: false, commitErr: git.ErrNothingToCommit}
	pub := NewForgePublisher(&MockProvider{}, WithRepoOpener(openerFor(repo)))

	_, err := pub.Publish(context.Background(), Request{
		Worktree: "/tmp/wt",
		Branch:   "feature",
		Title:    "title",
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestForgePublisher_ReusesOpenPR(t *testing.T) {
	existing := &PullRequest{Number: 3, URL: "https://example.com/pr/3", Head: "feature", State: StateOpen}

	var createCalls, updateCalls int
	var updatedTitle string
	provider := &MockProvider{
		ListPRsFunc: func(ctx context.Context, filter Filter) ([]*PullRequest, error) {
			return []*PullRequest{existing}, nil
		},
		CreatePRFunc: func(ctx context.Context, opts Options) (*PullRequest, error) {
			createCalls++
			return nil, errors.New("should not be called")
		},
		UpdatePRFunc: func(ctx context.Context, number int, opts UpdateOptions) (*PullRequest, error) {
			updateCalls++
			if opts.Title != nil {
				updatedTitle = *opts.Title
			}
			return &PullRequest{Number: number, URL: existing.URL}, nil
		},
	}

	pub := NewForgePublisher(provider)
	res, err := pub.Publish(context.Background(), Request{Branch: "feature", Title: "fresh title", Body: "fresh body"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if createCalls != 0 {
		t.Errorf("CreatePR called %d times, want 0", createCalls)
	}
	if updateCalls != 1 {
		t.Errorf("UpdatePR called %d times, want 1", updateCalls)
	}
	if updatedTitle != "fresh title" {
		t.Errorf("updated title = %q", updatedTitle)
	}
	if res.Number != 3 {
		t.Errorf("result number = %d, want 3", res.Number)
	}
}

func TestForgePublisher_CreateRace(t *testing.T) {
	// The first listing sees nothing, CreatePR reports a conflict, and
	// the second listing finds the winner.
	var listCalls int
	provider := &MockProvider{
		ListPRsFunc: func(ctx context.Context, filter Filter) ([]*PullRequest, error) {
			listCalls++
			if listCalls == 1 {
				return nil, nil
			}
			return []*PullRequest{{Number: 9, URL: "https://example.com/pr/9", Head: "feature", State: StateOpen}}, nil
		},
		CreatePRFunc: func(ctx context.Context, opts Options) (*PullRequest, error) {
			return nil, ErrExists
		},
	}

	pub := NewForgePublisher(provider)
	res, err := pub.Publish(context.Background(), Request{Branch: "feature", Title: "title"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if res.Number != 9 {
		t.Errorf("result number = %d, want 9", res.Number)
	}
}

func TestForgePublisher_NoChanges(t *testing.T) {
	provider := &MockProvider{
		CreatePRFunc: func(ctx context.Context, opts Options) (*PullRequest, error) {
			return nil, ErrNoChanges
		},
	}

	pub := NewForgePublisher(provider)
	_, err := pub.Publish(context.Background(), Request{Branch: "feature", Title: "title"})
	if !errors.Is(err, ErrNoChanges) {
		t.Errorf("error = %v, want ErrNoChanges", err)
	}
}

func TestForgePublisher_NoProvider(t *testing.T) {
	pub := NewForgePublisher(nil)
	_, err := pub.Publish(context.Background(), Request{Branch: "feature", Title: "title"})
	if !errors.Is(err, ErrNoProvider) {
		t.Errorf("error = %v, want ErrNoProvider", err)
	}
}

func TestForgePublisher_RequiresBranchAndTitle(t *testing.T) {
	pub := NewForgePublisher(&MockProvider{})

	if _, err := pub.Publish(context.Background(), Request{Title: "title"}); err == nil {
		t.Error("expected error without branch")
	}
	if _, err := pub.Publish(context.Background(), Request{Branch: "feature"}); err == nil {
		t.Error("expected error without title")
	}
}

func TestForgePublisher_NoWorktreeSkipsGit(t *testing.T) {
	pub := NewForgePublisher(&MockProvider{}, WithRepoOpener(func(worktree string) (Repo, error) {
		t.Fatal("opener should not be called without a worktree")
		return nil, nil
	}))

	if _, err := pub.Publish(context.Background(), Request{Branch: "feature", Title: "title"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}
