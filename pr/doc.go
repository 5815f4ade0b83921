// Package pr publishes finished workflow branches as pull requests on
// GitHub or GitLab.
//
// The workflow layer talks to the Publisher interface: hand it a
// worktree, a branch, and a rendered title and body, and it commits
// leftover changes, pushes the branch, and opens (or refreshes) the
// pull request on the detected forge. Blocking review findings turn
// the pull request into a draft.
//
// Core types:
//   - Publisher: what the workflow calls after review
//   - ForgePublisher: Publisher backed by a forge Provider
//   - Provider: forge-side API (create, update, list)
//
// Implementations:
//   - GitHubProvider: GitHub PRs using go-github
//   - GitLabProvider: GitLab MRs using go-gitlab
//
// Example usage:
//
//	provider, _ := pr.ProviderFromEnv(remoteURL)
//	pub := pr.NewForgePublisher(provider, pr.WithBaseBranch("main"))
//	res, err := pub.Publish(ctx, pr.Request{
//	    Worktree: worktree,
//	    Branch:   "conductor/gh-42",
//	    IssueRef: "gh-42",
//	    Title:    "gh-42: add rate limiting",
//	    Body:     body,
//	})
package pr
