package pr

import "errors"

// Forge errors
var (
	// ErrNoProvider indicates no forge provider is configured.
	ErrNoProvider = errors.New("no pull request provider configured")

	// ErrUnknownProvider indicates the git remote uses an unknown forge.
	ErrUnknownProvider = errors.New("unknown git provider")

	// ErrExists indicates a pull request already exists for the branch.
	ErrExists = errors.New("pull request already exists for this branch")

	// ErrNotFound indicates the pull request does not exist.
	ErrNotFound = errors.New("pull request not found")

	// ErrNoChanges indicates there are no commits between the branches.
	ErrNoChanges = errors.New("no changes between branches")
)
