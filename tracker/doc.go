// Package tracker defines the issue input to workflows and the Source
// interface deployments implement to fetch issues from their tracker.
package tracker
