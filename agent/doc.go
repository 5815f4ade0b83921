// Package agent defines the planner, developer, and reviewer roles the
// engine calls out to, plus the Claude CLI implementation of all three.
// Implementations are injected; the engine never constructs one itself.
package agent
