package config

// Source identifies which layer supplied part of the configuration.
type Source string

// Configuration layer sources, in merge order.
const (
	// SourceDefault is the built-in baseline.
	SourceDefault Source = "default"

	// SourceGlobal is the global file (~/.config/conductor/config.yaml).
	SourceGlobal Source = "global"

	// SourceLocal is the repository-local file (.conductor.yaml at the
	// git root).
	SourceLocal Source = "local"

	// SourceEnv is the CONDUCTOR_* environment.
	SourceEnv Source = "env"
)

// Layer records one configuration layer that contributed to a Resolve.
// Path is set for file layers only.
type Layer struct {
	Source Source
	Path   string
}
