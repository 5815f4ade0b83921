package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the config file at path over the defaults, applies
// CONDUCTOR_* environment overrides, and validates the result. The file
// must exist; use a Resolver when the standard locations are optional.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := unmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv returns the defaults with environment overrides applied, for
// deployments that configure everything through the environment.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// unmarshalStrict decodes YAML rejecting unknown fields, so typos in
// config files fail loudly instead of silently keeping defaults.
func unmarshalStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ResolverConfig controls where a Resolver looks for configuration.
type ResolverConfig struct {
	// GlobalPath overrides the global config location. Defaults to
	// ~/.config/conductor/config.yaml.
	GlobalPath string

	// RepoRoot anchors the repository-local lookup. When empty the
	// resolver walks up from the working directory to the enclosing git
	// root.
	RepoRoot string

	// LocalName is the repository-local filename.
	// Defaults to LocalConfigName.
	LocalName string
}

// Resolver merges configuration from the standard locations. Priority,
// lowest to highest: built-in defaults, the global file, the
// repository-local file, then CONDUCTOR_* environment variables.
// Missing files are fine; malformed ones are skipped with a warning.
type Resolver struct {
	globalPath string
	localPath  string
	gitRoot    string

	// Warnings collects non-fatal issues found while resolving.
	Warnings []string

	layers []Layer
}

// NewResolver creates a resolver over the standard config locations.
func NewResolver(rc ResolverConfig) *Resolver {
	r := &Resolver{globalPath: rc.GlobalPath}
	if r.globalPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			r.globalPath = filepath.Join(home, ".config", "conductor", "config.yaml")
		}
	}

	name := rc.LocalName
	if name == "" {
		name = LocalConfigName
	}
	root := rc.RepoRoot
	if root == "" {
		root = findGitRoot(".")
	}
	if root != "" {
		r.gitRoot = root
		r.localPath = filepath.Join(root, name)
	}
	return r
}

// Resolve merges the layers into a validated Config.
func (r *Resolver) Resolve() (*Config, error) {
	cfg := Default()
	r.layers = []Layer{{Source: SourceDefault}}

	r.mergeFile(&cfg, r.globalPath, SourceGlobal)
	r.mergeFile(&cfg, r.localPath, SourceLocal)

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if envApplied() {
		r.layers = append(r.layers, Layer{Source: SourceEnv})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Layers reports which sources contributed to the last Resolve, in
// merge order.
func (r *Resolver) Layers() []Layer {
	out := make([]Layer, len(r.layers))
	copy(out, r.layers)
	return out
}

// GitRoot returns the detected repository root, if any.
func (r *Resolver) GitRoot() string { return r.gitRoot }

// GlobalPath returns the global config path the resolver reads.
func (r *Resolver) GlobalPath() string { return r.globalPath }

// LocalPath returns the repository-local config path, if a repository
// was found.
func (r *Resolver) LocalPath() string { return r.localPath }

func (r *Resolver) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

func (r *Resolver) mergeFile(cfg *Config, path string, src Source) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return // absent layers are fine
	}
	if err := unmarshalStrict(data, cfg); err != nil {
		r.warn(fmt.Sprintf("skipping %s: %v", path, err))
		return
	}
	r.layers = append(r.layers, Layer{Source: src, Path: path})
}

// findGitRoot walks up from startDir looking for a .git directory.
func findGitRoot(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// =============================================================================
// Environment overrides
// =============================================================================

type envBinding struct {
	name string
	set  func(*Config, string) error
}

var envBindings = []envBinding{
	{"STORE_PATH", func(c *Config, v string) error { c.StorePath = v; return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = v; return nil }},
	{"MAX_ACTIVE", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.MaxActive = n
		return nil
	}},
	{"CHECKPOINT_TTL", durBinding(func(c *Config, d Duration) { c.CheckpointTTL = d })},
	{"EVENT_RETENTION", durBinding(func(c *Config, d Duration) { c.EventRetention = d })},
	{"JANITOR_INTERVAL", durBinding(func(c *Config, d Duration) { c.JanitorInterval = d })},
	{"DEFAULT_PROFILE", func(c *Config, v string) error { c.DefaultProfile = v; return nil }},
	{"ARTIFACT_DIR", func(c *Config, v string) error { c.Artifacts.Dir = v; return nil }},
	{"APPROVAL_SECRET", func(c *Config, v string) error { c.Approval.Secret = v; return nil }},
	{"APPROVAL_TTL", durBinding(func(c *Config, d Duration) { c.Approval.TTL = d })},
	{"SLACK_WEBHOOK", func(c *Config, v string) error { c.Notify.Slack.WebhookURL = v; return nil }},
	{"SLACK_CHANNEL", func(c *Config, v string) error { c.Notify.Slack.Channel = v; return nil }},
	{"TRACKER", func(c *Config, v string) error { c.Tracker.Kind = v; return nil }},
	{"PR_DISABLED", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.PR.Disabled = b
		return nil
	}},
	{"PR_REMOTE", func(c *Config, v string) error { c.PR.Remote = v; return nil }},
	{"PR_BASE_BRANCH", func(c *Config, v string) error { c.PR.BaseBranch = v; return nil }},
}

func durBinding(assign func(*Config, Duration)) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		assign(c, Duration(d))
		return nil
	}
}

// applyEnv overlays CONDUCTOR_* variables onto cfg. Jira credentials are
// not handled here; TrackerConfig.Build falls back to JIRA_URL,
// JIRA_EMAIL and JIRA_TOKEN when its block is empty.
func applyEnv(cfg *Config) error {
	for _, b := range envBindings {
		v := os.Getenv(EnvPrefix + b.name)
		if v == "" {
			continue
		}
		if err := b.set(cfg, v); err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, b.name, err)
		}
	}
	return nil
}

// envApplied reports whether any CONDUCTOR_* override is present.
func envApplied() bool {
	for _, b := range envBindings {
		if os.Getenv(EnvPrefix+b.name) != "" {
			return true
		}
	}
	return false
}
