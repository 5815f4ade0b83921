package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/conductor/approval"
	"github.com/randalmurphal/conductor/checkpoint"
	"github.com/randalmurphal/conductor/gate"
	"github.com/randalmurphal/conductor/jira"
)

// LocalConfigName is the repository-local config filename the resolver
// looks for at the git root.
const LocalConfigName = ".conductor.yaml"

// EnvPrefix is prepended to field names for environment variable
// overrides, e.g. CONDUCTOR_STORE_PATH.
const EnvPrefix = "CONDUCTOR_"

// Duration is a time.Duration that marshals to and from Go duration
// strings ("90s", "10m", "168h") in YAML.
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"10m\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config is the engine configuration. Zero values mean "use the
// component default"; Default returns a fully populated baseline.
type Config struct {
	// MaxActive caps concurrently active workflows.
	MaxActive int `yaml:"max_active"`

	// StorePath is the SQLite database file for workflows, checkpoints,
	// and events. Empty runs fully in memory.
	StorePath string `yaml:"store_path,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// CheckpointTTL bounds how long a suspended workflow stays resumable.
	CheckpointTTL Duration `yaml:"checkpoint_ttl,omitempty"`

	// EventRetention is how long events stay in the log before the
	// janitor prunes them. Zero keeps them forever.
	EventRetention Duration `yaml:"event_retention,omitempty"`

	// JanitorInterval spaces the background sweeps. Zero disables them.
	JanitorInterval Duration `yaml:"janitor_interval,omitempty"`

	// DefaultProfile names the profile used when a workflow request
	// carries none. It must be "standard" or a key of Profiles.
	DefaultProfile string `yaml:"default_profile,omitempty"`

	// Profiles defines named execution profiles. The built-in "standard"
	// profile is always available and can be overridden here.
	Profiles map[string]ProfileConfig `yaml:"profiles,omitempty"`

	Artifacts ArtifactConfig `yaml:"artifacts,omitempty"`
	Approval  ApprovalConfig `yaml:"approval,omitempty"`
	Notify    NotifyConfig   `yaml:"notify,omitempty"`
	PR        PRConfig       `yaml:"pr,omitempty"`
	Tracker   TrackerConfig  `yaml:"tracker,omitempty"`
}

// ProfileConfig describes one named execution profile. Unset fields keep
// the standard profile's values.
type ProfileConfig struct {
	// Trust is paranoid, standard, or autonomous.
	Trust string `yaml:"trust,omitempty"`

	// Models maps stages (architect, developer, reviewer, fix) to
	// explicit model names.
	Models map[string]string `yaml:"models,omitempty"`

	// MaxRetries bounds transient-failure retries per step.
	MaxRetries *int `yaml:"max_retries,omitempty"`

	// RetryBaseDelay is the first retry delay; later delays double.
	RetryBaseDelay Duration `yaml:"retry_base_delay,omitempty"`

	// StepTimeout bounds a single step execution.
	StepTimeout Duration `yaml:"step_timeout,omitempty"`

	// MaxReviewFixes bounds reviewer finding -> fix -> re-review passes.
	MaxReviewFixes *int `yaml:"max_review_fixes,omitempty"`

	// AutoApproveRisk is the highest batch risk an autonomous profile
	// runs without a checkpoint: low, medium, or high.
	AutoApproveRisk string `yaml:"auto_approve_risk,omitempty"`
}

// ArtifactConfig controls the per-run artifact store.
type ArtifactConfig struct {
	// Dir roots the artifact tree. Empty disables artifact capture.
	Dir string `yaml:"dir,omitempty"`

	// ArchiveAfter is the age at which finished runs are compressed into
	// a tarball.
	ArchiveAfter Duration `yaml:"archive_after,omitempty"`

	// Retention is the age at which archived runs are deleted.
	Retention Duration `yaml:"retention,omitempty"`

	// MinKeep is the number of most recent runs never aged out.
	MinKeep int `yaml:"min_keep,omitempty"`
}

// ApprovalConfig controls signed decision tokens on checkpoint events.
type ApprovalConfig struct {
	// Secret signs the tokens and must be at least 32 bytes. Tokens are
	// disabled when empty.
	Secret string `yaml:"secret,omitempty"`

	// TTL is the token lifetime.
	TTL Duration `yaml:"ttl,omitempty"`
}

// SlackConfig configures the Slack notification sink.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url,omitempty"`
	Channel    string `yaml:"channel,omitempty"`
	Username   string `yaml:"username,omitempty"`
}

// WebhookConfig configures one generic webhook sink.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// NotifyConfig selects notification sinks and the events forwarded to
// them.
type NotifyConfig struct {
	Slack    SlackConfig     `yaml:"slack,omitempty"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`

	// Log mirrors notifications to the engine logger.
	Log bool `yaml:"log,omitempty"`

	// Events lists the event types forwarded to the sinks. Empty uses
	// the bridge default (checkpoint and terminal events).
	Events []string `yaml:"events,omitempty"`
}

// PRConfig controls pull-request publication after review.
type PRConfig struct {
	// Disabled turns publication off even when a forge token is
	// available in the environment.
	Disabled bool `yaml:"disabled,omitempty"`

	// Remote is the git remote pushed before opening the PR.
	Remote string `yaml:"remote,omitempty"`

	// BaseBranch is the branch PRs target. Empty uses the forge default.
	BaseBranch string `yaml:"base_branch,omitempty"`
}

// Tracker kinds.
const (
	TrackerStatic = "static"
	TrackerJira   = "jira"
)

// TrackerConfig selects where workflow issues are fetched from. An empty
// kind runs without a tracker: workflows get a synthetic issue built
// from the reference.
type TrackerConfig struct {
	Kind string `yaml:"kind,omitempty"`

	// Jira is used when Kind is "jira". When URL and Token are both
	// empty the JIRA_URL/JIRA_EMAIL/JIRA_TOKEN environment variables are
	// consulted instead.
	Jira jira.Config `yaml:"jira,omitempty"`
}

// Default returns the baseline configuration: five active workflows,
// in-memory stores, the standard profile, and everything optional off.
func Default() Config {
	return Config{
		MaxActive:       gate.DefaultMaxActive,
		LogLevel:        "info",
		CheckpointTTL:   Duration(checkpoint.DefaultTTL),
		EventRetention:  Duration(7 * 24 * time.Hour),
		JanitorInterval: Duration(time.Hour),
		DefaultProfile:  "standard",
	}
}

// SlogLevel maps the configured log level onto slog. Unknown values fall
// back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks ranges and cross-field consistency. Load and Resolve
// call it; call it directly after building a Config in code.
func (c *Config) Validate() error {
	if c.MaxActive < 1 || c.MaxActive > 100 {
		return fmt.Errorf("max_active must be between 1 and 100, got %d", c.MaxActive)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	if c.CheckpointTTL != 0 && time.Duration(c.CheckpointTTL) < time.Minute {
		return fmt.Errorf("checkpoint_ttl must be at least 1m, got %s", time.Duration(c.CheckpointTTL))
	}
	if c.EventRetention < 0 {
		return fmt.Errorf("event_retention must not be negative")
	}
	if c.JanitorInterval < 0 {
		return fmt.Errorf("janitor_interval must not be negative")
	}

	for name, pc := range c.Profiles {
		if _, err := pc.build(name); err != nil {
			return err
		}
	}
	if name := c.DefaultProfile; name != "" && name != "standard" {
		if _, ok := c.Profiles[name]; !ok {
			return fmt.Errorf("default_profile %q is not defined", name)
		}
	}

	if a := c.Artifacts; a.Dir != "" {
		if a.ArchiveAfter < 0 || a.Retention < 0 {
			return fmt.Errorf("artifact ages must not be negative")
		}
		if a.MinKeep < 0 {
			return fmt.Errorf("artifacts min_keep must not be negative")
		}
	}
	if s := c.Approval.Secret; s != "" && len(s) < 32 {
		return fmt.Errorf("approval: %w", approval.ErrSecretTooShort)
	}
	if c.Approval.TTL < 0 {
		return fmt.Errorf("approval ttl must not be negative")
	}
	for i, w := range c.Notify.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("notify webhook %d: url is required", i)
		}
	}

	switch c.Tracker.Kind {
	case "", TrackerStatic:
	case TrackerJira:
		// Defer to the environment when the block is entirely empty.
		if c.Tracker.Jira.URL != "" || c.Tracker.Jira.Token != "" {
			if err := c.Tracker.Jira.Validate(); err != nil {
				return fmt.Errorf("tracker: %w", err)
			}
		}
	default:
		return fmt.Errorf("tracker kind %q is not one of static, jira", c.Tracker.Kind)
	}
	return nil
}
