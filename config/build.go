package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/randalmurphal/llmkit/model"

	"github.com/randalmurphal/conductor/approval"
	"github.com/randalmurphal/conductor/artifact"
	"github.com/randalmurphal/conductor/event"
	"github.com/randalmurphal/conductor/jira"
	"github.com/randalmurphal/conductor/notify"
	"github.com/randalmurphal/conductor/plan"
	"github.com/randalmurphal/conductor/pr"
	"github.com/randalmurphal/conductor/profile"
	"github.com/randalmurphal/conductor/tracker"
)

// Logger builds a text slog.Logger at the configured level.
func (c *Config) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: c.SlogLevel(),
	}))
}

// Profile resolves a named profile. An empty name selects
// DefaultProfile; "standard" always resolves, to the built-in default
// unless overridden in Profiles.
func (c *Config) Profile(name string) (*profile.Profile, error) {
	if name == "" {
		name = c.DefaultProfile
	}
	if pc, ok := c.Profiles[name]; ok {
		return pc.build(name)
	}
	if name == "" || name == "standard" {
		return profile.Default(), nil
	}
	return nil, fmt.Errorf("profile %q is not defined", name)
}

// BuildProfiles materializes every configured profile, sorted by name.
// Pass the result to the manager's WithProfiles option.
func (c *Config) BuildProfiles() ([]*profile.Profile, error) {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*profile.Profile, 0, len(names))
	for _, name := range names {
		p, err := c.Profiles[name].build(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// build layers the overrides onto the standard profile and validates.
func (pc ProfileConfig) build(name string) (*profile.Profile, error) {
	p := profile.Default()
	p.Name = name
	if pc.Trust != "" {
		p.Trust = profile.TrustLevel(pc.Trust)
	}
	if len(pc.Models) > 0 {
		p.Models = make(map[profile.Stage]model.ModelName, len(pc.Models))
		for stage, m := range pc.Models {
			s := profile.Stage(stage)
			switch s {
			case profile.StageArchitect, profile.StageDeveloper, profile.StageReviewer, profile.StageFix:
			default:
				return nil, fmt.Errorf("profile %s: unknown stage %q", name, stage)
			}
			p.Models[s] = model.ModelName(m)
		}
	}
	if pc.MaxRetries != nil {
		p.Retry.MaxRetries = *pc.MaxRetries
	}
	if pc.RetryBaseDelay > 0 {
		p.Retry.BaseDelay = time.Duration(pc.RetryBaseDelay)
	}
	if pc.StepTimeout > 0 {
		p.StepTimeout = time.Duration(pc.StepTimeout)
	}
	if pc.MaxReviewFixes != nil {
		p.MaxReviewFixes = *pc.MaxReviewFixes
	}
	if pc.AutoApproveRisk != "" {
		p.AutoApproveRisk = plan.RiskLevel(pc.AutoApproveRisk)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Build creates the artifact store, or nil when no directory is
// configured.
func (c ArtifactConfig) Build() *artifact.Store {
	if c.Dir == "" {
		return nil
	}
	var opts []artifact.Option
	if c.ArchiveAfter > 0 {
		opts = append(opts, artifact.WithArchiveAfter(time.Duration(c.ArchiveAfter)))
	}
	if c.Retention > 0 {
		opts = append(opts, artifact.WithRetention(time.Duration(c.Retention)))
	}
	if c.MinKeep > 0 {
		opts = append(opts, artifact.WithMinKeep(c.MinKeep))
	}
	return artifact.NewStore(c.Dir, opts...)
}

// Build creates the token issuer, or nil when no secret is configured.
func (c ApprovalConfig) Build() (*approval.Issuer, error) {
	if c.Secret == "" {
		return nil, nil
	}
	var opts []approval.Option
	if c.TTL > 0 {
		opts = append(opts, approval.WithTTL(time.Duration(c.TTL)))
	}
	return approval.NewIssuer([]byte(c.Secret), opts...)
}

// Build assembles the configured notification sinks into a single
// Notifier. With no sinks configured it returns a no-op.
func (c NotifyConfig) Build(logger *slog.Logger) notify.Notifier {
	var sinks []notify.Notifier
	if c.Slack.WebhookURL != "" {
		var opts []notify.SlackOption
		if c.Slack.Channel != "" {
			opts = append(opts, notify.WithSlackChannel(c.Slack.Channel))
		}
		if c.Slack.Username != "" {
			opts = append(opts, notify.WithSlackUsername(c.Slack.Username))
		}
		sinks = append(sinks, notify.NewSlackNotifier(c.Slack.WebhookURL, opts...))
	}
	for _, w := range c.Webhooks {
		sinks = append(sinks, notify.NewWebhookNotifier(w.URL, w.Headers))
	}
	if c.Log {
		sinks = append(sinks, notify.NewLogNotifier(logger))
	}

	switch len(sinks) {
	case 0:
		return notify.NopNotifier{}
	case 1:
		return sinks[0]
	default:
		return notify.NewMultiNotifier(sinks...)
	}
}

// BridgeTypes returns the event types to forward, or nil to use the
// bridge default.
func (c NotifyConfig) BridgeTypes() []event.Type {
	if len(c.Events) == 0 {
		return nil
	}
	types := make([]event.Type, 0, len(c.Events))
	for _, t := range c.Events {
		types = append(types, event.Type(t))
	}
	return types
}

// Build creates a forge publisher for the repository's remote URL,
// resolving the provider and token from the environment. It returns
// (nil, nil) when publication is disabled.
func (c PRConfig) Build(remoteURL string, logger *slog.Logger) (pr.Publisher, error) {
	if c.Disabled {
		return nil, nil
	}
	var opts []pr.PublisherOption
	if c.Remote != "" {
		opts = append(opts, pr.WithRemote(c.Remote))
	}
	if c.BaseBranch != "" {
		opts = append(opts, pr.WithBaseBranch(c.BaseBranch))
	}
	if logger != nil {
		opts = append(opts, pr.WithPublisherLogger(logger))
	}
	return pr.PublisherFromEnv(remoteURL, opts...)
}

// Build creates the issue source for the configured tracker kind. An
// empty kind returns (nil, nil): the engine then synthesizes issues
// from references.
func (c TrackerConfig) Build() (tracker.Source, error) {
	switch c.Kind {
	case "":
		return nil, nil
	case TrackerStatic:
		return tracker.NewStaticSource(), nil
	case TrackerJira:
		cfg := c.Jira
		if cfg.URL == "" && cfg.Token == "" {
			env, err := jira.ConfigFromEnv()
			if err != nil {
				return nil, fmt.Errorf("tracker: %w", err)
			}
			cfg = env
		}
		return jira.NewSource(cfg)
	default:
		return nil, fmt.Errorf("tracker kind %q is not one of static, jira", c.Kind)
	}
}
