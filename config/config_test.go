package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/randalmurphal/conductor/approval"
	"github.com/randalmurphal/conductor/event"
	"github.com/randalmurphal/conductor/jira"
	"github.com/randalmurphal/conductor/notify"
	"github.com/randalmurphal/conductor/profile"
	"github.com/randalmurphal/conductor/tracker"
)

func intPtr(n int) *int { return &n }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.MaxActive != 5 {
		t.Errorf("MaxActive = %d, want 5", cfg.MaxActive)
	}
	if cfg.DefaultProfile != "standard" {
		t.Errorf("DefaultProfile = %q, want %q", cfg.DefaultProfile, "standard")
	}
	if got := time.Duration(cfg.CheckpointTTL); got != 7*24*time.Hour {
		t.Errorf("CheckpointTTL = %s, want 168h", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
max_active: 9
store_path: /var/lib/conductor/conductor.db
log_level: debug
checkpoint_ttl: 48h
default_profile: careful
profiles:
  careful:
    trust: paranoid
    step_timeout: 20m
    max_retries: 1
notify:
  slack:
    webhook_url: https://hooks.slack.com/services/T0/B0/XXX
    channel: "#eng"
  log: true
pr:
  remote: upstream
tracker:
  kind: jira
  jira:
    url: https://acme.atlassian.net
    token: api-token
approval:
  secret: 0123456789abcdef0123456789abcdef
  ttl: 2h
artifacts:
  dir: /var/lib/conductor/artifacts
  min_keep: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.MaxActive != 9 {
		t.Errorf("MaxActive = %d, want 9", cfg.MaxActive)
	}
	if cfg.StorePath != "/var/lib/conductor/conductor.db" {
		t.Errorf("StorePath = %q", cfg.StorePath)
	}
	if got := cfg.SlogLevel(); got != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, want debug", got)
	}
	if got := time.Duration(cfg.CheckpointTTL); got != 48*time.Hour {
		t.Errorf("CheckpointTTL = %s, want 48h", got)
	}
	pc, ok := cfg.Profiles["careful"]
	if !ok {
		t.Fatal("profile careful not loaded")
	}
	if pc.Trust != "paranoid" {
		t.Errorf("Trust = %q, want paranoid", pc.Trust)
	}
	if got := time.Duration(pc.StepTimeout); got != 20*time.Minute {
		t.Errorf("StepTimeout = %s, want 20m", got)
	}
	if pc.MaxRetries == nil || *pc.MaxRetries != 1 {
		t.Errorf("MaxRetries = %v, want 1", pc.MaxRetries)
	}
	if cfg.Notify.Slack.Channel != "#eng" {
		t.Errorf("Slack.Channel = %q, want #eng", cfg.Notify.Slack.Channel)
	}
	if !cfg.Notify.Log {
		t.Error("Notify.Log = false, want true")
	}
	if cfg.PR.Remote != "upstream" {
		t.Errorf("PR.Remote = %q, want upstream", cfg.PR.Remote)
	}
	if cfg.Tracker.Kind != TrackerJira {
		t.Errorf("Tracker.Kind = %q, want jira", cfg.Tracker.Kind)
	}
	if cfg.Tracker.Jira.URL != "https://acme.atlassian.net" {
		t.Errorf("Jira.URL = %q", cfg.Tracker.Jira.URL)
	}
	if got := time.Duration(cfg.Approval.TTL); got != 2*time.Hour {
		t.Errorf("Approval.TTL = %s, want 2h", got)
	}
	if cfg.Artifacts.Dir != "/var/lib/conductor/artifacts" {
		t.Errorf("Artifacts.Dir = %q", cfg.Artifacts.Dir)
	}
	if cfg.Artifacts.MinKeep != 3 {
		t.Errorf("Artifacts.MinKeep = %d, want 3", cfg.Artifacts.MinKeep)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "max_actve: 3\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "max_actve") {
		t.Errorf("error = %v, want it to name the unknown field", err)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "checkpoint_ttl: 10 parsecs\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CONDUCTOR_MAX_ACTIVE", "12")
	t.Setenv("CONDUCTOR_STORE_PATH", "/tmp/conductor.db")
	t.Setenv("CONDUCTOR_CHECKPOINT_TTL", "48h")
	t.Setenv("CONDUCTOR_PR_DISABLED", "true")
	t.Setenv("CONDUCTOR_SLACK_WEBHOOK", "https://hooks.slack.com/x")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.MaxActive != 12 {
		t.Errorf("MaxActive = %d, want 12", cfg.MaxActive)
	}
	if cfg.StorePath != "/tmp/conductor.db" {
		t.Errorf("StorePath = %q", cfg.StorePath)
	}
	if got := time.Duration(cfg.CheckpointTTL); got != 48*time.Hour {
		t.Errorf("CheckpointTTL = %s, want 48h", got)
	}
	if !cfg.PR.Disabled {
		t.Error("PR.Disabled = false, want true")
	}
	if cfg.Notify.Slack.WebhookURL != "https://hooks.slack.com/x" {
		t.Errorf("Slack.WebhookURL = %q", cfg.Notify.Slack.WebhookURL)
	}
}

func TestFromEnv_BadValue(t *testing.T) {
	t.Setenv("CONDUCTOR_MAX_ACTIVE", "many")

	_, err := FromEnv()
	if err == nil {
		t.Fatal("expected error for unparsable env override")
	}
	if !strings.Contains(err.Error(), "CONDUCTOR_MAX_ACTIVE") {
		t.Errorf("error = %v, want it to name the variable", err)
	}
}

func TestResolver_Priority(t *testing.T) {
	globalPath := filepath.Join(t.TempDir(), "global", "config.yaml")
	writeFile(t, globalPath, "max_active: 7\nlog_level: debug\n")

	repoRoot := t.TempDir()
	writeFile(t, filepath.Join(repoRoot, LocalConfigName), "max_active: 9\n")

	t.Run("local over global", func(t *testing.T) {
		r := NewResolver(ResolverConfig{GlobalPath: globalPath, RepoRoot: repoRoot})
		cfg, err := r.Resolve()
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if cfg.MaxActive != 9 {
			t.Errorf("MaxActive = %d, want 9 (local should win)", cfg.MaxActive)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug (global should survive)", cfg.LogLevel)
		}

		layers := r.Layers()
		want := []Source{SourceDefault, SourceGlobal, SourceLocal}
		if len(layers) < len(want) {
			t.Fatalf("got %d layers, want at least %d", len(layers), len(want))
		}
		for i, s := range want {
			if layers[i].Source != s {
				t.Errorf("layer %d = %q, want %q", i, layers[i].Source, s)
			}
		}
	})

	t.Run("env over local", func(t *testing.T) {
		t.Setenv("CONDUCTOR_MAX_ACTIVE", "11")

		r := NewResolver(ResolverConfig{GlobalPath: globalPath, RepoRoot: repoRoot})
		cfg, err := r.Resolve()
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if cfg.MaxActive != 11 {
			t.Errorf("MaxActive = %d, want 11 (env should win)", cfg.MaxActive)
		}
		layers := r.Layers()
		if layers[len(layers)-1].Source != SourceEnv {
			t.Errorf("last layer = %q, want env", layers[len(layers)-1].Source)
		}
	})
}

func TestResolver_MissingFilesFine(t *testing.T) {
	r := NewResolver(ResolverConfig{
		GlobalPath: filepath.Join(t.TempDir(), "config.yaml"),
		RepoRoot:   t.TempDir(),
	})
	cfg, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.MaxActive != 5 {
		t.Errorf("MaxActive = %d, want default 5", cfg.MaxActive)
	}
	for _, l := range r.Layers() {
		if l.Source == SourceGlobal || l.Source == SourceLocal {
			t.Errorf("unexpected file layer %q", l.Source)
		}
	}
}

func TestResolver_MalformedLayerSkipped(t *testing.T) {
	globalPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, globalPath, "not: valid: yaml: [[[")

	r := NewResolver(ResolverConfig{GlobalPath: globalPath, RepoRoot: t.TempDir()})
	cfg, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.MaxActive != 5 {
		t.Errorf("MaxActive = %d, want default 5", cfg.MaxActive)
	}
	if len(r.Warnings) != 1 {
		t.Fatalf("got %d warnings, want 1: %v", len(r.Warnings), r.Warnings)
	}
	if !strings.Contains(r.Warnings[0], globalPath) {
		t.Errorf("warning = %q, want it to name the file", r.Warnings[0])
	}
}

func TestFindGitRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	if got := findGitRoot(nested); got != root {
		t.Errorf("findGitRoot() = %q, want %q", got, root)
	}
}

func TestFindGitRoot_NotFound(t *testing.T) {
	if got := findGitRoot(t.TempDir()); got != "" {
		t.Errorf("findGitRoot() = %q, want empty", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"max active zero", func(c *Config) { c.MaxActive = 0 }, "max_active"},
		{"max active huge", func(c *Config) { c.MaxActive = 101 }, "max_active"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"short checkpoint ttl", func(c *Config) { c.CheckpointTTL = Duration(30 * time.Second) }, "checkpoint_ttl"},
		{"short approval secret", func(c *Config) { c.Approval.Secret = "short" }, "approval"},
		{"unknown tracker kind", func(c *Config) { c.Tracker.Kind = "linear" }, "tracker kind"},
		{"jira url without token", func(c *Config) {
			c.Tracker.Kind = TrackerJira
			c.Tracker.Jira.URL = "https://acme.atlassian.net"
		}, "tracker"},
		{"unknown default profile", func(c *Config) { c.DefaultProfile = "missing" }, "default_profile"},
		{"bad trust", func(c *Config) {
			c.Profiles = map[string]ProfileConfig{"p": {Trust: "yolo"}}
		}, "trust"},
		{"bad stage", func(c *Config) {
			c.Profiles = map[string]ProfileConfig{"p": {Models: map[string]string{"tester": "m"}}}
		}, "stage"},
		{"bad risk", func(c *Config) {
			c.Profiles = map[string]ProfileConfig{"p": {AutoApproveRisk: "extreme"}}
		}, "risk"},
		{"webhook without url", func(c *Config) {
			c.Notify.Webhooks = []WebhookConfig{{}}
		}, "url is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := Default()
	cfg.Profiles = map[string]ProfileConfig{
		"overnight": {
			Trust:           "autonomous",
			AutoApproveRisk: "high",
			MaxReviewFixes:  intPtr(0),
		},
	}
	cfg.DefaultProfile = "overnight"
	cfg.Tracker = TrackerConfig{Kind: TrackerStatic}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestProfile(t *testing.T) {
	cfg := Default()
	cfg.Profiles = map[string]ProfileConfig{
		"careful": {
			Trust:          "paranoid",
			Models:         map[string]string{"architect": "custom-opus"},
			MaxRetries:     intPtr(0),
			StepTimeout:    Duration(20 * time.Minute),
			MaxReviewFixes: intPtr(4),
		},
	}

	p, err := cfg.Profile("careful")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.Name != "careful" {
		t.Errorf("Name = %q, want careful", p.Name)
	}
	if p.Trust != profile.TrustParanoid {
		t.Errorf("Trust = %q, want paranoid", p.Trust)
	}
	if got := p.ModelFor(profile.StageArchitect); string(got) != "custom-opus" {
		t.Errorf("ModelFor(architect) = %q, want custom-opus", got)
	}
	if p.Retry.MaxRetries != 0 {
		t.Errorf("Retry.MaxRetries = %d, want 0", p.Retry.MaxRetries)
	}
	if p.Retry.BaseDelay != time.Second {
		t.Errorf("Retry.BaseDelay = %s, want default 1s", p.Retry.BaseDelay)
	}
	if p.StepTimeout != 20*time.Minute {
		t.Errorf("StepTimeout = %s, want 20m", p.StepTimeout)
	}
	if p.MaxReviewFixes != 4 {
		t.Errorf("MaxReviewFixes = %d, want 4", p.MaxReviewFixes)
	}
}

func TestProfile_Fallbacks(t *testing.T) {
	cfg := Default()

	p, err := cfg.Profile("")
	if err != nil {
		t.Fatalf("Profile(\"\"): %v", err)
	}
	if p.Name != "standard" {
		t.Errorf("Name = %q, want standard", p.Name)
	}

	if _, err := cfg.Profile("nope"); err == nil {
		t.Error("Profile(nope) = nil error, want error")
	}

	cfg.Profiles = map[string]ProfileConfig{"careful": {Trust: "paranoid"}}
	cfg.DefaultProfile = "careful"
	p, err = cfg.Profile("")
	if err != nil {
		t.Fatalf("Profile(\"\"): %v", err)
	}
	if p.Name != "careful" {
		t.Errorf("Name = %q, want careful (default profile)", p.Name)
	}
}

func TestBuildProfiles(t *testing.T) {
	cfg := Default()
	cfg.Profiles = map[string]ProfileConfig{
		"b-profile": {},
		"a-profile": {Trust: "autonomous"},
	}

	ps, err := cfg.BuildProfiles()
	if err != nil {
		t.Fatalf("BuildProfiles: %v", err)
	}
	if len(ps) != 2 {
		t.Fatalf("got %d profiles, want 2", len(ps))
	}
	if ps[0].Name != "a-profile" || ps[1].Name != "b-profile" {
		t.Errorf("order = [%s, %s], want sorted by name", ps[0].Name, ps[1].Name)
	}
	if ps[0].Trust != profile.TrustAutonomous {
		t.Errorf("Trust = %q, want autonomous", ps[0].Trust)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
	}
	for _, tt := range tests {
		cfg := Config{LogLevel: tt.level}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestNotifyBuild(t *testing.T) {
	logger := slog.Default()

	t.Run("empty is nop", func(t *testing.T) {
		n := NotifyConfig{}.Build(logger)
		if _, ok := n.(notify.NopNotifier); !ok {
			t.Errorf("Build() = %T, want NopNotifier", n)
		}
	})

	t.Run("single sink unwrapped", func(t *testing.T) {
		n := NotifyConfig{Slack: SlackConfig{WebhookURL: "https://hooks.slack.com/x"}}.Build(logger)
		if _, ok := n.(*notify.SlackNotifier); !ok {
			t.Errorf("Build() = %T, want *SlackNotifier", n)
		}
	})

	t.Run("multiple sinks fan out", func(t *testing.T) {
		n := NotifyConfig{
			Slack: SlackConfig{WebhookURL: "https://hooks.slack.com/x"},
			Log:   true,
		}.Build(logger)
		if _, ok := n.(*notify.MultiNotifier); !ok {
			t.Errorf("Build() = %T, want *MultiNotifier", n)
		}
	})
}

func TestNotifyBridgeTypes(t *testing.T) {
	if got := (NotifyConfig{}).BridgeTypes(); got != nil {
		t.Errorf("BridgeTypes() = %v, want nil", got)
	}

	nc := NotifyConfig{Events: []string{"workflow_failed", "blocked"}}
	got := nc.BridgeTypes()
	want := []event.Type{event.TypeWorkflowFailed, event.TypeBlocked}
	if len(got) != len(want) {
		t.Fatalf("got %d types, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("type %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestApprovalBuild(t *testing.T) {
	iss, err := (ApprovalConfig{}).Build()
	if err != nil || iss != nil {
		t.Errorf("Build() = (%v, %v), want (nil, nil) without a secret", iss, err)
	}

	iss, err = (ApprovalConfig{Secret: strings.Repeat("s", 32), TTL: Duration(time.Hour)}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if iss == nil {
		t.Fatal("Build() = nil issuer")
	}
	if _, err := iss.Issue("wf_1", "human_approval"); err != nil {
		t.Errorf("Issue: %v", err)
	}

	_, err = (ApprovalConfig{Secret: "short"}).Build()
	if !errors.Is(err, approval.ErrSecretTooShort) {
		t.Errorf("error = %v, want ErrSecretTooShort", err)
	}
}

func TestArtifactBuild(t *testing.T) {
	if s := (ArtifactConfig{}).Build(); s != nil {
		t.Errorf("Build() = %v, want nil without a dir", s)
	}
	if s := (ArtifactConfig{Dir: t.TempDir(), MinKeep: 2}).Build(); s == nil {
		t.Error("Build() = nil, want store")
	}
}

func TestTrackerBuild(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		src, err := (TrackerConfig{}).Build()
		if err != nil || src != nil {
			t.Errorf("Build() = (%v, %v), want (nil, nil)", src, err)
		}
	})

	t.Run("static", func(t *testing.T) {
		src, err := (TrackerConfig{Kind: TrackerStatic}).Build()
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if _, ok := src.(*tracker.StaticSource); !ok {
			t.Errorf("Build() = %T, want *StaticSource", src)
		}
	})

	t.Run("jira explicit", func(t *testing.T) {
		src, err := (TrackerConfig{
			Kind: TrackerJira,
			Jira: jira.Config{URL: "https://acme.atlassian.net", Token: "api-token"},
		}).Build()
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if src == nil {
			t.Error("Build() = nil source")
		}
	})

	t.Run("jira from env", func(t *testing.T) {
		t.Setenv("JIRA_URL", "https://acme.atlassian.net")
		t.Setenv("JIRA_EMAIL", "dev@acme.test")
		t.Setenv("JIRA_TOKEN", "api-token")

		src, err := (TrackerConfig{Kind: TrackerJira}).Build()
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if src == nil {
			t.Error("Build() = nil source")
		}
	})

	t.Run("jira without credentials", func(t *testing.T) {
		t.Setenv("JIRA_URL", "")
		t.Setenv("JIRA_EMAIL", "")
		t.Setenv("JIRA_TOKEN", "")

		if _, err := (TrackerConfig{Kind: TrackerJira}).Build(); err == nil {
			t.Error("expected error without credentials")
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		if _, err := (TrackerConfig{Kind: "linear"}).Build(); err == nil {
			t.Error("expected error for unknown kind")
		}
	})
}

func TestPRBuild(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		pub, err := (PRConfig{Disabled: true}).Build("https://github.com/acme/site.git", nil)
		if err != nil || pub != nil {
			t.Errorf("Build() = (%v, %v), want (nil, nil)", pub, err)
		}
	})

	t.Run("github from env", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "test-token")

		pub, err := (PRConfig{Remote: "origin"}).Build("https://github.com/acme/site.git", slog.Default())
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if pub == nil {
			t.Error("Build() = nil publisher")
		}
	})

	t.Run("no token", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "")
		t.Setenv("GIT_TOKEN", "")

		if _, err := (PRConfig{}).Build("https://github.com/acme/site.git", nil); err == nil {
			t.Error("expected error without a token")
		}
	})
}
