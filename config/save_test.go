package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestSave_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.StorePath = "/var/lib/conductor/conductor.db"
	cfg.CheckpointTTL = Duration(48 * time.Hour)
	cfg.DefaultProfile = "careful"
	cfg.Profiles = map[string]ProfileConfig{
		"careful": {
			Trust:       "paranoid",
			StepTimeout: Duration(20 * time.Minute),
			MaxRetries:  intPtr(1),
		},
	}
	cfg.Notify.Slack = SlackConfig{WebhookURL: "https://hooks.slack.com/x", Channel: "#eng"}
	cfg.Tracker = TrackerConfig{Kind: TrackerStatic}
	cfg.Approval.Secret = strings.Repeat("s", 32)

	path := filepath.Join(t.TempDir(), "conductor", "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.StorePath != cfg.StorePath {
		t.Errorf("StorePath = %q, want %q", loaded.StorePath, cfg.StorePath)
	}
	if loaded.CheckpointTTL != cfg.CheckpointTTL {
		t.Errorf("CheckpointTTL = %s, want %s",
			time.Duration(loaded.CheckpointTTL), time.Duration(cfg.CheckpointTTL))
	}
	if loaded.DefaultProfile != "careful" {
		t.Errorf("DefaultProfile = %q, want careful", loaded.DefaultProfile)
	}
	pc, ok := loaded.Profiles["careful"]
	if !ok {
		t.Fatal("profile careful lost in round trip")
	}
	if pc.Trust != "paranoid" || pc.StepTimeout != Duration(20*time.Minute) {
		t.Errorf("profile = %+v", pc)
	}
	if pc.MaxRetries == nil || *pc.MaxRetries != 1 {
		t.Errorf("MaxRetries = %v, want 1", pc.MaxRetries)
	}
	if loaded.Notify.Slack.Channel != "#eng" {
		t.Errorf("Slack.Channel = %q, want #eng", loaded.Notify.Slack.Channel)
	}
	if loaded.Tracker.Kind != TrackerStatic {
		t.Errorf("Tracker.Kind = %q, want static", loaded.Tracker.Kind)
	}
	if loaded.Approval.Secret != cfg.Approval.Secret {
		t.Error("approval secret lost in round trip")
	}
}

func TestSave_CreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "config.yaml")
	cfg := Default()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Stat: %v", err)
	}
}

func TestSave_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Approval.Secret = strings.Repeat("s", 32)
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("perm = %o, want 600", got)
	}
}

func TestSave_EmptyPath(t *testing.T) {
	cfg := Default()
	if err := cfg.Save(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestDuration_YAML(t *testing.T) {
	type doc struct {
		D Duration `yaml:"d"`
	}

	out, err := yaml.Marshal(doc{D: Duration(90 * time.Second)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != "d: 1m30s" {
		t.Errorf("Marshal = %q, want %q", got, "d: 1m30s")
	}

	var in doc
	if err := yaml.Unmarshal([]byte("d: 10m\n"), &in); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if in.D != Duration(10*time.Minute) {
		t.Errorf("D = %s, want 10m", time.Duration(in.D))
	}

	if err := yaml.Unmarshal([]byte("d: 10\n"), &in); err == nil {
		t.Error("expected error for bare integer duration")
	}
	if err := yaml.Unmarshal([]byte("d: soon\n"), &in); err == nil {
		t.Error("expected error for unparsable duration")
	}
}
