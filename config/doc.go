// Package config loads the engine configuration from YAML with layered
// overrides and builds the components it describes.
//
// Precedence, lowest to highest:
//  1. Built-in defaults (Default)
//  2. Global config (~/.config/conductor/config.yaml)
//  3. Repository-local config (.conductor.yaml at the git root)
//  4. CONDUCTOR_* environment variables
//
// Load reads a single explicit file; Resolver merges the standard
// locations:
//
//	cfg, err := config.NewResolver(config.ResolverConfig{}).Resolve()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger := cfg.Logger()
//	profiles, err := cfg.BuildProfiles()
//	notifier := cfg.Notify.Build(logger)
//
// A config file looks like:
//
//	max_active: 5
//	store_path: /var/lib/conductor/conductor.db
//	default_profile: careful
//	profiles:
//	  careful:
//	    trust: paranoid
//	    step_timeout: 20m
//	  overnight:
//	    trust: autonomous
//	    auto_approve_risk: medium
//	notify:
//	  slack:
//	    webhook_url: https://hooks.slack.com/services/T0/B0/XXX
//	    channel: "#deploys"
//	tracker:
//	  kind: jira
//
// Scalar settings map onto CONDUCTOR_* variables (CONDUCTOR_STORE_PATH,
// CONDUCTOR_MAX_ACTIVE, CONDUCTOR_APPROVAL_SECRET, ...). Jira
// credentials are the exception: when the jira block is empty they come
// from JIRA_URL, JIRA_EMAIL and JIRA_TOKEN, and forge tokens always come
// from GITHUB_TOKEN/GITLAB_TOKEN/GIT_TOKEN.
//
// Durations are Go duration strings ("90s", "10m", "168h"). Unknown
// fields are rejected so typos fail loudly.
package config
