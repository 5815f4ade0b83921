package pr

import (
	"fmt"
	"os"
)

// ProviderFromEnv creates a provider based on remote URL and environment.
// Automatically detects GitHub vs GitLab and uses the matching token
// env var.
//
// Environment variables checked:
//   - GITHUB_TOKEN for GitHub
//   - GITLAB_TOKEN for GitLab
//   - GIT_TOKEN as fallback for either
//
// Example:
//
//	remoteURL, _ := gitCtx.GetRemoteURL("origin")
//	provider, err := pr.ProviderFromEnv(remoteURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pub := pr.NewForgePublisher(provider)
func ProviderFromEnv(remoteURL string) (Provider, error) {
	platform, err := DetectProvider(remoteURL)
	if err != nil {
		return nil, err
	}

	switch platform {
	case "github":
		token := os.Getenv("GITHUB_TOKEN")
		if token == "" {
			token = os.Getenv("GIT_TOKEN")
		}
		if token == "" {
			return nil, fmt.Errorf("GITHUB_TOKEN or GIT_TOKEN not set; set one of these environment variables with a valid personal access token")
		}
		return NewGitHubProviderFromURL(token, remoteURL)

	case "gitlab":
		token := os.Getenv("GITLAB_TOKEN")
		if token == "" {
			token = os.Getenv("GIT_TOKEN")
		}
		if token == "" {
			return nil, fmt.Errorf("GITLAB_TOKEN or GIT_TOKEN not set; set one of these environment variables with a valid personal access token")
		}
		return NewGitLabProviderFromURL(token, remoteURL)

	default:
		return nil, fmt.Errorf("%w: %s is not supported", ErrUnknownProvider, platform)
	}
}

// ProviderFromEnvWithToken creates a provider with an explicit token,
// detecting the platform from the remote URL.
func ProviderFromEnvWithToken(remoteURL, token string) (Provider, error) {
	platform, err := DetectProvider(remoteURL)
	if err != nil {
		return nil, err
	}

	switch platform {
	case "github":
		return NewGitHubProviderFromURL(token, remoteURL)
	case "gitlab":
		return NewGitLabProviderFromURL(token, remoteURL)
	default:
		return nil, fmt.Errorf("%w: %s is not supported", ErrUnknownProvider, platform)
	}
}

// MustProviderFromEnv is like ProviderFromEnv but panics on error.
// Use in initialization code where a missing provider is fatal.
func MustProviderFromEnv(remoteURL string) Provider {
	provider, err := ProviderFromEnv(remoteURL)
	if err != nil {
		panic(fmt.Sprintf("pr.MustProviderFromEnv: %v", err))
	}
	return provider
}

// PublisherFromEnv builds a ForgePublisher for the given remote URL,
// resolving the provider and token from the environment.
func PublisherFromEnv(remoteURL string, opts ...PublisherOption) (*ForgePublisher, error) {
	provider, err := ProviderFromEnv(remoteURL)
	if err != nil {
		return nil, err
	}
	return NewForgePublisher(provider, opts...), nil
}
