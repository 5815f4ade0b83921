package pr

import (
	"errors"
	"testing"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://github.com/owner/repo.git", "github", false},
		{"git@github.com:owner/repo.git", "github", false},
		{"https://gitlab.com/group/project.git", "gitlab", false},
		{"https://gitlab.corp.example.com/group/project.git", "gitlab", false},
		{"https://bitbucket.org/owner/repo.git", "bitbucket", false},
		{"https://GITHUB.COM/Owner/Repo.git", "github", false},
		{"https://git.example.com/owner/repo.git", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := DetectProvider(tt.url)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownProvider) {
				t.Errorf("DetectProvider(%q) error = %v, want ErrUnknownProvider", tt.url, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("DetectProvider(%q) unexpected error: %v", tt.url, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DetectProvider(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestParseRepoFromURL(t *testing.T) {
	tests := []struct {
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{"https://github.com/octocat/hello.git", "octocat", "hello", false},
		{"https://github.com/octocat/hello", "octocat", "hello", false},
		{"http://github.com/octocat/hello.git", "octocat", "hello", false},
		{"git@github.com:octocat/hello.git", "octocat", "hello", false},
		{"git@gitlab.com:group/project.git", "group", "project", false},
		{"git@github.com:bad", "", "", true},
		{"git@github.com:too/many/parts.git", "", "", true},
		{"https://github.com", "", "", true},
		{"nonsense", "", "", true},
	}

	for _, tt := range tests {
		owner, repo, err := ParseRepoFromURL(tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRepoFromURL(%q) expected error, got %q/%q", tt.url, owner, repo)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRepoFromURL(%q) unexpected error: %v", tt.url, err)
			continue
		}
		if owner != tt.wantOwner || repo != tt.wantRepo {
			t.Errorf("ParseRepoFromURL(%q) = %q/%q, want %q/%q", tt.url, owner, repo, tt.wantOwner, tt.wantRepo)
		}
	}
}
