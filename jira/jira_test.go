package jira

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	conhttp "github.com/randalmurphal/conductor/http"
	"github.com/randalmurphal/conductor/tracker"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"valid cloud", Config{URL: "https://co.atlassian.net", Email: "dev@co.example", Token: "tok"}, nil},
		{"valid pat", Config{URL: "https://jira.co.example", Token: "tok"}, nil},
		{"missing url", Config{Token: "tok"}, ErrURLRequired},
		{"missing token", Config{URL: "https://co.atlassian.net"}, ErrTokenRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("JIRA_URL", "https://co.atlassian.net")
	t.Setenv("JIRA_EMAIL", "dev@co.example")
	t.Setenv("JIRA_TOKEN", "tok")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.URL != "https://co.atlassian.net" || cfg.Email != "dev@co.example" || cfg.Token != "tok" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestConfigFromEnv_Missing(t *testing.T) {
	t.Setenv("JIRA_URL", "")
	t.Setenv("JIRA_TOKEN", "tok")

	if _, err := ConfigFromEnv(); !errors.Is(err, ErrURLRequired) {
		t.Errorf("error = %v, want ErrURLRequired", err)
	}
}

func TestValidateIssueKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"PROJ-123", true},
		{"A1-9", true},
		{"proj-123", false},
		{"PROJ", false},
		{"PROJ-", false},
		{"1PROJ-1", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidateIssueKey(tt.key); got != tt.want {
			t.Errorf("ValidateIssueKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func issueJSON(key, summary, desc string, labels ...string) map[string]any {
	return map[string]any{
		"key": key,
		"fields": map[string]any{
			"summary":     summary,
			"description": desc,
			"labels":      labels,
		},
	}
}

func TestSourceGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/2/issue/PROJ-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if fields := r.URL.Query().Get("fields"); fields != "summary,description,labels" {
			t.Errorf("fields = %q", fields)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "dev@co.example" || pass != "tok" {
			t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
		}
		json.NewEncoder(w).Encode(issueJSON("PROJ-1", "Fix the widget", "It wobbles.", "bug"))
	}))
	defer server.Close()

	src, err := NewSource(Config{URL: server.URL, Email: "dev@co.example", Token: "tok"})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	issue, err := src.Get(context.Background(), "PROJ-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if issue.Ref != "PROJ-1" {
		t.Errorf("Ref = %s", issue.Ref)
	}
	if issue.Title != "Fix the widget" {
		t.Errorf("Title = %s", issue.Title)
	}
	if issue.Body != "It wobbles." {
		t.Errorf("Body = %s", issue.Body)
	}
	if len(issue.Labels) != 1 || issue.Labels[0] != "bug" {
		t.Errorf("Labels = %v", issue.Labels)
	}
	if want := server.URL + "/browse/PROJ-1"; issue.URL != want {
		t.Errorf("URL = %s, want %s", issue.URL, want)
	}
}

func TestSourceGet_BearerAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer pat-token" {
			t.Errorf("Authorization = %q, want Bearer pat-token", auth)
		}
		json.NewEncoder(w).Encode(issueJSON("OPS-7", "Rotate keys", ""))
	}))
	defer server.Close()

	src, err := NewSource(Config{URL: server.URL, Token: "pat-token"})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if _, err := src.Get(context.Background(), "OPS-7"); err != nil {
		t.Fatalf("Get: %v", err)
	}
}

func TestSourceGet_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"errorMessages": []string{"Issue does not exist or you do not have permission to see it."},
		})
	}))
	defer server.Close()

	src, err := NewSource(Config{URL: server.URL, Token: "tok"})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	_, err = src.Get(context.Background(), "PROJ-404")
	if !errors.Is(err, tracker.ErrIssueNotFound) {
		t.Errorf("error = %v, want tracker.ErrIssueNotFound", err)
	}
}

func TestSourceGet_InvalidKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	}))
	defer server.Close()

	src, err := NewSource(Config{URL: server.URL, Token: "tok"})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	if _, err := src.Get(context.Background(), "not a key"); !errors.Is(err, ErrKeyInvalid) {
		t.Errorf("error = %v, want ErrKeyInvalid", err)
	}
}

func TestSourceSearch(t *testing.T) {
	keys := []string{"PROJ-1", "PROJ-2", "PROJ-3"}
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/2/search" || r.Method != http.MethodPost {
			t.Errorf("%s %s, want POST /rest/api/2/search", r.Method, r.URL.Path)
		}
		requests++

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode search request: %v", err)
		}
		if req.JQL != "project = PROJ" {
			t.Errorf("jql = %q", req.JQL)
		}
		if req.MaxResults != 2 {
			t.Errorf("maxResults = %d, want 2", req.MaxResults)
		}

		var issues []map[string]any
		for i := req.StartAt; i < len(keys) && i < req.StartAt+req.MaxResults; i++ {
			issues = append(issues, issueJSON(keys[i], "Issue "+strconv.Itoa(i+1), ""))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"startAt":    req.StartAt,
			"maxResults": req.MaxResults,
			"total":      len(keys),
			"issues":     issues,
		})
	}))
	defer server.Close()

	src, err := NewSource(Config{URL: server.URL, Token: "tok"})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	all, err := src.Search("project = PROJ", 2).All(context.Background())
	if err != nil {
		t.Fatalf("Search.All: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d issues, want 3", len(all))
	}
	for i, want := range keys {
		if all[i].Ref != want {
			t.Errorf("issue %d = %s, want %s", i, all[i].Ref, want)
		}
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
}

func TestSourceSearch_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"errorMessages": []string{"The JQL query is invalid."},
		})
	}))
	defer server.Close()

	src, err := NewSource(Config{URL: server.URL, Token: "tok"})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	_, err = src.Search("bogus ===", 0).All(context.Background())
	if !errors.Is(err, conhttp.ErrBadRequest) {
		t.Errorf("error = %v, want ErrBadRequest", err)
	}
}
