package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	conhttp "github.com/randalmurphal/conductor/http"
	"github.com/randalmurphal/conductor/tracker"
)

// DefaultPageSize is the search page size when none is given.
const DefaultPageSize = 50

// Configuration errors.
var (
	ErrURLRequired   = errors.New("jira url is required")
	ErrTokenRequired = errors.New("jira token is required")
	ErrKeyInvalid    = errors.New("invalid issue key format")
)

// issueKeyRegex validates Jira issue keys (e.g., PROJ-123).
var issueKeyRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]*-\d+$`)

// ValidateIssueKey reports whether key looks like a Jira issue key.
func ValidateIssueKey(key string) bool {
	return issueKeyRegex.MatchString(key)
}

// Config holds the connection settings for a Jira instance.
type Config struct {
	// URL is the base URL, e.g. https://company.atlassian.net.
	URL string `yaml:"url"`

	// Email pairs with an API token for Jira Cloud basic auth. Leave it
	// empty when Token is a personal access token (Server/DC), which is
	// sent as a bearer token instead.
	Email string `yaml:"email"`

	// Token is the API token or PAT.
	Token string `yaml:"token"`
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return ErrURLRequired
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("jira url: %w", err)
	}
	if strings.TrimSpace(c.Token) == "" {
		return ErrTokenRequired
	}
	return nil
}

// ConfigFromEnv builds a Config from JIRA_URL, JIRA_EMAIL and JIRA_TOKEN.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:   os.Getenv("JIRA_URL"),
		Email: os.Getenv("JIRA_EMAIL"),
		Token: os.Getenv("JIRA_TOKEN"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Source fetches issues from a Jira instance over the v2 REST API. It
// implements tracker.Source for single lookups and offers JQL search for
// listing candidate work.
type Source struct {
	client  *conhttp.Client
	baseURL string
}

var _ tracker.Source = (*Source)(nil)

// Option configures a Source.
type Option func(*sourceConfig)

type sourceConfig struct {
	httpClient *http.Client
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(sc *sourceConfig) { sc.httpClient = hc }
}

// NewSource creates a Jira-backed issue source.
func NewSource(cfg Config, opts ...Option) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var sc sourceConfig
	for _, opt := range opts {
		opt(&sc)
	}

	base := strings.TrimSuffix(cfg.URL, "/")
	auth := func(req *http.Request) {
		if cfg.Email != "" {
			req.SetBasicAuth(cfg.Email, cfg.Token)
			return
		}
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	return &Source{
		baseURL: base,
		client: conhttp.NewClient(conhttp.ClientConfig{
			Client:        sc.httpClient,
			BaseURL:       base,
			ServiceName:   "jira",
			BeforeRequest: auth,
		}),
	}, nil
}

// issue is the wire shape of the fields this source reads.
type issue struct {
	Key    string      `json:"key"`
	Fields issueFields `json:"fields"`
}

type issueFields struct {
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Labels      []string `json:"labels"`
}

func (s *Source) toIssue(in issue) *tracker.Issue {
	return &tracker.Issue{
		Ref:    in.Key,
		Title:  in.Fields.Summary,
		Body:   in.Fields.Description,
		Labels: in.Fields.Labels,
		URL:    s.baseURL + "/browse/" + in.Key,
	}
}

// Get implements tracker.Source.
func (s *Source) Get(ctx context.Context, ref string) (*tracker.Issue, error) {
	if !ValidateIssueKey(ref) {
		return nil, fmt.Errorf("%w: %q", ErrKeyInvalid, ref)
	}

	var in issue
	path := "/rest/api/2/issue/" + ref + "?fields=summary,description,labels"
	if err := s.client.Get(ctx, path, &in); err != nil {
		if conhttp.IsNotFound(err) {
			return nil, fmt.Errorf("issue %s: %w", ref, tracker.ErrIssueNotFound)
		}
		return nil, err
	}
	return s.toIssue(in), nil
}

type searchRequest struct {
	JQL        string   `json:"jql"`
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields"`
}

type searchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []issue `json:"issues"`
}

// Search returns an iterator over issues matching the JQL query. Pages of
// pageSize (DefaultPageSize when non-positive) are fetched lazily as the
// iterator advances.
func (s *Source) Search(jql string, pageSize int) *conhttp.PageIterator[*tracker.Issue] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	fetch := func(ctx context.Context, page int) ([]*tracker.Issue, bool, error) {
		req := searchRequest{
			JQL:        jql,
			StartAt:    page * pageSize,
			MaxResults: pageSize,
			Fields:     []string{"summary", "description", "labels"},
		}
		var resp searchResponse
		if err := s.client.Post(ctx, "/rest/api/2/search", req, &resp); err != nil {
			return nil, false, err
		}

		out := make([]*tracker.Issue, 0, len(resp.Issues))
		for _, in := range resp.Issues {
			out = append(out, s.toIssue(in))
		}
		hasMore := resp.StartAt+len(resp.Issues) < resp.Total
		return out, hasMore, nil
	}
	return conhttp.NewPageIterator(fetch)
}
