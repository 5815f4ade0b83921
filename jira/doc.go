// Package jira reads issues from a Jira instance.
//
// Source implements tracker.Source, so workflows can be created straight
// from Jira issue keys. Authentication is either Cloud basic auth (email
// plus API token) or a bearer personal access token.
//
//	cfg, err := jira.ConfigFromEnv()
//	if err != nil {
//	    return err
//	}
//	src, err := jira.NewSource(cfg)
//	if err != nil {
//	    return err
//	}
//	issue, err := src.Get(ctx, "PROJ-123")
//
// Search runs a JQL query and pages through the results lazily:
//
//	it := src.Search(`project = PROJ AND status = "To Do"`, 0)
//	issues, err := it.Take(ctx, 10)
package jira
