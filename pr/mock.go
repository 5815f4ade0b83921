package pr

import "context"

// MockProvider is a mock implementation of Provider for testing.
type MockProvider struct {
	NameFunc     func() string
	CreatePRFunc func(ctx context.Context, opts Options) (*PullRequest, error)
	UpdatePRFunc func(ctx context.Context, number int, opts UpdateOptions) (*PullRequest, error)
	ListPRsFunc  func(ctx context.Context, filter Filter) ([]*PullRequest, error)
}

// Name implements Provider.
func (m *MockProvider) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "mock"
}

// CreatePR implements Provider.
func (m *MockProvider) CreatePR(ctx context.Context, opts Options) (*PullRequest, error) {
	if m.CreatePRFunc != nil {
		return m.CreatePRFunc(ctx, opts)
	}
	return &PullRequest{Number: 1, URL: "https://example.com/pr/1", Head: opts.Head, Base: opts.Base, Draft: opts.Draft}, nil
}

// UpdatePR implements Provider.
func (m *MockProvider) UpdatePR(ctx context.Context, number int, opts UpdateOptions) (*PullRequest, error) {
	if m.UpdatePRFunc != nil {
		return m.UpdatePRFunc(ctx, number, opts)
	}
	return &PullRequest{Number: number}, nil
}

// ListPRs implements Provider.
func (m *MockProvider) ListPRs(ctx context.Context, filter Filter) ([]*PullRequest, error) {
	if m.ListPRsFunc != nil {
		return m.ListPRsFunc(ctx, filter)
	}
	return []*PullRequest{}, nil
}

// MockPublisher is a mock implementation of Publisher for testing.
// Requests records every publish call in order.
type MockPublisher struct {
	PublishFunc func(ctx context.Context, req Request) (*Result, error)
	Requests    []Request
}

// Publish implements Publisher.
func (m *MockPublisher) Publish(ctx context.Context, req Request) (*Result, error) {
	m.Requests = append(m.Requests, req)
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, req)
	}
	return &Result{URL: "https://example.com/pr/1", Number: 1, Provider: "mock"}, nil
}
