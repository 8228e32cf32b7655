package wordjudge

import (
	"context"
	"sync"
)

// MockClient is a mock judge for testing
type MockClient struct {
	mu       sync.Mutex
	verdicts map[string]bool
	err      error
	calls    int
	queries  [][]Query
	defValid bool
}

// MockOption configures the mock client
type MockOption func(*MockClient)

// WithVerdict sets the verdict for one query
func WithVerdict(q Query, valid bool) MockOption {
	return func(m *MockClient) {
		m.verdicts[q.Key()] = valid
	}
}

// WithDefaultValid makes every unconfigured query judge as valid
func WithDefaultValid() MockOption {
	return func(m *MockClient) {
		m.defValid = true
	}
}

// WithError makes JudgeBatch fail, forcing callers onto their fallback
func WithError(err error) MockOption {
	return func(m *MockClient) {
		m.err = err
	}
}

// NewMockClient creates a mock judge client
func NewMockClient(opts ...MockOption) *MockClient {
	m := &MockClient{verdicts: make(map[string]bool)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// JudgeBatch returns the configured verdicts and records the call
func (m *MockClient) JudgeBatch(_ context.Context, _ string, queries []Query) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.queries = append(m.queries, queries)

	if m.err != nil {
		return nil, m.err
	}

	out := make(map[string]bool, len(queries))
	for _, q := range queries {
		if v, ok := m.verdicts[q.Key()]; ok {
			out[q.Key()] = v
		} else {
			out[q.Key()] = m.defValid
		}
	}
	return out, nil
}

// BaseURL returns a placeholder URL
func (m *MockClient) BaseURL() string {
	return "mock://wordjudge"
}

// Calls returns how many times JudgeBatch was invoked
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastBatch returns the queries of the most recent call, or nil
func (m *MockClient) LastBatch() []Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queries) == 0 {
		return nil
	}
	return m.queries[len(m.queries)-1]
}
