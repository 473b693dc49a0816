package clickhouse

import (
	"context"
	"sync"

	"github.com/ClickHouse/ch-go/proto"
)

// MockClient is a mock implementation of ClientInterface for testing.
// It should only be used in test files, not in production code.
type MockClient struct {
	StartFunc          func(ctx context.Context) error
	StopFunc           func() error
	ExecuteFunc        func(ctx context.Context, query string) error
	InsertFunc         func(ctx context.Context, table string, input proto.Input) error
	IsStorageEmptyFunc func(ctx context.Context, table string, conditions map[string]any) (bool, error)

	mu    sync.Mutex
	Calls []MockCall
}

// MockCall represents a method call made to the mock.
type MockCall struct {
	Method string
	Args   []any
}

// NewMockClient creates a mock whose methods all succeed.
func NewMockClient() *MockClient {
	return &MockClient{Calls: make([]MockCall, 0)}
}

func (m *MockClient) record(method string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// Start implements ClientInterface.
func (m *MockClient) Start(ctx context.Context) error {
	m.record("Start")

	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}

	return nil
}

// Stop implements ClientInterface.
func (m *MockClient) Stop() error {
	m.record("Stop")

	if m.StopFunc != nil {
		return m.StopFunc()
	}

	return nil
}

// Execute implements ClientInterface.
func (m *MockClient) Execute(ctx context.Context, query string) error {
	m.record("Execute", query)

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, query)
	}

	return nil
}

// Insert implements ClientInterface.
func (m *MockClient) Insert(ctx context.Context, table string, input proto.Input) error {
	m.record("Insert", table, input)

	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, table, input)
	}

	return nil
}

// IsStorageEmpty implements ClientInterface.
func (m *MockClient) IsStorageEmpty(ctx context.Context, table string, conditions map[string]any) (bool, error) {
	m.record("IsStorageEmpty", table, conditions)

	if m.IsStorageEmptyFunc != nil {
		return m.IsStorageEmptyFunc(ctx, table, conditions)
	}

	return true, nil
}

// GetCallCount returns the number of times a method was called.
func (m *MockClient) GetCallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0

	for _, call := range m.Calls {
		if call.Method == method {
			count++
		}
	}

	return count
}

// WasCalled returns true if the specified method was called.
func (m *MockClient) WasCalled(method string) bool {
	return m.GetCallCount(method) > 0
}

// Reset clears all recorded calls.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = make([]MockCall, 0)
}

var _ ClientInterface = (*MockClient)(nil)
