package tx

import "context"

// MockManager is a Manager for unit tests. It runs the closure inline and
// counts calls; RunInTransactionFunc overrides the behaviour when set.
type MockManager struct {
	RunInTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
	Calls                int
}

// RunInTransaction implements Manager.
func (m *MockManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.Calls++
	if m.RunInTransactionFunc != nil {
		return m.RunInTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

var _ Manager = (*MockManager)(nil)
