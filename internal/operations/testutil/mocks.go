package testutil

import (
	"context"
	"sync"
	"time"

	"adminexport/internal/operations"
)

// MockStep is a configurable mock implementation of the Step interface
type MockStep struct {
	IDValue   string
	NameValue string

	// ExecuteFunc runs on every Execute call when set
	ExecuteFunc func(ctx context.Context, state *operations.RunState) error

	mu          sync.Mutex
	ExecuteArgs []ExecuteCall
}

// ExecuteCall tracks arguments passed to Execute
type ExecuteCall struct {
	Ctx   context.Context
	State *operations.RunState
	Time  time.Time
}

// NewMockStep creates a mock step running fn
func NewMockStep(id string, fn func(ctx context.Context, state *operations.RunState) error) *MockStep {
	return &MockStep{IDValue: id, NameValue: id, ExecuteFunc: fn}
}

// ID returns the step ID
func (m *MockStep) ID() string {
	return m.IDValue
}

// Name returns the step name
func (m *MockStep) Name() string {
	return m.NameValue
}

// Execute runs the mock execute function
func (m *MockStep) Execute(ctx context.Context, state *operations.RunState) error {
	m.mu.Lock()
	m.ExecuteArgs = append(m.ExecuteArgs, ExecuteCall{
		Ctx:   ctx,
		State: state,
		Time:  time.Now(),
	})
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, state)
	}
	return nil
}

// GetExecuteCalls returns the number of Execute calls
func (m *MockStep) GetExecuteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ExecuteArgs)
}
