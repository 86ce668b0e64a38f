package testutil

import (
	"context"
	"sync"

	ierr "github.com/bizcore/bizcore/internal/errors"
	"github.com/bizcore/bizcore/internal/logger"
	"github.com/bizcore/bizcore/internal/postgres"
	"github.com/bizcore/bizcore/internal/types"
)

var _ postgres.IClient = (*MockPostgresClient)(nil)

type mockScopeKey struct{}

// MockScope is the in-memory stand-in for one tenant-bound transaction. The
// in-memory stores stage their writes on it (applied on commit, dropped on
// rollback) and register row-lock releases to run when the scope ends either
// way.
type MockScope struct {
	TenantID string

	mu       sync.Mutex
	onCommit []func()
	onEnd    []func()
}

// OnCommit defers fn until the scope commits
func (s *MockScope) OnCommit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = append(s.onCommit, fn)
}

// OnEnd defers fn until the scope ends, commit or rollback
func (s *MockScope) OnEnd(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnd = append(s.onEnd, fn)
}

func (s *MockScope) commit() {
	s.mu.Lock()
	fns := s.onCommit
	s.onCommit = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *MockScope) end() {
	s.mu.Lock()
	fns := s.onEnd
	s.onEnd = nil
	s.mu.Unlock()
	// release in reverse acquisition order
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// MockScopeFromContext returns the mock scope if one is open on ctx
func MockScopeFromContext(ctx context.Context) (*MockScope, bool) {
	scope, ok := ctx.Value(mockScopeKey{}).(*MockScope)
	return scope, ok
}

// MockPostgresClient implements the persistence client against in-memory
// stores, with real scope semantics: nesting is rejected, staged writes only
// land on commit, and an error from the body drops them.
type MockPostgresClient struct {
	logger *logger.Logger

	mu        sync.Mutex
	commitErr error
}

// NewMockPostgresClient creates a new mock postgres client
func NewMockPostgresClient(log *logger.Logger) *MockPostgresClient {
	return &MockPostgresClient{logger: log}
}

// FailNextCommit makes the next successful scope fail at commit time with
// err, after discarding its staged writes. Used to exercise the path where
// the operation body succeeds but the transaction does not.
func (c *MockPostgresClient) FailNextCommit(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commitErr = err
}

func (c *MockPostgresClient) takeCommitErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.commitErr
	c.commitErr = nil
	return err
}

// InScope implements IClient
func (c *MockPostgresClient) InScope(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := types.ValidateTenantContext(ctx); err != nil {
		return err
	}

	if _, ok := MockScopeFromContext(ctx); ok {
		return ierr.NewError("tenant scope already open").
			WithHint("Nested tenant scopes are not allowed").
			Mark(ierr.ErrScope)
	}

	scope := &MockScope{TenantID: types.GetTenantID(ctx)}
	scopedCtx := context.WithValue(ctx, mockScopeKey{}, scope)

	defer scope.end()

	if err := fn(scopedCtx); err != nil {
		return err
	}

	if err := c.takeCommitErr(); err != nil {
		return err
	}

	scope.commit()
	return nil
}

// ScopedFromContext implements IClient. The mock has no SQL transaction
// handle; stores resolve the mock scope themselves.
func (c *MockPostgresClient) ScopedFromContext(ctx context.Context) (*postgres.TenantTx, bool) {
	return nil, false
}

// IsScoped implements IClient
func (c *MockPostgresClient) IsScoped(ctx context.Context) bool {
	_, ok := MockScopeFromContext(ctx)
	return ok
}
