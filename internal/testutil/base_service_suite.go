package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/bizcore/bizcore/internal/cache"
	"github.com/bizcore/bizcore/internal/config"
	"github.com/bizcore/bizcore/internal/domain/auditlog"
	"github.com/bizcore/bizcore/internal/domain/sequence"
	"github.com/bizcore/bizcore/internal/logger"
	"github.com/bizcore/bizcore/internal/permission"
)

// Stores holds the in-memory repository implementations for testing
type Stores struct {
	SequenceStore *InMemorySequenceStore
	AuditLogStore *InMemoryAuditLogStore
}

// SequenceRepo exposes the sequence store through its domain interface
func (s Stores) SequenceRepo() sequence.Repository {
	return s.SequenceStore
}

// AuditLogRepo exposes the audit log store through its domain interface
func (s Stores) AuditLogRepo() auditlog.Repository {
	return s.AuditLogStore
}

// BaseServiceTestSuite provides common functionality for service test suites:
// a request context with a default identity, in-memory stores behind a mock
// client with real scope semantics, and the default permission table.
type BaseServiceTestSuite struct {
	suite.Suite
	ctx         context.Context
	stores      Stores
	db          *MockPostgresClient
	logger      *logger.Logger
	config      *config.Configuration
	permissions *permission.Engine
	cache       cache.Cache
	now         time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	s.config = config.GetDefaultConfig()
	s.logger = logger.GetLogger()

	s.permissions = permission.NewEngineFromConfig(s.config)
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.db = NewMockPostgresClient(s.logger)
	s.cache = cache.NewInMemoryCache()
	s.stores = Stores{
		SequenceStore: NewInMemorySequenceStore(),
		AuditLogStore: NewInMemoryAuditLogStore(),
	}
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.stores.SequenceStore.Clear()
	s.stores.AuditLogStore.Clear()
	s.cache.Flush(context.Background())
}

// GetContext returns the test request context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// SetContext overrides the request context for a test
func (s *BaseServiceTestSuite) SetContext(ctx context.Context) {
	s.ctx = ctx
}

// GetStores returns the in-memory stores
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetDB returns the mock postgres client
func (s *BaseServiceTestSuite) GetDB() *MockPostgresClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetPermissions returns the permission engine built from the default table
func (s *BaseServiceTestSuite) GetPermissions() *permission.Engine {
	return s.permissions
}

// GetCache returns the test cache
func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

// GetNow returns the timestamp captured at test setup
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}
