package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/bizcore/bizcore/internal/domain/auditlog"
	ierr "github.com/bizcore/bizcore/internal/errors"
)

// InMemoryAuditLogStore implements auditlog.Repository. Scoped inserts only
// become visible when the surrounding scope commits; side-channel inserts are
// visible immediately, like the autonomous write the postgres implementation
// performs.
type InMemoryAuditLogStore struct {
	mu      sync.Mutex
	entries []*auditlog.AuditLogEntry
}

var _ auditlog.Repository = (*InMemoryAuditLogStore)(nil)

func NewInMemoryAuditLogStore() *InMemoryAuditLogStore {
	return &InMemoryAuditLogStore{}
}

func (s *InMemoryAuditLogStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Entries returns all committed entries for a tenant, oldest first
func (s *InMemoryAuditLogStore) Entries(tenantID string) []*auditlog.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*auditlog.AuditLogEntry
	for _, entry := range s.entries {
		if entry.TenantID == tenantID {
			result = append(result, entry)
		}
	}
	return result
}

func (s *InMemoryAuditLogStore) Insert(ctx context.Context, entry *auditlog.AuditLogEntry) error {
	scope, ok := MockScopeFromContext(ctx)
	if !ok {
		return ierr.NewError("no tenant scope open").
			WithHint("Scoped audit insert requires an open tenant scope").
			Mark(ierr.ErrScope)
	}

	scope.OnCommit(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.entries = append(s.entries, entry)
	})
	return nil
}

func (s *InMemoryAuditLogStore) InsertSideChannel(ctx context.Context, entry *auditlog.AuditLogEntry) error {
	if entry.TenantID == "" {
		return ierr.NewError("audit entry missing tenant").
			WithHint("Side-channel audit inserts must carry the tenant id").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryAuditLogStore) List(ctx context.Context, filter *auditlog.Filter) ([]*auditlog.AuditLogEntry, error) {
	scope, ok := MockScopeFromContext(ctx)
	if !ok {
		return nil, ierr.NewError("no tenant scope open").
			WithHint("Audit reads require an open tenant scope").
			Mark(ierr.ErrScope)
	}
	if filter == nil {
		filter = &auditlog.Filter{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*auditlog.AuditLogEntry
	for _, entry := range s.entries {
		if entry.TenantID != scope.TenantID {
			continue
		}
		if filter.EntityType != "" && entry.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && entry.EntityID != filter.EntityID {
			continue
		}
		if filter.ActorID != "" && entry.ActorID != filter.ActorID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		if filter.From != nil && entry.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && entry.Timestamp.After(*filter.To) {
			continue
		}
		result = append(result, entry)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*auditlog.AuditLogEntry{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}
