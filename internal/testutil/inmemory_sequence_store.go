package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/bizcore/bizcore/internal/domain/sequence"
	ierr "github.com/bizcore/bizcore/internal/errors"
	"github.com/bizcore/bizcore/internal/types"
)

// InMemorySequenceStore implements sequence.Repository with the same
// concurrency semantics as the postgres implementation: GetForUpdate takes a
// per-(tenant, code) row lock held until the surrounding scope ends, Save is
// version-guarded, and writes only become visible when the scope commits.
type InMemorySequenceStore struct {
	mu      sync.Mutex
	items   map[string]*sequence.NumberSequence
	locks   map[string]*sync.Mutex
	holders map[string]*MockScope
}

var _ sequence.Repository = (*InMemorySequenceStore)(nil)

func NewInMemorySequenceStore() *InMemorySequenceStore {
	return &InMemorySequenceStore{
		items:   make(map[string]*sequence.NumberSequence),
		locks:   make(map[string]*sync.Mutex),
		holders: make(map[string]*MockScope),
	}
}

func sequenceKey(tenantID, code string) string {
	return tenantID + ":" + code
}

func scopeFromContext(ctx context.Context) (*MockScope, error) {
	scope, ok := MockScopeFromContext(ctx)
	if !ok {
		return nil, ierr.NewError("no tenant scope open").
			WithHint("Sequence access requires an open tenant scope").
			Mark(ierr.ErrScope)
	}
	return scope, nil
}

func copySequence(seq *sequence.NumberSequence) *sequence.NumberSequence {
	cp := *seq
	if seq.MaxValue != nil {
		v := *seq.MaxValue
		cp.MaxValue = &v
	}
	if seq.LastResetAt != nil {
		t := *seq.LastResetAt
		cp.LastResetAt = &t
	}
	return &cp
}

// Seed inserts a sequence directly, bypassing scope and audit. The sequence
// must carry its tenant id on the base model.
func (s *InMemorySequenceStore) Seed(seq *sequence.NumberSequence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sequenceKey(seq.TenantID, seq.Code)] = copySequence(seq)
}

// Committed returns the committed state of a sequence, for assertions
func (s *InMemorySequenceStore) Committed(tenantID, code string) (*sequence.NumberSequence, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.items[sequenceKey(tenantID, code)]
	if !ok {
		return nil, false
	}
	return copySequence(seq), true
}

func (s *InMemorySequenceStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*sequence.NumberSequence)
	s.locks = make(map[string]*sync.Mutex)
	s.holders = make(map[string]*MockScope)
}

func (s *InMemorySequenceStore) Create(ctx context.Context, seq *sequence.NumberSequence) error {
	scope, err := scopeFromContext(ctx)
	if err != nil {
		return err
	}

	key := sequenceKey(scope.TenantID, seq.Code)

	s.mu.Lock()
	_, exists := s.items[key]
	s.mu.Unlock()
	if exists {
		return ierr.NewError("sequence already exists").
			WithHintf("A sequence with code %s already exists", seq.Code).
			Mark(ierr.ErrAlreadyExists)
	}

	stored := copySequence(seq)
	stored.TenantID = scope.TenantID
	scope.OnCommit(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.items[key] = stored
	})
	return nil
}

func (s *InMemorySequenceStore) Get(ctx context.Context, code string) (*sequence.NumberSequence, error) {
	scope, err := scopeFromContext(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.items[sequenceKey(scope.TenantID, code)]
	if !ok || seq.Status == types.StatusDeleted {
		return nil, sequence.NewNotFoundError(code)
	}
	return copySequence(seq), nil
}

func (s *InMemorySequenceStore) GetForUpdate(ctx context.Context, code string) (*sequence.NumberSequence, error) {
	scope, err := scopeFromContext(ctx)
	if err != nil {
		return nil, err
	}

	key := sequenceKey(scope.TenantID, code)

	// block like FOR UPDATE: the lock is held until the scope ends, and a
	// scope that already holds it may re-lock freely
	s.mu.Lock()
	held := s.holders[key] == scope
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.mu.Unlock()

	if !held {
		lock.Lock()
		s.mu.Lock()
		s.holders[key] = scope
		s.mu.Unlock()
		scope.OnEnd(func() {
			s.mu.Lock()
			delete(s.holders, key)
			s.mu.Unlock()
			lock.Unlock()
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.items[key]
	if !ok || seq.Status == types.StatusDeleted {
		return nil, sequence.NewNotFoundError(code)
	}
	return copySequence(seq), nil
}

func (s *InMemorySequenceStore) Save(ctx context.Context, seq *sequence.NumberSequence) error {
	scope, err := scopeFromContext(ctx)
	if err != nil {
		return err
	}

	key := sequenceKey(scope.TenantID, seq.Code)

	s.mu.Lock()
	stored, ok := s.items[key]
	if ok && stored.Version != seq.Version {
		s.mu.Unlock()
		return ierr.NewError("stale sequence version").
			WithHintf("Sequence %s was advanced concurrently", seq.Code).
			Mark(ierr.ErrVersionConflict)
	}
	s.mu.Unlock()
	if !ok {
		return sequence.NewNotFoundError(seq.Code)
	}

	seq.Version++
	seq.UpdatedAt = time.Now().UTC()
	seq.UpdatedBy = types.GetUserID(ctx)

	staged := copySequence(seq)
	scope.OnCommit(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.items[key] = staged
	})
	return nil
}

func (s *InMemorySequenceStore) Update(ctx context.Context, seq *sequence.NumberSequence) error {
	return s.Save(ctx, seq)
}

func (s *InMemorySequenceStore) List(ctx context.Context, filter *sequence.Filter) ([]*sequence.NumberSequence, error) {
	scope, err := scopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = &sequence.Filter{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*sequence.NumberSequence
	for _, seq := range s.items {
		if seq.TenantID != scope.TenantID {
			continue
		}
		if filter.Status != "" {
			if seq.Status != filter.Status {
				continue
			}
		} else if seq.Status == types.StatusDeleted {
			continue
		}
		if len(filter.Codes) > 0 && !lo.Contains(filter.Codes, seq.Code) {
			continue
		}
		result = append(result, copySequence(seq))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Code < result[j].Code
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*sequence.NumberSequence{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}
