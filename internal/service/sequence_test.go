package service

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/bizcore/bizcore/internal/domain/sequence"
	ierr "github.com/bizcore/bizcore/internal/errors"
	"github.com/bizcore/bizcore/internal/testutil"
	"github.com/bizcore/bizcore/internal/types"
)

type SequenceServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  SequenceService
	recorder AuditRecorder
}

func TestSequenceService(t *testing.T) {
	suite.Run(t, new(SequenceServiceSuite))
}

func (s *SequenceServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	params := ServiceParams{
		Logger:       s.GetLogger(),
		Config:       s.GetConfig(),
		DB:           s.GetDB(),
		Permissions:  s.GetPermissions(),
		Cache:        s.GetCache(),
		SequenceRepo: s.GetStores().SequenceRepo(),
		AuditLogRepo: s.GetStores().AuditLogRepo(),
	}
	s.recorder = NewAuditRecorder(params.AuditLogRepo, s.GetDB(), s.GetLogger())
	s.service = NewSequenceService(params, s.recorder)
}

func (s *SequenceServiceSuite) seedSequence(mutate func(*sequence.NumberSequence)) *sequence.NumberSequence {
	seq := &sequence.NumberSequence{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SEQUENCE),
		Code:           "invoice",
		Prefix:         "INV",
		PaddingLength:  6,
		MinValue:       1,
		Step:           1,
		ResetMode:      types.ResetModeNever,
		ResetValue:     1,
		FormatTemplate: sequence.DefaultFormatTemplate,
		CurrentValue:   1,
		Version:        1,
		BaseModel: types.BaseModel{
			TenantID:  types.DefaultTenantID,
			Status:    types.StatusPublished,
			CreatedAt: s.GetNow().Add(-24 * time.Hour),
			UpdatedAt: s.GetNow().Add(-24 * time.Hour),
			CreatedBy: types.DefaultUserID,
			UpdatedBy: types.DefaultUserID,
		},
	}
	if mutate != nil {
		mutate(seq)
	}
	s.GetStores().SequenceStore.Seed(seq)
	return seq
}

func (s *SequenceServiceSuite) TestNextAllocatesMonotonically() {
	s.seedSequence(nil)

	for i := 1; i <= 3; i++ {
		res := s.service.Next(s.GetContext(), "invoice")
		s.True(res.Success)
		s.Equal(fmt.Sprintf("INV-%06d", i), res.Data)
	}

	committed, ok := s.GetStores().SequenceStore.Committed(types.DefaultTenantID, "invoice")
	s.True(ok)
	s.Equal(int64(4), committed.CurrentValue)
}

func (s *SequenceServiceSuite) TestNextRespectsStep() {
	s.seedSequence(func(seq *sequence.NumberSequence) {
		seq.Step = 10
		seq.PaddingLength = 0
	})

	res := s.service.Next(s.GetContext(), "invoice")
	s.True(res.Success)
	s.Equal("INV-1", res.Data)

	res = s.service.Next(s.GetContext(), "invoice")
	s.True(res.Success)
	s.Equal("INV-11", res.Data)
}

func (s *SequenceServiceSuite) TestNextExhaustsAtMaxValue() {
	maxValue := int64(3)
	s.seedSequence(func(seq *sequence.NumberSequence) {
		seq.MaxValue = &maxValue
	})

	for i := 1; i <= 3; i++ {
		res := s.service.Next(s.GetContext(), "invoice")
		s.True(res.Success, "allocation %d should succeed", i)
	}

	res := s.service.Next(s.GetContext(), "invoice")
	s.False(res.Success)
	s.Equal(ierr.ErrCodeSequenceExhausted, res.Error.Code)

	// the failed attempt must not advance the counter
	committed, _ := s.GetStores().SequenceStore.Committed(types.DefaultTenantID, "invoice")
	s.Equal(int64(4), committed.CurrentValue)

	entries := s.GetStores().AuditLogStore.Entries(types.DefaultTenantID)
	s.Len(entries, 4)
	s.Equal(types.AuditStatusFailure, entries[len(entries)-1].Status)
}

func (s *SequenceServiceSuite) TestConcurrentNextNeverDuplicates() {
	s.seedSequence(nil)

	const workers = 8
	results := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := s.service.Next(s.GetContext(), "invoice")
			if res.Success {
				results <- res.Data
			} else {
				results <- "error: " + res.Error.Code
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for number := range results {
		s.False(seen[number], "number %s allocated twice", number)
		seen[number] = true
	}
	s.Len(seen, workers)

	committed, _ := s.GetStores().SequenceStore.Committed(types.DefaultTenantID, "invoice")
	s.Equal(int64(workers+1), committed.CurrentValue)
}

func (s *SequenceServiceSuite) TestDailyResetRollsCounterBack() {
	yesterday := s.GetNow().Add(-24 * time.Hour)
	s.seedSequence(func(seq *sequence.NumberSequence) {
		seq.ResetMode = types.ResetModeDaily
		seq.CurrentValue = 58
		seq.LastResetAt = &yesterday
	})

	res := s.service.Next(s.GetContext(), "invoice")
	s.True(res.Success)
	s.Equal("INV-000001", res.Data)

	committed, _ := s.GetStores().SequenceStore.Committed(types.DefaultTenantID, "invoice")
	s.Equal(int64(2), committed.CurrentValue)
	s.NotNil(committed.LastResetAt)
	s.Equal(s.GetNow().Format("2006-01-02"), committed.LastResetAt.Format("2006-01-02"))
}

func (s *SequenceServiceSuite) TestNeverModeSurvivesTime() {
	longAgo := s.GetNow().Add(-365 * 24 * time.Hour)
	s.seedSequence(func(seq *sequence.NumberSequence) {
		seq.CurrentValue = 100
		seq.LastResetAt = &longAgo
	})

	res := s.service.Next(s.GetContext(), "invoice")
	s.True(res.Success)
	s.Equal("INV-000100", res.Data)
}

func (s *SequenceServiceSuite) TestGenerateBatchIsContiguous() {
	s.seedSequence(nil)

	res := s.service.Generate(s.GetContext(), "invoice", 5)
	s.True(res.Success)
	s.Len(res.Data, 5)
	for i, number := range res.Data {
		s.Equal(fmt.Sprintf("INV-%06d", i+1), number)
	}

	committed, _ := s.GetStores().SequenceStore.Committed(types.DefaultTenantID, "invoice")
	s.Equal(int64(6), committed.CurrentValue)

	// one batch, one audit entry
	entries := s.GetStores().AuditLogStore.Entries(types.DefaultTenantID)
	s.Len(entries, 1)
	s.Equal(types.AuditStatusSuccess, entries[0].Status)
}

func (s *SequenceServiceSuite) TestGenerateRollsBackWhenBatchExhausts() {
	maxValue := int64(3)
	s.seedSequence(func(seq *sequence.NumberSequence) {
		seq.MaxValue = &maxValue
	})

	res := s.service.Generate(s.GetContext(), "invoice", 5)
	s.False(res.Success)
	s.Equal(ierr.ErrCodeSequenceExhausted, res.Error.Code)

	// no partial batch: counter untouched
	committed, _ := s.GetStores().SequenceStore.Committed(types.DefaultTenantID, "invoice")
	s.Equal(int64(1), committed.CurrentValue)

	entries := s.GetStores().AuditLogStore.Entries(types.DefaultTenantID)
	s.Len(entries, 1)
	s.Equal(types.AuditStatusFailure, entries[0].Status)
}

func (s *SequenceServiceSuite) TestGenerateRejectsNonPositiveCount() {
	s.seedSequence(nil)

	res := s.service.Generate(s.GetContext(), "invoice", 0)
	s.False(res.Success)
	s.Equal(ierr.ErrCodeValidation, res.Error.Code)
}

func (s *SequenceServiceSuite) TestNextUnknownCode() {
	res := s.service.Next(s.GetContext(), "missing")
	s.False(res.Success)
	s.Equal(ierr.ErrCodeNotFound, res.Error.Code)

	// the failed operation still leaves a failure record
	entries := s.GetStores().AuditLogStore.Entries(types.DefaultTenantID)
	s.Len(entries, 1)
	s.Equal(types.AuditStatusFailure, entries[0].Status)
	s.NotEmpty(entries[0].Metadata["error"])
}

func (s *SequenceServiceSuite) TestNextDeniedForViewer() {
	s.seedSequence(nil)
	ctx := testutil.SetupContextWith(types.DefaultTenantID, types.DefaultUserID, types.RoleViewer)

	res := s.service.Next(ctx, "invoice")
	s.False(res.Success)
	s.Equal(ierr.ErrCodePermissionDenied, res.Error.Code)

	// denied before any tenant data was touched: no audit trace
	s.Empty(s.GetStores().AuditLogStore.Entries(types.DefaultTenantID))
	committed, _ := s.GetStores().SequenceStore.Committed(types.DefaultTenantID, "invoice")
	s.Equal(int64(1), committed.CurrentValue)
}

func (s *SequenceServiceSuite) TestCommitFailureRecordsFailureEntry() {
	s.seedSequence(nil)
	commitErr := ierr.NewError("connection reset during commit").Mark(ierr.ErrTransient)
	s.GetDB().FailNextCommit(commitErr)

	res := s.service.Next(s.GetContext(), "invoice")
	s.False(res.Success)
	s.Equal(ierr.ErrCodeTransient, res.Error.Code)

	// the write rolled back with the scope
	committed, _ := s.GetStores().SequenceStore.Committed(types.DefaultTenantID, "invoice")
	s.Equal(int64(1), committed.CurrentValue)

	entries := s.GetStores().AuditLogStore.Entries(types.DefaultTenantID)
	s.Len(entries, 1)
	s.Equal(types.AuditStatusFailure, entries[0].Status)
}

func (s *SequenceServiceSuite) TestResetSetsCounter() {
	s.seedSequence(func(seq *sequence.NumberSequence) {
		seq.CurrentValue = 57
	})

	value := int64(10)
	res := s.service.Reset(s.GetContext(), "invoice", &value)
	s.True(res.Success)
	s.Equal(int64(10), res.Data.CurrentValue)

	// idempotent: resetting to the same value again succeeds
	res = s.service.Reset(s.GetContext(), "invoice", &value)
	s.True(res.Success)

	committed, _ := s.GetStores().SequenceStore.Committed(types.DefaultTenantID, "invoice")
	s.Equal(int64(10), committed.CurrentValue)

	next := s.service.Next(s.GetContext(), "invoice")
	s.True(next.Success)
	s.Equal("INV-000010", next.Data)
}

func (s *SequenceServiceSuite) TestResetDefaultsToResetValue() {
	s.seedSequence(func(seq *sequence.NumberSequence) {
		seq.CurrentValue = 57
	})

	res := s.service.Reset(s.GetContext(), "invoice", nil)
	s.True(res.Success)
	s.Equal(int64(1), res.Data.CurrentValue)
}

func (s *SequenceServiceSuite) TestResetRejectsValueBelowMinimum() {
	s.seedSequence(func(seq *sequence.NumberSequence) {
		seq.MinValue = 5
		seq.ResetValue = 5
		seq.CurrentValue = 20
	})

	value := int64(2)
	res := s.service.Reset(s.GetContext(), "invoice", &value)
	s.False(res.Success)
	s.Equal(ierr.ErrCodeValidation, res.Error.Code)
}

func (s *SequenceServiceSuite) TestResetRequiresPrivilegedRole() {
	s.seedSequence(func(seq *sequence.NumberSequence) {
		seq.CurrentValue = 57
	})
	ctx := testutil.SetupContextWith(types.DefaultTenantID, types.DefaultUserID, types.RoleMember)

	value := int64(1)
	res := s.service.Reset(ctx, "invoice", &value)
	s.False(res.Success)
	s.Equal(ierr.ErrCodePermissionDenied, res.Error.Code)

	s.Empty(s.GetStores().AuditLogStore.Entries(types.DefaultTenantID))
	committed, _ := s.GetStores().SequenceStore.Committed(types.DefaultTenantID, "invoice")
	s.Equal(int64(57), committed.CurrentValue)
}

func (s *SequenceServiceSuite) TestResetRecordsOldAndNewValues() {
	s.seedSequence(func(seq *sequence.NumberSequence) {
		seq.CurrentValue = 57
	})

	value := int64(10)
	res := s.service.Reset(s.GetContext(), "invoice", &value)
	s.True(res.Success)

	entries := s.GetStores().AuditLogStore.Entries(types.DefaultTenantID)
	s.Len(entries, 1)
	entry := entries[0]
	s.Equal(types.AuditStatusSuccess, entry.Status)
	s.Equal("number_sequence", entry.EntityType)
	s.Equal(float64(57), entry.OldValues["current_value"])
	s.Equal(float64(10), entry.NewValues["current_value"])
	s.Contains(entry.ChangedFields, "current_value")
}

func (s *SequenceServiceSuite) TestCreateSequence() {
	res := s.service.CreateSequence(s.GetContext(), CreateSequenceRequest{
		Code:          "estimate",
		Prefix:        "EST",
		PaddingLength: 4,
	})
	s.True(res.Success)
	s.Equal("estimate", res.Data.Code)
	s.Equal(int64(1), res.Data.CurrentValue)
	s.Equal(types.ResetModeNever, res.Data.ResetMode)

	next := s.service.Next(s.GetContext(), "estimate")
	s.True(next.Success)
	s.Equal("EST-0001", next.Data)
}

func (s *SequenceServiceSuite) TestCreateSequenceValidatesBounds() {
	maxValue := int64(5)
	res := s.service.CreateSequence(s.GetContext(), CreateSequenceRequest{
		Code:     "estimate",
		MinValue: 10,
		MaxValue: &maxValue,
	})
	s.False(res.Success)
	s.Equal(ierr.ErrCodeValidation, res.Error.Code)
}

func (s *SequenceServiceSuite) TestCreateSequenceUnknownCustomPeriod() {
	res := s.service.CreateSequence(s.GetContext(), CreateSequenceRequest{
		Code:       "estimate",
		ResetMode:  types.ResetModeCustom,
		PeriodSpec: "lunar",
	})
	s.False(res.Success)
	s.Equal(ierr.ErrCodeValidation, res.Error.Code)
}

func (s *SequenceServiceSuite) TestCreateSequenceDeniedForMember() {
	ctx := testutil.SetupContextWith(types.DefaultTenantID, types.DefaultUserID, types.RoleMember)
	res := s.service.CreateSequence(ctx, CreateSequenceRequest{Code: "estimate"})
	s.False(res.Success)
	s.Equal(ierr.ErrCodePermissionDenied, res.Error.Code)
}

func (s *SequenceServiceSuite) TestGetSequenceServesCachedDefinition() {
	s.seedSequence(nil)

	res := s.service.GetSequence(s.GetContext(), "invoice")
	s.True(res.Success)
	s.Equal("INV", res.Data.Prefix)

	// mutate the store behind the cache; the cached definition keeps serving
	s.seedSequence(func(seq *sequence.NumberSequence) {
		seq.Prefix = "NEW"
	})
	res = s.service.GetSequence(s.GetContext(), "invoice")
	s.True(res.Success)
	s.Equal("INV", res.Data.Prefix)
}

func (s *SequenceServiceSuite) TestUpdateSequenceInvalidatesCache() {
	s.seedSequence(nil)

	res := s.service.GetSequence(s.GetContext(), "invoice")
	s.True(res.Success)

	prefix := "NEW"
	updated := s.service.UpdateSequence(s.GetContext(), "invoice", UpdateSequenceRequest{Prefix: &prefix})
	s.True(updated.Success)
	s.Equal("NEW", updated.Data.Prefix)

	res = s.service.GetSequence(s.GetContext(), "invoice")
	s.True(res.Success)
	s.Equal("NEW", res.Data.Prefix)
}

func (s *SequenceServiceSuite) TestListSequences() {
	s.seedSequence(nil)
	s.seedSequence(func(seq *sequence.NumberSequence) {
		seq.Code = "estimate"
		seq.Prefix = "EST"
	})

	res := s.service.ListSequences(s.GetContext(), nil)
	s.True(res.Success)
	s.Len(res.Data, 2)
	s.Equal("estimate", res.Data[0].Code)
	s.Equal("invoice", res.Data[1].Code)
}

func (s *SequenceServiceSuite) TestDisableSequence() {
	s.seedSequence(nil)

	res := s.service.DisableSequence(s.GetContext(), "invoice")
	s.True(res.Success)
	s.Equal(types.StatusArchived, res.Data.Status)

	listed := s.service.ListSequences(s.GetContext(), &sequence.Filter{Status: types.StatusPublished})
	s.True(listed.Success)
	s.Empty(listed.Data)
}

func (s *SequenceServiceSuite) TestTenantsAreIsolated() {
	s.seedSequence(nil)
	otherTenant := "tenant_other"
	otherCtx := testutil.SetupContextWith(otherTenant, types.DefaultUserID, types.RoleAdmin)

	// the other tenant cannot see or advance this tenant's sequence
	res := s.service.Next(otherCtx, "invoice")
	s.False(res.Success)
	s.Equal(ierr.ErrCodeNotFound, res.Error.Code)

	committed, _ := s.GetStores().SequenceStore.Committed(types.DefaultTenantID, "invoice")
	s.Equal(int64(1), committed.CurrentValue)

	// and its failure lands on its own audit trail
	s.Empty(s.GetStores().AuditLogStore.Entries(types.DefaultTenantID))
	s.Len(s.GetStores().AuditLogStore.Entries(otherTenant), 1)
}
