package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bizcore/bizcore/internal/cache"
	"github.com/bizcore/bizcore/internal/domain/sequence"
	ierr "github.com/bizcore/bizcore/internal/errors"
	"github.com/bizcore/bizcore/internal/types"
	"github.com/bizcore/bizcore/internal/validator"
)

const sequenceEntityType = "number_sequence"

// contentionBackoffInterval is the base delay between allocation retries
// after a lock conflict.
const contentionBackoffInterval = 50 * time.Millisecond

// SequenceService allocates formatted per-tenant document numbers and
// manages sequence definitions. Every method runs as a full service
// operation: authorized, tenant-scoped, and audited.
type SequenceService interface {
	// Next allocates the next formatted number of the sequence
	Next(ctx context.Context, code string) Result[string]
	// Generate allocates a contiguous batch of count numbers in one
	// transaction; a partial failure rolls the whole batch back
	Generate(ctx context.Context, code string, count int) Result[[]string]
	// Reset directly sets the counter, bypassing period logic. Privileged:
	// the caller must hold the configured reset role. Idempotent.
	Reset(ctx context.Context, code string, newValue *int64) Result[*sequence.NumberSequence]

	CreateSequence(ctx context.Context, req CreateSequenceRequest) Result[*sequence.NumberSequence]
	GetSequence(ctx context.Context, code string) Result[*sequence.NumberSequence]
	ListSequences(ctx context.Context, filter *sequence.Filter) Result[[]*sequence.NumberSequence]
	UpdateSequence(ctx context.Context, code string, req UpdateSequenceRequest) Result[*sequence.NumberSequence]
	DisableSequence(ctx context.Context, code string) Result[*sequence.NumberSequence]
}

// CreateSequenceRequest provisions a new sequence definition
type CreateSequenceRequest struct {
	Code           string          `json:"code" validate:"required"`
	Prefix         string          `json:"prefix"`
	Suffix         string          `json:"suffix"`
	PaddingLength  int             `json:"padding_length" validate:"gte=0,lte=20"`
	MinValue       int64           `json:"min_value" validate:"gte=0"`
	MaxValue       *int64          `json:"max_value"`
	Step           int64           `json:"step" validate:"gte=0"`
	ResetMode      types.ResetMode `json:"reset_mode"`
	PeriodSpec     string          `json:"period_spec"`
	ResetValue     *int64          `json:"reset_value"`
	FormatTemplate string          `json:"format_template"`
}

// UpdateSequenceRequest changes definition fields; the counter itself is
// only touched through Next/Generate/Reset.
type UpdateSequenceRequest struct {
	Prefix         *string          `json:"prefix"`
	Suffix         *string          `json:"suffix"`
	PaddingLength  *int             `json:"padding_length"`
	MaxValue       *int64           `json:"max_value"`
	Step           *int64           `json:"step"`
	ResetMode      *types.ResetMode `json:"reset_mode"`
	PeriodSpec     *string          `json:"period_spec"`
	ResetValue     *int64           `json:"reset_value"`
	FormatTemplate *string          `json:"format_template"`
}

type sequenceService struct {
	ServiceParams
	recorder AuditRecorder
}

// NewSequenceService creates the sequence service
func NewSequenceService(params ServiceParams, recorder AuditRecorder) SequenceService {
	return &sequenceService{
		ServiceParams: params,
		recorder:      recorder,
	}
}

func (s *sequenceService) Next(ctx context.Context, code string) Result[string] {
	op := Operation{
		Permission: types.PermissionSequenceAllocate,
		Action:     types.AuditActionUpdate,
		EntityType: sequenceEntityType,
		Metadata:   map[string]any{"sequence_code": code},
	}

	return Execute[string](ctx, s.ServiceParams, s.recorder, op, func(ctx context.Context) (string, error) {
		numbers, err := s.allocate(ctx, code, 1)
		if err != nil {
			return "", err
		}
		return numbers[0], nil
	})
}

func (s *sequenceService) Generate(ctx context.Context, code string, count int) Result[[]string] {
	op := Operation{
		Permission: types.PermissionSequenceAllocate,
		Action:     types.AuditActionUpdate,
		EntityType: sequenceEntityType,
		Metadata:   map[string]any{"sequence_code": code, "count": count},
	}

	return Execute[[]string](ctx, s.ServiceParams, s.recorder, op, func(ctx context.Context) ([]string, error) {
		if count < 1 {
			return nil, ierr.NewError("invalid batch size").
				WithHint("Batch size must be at least 1").
				Mark(ierr.ErrValidation)
		}
		return s.allocate(ctx, code, count)
	})
}

// allocate performs the locked read-modify-write at the heart of the
// allocator. It must run inside an open tenant scope. The row lock
// serializes concurrent allocators; lock conflicts and stale versions are
// retried with backoff up to the configured bound. The counter is always
// read fresh under the lock, never from any cache.
func (s *sequenceService) allocate(ctx context.Context, code string, count int) ([]string, error) {
	maxRetries := s.Config.Sequence.MaxContentionRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	var numbers []string
	attempts := 0

	operation := func() error {
		attempts++
		var err error
		numbers, err = s.allocateOnce(ctx, code, count)
		if err == nil {
			return nil
		}
		if ierr.IsSequenceContention(err) || ierr.IsVersionConflict(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(backoff.WithInitialInterval(contentionBackoffInterval)),
			uint64(maxRetries-1),
		),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		if permanent, ok := err.(*backoff.PermanentError); ok {
			return nil, permanent.Err
		}
		if ierr.IsSequenceContention(err) || ierr.IsVersionConflict(err) {
			s.Logger.Warnw("sequence allocation retries exhausted",
				"code", code,
				"attempts", attempts,
			)
			return nil, sequence.NewContentionError(code, attempts)
		}
		return nil, err
	}

	return numbers, nil
}

func (s *sequenceService) allocateOnce(ctx context.Context, code string, count int) ([]string, error) {
	seq, err := s.SequenceRepo.GetForUpdate(ctx, code)
	if err != nil {
		return nil, err
	}

	SetAuditOldValues(ctx, seq)

	now := time.Now().UTC()
	changed, err := seq.PeriodChanged(now)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Sequence has an invalid reset configuration").
			Mark(ierr.ErrValidation)
	}
	if changed {
		seq.CurrentValue = seq.ResetValue
		seq.LastResetAt = &now
	}

	step := seq.Step
	if step <= 0 {
		step = 1
	}

	numbers := make([]string, 0, count)
	for i := 0; i < count; i++ {
		allocated := seq.CurrentValue
		if seq.Exhausted(allocated) {
			var max int64
			if seq.MaxValue != nil {
				max = *seq.MaxValue
			}
			return nil, sequence.NewExhaustedError(code, max)
		}
		numbers = append(numbers, seq.Format(allocated))
		seq.CurrentValue = allocated + step
	}

	if err := s.SequenceRepo.Save(ctx, seq); err != nil {
		return nil, err
	}

	s.Logger.Debugw("allocated sequence numbers",
		"tenant_id", types.GetTenantID(ctx),
		"code", code,
		"count", count,
		"next_value", seq.CurrentValue,
	)

	return numbers, nil
}

func (s *sequenceService) Reset(ctx context.Context, code string, newValue *int64) Result[*sequence.NumberSequence] {
	// privileged: enforced before the operation runs so a denied caller
	// triggers no tenant I/O and no audit entry, same as a missing grant
	resetRole := types.Role(s.Config.Auth.SequenceResetRole)
	if !s.Permissions.HasHierarchyAtLeast(types.GetRoles(ctx), resetRole) {
		return Fail[*sequence.NumberSequence](ierr.NewError("insufficient role for sequence reset").
			WithHintf("Resetting a sequence requires the %s role or higher", resetRole).
			Mark(ierr.ErrPermissionDenied))
	}

	op := Operation{
		Permission: types.PermissionSequenceReset,
		Action:     types.AuditActionUpdate,
		EntityType: sequenceEntityType,
		Metadata:   map[string]any{"sequence_code": code, "reset": true},
	}

	return Execute[*sequence.NumberSequence](ctx, s.ServiceParams, s.recorder, op, func(ctx context.Context) (*sequence.NumberSequence, error) {
		seq, err := s.SequenceRepo.GetForUpdate(ctx, code)
		if err != nil {
			return nil, err
		}

		SetAuditOldValues(ctx, seq)

		value := seq.ResetValue
		if newValue != nil {
			value = *newValue
		}
		if value < seq.MinValue {
			return nil, ierr.NewError("reset value below minimum").
				WithHintf("Reset value %d is below the sequence minimum %d", value, seq.MinValue).
				Mark(ierr.ErrValidation)
		}

		now := time.Now().UTC()
		seq.CurrentValue = value
		seq.LastResetAt = &now

		if err := s.SequenceRepo.Save(ctx, seq); err != nil {
			return nil, err
		}

		s.invalidateDefinition(ctx, code)
		return seq, nil
	})
}

func (s *sequenceService) CreateSequence(ctx context.Context, req CreateSequenceRequest) Result[*sequence.NumberSequence] {
	op := Operation{
		Permission: types.PermissionSequenceManage,
		Action:     types.AuditActionCreate,
		EntityType: sequenceEntityType,
	}

	return Execute[*sequence.NumberSequence](ctx, s.ServiceParams, s.recorder, op, func(ctx context.Context) (*sequence.NumberSequence, error) {
		if err := validator.ValidateRequest(req); err != nil {
			return nil, err
		}

		seq, err := req.toSequence(ctx)
		if err != nil {
			return nil, err
		}

		if err := s.SequenceRepo.Create(ctx, seq); err != nil {
			return nil, err
		}

		s.invalidateDefinition(ctx, seq.Code)
		return seq, nil
	})
}

func (req CreateSequenceRequest) toSequence(ctx context.Context) (*sequence.NumberSequence, error) {
	resetMode := req.ResetMode
	if resetMode == "" {
		resetMode = types.ResetModeNever
	}
	if !resetMode.Validate() {
		return nil, ierr.NewError("invalid reset mode").
			WithHintf("Unknown reset mode %s", resetMode).
			Mark(ierr.ErrValidation)
	}
	if resetMode == types.ResetModeCustom {
		if _, ok := types.LookupPeriodFunc(req.PeriodSpec); !ok {
			return nil, ierr.NewError("unknown period spec").
				WithHintf("No custom period strategy registered under %q", req.PeriodSpec).
				Mark(ierr.ErrValidation)
		}
	}

	minValue := req.MinValue
	if minValue <= 0 {
		minValue = 1
	}
	if req.MaxValue != nil && *req.MaxValue < minValue {
		return nil, ierr.NewError("invalid bounds").
			WithHint("Maximum value must not be below the minimum value").
			Mark(ierr.ErrValidation)
	}

	resetValue := minValue
	if req.ResetValue != nil {
		resetValue = *req.ResetValue
	}
	if resetValue < minValue {
		return nil, ierr.NewError("invalid reset value").
			WithHint("Reset value must not be below the minimum value").
			Mark(ierr.ErrValidation)
	}

	step := req.Step
	if step <= 0 {
		step = 1
	}

	template := req.FormatTemplate
	if template == "" {
		template = sequence.DefaultFormatTemplate
	}

	return &sequence.NumberSequence{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SEQUENCE),
		Code:           req.Code,
		Prefix:         req.Prefix,
		Suffix:         req.Suffix,
		PaddingLength:  req.PaddingLength,
		MinValue:       minValue,
		MaxValue:       req.MaxValue,
		Step:           step,
		ResetMode:      resetMode,
		PeriodSpec:     req.PeriodSpec,
		ResetValue:     resetValue,
		FormatTemplate: template,
		CurrentValue:   minValue,
		Version:        1,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}, nil
}

// GetSequence returns the sequence definition. Definitions are cached per
// tenant; the embedded counter is informational and may lag behind
// concurrent allocations, which always read fresh state under the row lock.
func (s *sequenceService) GetSequence(ctx context.Context, code string) Result[*sequence.NumberSequence] {
	op := Operation{
		Permission: types.PermissionSequenceRead,
		Action:     types.AuditActionRead,
		EntityType: sequenceEntityType,
		Metadata:   map[string]any{"sequence_code": code},
	}

	return Execute[*sequence.NumberSequence](ctx, s.ServiceParams, s.recorder, op, func(ctx context.Context) (*sequence.NumberSequence, error) {
		key := s.definitionKey(ctx, code)
		if cached, ok := s.Cache.Get(ctx, key); ok {
			if seq, ok := cached.(*sequence.NumberSequence); ok {
				return seq, nil
			}
		}

		seq, err := s.SequenceRepo.Get(ctx, code)
		if err != nil {
			return nil, err
		}

		s.Cache.Set(ctx, key, seq, s.Config.Sequence.DefinitionCacheTTL)
		return seq, nil
	})
}

func (s *sequenceService) ListSequences(ctx context.Context, filter *sequence.Filter) Result[[]*sequence.NumberSequence] {
	op := Operation{
		Permission: types.PermissionSequenceRead,
		Action:     types.AuditActionList,
		EntityType: sequenceEntityType,
	}

	return Execute[[]*sequence.NumberSequence](ctx, s.ServiceParams, s.recorder, op, func(ctx context.Context) ([]*sequence.NumberSequence, error) {
		return s.SequenceRepo.List(ctx, filter)
	})
}

func (s *sequenceService) UpdateSequence(ctx context.Context, code string, req UpdateSequenceRequest) Result[*sequence.NumberSequence] {
	op := Operation{
		Permission: types.PermissionSequenceManage,
		Action:     types.AuditActionUpdate,
		EntityType: sequenceEntityType,
		Metadata:   map[string]any{"sequence_code": code},
	}

	return Execute[*sequence.NumberSequence](ctx, s.ServiceParams, s.recorder, op, func(ctx context.Context) (*sequence.NumberSequence, error) {
		// lock the row so a definition change cannot race an allocation
		seq, err := s.SequenceRepo.GetForUpdate(ctx, code)
		if err != nil {
			return nil, err
		}

		SetAuditOldValues(ctx, seq)

		if req.Prefix != nil {
			seq.Prefix = *req.Prefix
		}
		if req.Suffix != nil {
			seq.Suffix = *req.Suffix
		}
		if req.PaddingLength != nil {
			seq.PaddingLength = *req.PaddingLength
		}
		if req.MaxValue != nil {
			seq.MaxValue = req.MaxValue
		}
		if req.Step != nil && *req.Step > 0 {
			seq.Step = *req.Step
		}
		if req.ResetMode != nil {
			if !req.ResetMode.Validate() {
				return nil, ierr.NewError("invalid reset mode").
					WithHintf("Unknown reset mode %s", *req.ResetMode).
					Mark(ierr.ErrValidation)
			}
			seq.ResetMode = *req.ResetMode
		}
		if req.PeriodSpec != nil {
			seq.PeriodSpec = *req.PeriodSpec
		}
		if req.ResetValue != nil {
			seq.ResetValue = *req.ResetValue
		}
		if req.FormatTemplate != nil {
			seq.FormatTemplate = *req.FormatTemplate
		}

		if err := s.SequenceRepo.Update(ctx, seq); err != nil {
			return nil, err
		}

		s.invalidateDefinition(ctx, code)
		return seq, nil
	})
}

// DisableSequence soft-disables a sequence; rows are never hard-deleted
func (s *sequenceService) DisableSequence(ctx context.Context, code string) Result[*sequence.NumberSequence] {
	op := Operation{
		Permission: types.PermissionSequenceManage,
		Action:     types.AuditActionDelete,
		EntityType: sequenceEntityType,
		Metadata:   map[string]any{"sequence_code": code},
	}

	return Execute[*sequence.NumberSequence](ctx, s.ServiceParams, s.recorder, op, func(ctx context.Context) (*sequence.NumberSequence, error) {
		seq, err := s.SequenceRepo.GetForUpdate(ctx, code)
		if err != nil {
			return nil, err
		}

		SetAuditOldValues(ctx, seq)

		seq.Status = types.StatusArchived
		if err := s.SequenceRepo.Update(ctx, seq); err != nil {
			return nil, err
		}

		s.invalidateDefinition(ctx, code)
		return seq, nil
	})
}

func (s *sequenceService) definitionKey(ctx context.Context, code string) string {
	return cache.Key(cache.PrefixSequenceDefinition, types.GetTenantID(ctx), code)
}

func (s *sequenceService) invalidateDefinition(ctx context.Context, code string) {
	s.Cache.Delete(ctx, s.definitionKey(ctx, code))
}
