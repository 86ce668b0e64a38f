package sequence

import (
	"fmt"
	"strings"
	"time"

	"github.com/bizcore/bizcore/internal/types"
)

// Format template tokens. Unknown tokens are passed through literally.
const (
	TokenPrefix = "{prefix}"
	TokenNumber = "{number}"
	TokenSuffix = "{suffix}"

	DefaultFormatTemplate = "{prefix}-{number}"
)

// NumberSequence is the per-tenant configuration and live counter behind
// formatted document numbers (invoice numbers, estimate numbers, ...).
// The counter is only ever advanced through the allocator inside a tenant
// scope; it is never cached in process and never hard-deleted.
type NumberSequence struct {
	ID             string          `db:"id" json:"id"`
	Code           string          `db:"code" json:"code"`
	Prefix         string          `db:"prefix" json:"prefix"`
	Suffix         string          `db:"suffix" json:"suffix"`
	PaddingLength  int             `db:"padding_length" json:"padding_length"`
	MinValue       int64           `db:"min_value" json:"min_value"`
	MaxValue       *int64          `db:"max_value" json:"max_value,omitempty"`
	Step           int64           `db:"step" json:"step"`
	ResetMode      types.ResetMode `db:"reset_mode" json:"reset_mode"`
	PeriodSpec     string          `db:"period_spec" json:"period_spec,omitempty"`
	ResetValue     int64           `db:"reset_value" json:"reset_value"`
	FormatTemplate string          `db:"format_template" json:"format_template"`
	CurrentValue   int64           `db:"current_value" json:"current_value"`
	LastResetAt    *time.Time      `db:"last_reset_at" json:"last_reset_at,omitempty"`
	Version        int64           `db:"version" json:"version"`

	types.BaseModel
}

// GetID implements the audited-entity contract
func (s *NumberSequence) GetID() string {
	return s.ID
}

// Format renders a raw counter value through the sequence's template.
// Only {prefix}, {number} and {suffix} are recognized; anything else in the
// template is kept as-is.
func (s *NumberSequence) Format(n int64) string {
	template := s.FormatTemplate
	if template == "" {
		template = DefaultFormatTemplate
	}

	number := fmt.Sprintf("%d", n)
	if s.PaddingLength > 0 {
		number = fmt.Sprintf("%0*d", s.PaddingLength, n)
	}

	return strings.NewReplacer(
		TokenPrefix, s.Prefix,
		TokenNumber, number,
		TokenSuffix, s.Suffix,
	).Replace(template)
}

// PeriodChanged reports whether now falls in a different reset period than
// the last reset. Sequences that were never reset measure from creation.
func (s *NumberSequence) PeriodChanged(now time.Time) (bool, error) {
	if s.ResetMode == types.ResetModeNever || s.ResetMode == "" {
		return false, nil
	}

	currentKey, err := types.PeriodKey(s.ResetMode, s.PeriodSpec, now)
	if err != nil {
		return false, err
	}

	baseline := s.CreatedAt
	if s.LastResetAt != nil {
		baseline = *s.LastResetAt
	}

	lastKey, err := types.PeriodKey(s.ResetMode, s.PeriodSpec, baseline)
	if err != nil {
		return false, err
	}

	return currentKey != lastKey, nil
}

// Exhausted reports whether allocating value would exceed the configured
// upper bound.
func (s *NumberSequence) Exhausted(value int64) bool {
	return s.MaxValue != nil && value > *s.MaxValue
}
