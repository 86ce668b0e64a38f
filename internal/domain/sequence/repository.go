package sequence

import (
	"context"

	"github.com/bizcore/bizcore/internal/types"
)

// Filter narrows List results
type Filter struct {
	Status types.Status
	Codes  []string
	Limit  int
	Offset int
}

// Repository persists number sequences. All methods run against the tenant
// bound to the open scope; implementations must not accept a caller-supplied
// tenant id.
type Repository interface {
	Create(ctx context.Context, seq *NumberSequence) error
	Get(ctx context.Context, code string) (*NumberSequence, error)
	List(ctx context.Context, filter *Filter) ([]*NumberSequence, error)
	// Update persists configuration fields (format, bounds, status)
	Update(ctx context.Context, seq *NumberSequence) error

	// GetForUpdate loads the sequence row under a row-level lock that blocks
	// concurrent allocators until the surrounding scope commits or rolls back.
	GetForUpdate(ctx context.Context, code string) (*NumberSequence, error)
	// Save persists counter state (current_value, last_reset_at) and bumps
	// the version; a stale version is a conflict.
	Save(ctx context.Context, seq *NumberSequence) error
}
