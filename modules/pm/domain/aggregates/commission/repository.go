package commission

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("commission not found")
	// ErrVersionConflict is returned when an optimistic update lost the race
	// against a concurrent writer.
	ErrVersionConflict = errors.New("commission was modified concurrently")
)

type Repository interface {
	GetByID(ctx context.Context, id uint) (*Commission, error)
	// ListUnmatched returns the unmatched rows in scope; ScopeEmployees is not
	// meaningful here and yields no rows.
	ListUnmatched(ctx context.Context, scope Scope) ([]*Commission, error)
	// ListMatched returns the auto/manual matched rows in scope.
	ListMatched(ctx context.Context, scope Scope) ([]*Commission, error)
	// ListUnmatchedByVSNR returns still-unmatched rows sharing a normalized
	// policy number (manual-match sibling propagation).
	ListUnmatchedByVSNR(ctx context.Context, vsnrNormalized string) ([]*Commission, error)
	// ListMatchedForMonth returns matched rows with a payout date inside the
	// given month, optionally restricted to one advisor.
	ListMatchedForMonth(ctx context.Context, month time.Time, beraterID *uint) ([]*Commission, error)
	ListByContract(ctx context.Context, contractID uint) ([]*Commission, error)
	// UpdateMatch persists match and split fields of a single row with an
	// optimistic version check; ErrVersionConflict when the row moved.
	UpdateMatch(ctx context.Context, c *Commission) error
	// BulkUpdateMatches persists match and split fields for a whole pass in
	// one batch; rows are expected to be inside the pass transaction, so no
	// version check applies.
	BulkUpdateMatches(ctx context.Context, rows []*Commission) (int64, error)
	// SetBeraterForContract rewrites the advisor on every commission
	// referencing the contract (contract sync-down) and returns the affected
	// row count.
	SetBeraterForContract(ctx context.Context, contractID uint, beraterID uint) (int64, error)
	// InsertBatch inserts rows, skipping duplicates on row_hash, and returns
	// how many were actually written.
	InsertBatch(ctx context.Context, rows []*Commission, batchID uuid.UUID) (int64, error)
	// ListVermittlerNames returns distinct raw broker names from the
	// statements together with their normalized keys.
	ListVermittlerNames(ctx context.Context) (map[string]string, error)
}
