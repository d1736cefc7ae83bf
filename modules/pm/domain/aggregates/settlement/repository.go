package settlement

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var ErrNotFound = errors.New("settlement not found")

type Repository interface {
	GetByID(ctx context.Context, id uint) (*Settlement, error)
	// Insert appends a new revision; the repository assigns
	// previous_max_revision + 1 for the (month, advisor) pair.
	Insert(ctx context.Context, s *Settlement) (*Settlement, error)
	// Current returns the highest revision per advisor for the month.
	Current(ctx context.Context, month time.Time) ([]*Settlement, error)
	// CurrentFor returns the highest revision for one (month, advisor) pair,
	// ErrNotFound when none exists.
	CurrentFor(ctx context.Context, month time.Time, beraterID uint) (*Settlement, error)
	// History returns every revision for the pair, oldest first.
	History(ctx context.Context, month time.Time, beraterID uint) ([]*Settlement, error)
	// Transition moves a settlement from its expected current status. The
	// update is guarded by status and lock flag in SQL so that concurrent
	// transitions cannot race past the state machine.
	Transition(ctx context.Context, id uint, from, to Status, lock bool, releasedBy *uint, releasedAt *time.Time) error
}
