package actionlog

import (
	"context"
	"encoding/json"
	"time"
)

// ActionLog is one audit trail entry. Details carries the operation's
// structured payload as JSON.
type ActionLog struct {
	ID          uint
	UserID      *uint
	Action      string
	EntityType  string
	EntityID    uint
	Description string
	Details     json.RawMessage
	CreatedAt   time.Time
}

type FindParams struct {
	UserID     *uint
	Action     string
	EntityType string
	EntityID   *uint
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

type Repository interface {
	List(ctx context.Context, params *FindParams) ([]*ActionLog, error)
	Count(ctx context.Context, params *FindParams) (int64, error)
	Create(ctx context.Context, log *ActionLog) error
}
