package commissionmodel

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/maklerwerk/backoffice/modules/pm/domain/split"
)

var ErrNotFound = errors.New("commission model not found")

// CommissionModel bundles default rates shared by a group of employees.
// TLRate/TLBasis are inherited defaults; the per-employee override fields
// win when set.
type CommissionModel struct {
	ID             uint
	Name           string
	CommissionRate decimal.Decimal
	TLRate         *decimal.Decimal
	TLBasis        *split.Basis
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UpdatedEvent is published after a model edit has been committed.
// RateAffecting edits cascade a recalculation over every employee referencing
// the model.
type UpdatedEvent struct {
	Model         *CommissionModel
	RateAffecting bool
}

type Repository interface {
	GetByID(ctx context.Context, id uint) (*CommissionModel, error)
	GetByIDs(ctx context.Context, ids []uint) (map[uint]*CommissionModel, error)
	GetAll(ctx context.Context) ([]*CommissionModel, error)
	Create(ctx context.Context, m *CommissionModel) (*CommissionModel, error)
	Update(ctx context.Context, m *CommissionModel) error
}
