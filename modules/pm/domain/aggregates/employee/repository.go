package employee

import (
	"context"

	"github.com/go-faster/errors"
)

var ErrNotFound = errors.New("employee not found")

type Repository interface {
	GetByID(ctx context.Context, id uint) (*Employee, error)
	GetByIDs(ctx context.Context, ids []uint) (map[uint]*Employee, error)
	GetAll(ctx context.Context) ([]*Employee, error)
	ListActive(ctx context.Context) ([]*Employee, error)
	ListSubordinates(ctx context.Context, teamleiterID uint) ([]*Employee, error)
	ListByModel(ctx context.Context, modelID uint) ([]*Employee, error)
	Create(ctx context.Context, e *Employee) (*Employee, error)
	Update(ctx context.Context, e *Employee) error
}
