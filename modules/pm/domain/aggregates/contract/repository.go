package contract

import (
	"context"

	"github.com/go-faster/errors"
)

var ErrNotFound = errors.New("contract not found")

type Repository interface {
	GetByID(ctx context.Context, id uint) (*Contract, error)
	GetByIDs(ctx context.Context, ids []uint) (map[uint]*Contract, error)
	// MapByNormalizedVSNR returns, per key, the most recently created contract
	// carrying that normalized VSNR (the matching tie-break).
	MapByNormalizedVSNR(ctx context.Context, keys []string) (map[string]*Contract, error)
	// MapByNormalizedAltVSNR is the same lookup against the historical
	// alternate policy number.
	MapByNormalizedAltVSNR(ctx context.Context, keys []string) (map[string]*Contract, error)
	Create(ctx context.Context, c *Contract) (*Contract, error)
	Update(ctx context.Context, c *Contract) error
	UpdateBerater(ctx context.Context, contractID uint, beraterID uint) error
	// AdvanceToProvisionErhalten moves the given contracts to
	// provision_erhalten when their current status allows it and reports how
	// many rows changed.
	AdvanceToProvisionErhalten(ctx context.Context, ids []uint) (int64, error)
	// UpsertByXempusID inserts or updates on the external natural key so that
	// repeated imports stay idempotent.
	UpsertByXempusID(ctx context.Context, c *Contract) (*Contract, error)
}
