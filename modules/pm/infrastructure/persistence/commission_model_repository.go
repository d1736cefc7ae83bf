package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/commissionmodel"
	"github.com/maklerwerk/backoffice/pkg/composables"
)

const (
	selectModelSQL = `
		SELECT id, name, commission_rate, tl_rate, tl_basis, created_at, updated_at
		FROM pm_commission_models`

	insertModelSQL = `
		INSERT INTO pm_commission_models (name, commission_rate, tl_rate, tl_basis)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	updateModelSQL = `
		UPDATE pm_commission_models SET
			name = $2, commission_rate = $3, tl_rate = $4, tl_basis = $5,
			updated_at = now()
		WHERE id = $1`
)

type CommissionModelRepository struct{}

func NewCommissionModelRepository() commissionmodel.Repository {
	return &CommissionModelRepository{}
}

func (r *CommissionModelRepository) GetByID(ctx context.Context, id uint) (*commissionmodel.CommissionModel, error) {
	rows, err := r.query(ctx, selectModelSQL+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(commissionmodel.ErrNotFound, "id %d", id)
	}
	return rows[0], nil
}

func (r *CommissionModelRepository) GetByIDs(ctx context.Context, ids []uint) (map[uint]*commissionmodel.CommissionModel, error) {
	if len(ids) == 0 {
		return map[uint]*commissionmodel.CommissionModel{}, nil
	}
	rows, err := r.query(ctx, selectModelSQL+" WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uint]*commissionmodel.CommissionModel, len(rows))
	for _, m := range rows {
		out[m.ID] = m
	}
	return out, nil
}

func (r *CommissionModelRepository) GetAll(ctx context.Context) ([]*commissionmodel.CommissionModel, error) {
	return r.query(ctx, selectModelSQL+" ORDER BY name")
}

func (r *CommissionModelRepository) Create(ctx context.Context, m *commissionmodel.CommissionModel) (*commissionmodel.CommissionModel, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := tx.QueryRow(ctx, insertModelSQL,
		m.Name, m.CommissionRate, m.TLRate, m.TLBasis,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, errors.Wrap(err, "inserting commission model")
	}
	return m, nil
}

func (r *CommissionModelRepository) Update(ctx context.Context, m *commissionmodel.CommissionModel) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, updateModelSQL,
		m.ID, m.Name, m.CommissionRate, m.TLRate, m.TLBasis,
	)
	if err != nil {
		return errors.Wrap(err, "updating commission model")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(commissionmodel.ErrNotFound, "id %d", m.ID)
	}
	return nil
}

func (r *CommissionModelRepository) query(ctx context.Context, query string, args ...any) ([]*commissionmodel.CommissionModel, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying commission models")
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*commissionmodel.CommissionModel, error) {
		var m commissionmodel.CommissionModel
		err := row.Scan(&m.ID, &m.Name, &m.CommissionRate, &m.TLRate, &m.TLBasis, &m.CreatedAt, &m.UpdatedAt)
		return &m, err
	})
}
