package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/employee"
	"github.com/maklerwerk/backoffice/pkg/composables"
)

const (
	selectEmployeeSQL = `
		SELECT id, name, role, commission_model_id, commission_rate_override,
		       teamleiter_id, tl_override_rate, tl_override_basis, is_active,
		       created_at, updated_at
		FROM pm_employees`

	insertEmployeeSQL = `
		INSERT INTO pm_employees (
			name, role, commission_model_id, commission_rate_override,
			teamleiter_id, tl_override_rate, tl_override_basis, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	updateEmployeeSQL = `
		UPDATE pm_employees SET
			name = $2, role = $3, commission_model_id = $4,
			commission_rate_override = $5, teamleiter_id = $6,
			tl_override_rate = $7, tl_override_basis = $8, is_active = $9,
			updated_at = now()
		WHERE id = $1`
)

type EmployeeRepository struct{}

func NewEmployeeRepository() employee.Repository {
	return &EmployeeRepository{}
}

func (r *EmployeeRepository) GetByID(ctx context.Context, id uint) (*employee.Employee, error) {
	rows, err := r.query(ctx, selectEmployeeSQL+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(employee.ErrNotFound, "id %d", id)
	}
	return rows[0], nil
}

func (r *EmployeeRepository) GetByIDs(ctx context.Context, ids []uint) (map[uint]*employee.Employee, error) {
	if len(ids) == 0 {
		return map[uint]*employee.Employee{}, nil
	}
	rows, err := r.query(ctx, selectEmployeeSQL+" WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uint]*employee.Employee, len(rows))
	for _, e := range rows {
		out[e.ID] = e
	}
	return out, nil
}

func (r *EmployeeRepository) GetAll(ctx context.Context) ([]*employee.Employee, error) {
	return r.query(ctx, selectEmployeeSQL+" ORDER BY name")
}

func (r *EmployeeRepository) ListActive(ctx context.Context) ([]*employee.Employee, error) {
	return r.query(ctx, selectEmployeeSQL+" WHERE is_active ORDER BY name")
}

func (r *EmployeeRepository) ListSubordinates(ctx context.Context, teamleiterID uint) ([]*employee.Employee, error) {
	return r.query(ctx, selectEmployeeSQL+" WHERE teamleiter_id = $1 ORDER BY name", teamleiterID)
}

func (r *EmployeeRepository) ListByModel(ctx context.Context, modelID uint) ([]*employee.Employee, error) {
	return r.query(ctx, selectEmployeeSQL+" WHERE commission_model_id = $1 ORDER BY name", modelID)
}

func (r *EmployeeRepository) Create(ctx context.Context, e *employee.Employee) (*employee.Employee, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := tx.QueryRow(ctx, insertEmployeeSQL,
		e.Name, e.Role, e.CommissionModelID, e.CommissionRateOverride,
		e.TeamleiterID, e.TLOverrideRate, e.TLOverrideBasis, e.IsActive,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, errors.Wrap(err, "inserting employee")
	}
	return e, nil
}

func (r *EmployeeRepository) Update(ctx context.Context, e *employee.Employee) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, updateEmployeeSQL,
		e.ID, e.Name, e.Role, e.CommissionModelID, e.CommissionRateOverride,
		e.TeamleiterID, e.TLOverrideRate, e.TLOverrideBasis, e.IsActive,
	)
	if err != nil {
		return errors.Wrap(err, "updating employee")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(employee.ErrNotFound, "id %d", e.ID)
	}
	return nil
}

func (r *EmployeeRepository) query(ctx context.Context, query string, args ...any) ([]*employee.Employee, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying employees")
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*employee.Employee, error) {
		var e employee.Employee
		err := row.Scan(
			&e.ID, &e.Name, &e.Role, &e.CommissionModelID, &e.CommissionRateOverride,
			&e.TeamleiterID, &e.TLOverrideRate, &e.TLOverrideBasis, &e.IsActive,
			&e.CreatedAt, &e.UpdatedAt,
		)
		return &e, err
	})
}
