package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/vermittlermapping"
	"github.com/maklerwerk/backoffice/pkg/composables"
)

const (
	selectMappingSQL = `
		SELECT id, vermittler_name_normalized, berater_id, created_at, updated_at
		FROM pm_vermittler_mappings`

	upsertMappingSQL = `
		INSERT INTO pm_vermittler_mappings (vermittler_name_normalized, berater_id)
		VALUES ($1, $2)
		ON CONFLICT (vermittler_name_normalized) DO UPDATE SET
			berater_id = EXCLUDED.berater_id,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	// listUnmappedSQL surfaces statement broker names without a mapping,
	// busiest first.
	listUnmappedSQL = `
		SELECT MIN(c.vermittler_name), c.vermittler_name_normalized, COUNT(*)
		FROM pm_commissions c
		LEFT JOIN pm_vermittler_mappings m
			ON m.vermittler_name_normalized = c.vermittler_name_normalized
		WHERE c.vermittler_name <> '' AND m.id IS NULL
		GROUP BY c.vermittler_name_normalized
		ORDER BY COUNT(*) DESC`
)

type VermittlerMappingRepository struct{}

func NewVermittlerMappingRepository() vermittlermapping.Repository {
	return &VermittlerMappingRepository{}
}

func (r *VermittlerMappingRepository) MapByNames(ctx context.Context, normalizedNames []string) (map[string]uint, error) {
	if len(normalizedNames) == 0 {
		return map[string]uint{}, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx,
		selectMappingSQL+" WHERE vermittler_name_normalized = ANY($1)",
		normalizedNames,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying vermittler mappings")
	}
	defer rows.Close()

	out := make(map[string]uint)
	for rows.Next() {
		var m vermittlermapping.Mapping
		if err := rows.Scan(&m.ID, &m.VermittlerNameNormalized, &m.BeraterID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out[m.VermittlerNameNormalized] = m.BeraterID
	}
	return out, rows.Err()
}

func (r *VermittlerMappingRepository) GetAll(ctx context.Context) ([]*vermittlermapping.Mapping, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, selectMappingSQL+" ORDER BY vermittler_name_normalized")
	if err != nil {
		return nil, errors.Wrap(err, "querying vermittler mappings")
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*vermittlermapping.Mapping, error) {
		var m vermittlermapping.Mapping
		err := row.Scan(&m.ID, &m.VermittlerNameNormalized, &m.BeraterID, &m.CreatedAt, &m.UpdatedAt)
		return &m, err
	})
}

func (r *VermittlerMappingRepository) Upsert(ctx context.Context, m *vermittlermapping.Mapping) (*vermittlermapping.Mapping, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := tx.QueryRow(ctx, upsertMappingSQL,
		m.VermittlerNameNormalized, m.BeraterID,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, errors.Wrap(err, "upserting vermittler mapping")
	}
	return m, nil
}

func (r *VermittlerMappingRepository) Delete(ctx context.Context, id uint) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, "DELETE FROM pm_vermittler_mappings WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting vermittler mapping")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(vermittlermapping.ErrNotFound, "id %d", id)
	}
	return nil
}

func (r *VermittlerMappingRepository) ListUnmapped(ctx context.Context) ([]*vermittlermapping.UnmappedName, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, listUnmappedSQL)
	if err != nil {
		return nil, errors.Wrap(err, "querying unmapped vermittler names")
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*vermittlermapping.UnmappedName, error) {
		var u vermittlermapping.UnmappedName
		err := row.Scan(&u.VermittlerName, &u.Normalized, &u.RowCount)
		return &u, err
	})
}
