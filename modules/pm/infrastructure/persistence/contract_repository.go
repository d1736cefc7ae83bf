package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/contract"
	"github.com/maklerwerk/backoffice/pkg/composables"
)

const (
	selectContractSQL = `
		SELECT id, vsnr, vsnr_normalized, vsnr_alt, vsnr_alt_normalized,
		       versicherungsnehmer, versicherungsnehmer_normalized,
		       berater_id, berater_name, status, source, xempus_id,
		       created_at, updated_at
		FROM pm_contracts`

	insertContractSQL = `
		INSERT INTO pm_contracts (
			vsnr, vsnr_normalized, vsnr_alt, vsnr_alt_normalized,
			versicherungsnehmer, versicherungsnehmer_normalized,
			berater_id, berater_name, status, source, xempus_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	updateContractSQL = `
		UPDATE pm_contracts SET
			vsnr = $2, vsnr_normalized = $3, vsnr_alt = $4, vsnr_alt_normalized = $5,
			versicherungsnehmer = $6, versicherungsnehmer_normalized = $7,
			berater_id = $8, berater_name = $9, status = $10,
			updated_at = now()
		WHERE id = $1`

	// The DISTINCT ON picks the most recently created contract per key, the
	// matching tie-break for reused policy numbers.
	mapContractsByVSNRSQL = `
		SELECT DISTINCT ON (vsnr_normalized) ` + contractColumns + `
		FROM pm_contracts
		WHERE vsnr_normalized = ANY($1)
		ORDER BY vsnr_normalized, created_at DESC, id DESC`

	mapContractsByAltVSNRSQL = `
		SELECT DISTINCT ON (vsnr_alt_normalized) ` + contractColumns + `
		FROM pm_contracts
		WHERE vsnr_alt_normalized = ANY($1) AND vsnr_alt_normalized <> ''
		ORDER BY vsnr_alt_normalized, created_at DESC, id DESC`

	advanceContractsSQL = `
		UPDATE pm_contracts
		SET status = 'provision_erhalten', updated_at = now()
		WHERE id = ANY($1) AND status IN ('offen', 'beantragt', 'abgeschlossen')`

	upsertContractByXempusSQL = `
		INSERT INTO pm_contracts (
			vsnr, vsnr_normalized, vsnr_alt, vsnr_alt_normalized,
			versicherungsnehmer, versicherungsnehmer_normalized,
			berater_id, berater_name, status, source, xempus_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (xempus_id) WHERE xempus_id <> '' DO UPDATE SET
			vsnr = EXCLUDED.vsnr,
			vsnr_normalized = EXCLUDED.vsnr_normalized,
			vsnr_alt = EXCLUDED.vsnr_alt,
			vsnr_alt_normalized = EXCLUDED.vsnr_alt_normalized,
			versicherungsnehmer = EXCLUDED.versicherungsnehmer,
			versicherungsnehmer_normalized = EXCLUDED.versicherungsnehmer_normalized,
			berater_name = EXCLUDED.berater_name,
			status = EXCLUDED.status,
			updated_at = now()
		RETURNING id, created_at, updated_at`
)

const contractColumns = `id, vsnr, vsnr_normalized, vsnr_alt, vsnr_alt_normalized,
	versicherungsnehmer, versicherungsnehmer_normalized,
	berater_id, berater_name, status, source, xempus_id, created_at, updated_at`

type ContractRepository struct{}

func NewContractRepository() contract.Repository {
	return &ContractRepository{}
}

func (r *ContractRepository) GetByID(ctx context.Context, id uint) (*contract.Contract, error) {
	rows, err := r.query(ctx, selectContractSQL+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(contract.ErrNotFound, "id %d", id)
	}
	return rows[0], nil
}

func (r *ContractRepository) GetByIDs(ctx context.Context, ids []uint) (map[uint]*contract.Contract, error) {
	if len(ids) == 0 {
		return map[uint]*contract.Contract{}, nil
	}
	rows, err := r.query(ctx, selectContractSQL+" WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uint]*contract.Contract, len(rows))
	for _, c := range rows {
		out[c.ID] = c
	}
	return out, nil
}

func (r *ContractRepository) MapByNormalizedVSNR(ctx context.Context, keys []string) (map[string]*contract.Contract, error) {
	return r.queryKeyed(ctx, mapContractsByVSNRSQL, keys, func(c *contract.Contract) string {
		return c.VSNRNormalized
	})
}

func (r *ContractRepository) MapByNormalizedAltVSNR(ctx context.Context, keys []string) (map[string]*contract.Contract, error) {
	return r.queryKeyed(ctx, mapContractsByAltVSNRSQL, keys, func(c *contract.Contract) string {
		return c.VSNRAltNormalized
	})
}

func (r *ContractRepository) Create(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := tx.QueryRow(ctx, insertContractSQL,
		c.VSNR, c.VSNRNormalized, c.VSNRAlt, c.VSNRAltNormalized,
		c.Versicherungsnehmer, c.VersicherungsnehmerNormalized,
		c.BeraterID, c.BeraterName, c.Status, c.Source, c.XempusID,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, errors.Wrap(err, "inserting contract")
	}
	return c, nil
}

func (r *ContractRepository) Update(ctx context.Context, c *contract.Contract) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, updateContractSQL,
		c.ID, c.VSNR, c.VSNRNormalized, c.VSNRAlt, c.VSNRAltNormalized,
		c.Versicherungsnehmer, c.VersicherungsnehmerNormalized,
		c.BeraterID, c.BeraterName, c.Status,
	)
	if err != nil {
		return errors.Wrap(err, "updating contract")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(contract.ErrNotFound, "id %d", c.ID)
	}
	return nil
}

func (r *ContractRepository) UpdateBerater(ctx context.Context, contractID uint, beraterID uint) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE pm_contracts SET berater_id = $2, updated_at = now() WHERE id = $1`,
		contractID, beraterID,
	)
	if err != nil {
		return errors.Wrap(err, "updating contract berater")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(contract.ErrNotFound, "id %d", contractID)
	}
	return nil
}

func (r *ContractRepository) AdvanceToProvisionErhalten(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, advanceContractsSQL, ids)
	if err != nil {
		return 0, errors.Wrap(err, "advancing contract status")
	}
	return tag.RowsAffected(), nil
}

func (r *ContractRepository) UpsertByXempusID(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := tx.QueryRow(ctx, upsertContractByXempusSQL,
		c.VSNR, c.VSNRNormalized, c.VSNRAlt, c.VSNRAltNormalized,
		c.Versicherungsnehmer, c.VersicherungsnehmerNormalized,
		c.BeraterID, c.BeraterName, c.Status, c.Source, c.XempusID,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, errors.Wrap(err, "upserting contract")
	}
	return c, nil
}

func (r *ContractRepository) query(ctx context.Context, query string, args ...any) ([]*contract.Contract, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying contracts")
	}
	defer rows.Close()

	return pgx.CollectRows(rows, scanContract)
}

func (r *ContractRepository) queryKeyed(ctx context.Context, query string, keys []string, keyOf func(*contract.Contract) string) (map[string]*contract.Contract, error) {
	if len(keys) == 0 {
		return map[string]*contract.Contract{}, nil
	}
	rows, err := r.query(ctx, query, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*contract.Contract, len(rows))
	for _, c := range rows {
		out[keyOf(c)] = c
	}
	return out, nil
}

func scanContract(row pgx.CollectableRow) (*contract.Contract, error) {
	var c contract.Contract
	err := row.Scan(
		&c.ID, &c.VSNR, &c.VSNRNormalized, &c.VSNRAlt, &c.VSNRAltNormalized,
		&c.Versicherungsnehmer, &c.VersicherungsnehmerNormalized,
		&c.BeraterID, &c.BeraterName, &c.Status, &c.Source, &c.XempusID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return &c, err
}
