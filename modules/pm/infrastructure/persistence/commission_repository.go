package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/commission"
	"github.com/maklerwerk/backoffice/pkg/composables"
)

const (
	commissionColumns = `id, vsnr, vsnr_normalized, betrag, art, auszahlungsdatum,
		vermittler_name, vermittler_name_normalized,
		contract_id, berater_id, xempus_consultation_id,
		match_status, match_confidence,
		berater_anteil, tl_anteil, ag_anteil,
		row_hash, import_batch_id, version, created_at, updated_at`

	selectCommissionSQL = `SELECT ` + commissionColumns + ` FROM pm_commissions`

	insertCommissionSQL = `
		INSERT INTO pm_commissions (
			vsnr, vsnr_normalized, betrag, art, auszahlungsdatum,
			vermittler_name, vermittler_name_normalized,
			match_status, row_hash, import_batch_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (row_hash) DO NOTHING`

	// updateMatchSQL carries the optimistic version check; zero rows affected
	// means a concurrent writer moved the row first.
	updateMatchSQL = `
		UPDATE pm_commissions SET
			contract_id = $2, berater_id = $3, xempus_consultation_id = $4,
			match_status = $5, match_confidence = $6,
			berater_anteil = $7, tl_anteil = $8, ag_anteil = $9,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $10`

	// bulkUpdateMatchSQL runs inside the pass transaction, so no version check
	// applies; the version still advances for later manual matches.
	bulkUpdateMatchSQL = `
		UPDATE pm_commissions SET
			contract_id = $2, berater_id = $3, xempus_consultation_id = $4,
			match_status = $5, match_confidence = $6,
			berater_anteil = $7, tl_anteil = $8, ag_anteil = $9,
			version = version + 1, updated_at = now()
		WHERE id = $1`

	setBeraterForContractSQL = `
		UPDATE pm_commissions SET
			berater_id = $2, version = version + 1, updated_at = now()
		WHERE contract_id = $1`

	listVermittlerNamesSQL = `
		SELECT DISTINCT vermittler_name, vermittler_name_normalized
		FROM pm_commissions
		WHERE vermittler_name <> ''`
)

type CommissionRepository struct{}

func NewCommissionRepository() commission.Repository {
	return &CommissionRepository{}
}

func (r *CommissionRepository) GetByID(ctx context.Context, id uint) (*commission.Commission, error) {
	rows, err := r.query(ctx, selectCommissionSQL+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(commission.ErrNotFound, "id %d", id)
	}
	return rows[0], nil
}

func (r *CommissionRepository) ListUnmatched(ctx context.Context, scope commission.Scope) ([]*commission.Commission, error) {
	where, args, ok := scopeFilter(scope, 2)
	if !ok {
		return nil, nil
	}
	query := selectCommissionSQL + " WHERE match_status = $1" + where + " ORDER BY id"
	return r.query(ctx, query, append([]any{commission.MatchUnmatched}, args...)...)
}

func (r *CommissionRepository) ListMatched(ctx context.Context, scope commission.Scope) ([]*commission.Commission, error) {
	where, args, ok := scopeFilter(scope, 3)
	if !ok {
		return nil, nil
	}
	query := selectCommissionSQL + " WHERE match_status IN ($1, $2)" + where + " ORDER BY id"
	return r.query(ctx, query, append([]any{commission.MatchAuto, commission.MatchManual}, args...)...)
}

func (r *CommissionRepository) ListUnmatchedByVSNR(ctx context.Context, vsnrNormalized string) ([]*commission.Commission, error) {
	return r.query(ctx,
		selectCommissionSQL+" WHERE match_status = $1 AND vsnr_normalized = $2 ORDER BY id",
		commission.MatchUnmatched, vsnrNormalized,
	)
}

func (r *CommissionRepository) ListMatchedForMonth(ctx context.Context, month time.Time, beraterID *uint) ([]*commission.Commission, error) {
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	query := selectCommissionSQL + `
		WHERE match_status IN ($1, $2)
		  AND auszahlungsdatum >= $3 AND auszahlungsdatum < $4`
	args := []any{commission.MatchAuto, commission.MatchManual, from, to}
	if beraterID != nil {
		query += " AND berater_id = $5"
		args = append(args, *beraterID)
	}
	return r.query(ctx, query+" ORDER BY id", args...)
}

func (r *CommissionRepository) ListByContract(ctx context.Context, contractID uint) ([]*commission.Commission, error) {
	return r.query(ctx, selectCommissionSQL+" WHERE contract_id = $1 ORDER BY id", contractID)
}

func (r *CommissionRepository) UpdateMatch(ctx context.Context, c *commission.Commission) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, updateMatchSQL,
		c.ID, c.ContractID, c.BeraterID, c.XempusConsultationID,
		c.MatchStatus, c.MatchConfidence,
		c.BeraterAnteil, c.TLAnteil, c.AGAnteil,
		c.Version,
	)
	if err != nil {
		return errors.Wrap(err, "updating commission match")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(commission.ErrVersionConflict, "id %d version %d", c.ID, c.Version)
	}
	c.Version++
	return nil
}

func (r *CommissionRepository) BulkUpdateMatches(ctx context.Context, rows []*commission.Commission) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for _, c := range rows {
		batch.Queue(bulkUpdateMatchSQL,
			c.ID, c.ContractID, c.BeraterID, c.XempusConsultationID,
			c.MatchStatus, c.MatchConfidence,
			c.BeraterAnteil, c.TLAnteil, c.AGAnteil,
		)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	var affected int64
	for range rows {
		tag, err := results.Exec()
		if err != nil {
			return affected, errors.Wrap(err, "bulk updating commission matches")
		}
		affected += tag.RowsAffected()
	}
	return affected, nil
}

func (r *CommissionRepository) SetBeraterForContract(ctx context.Context, contractID uint, beraterID uint) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, setBeraterForContractSQL, contractID, beraterID)
	if err != nil {
		return 0, errors.Wrap(err, "syncing berater to commissions")
	}
	return tag.RowsAffected(), nil
}

func (r *CommissionRepository) InsertBatch(ctx context.Context, rows []*commission.Commission, batchID uuid.UUID) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for _, c := range rows {
		batch.Queue(insertCommissionSQL,
			c.VSNR, c.VSNRNormalized, c.Betrag, c.Art, c.Auszahlungsdatum,
			c.VermittlerName, c.VermittlerNameNormalized,
			commission.MatchUnmatched, c.RowHash, batchID,
		)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range rows {
		tag, err := results.Exec()
		if err != nil {
			return inserted, errors.Wrap(err, "inserting commission batch")
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

func (r *CommissionRepository) ListVermittlerNames(ctx context.Context) (map[string]string, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, listVermittlerNamesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "querying vermittler names")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, normalized string
		if err := rows.Scan(&name, &normalized); err != nil {
			return nil, err
		}
		out[name] = normalized
	}
	return out, rows.Err()
}

// scopeFilter renders the scope as an AND clause starting at the given
// placeholder position. The third return is false when the scope cannot match
// any row.
func scopeFilter(scope commission.Scope, argPos int) (string, []any, bool) {
	switch s := scope.(type) {
	case commission.ScopeAll:
		return "", nil, true
	case commission.ScopeBatch:
		return fmt.Sprintf(" AND import_batch_id = $%d", argPos), []any{s.BatchID}, true
	case commission.ScopeEmployees:
		if len(s.EmployeeIDs) == 0 {
			return "", nil, false
		}
		clause := fmt.Sprintf(" AND berater_id = ANY($%d)", argPos)
		args := []any{s.EmployeeIDs}
		if s.EffectiveFrom != nil {
			clause += fmt.Sprintf(" AND auszahlungsdatum >= $%d", argPos+1)
			args = append(args, *s.EffectiveFrom)
		}
		return clause, args, true
	default:
		return "", nil, false
	}
}

func (r *CommissionRepository) query(ctx context.Context, query string, args ...any) ([]*commission.Commission, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying commissions")
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*commission.Commission, error) {
		var c commission.Commission
		err := row.Scan(
			&c.ID, &c.VSNR, &c.VSNRNormalized, &c.Betrag, &c.Art, &c.Auszahlungsdatum,
			&c.VermittlerName, &c.VermittlerNameNormalized,
			&c.ContractID, &c.BeraterID, &c.XempusConsultationID,
			&c.MatchStatus, &c.MatchConfidence,
			&c.BeraterAnteil, &c.TLAnteil, &c.AGAnteil,
			&c.RowHash, &c.ImportBatchID, &c.Version, &c.CreatedAt, &c.UpdatedAt,
		)
		return &c, err
	})
}
