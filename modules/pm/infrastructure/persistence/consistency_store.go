package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/maklerwerk/backoffice/modules/pm/services"
	"github.com/maklerwerk/backoffice/pkg/composables"
)

const (
	splitSumViolationsSQL = `
		SELECT id FROM pm_commissions
		WHERE match_status IN ('auto_matched', 'manual_matched')
		  AND ABS(betrag - (berater_anteil + tl_anteil + ag_anteil)) > $1
		ORDER BY id`

	matchedMissingContractSQL = `
		SELECT id FROM pm_commissions
		WHERE match_status = 'auto_matched' AND contract_id IS NULL
		ORDER BY id`

	matchedMissingBeraterSQL = `
		SELECT id FROM pm_commissions
		WHERE match_status IN ('auto_matched', 'manual_matched') AND berater_id IS NULL
		ORDER BY id`

	unknownMatchStatusesSQL = `
		SELECT id FROM pm_commissions
		WHERE match_status NOT IN ('unmatched', 'auto_matched', 'manual_matched', 'ignored')
		ORDER BY id`

	orphanContractRefsSQL = `
		SELECT c.id FROM pm_commissions c
		LEFT JOIN pm_contracts ct ON ct.id = c.contract_id
		WHERE c.contract_id IS NOT NULL AND ct.id IS NULL
		ORDER BY c.id`

	orphanBeraterRefsSQL = `
		SELECT c.id FROM pm_commissions c
		LEFT JOIN pm_employees e ON e.id = c.berater_id
		WHERE c.berater_id IS NOT NULL AND e.id IS NULL
		ORDER BY c.id`

	duplicateRowHashesSQL = `
		SELECT row_hash FROM pm_commissions
		GROUP BY row_hash
		HAVING COUNT(*) > 1
		ORDER BY row_hash`

	negativeAmountsSQL = `
		SELECT id FROM pm_commissions
		WHERE betrag < 0
		ORDER BY id`
)

// ConsistencyStore runs the gate's read-only queries against the live tables.
type ConsistencyStore struct{}

func NewConsistencyStore() services.ConsistencyStore {
	return &ConsistencyStore{}
}

func (s *ConsistencyStore) SplitSumViolations(ctx context.Context, tolerance decimal.Decimal, limit int) ([]uint, int64, error) {
	return s.queryIDs(ctx, splitSumViolationsSQL, limit, tolerance)
}

func (s *ConsistencyStore) MatchedMissingContract(ctx context.Context, limit int) ([]uint, int64, error) {
	return s.queryIDs(ctx, matchedMissingContractSQL, limit)
}

func (s *ConsistencyStore) MatchedMissingBerater(ctx context.Context, limit int) ([]uint, int64, error) {
	return s.queryIDs(ctx, matchedMissingBeraterSQL, limit)
}

func (s *ConsistencyStore) UnknownMatchStatuses(ctx context.Context, limit int) ([]uint, int64, error) {
	return s.queryIDs(ctx, unknownMatchStatusesSQL, limit)
}

func (s *ConsistencyStore) OrphanContractRefs(ctx context.Context, limit int) ([]uint, int64, error) {
	return s.queryIDs(ctx, orphanContractRefsSQL, limit)
}

func (s *ConsistencyStore) OrphanBeraterRefs(ctx context.Context, limit int) ([]uint, int64, error) {
	return s.queryIDs(ctx, orphanBeraterRefsSQL, limit)
}

func (s *ConsistencyStore) DuplicateRowHashes(ctx context.Context, limit int) ([]string, int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, 0, err
	}
	rows, err := tx.Query(ctx, duplicateRowHashesSQL)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying duplicate row hashes")
	}
	defer rows.Close()

	var hashes []string
	var total int64
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, 0, err
		}
		total++
		if len(hashes) < limit {
			hashes = append(hashes, h)
		}
	}
	return hashes, total, rows.Err()
}

func (s *ConsistencyStore) NegativeAmounts(ctx context.Context, limit int) ([]uint, int64, error) {
	return s.queryIDs(ctx, negativeAmountsSQL, limit)
}

func (s *ConsistencyStore) queryIDs(ctx context.Context, query string, limit int, args ...any) ([]uint, int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, 0, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying consistency violations")
	}
	defer rows.Close()

	var ids []uint
	var total int64
	for rows.Next() {
		var id uint
		if err := rows.Scan(&id); err != nil {
			return nil, 0, err
		}
		total++
		if len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, total, rows.Err()
}
