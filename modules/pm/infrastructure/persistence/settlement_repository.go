package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/settlement"
	"github.com/maklerwerk/backoffice/pkg/composables"
)

const (
	settlementColumns = `id, abrechnungsmonat, berater_id, revision,
		brutto_provision, tl_abzug, netto_provision, rueckbelastungen,
		auszahlung, anzahl_provisionen, status, is_locked,
		released_by, released_at, created_at`

	selectSettlementSQL = `SELECT ` + settlementColumns + ` FROM pm_abrechnungen`

	// insertSettlementSQL assigns the next revision atomically; concurrent
	// inserts for the same pair serialize on the unique index.
	insertSettlementSQL = `
		INSERT INTO pm_abrechnungen (
			abrechnungsmonat, berater_id, revision,
			brutto_provision, tl_abzug, netto_provision, rueckbelastungen,
			auszahlung, anzahl_provisionen, status
		)
		SELECT $1, $2, COALESCE(MAX(revision), 0) + 1, $3, $4, $5, $6, $7, $8, $9
		FROM pm_abrechnungen
		WHERE abrechnungsmonat = $1 AND berater_id = $2
		RETURNING id, revision, created_at`

	currentSettlementsSQL = `
		SELECT DISTINCT ON (berater_id) ` + settlementColumns + `
		FROM pm_abrechnungen
		WHERE abrechnungsmonat = $1
		ORDER BY berater_id, revision DESC`

	// transitionSettlementSQL is guarded by the current status so that
	// concurrent transitions cannot race past the state machine. The lock
	// flag is set outright; the service decides whether releasing sets it or
	// reopening clears it. Release stamps survive a reopen.
	transitionSettlementSQL = `
		UPDATE pm_abrechnungen SET
			status = $3,
			is_locked = $4,
			released_by = COALESCE($5, released_by),
			released_at = COALESCE($6, released_at)
		WHERE id = $1 AND status = $2`
)

type SettlementRepository struct{}

func NewSettlementRepository() settlement.Repository {
	return &SettlementRepository{}
}

func (r *SettlementRepository) GetByID(ctx context.Context, id uint) (*settlement.Settlement, error) {
	rows, err := r.query(ctx, selectSettlementSQL+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(settlement.ErrNotFound, "id %d", id)
	}
	return rows[0], nil
}

func (r *SettlementRepository) Insert(ctx context.Context, s *settlement.Settlement) (*settlement.Settlement, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := tx.QueryRow(ctx, insertSettlementSQL,
		s.Abrechnungsmonat, s.BeraterID,
		s.BruttoProvision, s.TLAbzug, s.NettoProvision, s.Rueckbelastungen,
		s.Auszahlung, s.AnzahlProvisionen, s.Status,
	).Scan(&s.ID, &s.Revision, &s.CreatedAt); err != nil {
		return nil, errors.Wrap(err, "inserting settlement revision")
	}
	return s, nil
}

func (r *SettlementRepository) Current(ctx context.Context, month time.Time) ([]*settlement.Settlement, error) {
	return r.query(ctx, currentSettlementsSQL, month)
}

func (r *SettlementRepository) CurrentFor(ctx context.Context, month time.Time, beraterID uint) (*settlement.Settlement, error) {
	rows, err := r.query(ctx,
		selectSettlementSQL+` WHERE abrechnungsmonat = $1 AND berater_id = $2 ORDER BY revision DESC LIMIT 1`,
		month, beraterID,
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(settlement.ErrNotFound, "month %s berater %d", month.Format("2006-01"), beraterID)
	}
	return rows[0], nil
}

func (r *SettlementRepository) History(ctx context.Context, month time.Time, beraterID uint) ([]*settlement.Settlement, error) {
	return r.query(ctx,
		selectSettlementSQL+` WHERE abrechnungsmonat = $1 AND berater_id = $2 ORDER BY revision`,
		month, beraterID,
	)
}

func (r *SettlementRepository) Transition(ctx context.Context, id uint, from, to settlement.Status, lock bool, releasedBy *uint, releasedAt *time.Time) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, transitionSettlementSQL, id, from, to, lock, releasedBy, releasedAt)
	if err != nil {
		return errors.Wrap(err, "transitioning settlement")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(settlement.ErrNotFound, "id %d in status %s", id, from)
	}
	return nil
}

func (r *SettlementRepository) query(ctx context.Context, query string, args ...any) ([]*settlement.Settlement, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying settlements")
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*settlement.Settlement, error) {
		var s settlement.Settlement
		err := row.Scan(
			&s.ID, &s.Abrechnungsmonat, &s.BeraterID, &s.Revision,
			&s.BruttoProvision, &s.TLAbzug, &s.NettoProvision, &s.Rueckbelastungen,
			&s.Auszahlung, &s.AnzahlProvisionen, &s.Status, &s.IsLocked,
			&s.ReleasedBy, &s.ReleasedAt, &s.CreatedAt,
		)
		return &s, err
	})
}
