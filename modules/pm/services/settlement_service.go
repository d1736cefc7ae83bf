package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/commission"
	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/employee"
	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/settlement"
	"github.com/maklerwerk/backoffice/pkg/composables"
	"github.com/maklerwerk/backoffice/pkg/serrors"
)

var (
	// ErrSettlementLocked rejects any mutation of a released settlement.
	ErrSettlementLocked = serrors.NewError(
		"PM_SETTLEMENT_LOCKED",
		"settlement is locked and cannot be modified",
		"",
	)
	ErrInvalidTransition = serrors.NewError(
		"PM_INVALID_TRANSITION",
		"settlement status transition is not allowed",
		"",
	)
)

// SettlementService aggregates matched commissions into revisioned monthly
// statements and drives their release workflow.
type SettlementService struct {
	settlements settlement.Repository
	commissions commission.Repository
	employees   employee.Repository
	audit       AuditSink
	log         *logrus.Logger
}

func NewSettlementService(
	settlements settlement.Repository,
	commissions commission.Repository,
	employees employee.Repository,
	audit AuditSink,
	log *logrus.Logger,
) *SettlementService {
	return &SettlementService{
		settlements: settlements,
		commissions: commissions,
		employees:   employees,
		audit:       audit,
		log:         log,
	}
}

// Generate aggregates the month's matched commissions into one new settlement
// revision per advisor. With an empty employee set the full active roster is
// covered. Advisors without commissions in the month are skipped, as are
// pairs whose current revision is locked.
func (s *SettlementService) Generate(ctx context.Context, month time.Time, employeeIDs []uint) ([]*settlement.Settlement, error) {
	month = truncateToMonth(month)

	out, err := composables.InTxResult(ctx, func(txCtx context.Context) ([]*settlement.Settlement, error) {
		roster := make(map[uint]struct{})
		if len(employeeIDs) > 0 {
			for _, id := range employeeIDs {
				roster[id] = struct{}{}
			}
		} else {
			active, err := s.employees.ListActive(txCtx)
			if err != nil {
				return nil, err
			}
			for _, e := range active {
				roster[e.ID] = struct{}{}
			}
		}

		rows, err := s.commissions.ListMatchedForMonth(txCtx, month, nil)
		if err != nil {
			return nil, err
		}
		byBerater := make(map[uint][]*commission.Commission)
		for _, row := range rows {
			if row.BeraterID == nil {
				continue
			}
			if _, ok := roster[*row.BeraterID]; !ok {
				continue
			}
			byBerater[*row.BeraterID] = append(byBerater[*row.BeraterID], row)
		}

		generated := make([]*settlement.Settlement, 0, len(byBerater))
		for beraterID, group := range byBerater {
			created, err := s.insertRevision(txCtx, month, beraterID, group)
			if err != nil {
				return nil, err
			}
			if created != nil {
				generated = append(generated, created)
			}
		}
		return generated, nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "pm.settlement_generate", "settlement_month", 0,
		fmt.Sprintf("generated %d settlements for %s", len(out), month.Format("2006-01")),
		map[string]any{"month": month.Format("2006-01"), "count": len(out)})
	return out, nil
}

// regenerateIfOpen appends a fresh revision for the pair when its current
// revision exists and is still open. Locked and released revisions stay
// untouched. Runs inside the caller's transaction.
func (s *SettlementService) regenerateIfOpen(ctx context.Context, month time.Time, beraterID uint) (bool, error) {
	month = truncateToMonth(month)

	current, err := s.settlements.CurrentFor(ctx, month, beraterID)
	if err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if current.IsLocked || !current.Status.IsOpen() {
		return false, nil
	}

	rows, err := s.commissions.ListMatchedForMonth(ctx, month, &beraterID)
	if err != nil {
		return false, err
	}
	created, err := s.insertRevision(ctx, month, beraterID, rows)
	if err != nil {
		return false, err
	}
	return created != nil, nil
}

func (s *SettlementService) insertRevision(ctx context.Context, month time.Time, beraterID uint, rows []*commission.Commission) (*settlement.Settlement, error) {
	current, err := s.settlements.CurrentFor(ctx, month, beraterID)
	if err != nil && !errors.Is(err, settlement.ErrNotFound) {
		return nil, err
	}
	if current != nil && current.IsLocked {
		s.log.Infof("pm: settlement %s/%d is locked, not superseded", month.Format("2006-01"), beraterID)
		return nil, nil
	}

	agg := aggregate(month, beraterID, rows)
	return s.settlements.Insert(ctx, agg)
}

// aggregate folds matched commissions into the settlement amounts. Positive
// rows feed brutto and the team-lead deduction; negative rows are
// chargebacks.
func aggregate(month time.Time, beraterID uint, rows []*commission.Commission) *settlement.Settlement {
	brutto := decimal.Zero
	tlAbzug := decimal.Zero
	rueckbelastungen := decimal.Zero

	for _, row := range rows {
		if row.Betrag.IsNegative() {
			rueckbelastungen = rueckbelastungen.Add(row.BeraterAnteil)
			continue
		}
		brutto = brutto.Add(row.BeraterAnteil)
		tlAbzug = tlAbzug.Add(row.TLAnteil)
	}

	netto := brutto.Sub(tlAbzug)
	return &settlement.Settlement{
		Abrechnungsmonat:  month,
		BeraterID:         beraterID,
		BruttoProvision:   brutto,
		TLAbzug:           tlAbzug,
		NettoProvision:    netto,
		Rueckbelastungen:  rueckbelastungen,
		Auszahlung:        netto.Add(rueckbelastungen),
		AnzahlProvisionen: len(rows),
		Status:            settlement.StatusBerechnet,
	}
}

// Transition moves a settlement along the release workflow. Releasing locks
// the revision against recalculation and supersession and stamps the
// releasing user; the workflow itself stays usable, so a released revision
// can still be paid out or pulled back to geprueft for review. Reopening
// clears the lock, paying out keeps it.
func (s *SettlementService) Transition(ctx context.Context, id uint, to settlement.Status) (*settlement.Settlement, error) {
	out, err := composables.InTxResult(ctx, func(txCtx context.Context) (*settlement.Settlement, error) {
		current, err := s.settlements.GetByID(txCtx, id)
		if err != nil {
			return nil, err
		}
		if !current.Status.CanTransitionTo(to) {
			if current.IsLocked {
				return nil, ErrSettlementLocked.WithDetails("settlement %d", id)
			}
			return nil, ErrInvalidTransition.WithDetails("%s -> %s", current.Status, to)
		}

		lock := current.IsLocked
		var releasedBy *uint
		var releasedAt *time.Time
		switch to {
		case settlement.StatusFreigegeben:
			actor, err := composables.UseActor(txCtx)
			if err != nil {
				return nil, err
			}
			lock = true
			releasedBy = &actor.ID
			now := time.Now().UTC()
			releasedAt = &now
		case settlement.StatusBerechnet, settlement.StatusGeprueft:
			lock = false
		}

		if err := s.settlements.Transition(txCtx, id, current.Status, to, lock, releasedBy, releasedAt); err != nil {
			return nil, err
		}
		return s.settlements.GetByID(txCtx, id)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "pm.settlement_transition", "settlement", id,
		fmt.Sprintf("settlement %d -> %s", id, to), map[string]any{"to": string(to)})
	return out, nil
}

// Current returns the highest revision per advisor for the month.
func (s *SettlementService) Current(ctx context.Context, month time.Time) ([]*settlement.Settlement, error) {
	return s.settlements.Current(ctx, truncateToMonth(month))
}

// History returns every revision for one (month, advisor) pair.
func (s *SettlementService) History(ctx context.Context, month time.Time, beraterID uint) ([]*settlement.Settlement, error) {
	return s.settlements.History(ctx, truncateToMonth(month), beraterID)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
