package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/commission"
	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/employee"
	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/commissionmodel"
	"github.com/maklerwerk/backoffice/pkg/composables"
	"github.com/maklerwerk/backoffice/pkg/eventbus"
)

// RecalcResult reports one recalculation pass.
type RecalcResult struct {
	SplitsRecalculated      int
	AbrechnungenRegenerated int
	AffectedEmployees       []uint
}

type monthBerater struct {
	month     time.Time
	beraterID uint
}

// RecalcService re-derives split values at scale after rate or mapping
// changes. Re-running with unchanged inputs writes nothing and regenerates
// nothing.
type RecalcService struct {
	commissions commission.Repository
	employees   employee.Repository
	models      commissionmodel.Repository
	settlements *SettlementService
	audit       AuditSink
	log         *logrus.Logger
}

func NewRecalcService(
	commissions commission.Repository,
	employees employee.Repository,
	models commissionmodel.Repository,
	settlements *SettlementService,
	audit AuditSink,
	log *logrus.Logger,
) *RecalcService {
	return &RecalcService{
		commissions: commissions,
		employees:   employees,
		models:      models,
		settlements: settlements,
		audit:       audit,
		log:         log,
	}
}

// Register subscribes the recalculation cascade to rate-affecting edits.
func (s *RecalcService) Register(bus eventbus.EventBus) {
	bus.Subscribe(s.onEmployeeUpdated)
	bus.Subscribe(s.onModelUpdated)
}

// Recalculate applies the split calculator to every matched commission in
// scope, overwriting prior split values. Open settlements covering a (month,
// advisor) pair whose values changed are regenerated as a new revision;
// released or paid settlements are never touched.
func (s *RecalcService) Recalculate(ctx context.Context, scope commission.Scope) (*RecalcResult, error) {
	result := &RecalcResult{}

	err := composables.InTx(ctx, func(txCtx context.Context) error {
		rows, err := s.commissions.ListMatched(txCtx, scope)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		sc, err := loadSplitContext(txCtx, s.employees, s.models)
		if err != nil {
			return err
		}

		changed := make([]*commission.Commission, 0, len(rows))
		affectedPairs := make(map[monthBerater]struct{})
		affectedEmployees := make(map[uint]struct{})

		for _, row := range rows {
			shares, ok := sc.sharesFor(row)
			if !ok {
				s.log.Warnf("pm: matched commission %d has unresolvable rate configuration, skipped", row.ID)
				continue
			}
			result.SplitsRecalculated++
			affectedEmployees[*row.BeraterID] = struct{}{}

			if row.BeraterAnteil.Equal(shares.Berater) &&
				row.TLAnteil.Equal(shares.TL) &&
				row.AGAnteil.Equal(shares.AG) {
				continue
			}

			row.BeraterAnteil = shares.Berater
			row.TLAnteil = shares.TL
			row.AGAnteil = shares.AG
			changed = append(changed, row)
			affectedPairs[monthBerater{month: row.Month(), beraterID: *row.BeraterID}] = struct{}{}
		}

		if len(changed) > 0 {
			if _, err := s.commissions.BulkUpdateMatches(txCtx, changed); err != nil {
				return err
			}
		}

		// Regenerate the open settlements covering the changed pairs.
		for pair := range affectedPairs {
			regenerated, err := s.settlements.regenerateIfOpen(txCtx, pair.month, pair.beraterID)
			if err != nil {
				return err
			}
			if regenerated {
				result.AbrechnungenRegenerated++
			}
		}

		for id := range affectedEmployees {
			result.AffectedEmployees = append(result.AffectedEmployees, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "pm.recalculate", "commission_batch", 0,
		fmt.Sprintf("recalculated %d splits, regenerated %d settlements",
			result.SplitsRecalculated, result.AbrechnungenRegenerated),
		map[string]any{
			"splits_recalculated":      result.SplitsRecalculated,
			"abrechnungen_regenerated": result.AbrechnungenRegenerated,
			"affected_employees":       result.AffectedEmployees,
		})
	return result, nil
}

func (s *RecalcService) onEmployeeUpdated(ctx context.Context, ev employee.UpdatedEvent) {
	if !ev.RateAffecting && !ev.TeamLeadChanged {
		return
	}

	ids := []uint{ev.Employee.ID}
	if ev.TeamLeadChanged {
		subs, err := s.employees.ListSubordinates(ctx, ev.Employee.ID)
		if err != nil {
			s.log.Errorf("pm: loading subordinates of employee %d failed: %v", ev.Employee.ID, err)
			return
		}
		for _, sub := range subs {
			ids = append(ids, sub.ID)
		}
	}

	if _, err := s.Recalculate(ctx, commission.ScopeEmployees{EmployeeIDs: ids}); err != nil {
		s.log.Errorf("pm: recalculation after employee %d edit failed: %v", ev.Employee.ID, err)
	}
}

func (s *RecalcService) onModelUpdated(ctx context.Context, ev commissionmodel.UpdatedEvent) {
	if !ev.RateAffecting {
		return
	}

	employees, err := s.employees.ListByModel(ctx, ev.Model.ID)
	if err != nil {
		s.log.Errorf("pm: loading employees of model %d failed: %v", ev.Model.ID, err)
		return
	}
	if len(employees) == 0 {
		return
	}

	ids := make([]uint, 0, len(employees))
	for _, e := range employees {
		ids = append(ids, e.ID)
	}
	if _, err := s.Recalculate(ctx, commission.ScopeEmployees{EmployeeIDs: ids}); err != nil {
		s.log.Errorf("pm: recalculation after model %d edit failed: %v", ev.Model.ID, err)
	}
}
