package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/commission"
	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/employee"
	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/settlement"
	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/commissionmodel"
	"github.com/maklerwerk/backoffice/modules/pm/services"
	"github.com/maklerwerk/backoffice/pkg/eventbus"
)

func month(s string) time.Time {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		panic(err)
	}
	return t
}

type recalcFixture struct {
	commissions *memCommissions
	employees   *memEmployees
	models      *memModels
	settlements *memSettlements
	recalc      *services.RecalcService
}

func newRecalcFixture(commissions *memCommissions, employees *memEmployees, models *memModels, settlements *memSettlements) *recalcFixture {
	log := testLogger()
	settlementSvc := services.NewSettlementService(settlements, commissions, employees, services.NopAuditSink{}, log)
	return &recalcFixture{
		commissions: commissions,
		employees:   employees,
		models:      models,
		settlements: settlements,
		recalc:      services.NewRecalcService(commissions, employees, models, settlementSvc, services.NopAuditSink{}, log),
	}
}

func matchedCommission(id uint, beraterID uint, betrag, beraterAnteil, agAnteil string, payout string) *commission.Commission {
	return &commission.Commission{
		ID: id, VSNRNormalized: "1234",
		Betrag: d(betrag), Art: commission.ArtAP,
		Auszahlungsdatum: day(payout),
		ContractID:       ptr(uint(1)),
		BeraterID:        ptr(beraterID),
		MatchStatus:      commission.MatchAuto,
		BeraterAnteil:    d(beraterAnteil),
		AGAnteil:         d(agAnteil),
	}
}

func TestRecalculateOverwritesSplitsAfterRateChange(t *testing.T) {
	// split stored under the old 40% rate, employee now at 50%
	f := newRecalcFixture(
		newMemCommissions(matchedCommission(1, 10, "1000", "400", "600", "2026-03-15")),
		newMemEmployees(consultant(10, "50")),
		newMemModels(),
		newMemSettlements(),
	)

	result, err := f.recalc.Recalculate(testCtx(), commission.ScopeEmployees{EmployeeIDs: []uint{10}})
	require.NoError(t, err)

	require.Equal(t, 1, result.SplitsRecalculated)
	require.Equal(t, []uint{10}, result.AffectedEmployees)

	row := f.commissions.rows[1]
	require.True(t, row.BeraterAnteil.Equal(d("500")))
	require.True(t, row.AGAnteil.Equal(d("500")))
}

func TestRecalculateIsIdempotent(t *testing.T) {
	f := newRecalcFixture(
		newMemCommissions(matchedCommission(1, 10, "1000", "400", "600", "2026-03-15")),
		newMemEmployees(consultant(10, "40")),
		newMemModels(),
		newMemSettlements(),
	)

	result, err := f.recalc.Recalculate(testCtx(), commission.ScopeAll{})
	require.NoError(t, err)

	// values already correct: nothing written, nothing regenerated
	require.Equal(t, 1, result.SplitsRecalculated)
	require.Equal(t, 0, result.AbrechnungenRegenerated)
	require.Equal(t, 0, f.commissions.rows[1].Version)
}

func TestRecalculateRegeneratesOpenSettlement(t *testing.T) {
	f := newRecalcFixture(
		newMemCommissions(matchedCommission(1, 10, "1000", "400", "600", "2026-03-15")),
		newMemEmployees(consultant(10, "50")),
		newMemModels(),
		newMemSettlements(&settlement.Settlement{
			ID: 1, Abrechnungsmonat: month("2026-03"), BeraterID: 10, Revision: 1,
			BruttoProvision: d("400"), NettoProvision: d("400"), Auszahlung: d("400"),
			Status: settlement.StatusBerechnet,
		}),
	)

	result, err := f.recalc.Recalculate(testCtx(), commission.ScopeAll{})
	require.NoError(t, err)
	require.Equal(t, 1, result.AbrechnungenRegenerated)

	current, err := f.settlements.CurrentFor(testCtx(), month("2026-03"), 10)
	require.NoError(t, err)
	require.Equal(t, 2, current.Revision)
	require.True(t, current.BruttoProvision.Equal(d("500")))
}

func TestRecalculateNeverTouchesReleasedSettlement(t *testing.T) {
	f := newRecalcFixture(
		newMemCommissions(matchedCommission(1, 10, "1000", "400", "600", "2026-03-15")),
		newMemEmployees(consultant(10, "50")),
		newMemModels(),
		newMemSettlements(&settlement.Settlement{
			ID: 1, Abrechnungsmonat: month("2026-03"), BeraterID: 10, Revision: 1,
			BruttoProvision: d("400"), NettoProvision: d("400"), Auszahlung: d("400"),
			Status: settlement.StatusFreigegeben, IsLocked: true,
		}),
	)

	result, err := f.recalc.Recalculate(testCtx(), commission.ScopeAll{})
	require.NoError(t, err)

	// the split is corrected but the locked settlement stays revision 1
	require.Equal(t, 1, result.SplitsRecalculated)
	require.Equal(t, 0, result.AbrechnungenRegenerated)
	require.True(t, f.commissions.rows[1].BeraterAnteil.Equal(d("500")))

	current, err := f.settlements.CurrentFor(testCtx(), month("2026-03"), 10)
	require.NoError(t, err)
	require.Equal(t, 1, current.Revision)
	require.True(t, current.BruttoProvision.Equal(d("400")))
}

func TestEmployeeEventTriggersRecalculation(t *testing.T) {
	f := newRecalcFixture(
		newMemCommissions(matchedCommission(1, 10, "1000", "400", "600", "2026-03-15")),
		newMemEmployees(consultant(10, "50")),
		newMemModels(),
		newMemSettlements(),
	)

	bus := eventbus.NewEventPublisher(testLogger())
	f.recalc.Register(bus)

	emp, err := f.employees.GetByID(testCtx(), 10)
	require.NoError(t, err)
	bus.Publish(testCtx(), employee.UpdatedEvent{Employee: emp, RateAffecting: true})

	require.True(t, f.commissions.rows[1].BeraterAnteil.Equal(d("500")))
}

func TestModelEventRecalculatesReferencingEmployees(t *testing.T) {
	emp := &employee.Employee{
		ID: 10, Name: "Berater", Role: employee.RoleConsultant,
		CommissionModelID: ptr(uint(1)), IsActive: true,
	}
	model := &commissionmodel.CommissionModel{ID: 1, Name: "Standard", CommissionRate: d("50")}

	f := newRecalcFixture(
		newMemCommissions(matchedCommission(1, 10, "1000", "400", "600", "2026-03-15")),
		newMemEmployees(emp),
		newMemModels(model),
		newMemSettlements(),
	)

	bus := eventbus.NewEventPublisher(testLogger())
	f.recalc.Register(bus)
	bus.Publish(testCtx(), commissionmodel.UpdatedEvent{Model: model, RateAffecting: true})

	require.True(t, f.commissions.rows[1].BeraterAnteil.Equal(d("500")))
}
