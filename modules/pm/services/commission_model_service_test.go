package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/commissionmodel"
	"github.com/maklerwerk/backoffice/modules/pm/services"
	"github.com/maklerwerk/backoffice/pkg/eventbus"
)

func TestUpdateModelFlagsRateChange(t *testing.T) {
	models := newMemModels(&commissionmodel.CommissionModel{
		ID: 1, Name: "Standard", CommissionRate: d("40"),
	})
	bus := eventbus.NewEventPublisher(testLogger())
	var events []commissionmodel.UpdatedEvent
	bus.Subscribe(func(_ context.Context, ev commissionmodel.UpdatedEvent) {
		events = append(events, ev)
	})
	svc := services.NewCommissionModelService(models, bus, services.NopAuditSink{})

	_, err := svc.Update(testCtx(), &commissionmodel.CommissionModel{
		ID: 1, Name: "Standard", CommissionRate: d("45"),
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, events[0].RateAffecting)

	// renaming alone changes nothing rate-wise
	_, err = svc.Update(testCtx(), &commissionmodel.CommissionModel{
		ID: 1, Name: "Standard 2025", CommissionRate: d("45"),
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.False(t, events[1].RateAffecting)
}

func TestCreateModelRejectsOutOfRangeRate(t *testing.T) {
	svc := services.NewCommissionModelService(newMemModels(), eventbus.NewEventPublisher(testLogger()), services.NopAuditSink{})

	_, err := svc.Create(testCtx(), &commissionmodel.CommissionModel{
		Name: "Broken", CommissionRate: d("-1"),
	})
	require.ErrorIs(t, err, services.ErrInvalidRate)
}
