package services

import (
	"context"
	"fmt"

	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/commissionmodel"
	"github.com/maklerwerk/backoffice/modules/pm/domain/split"
	"github.com/maklerwerk/backoffice/pkg/composables"
	"github.com/maklerwerk/backoffice/pkg/eventbus"
)

// CommissionModelService manages the shared rate models. Rate edits cascade a
// recalculation over every employee referencing the model.
type CommissionModelService struct {
	repo  commissionmodel.Repository
	bus   eventbus.EventBus
	audit AuditSink
}

func NewCommissionModelService(repo commissionmodel.Repository, bus eventbus.EventBus, audit AuditSink) *CommissionModelService {
	return &CommissionModelService{repo: repo, bus: bus, audit: audit}
}

func (s *CommissionModelService) GetByID(ctx context.Context, id uint) (*commissionmodel.CommissionModel, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *CommissionModelService) GetAll(ctx context.Context) ([]*commissionmodel.CommissionModel, error) {
	return s.repo.GetAll(ctx)
}

func (s *CommissionModelService) Create(ctx context.Context, m *commissionmodel.CommissionModel) (*commissionmodel.CommissionModel, error) {
	if err := validateModel(m); err != nil {
		return nil, err
	}

	created, err := composables.InTxResult(ctx, func(txCtx context.Context) (*commissionmodel.CommissionModel, error) {
		return s.repo.Create(txCtx, m)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "pm.commission_model_create", "commission_model", created.ID,
		fmt.Sprintf("created commission model %q", created.Name), nil)
	return created, nil
}

func (s *CommissionModelService) Update(ctx context.Context, m *commissionmodel.CommissionModel) (*commissionmodel.CommissionModel, error) {
	if err := validateModel(m); err != nil {
		return nil, err
	}

	var before *commissionmodel.CommissionModel
	updated, err := composables.InTxResult(ctx, func(txCtx context.Context) (*commissionmodel.CommissionModel, error) {
		var err error
		before, err = s.repo.GetByID(txCtx, m.ID)
		if err != nil {
			return nil, err
		}
		if err := s.repo.Update(txCtx, m); err != nil {
			return nil, err
		}
		return s.repo.GetByID(txCtx, m.ID)
	})
	if err != nil {
		return nil, err
	}

	ev := commissionmodel.UpdatedEvent{
		Model:         updated,
		RateAffecting: modelRateAffecting(before, updated),
	}

	s.audit.Record(ctx, "pm.commission_model_update", "commission_model", updated.ID,
		fmt.Sprintf("updated commission model %q", updated.Name),
		map[string]any{"rate_affecting": ev.RateAffecting})
	s.bus.Publish(ctx, ev)
	return updated, nil
}

func validateModel(m *commissionmodel.CommissionModel) error {
	if m.Name == "" {
		return ErrValidation.WithDetails("model name must not be empty")
	}
	if !rateInRange(m.CommissionRate) {
		return ErrInvalidRate.WithDetails("commission rate %s", m.CommissionRate)
	}
	if m.TLRate != nil && !rateInRange(*m.TLRate) {
		return ErrInvalidRate.WithDetails("team lead rate %s", m.TLRate)
	}
	if m.TLBasis != nil {
		switch *m.TLBasis {
		case split.BasisConsultantShare, split.BasisGrossPremium:
		default:
			return ErrValidation.WithDetails("unknown team lead basis %q", *m.TLBasis)
		}
	}
	return nil
}

func modelRateAffecting(before, after *commissionmodel.CommissionModel) bool {
	if !before.CommissionRate.Equal(after.CommissionRate) {
		return true
	}
	if !decimalPtrEqual(before.TLRate, after.TLRate) {
		return true
	}
	beforeBasis, afterBasis := split.Basis(""), split.Basis("")
	if before.TLBasis != nil {
		beforeBasis = *before.TLBasis
	}
	if after.TLBasis != nil {
		afterBasis = *after.TLBasis
	}
	return beforeBasis != afterBasis
}
