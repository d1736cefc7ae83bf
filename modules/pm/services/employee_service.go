package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/employee"
	"github.com/maklerwerk/backoffice/modules/pm/domain/split"
	"github.com/maklerwerk/backoffice/pkg/composables"
	"github.com/maklerwerk/backoffice/pkg/eventbus"
	"github.com/maklerwerk/backoffice/pkg/serrors"
)

var (
	ErrInvalidRate = serrors.NewError(
		"PM_INVALID_RATE",
		"commission rates must lie between 0 and 100 percent",
		"",
	)
	ErrValidation = serrors.NewError(
		"PM_VALIDATION",
		"validation failed",
		"",
	)
)

var hundred = decimal.NewFromInt(100)

// EmployeeService manages the advisor roster. Edits that change how splits
// are derived publish an event that the recalculation cascade subscribes to.
type EmployeeService struct {
	repo  employee.Repository
	bus   eventbus.EventBus
	audit AuditSink
}

func NewEmployeeService(repo employee.Repository, bus eventbus.EventBus, audit AuditSink) *EmployeeService {
	return &EmployeeService{repo: repo, bus: bus, audit: audit}
}

func (s *EmployeeService) GetByID(ctx context.Context, id uint) (*employee.Employee, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *EmployeeService) GetAll(ctx context.Context) ([]*employee.Employee, error) {
	return s.repo.GetAll(ctx)
}

func (s *EmployeeService) Create(ctx context.Context, e *employee.Employee) (*employee.Employee, error) {
	if err := validateEmployee(e); err != nil {
		return nil, err
	}

	created, err := composables.InTxResult(ctx, func(txCtx context.Context) (*employee.Employee, error) {
		return s.repo.Create(txCtx, e)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "pm.employee_create", "employee", created.ID,
		fmt.Sprintf("created employee %q", created.Name), nil)
	s.bus.Publish(ctx, employee.CreatedEvent{Employee: created})
	return created, nil
}

// Update persists the edit and publishes an UpdatedEvent describing its blast
// radius: rate-affecting edits recalculate the employee's own rows, team-lead
// relevant edits additionally cover the subordinates.
func (s *EmployeeService) Update(ctx context.Context, e *employee.Employee) (*employee.Employee, error) {
	if err := validateEmployee(e); err != nil {
		return nil, err
	}

	var before *employee.Employee
	updated, err := composables.InTxResult(ctx, func(txCtx context.Context) (*employee.Employee, error) {
		var err error
		before, err = s.repo.GetByID(txCtx, e.ID)
		if err != nil {
			return nil, err
		}
		if err := s.repo.Update(txCtx, e); err != nil {
			return nil, err
		}
		return s.repo.GetByID(txCtx, e.ID)
	})
	if err != nil {
		return nil, err
	}

	ev := employee.UpdatedEvent{
		Employee:        updated,
		RateAffecting:   rateAffecting(before, updated),
		TeamLeadChanged: teamLeadChanged(before, updated),
	}

	s.audit.Record(ctx, "pm.employee_update", "employee", updated.ID,
		fmt.Sprintf("updated employee %q", updated.Name),
		map[string]any{"rate_affecting": ev.RateAffecting, "team_lead_changed": ev.TeamLeadChanged})
	s.bus.Publish(ctx, ev)
	return updated, nil
}

func validateEmployee(e *employee.Employee) error {
	if e.Name == "" {
		return ErrValidation.WithDetails("employee name must not be empty")
	}
	if e.CommissionRateOverride != nil && !rateInRange(*e.CommissionRateOverride) {
		return ErrInvalidRate.WithDetails("commission rate override %s", e.CommissionRateOverride)
	}
	if !e.TLOverrideRate.IsZero() && !rateInRange(e.TLOverrideRate) {
		return ErrInvalidRate.WithDetails("team lead rate %s", e.TLOverrideRate)
	}
	switch e.TLOverrideBasis {
	case "", split.BasisConsultantShare, split.BasisGrossPremium:
	default:
		return ErrValidation.WithDetails("unknown team lead basis %q", e.TLOverrideBasis)
	}
	return nil
}

func rateInRange(r decimal.Decimal) bool {
	return !r.IsNegative() && r.LessThanOrEqual(hundred)
}

func rateAffecting(before, after *employee.Employee) bool {
	if !decimalPtrEqual(before.CommissionRateOverride, after.CommissionRateOverride) {
		return true
	}
	if !uintPtrEqual(before.CommissionModelID, after.CommissionModelID) {
		return true
	}
	if !before.TLOverrideRate.Equal(after.TLOverrideRate) || before.TLOverrideBasis != after.TLOverrideBasis {
		return true
	}
	if !uintPtrEqual(before.TeamleiterID, after.TeamleiterID) {
		return true
	}
	return false
}

// teamLeadChanged widens the recalculation to subordinates: activation state
// matters because an inactive lead's cut is suppressed on every subordinate
// row.
func teamLeadChanged(before, after *employee.Employee) bool {
	return before.IsActive != after.IsActive || before.Role != after.Role
}

func decimalPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func uintPtrEqual(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
