package employee

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/maklerwerk/backoffice/modules/pm/domain/split"
)

type Role string

const (
	RoleConsultant Role = "consultant"
	RoleTeamLead   Role = "team_lead"
	RoleBackoffice Role = "backoffice"
)

// Employee is an internal advisor/back-office person. Team-lead override
// fields live on the subordinate: TLOverrideRate and TLOverrideBasis describe
// the cut this employee's team lead takes from this employee's share.
type Employee struct {
	ID                     uint
	Name                   string
	Role                   Role
	CommissionModelID      *uint
	CommissionRateOverride *decimal.Decimal
	TeamleiterID           *uint
	TLOverrideRate         decimal.Decimal
	TLOverrideBasis        split.Basis
	IsActive               bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// EffectiveRate resolves the consultant base rate: the per-employee override
// wins over the referenced model's rate; with neither, the rate is zero.
func (e *Employee) EffectiveRate(modelRate *decimal.Decimal) decimal.Decimal {
	if e.CommissionRateOverride != nil {
		return *e.CommissionRateOverride
	}
	if modelRate != nil {
		return *modelRate
	}
	return decimal.Zero
}

// TeamLeadConfig returns the split configuration for this employee's team
// lead, or nil when no active cut applies. Model-level TL defaults apply when
// the employee carries no explicit override rate.
func (e *Employee) TeamLeadConfig(modelTLRate *decimal.Decimal, modelTLBasis *split.Basis) *split.TeamLead {
	if e.TeamleiterID == nil {
		return nil
	}

	rate := e.TLOverrideRate
	basis := e.TLOverrideBasis
	if rate.IsZero() && modelTLRate != nil {
		rate = *modelTLRate
		if modelTLBasis != nil {
			basis = *modelTLBasis
		}
	}
	if !rate.IsPositive() {
		return nil
	}
	if basis == "" {
		basis = split.BasisConsultantShare
	}
	return &split.TeamLead{Rate: rate, Basis: basis}
}
