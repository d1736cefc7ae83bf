package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/commission"
	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/employee"
	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/commissionmodel"
	"github.com/maklerwerk/backoffice/modules/pm/domain/split"
)

// splitContext holds the rate configuration loaded once per pass so that
// computing shares for thousands of rows needs no further queries.
type splitContext struct {
	employees map[uint]*employee.Employee
	models    map[uint]*commissionmodel.CommissionModel
}

func loadSplitContext(
	ctx context.Context,
	employees employee.Repository,
	models commissionmodel.Repository,
) (*splitContext, error) {
	all, err := employees.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*employee.Employee, len(all))
	for _, e := range all {
		byID[e.ID] = e
	}

	allModels, err := models.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	modelsByID := make(map[uint]*commissionmodel.CommissionModel, len(allModels))
	for _, m := range allModels {
		modelsByID[m.ID] = m
	}

	return &splitContext{employees: byID, models: modelsByID}, nil
}

// sharesFor computes the three-way split for a row that has an advisor
// assigned. The second return is false when the advisor is unknown to the
// loaded roster.
func (sc *splitContext) sharesFor(c *commission.Commission) (split.Shares, bool) {
	if c.BeraterID == nil {
		return split.Shares{}, false
	}
	emp, ok := sc.employees[*c.BeraterID]
	if !ok {
		return split.Shares{}, false
	}

	var modelRate, modelTLRate *decimal.Decimal
	var modelTLBasis *split.Basis
	if emp.CommissionModelID != nil {
		if model, ok := sc.models[*emp.CommissionModelID]; ok {
			modelRate = &model.CommissionRate
			modelTLRate = model.TLRate
			modelTLBasis = model.TLBasis
		}
	}

	teamLead := emp.TeamLeadConfig(modelTLRate, modelTLBasis)
	if teamLead != nil {
		lead, ok := sc.employees[*emp.TeamleiterID]
		if !ok || !lead.IsActive {
			teamLead = nil
		}
	}

	rate := emp.EffectiveRate(modelRate)
	return split.Compute(c.Betrag, c.Art == commission.ArtRueckbelastung, rate, teamLead), true
}
