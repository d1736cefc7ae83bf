// Package split computes the three-way revenue split of a single commission
// line: consultant share, team-lead cut and house share. All arithmetic is
// decimal with rounding to two places at every intermediate step so that the
// three shares always add up to the original amount exactly.
package split

import "github.com/shopspring/decimal"

type Basis string

const (
	BasisConsultantShare Basis = "consultant_share"
	BasisGrossPremium    Basis = "gross_premium"
)

// TeamLead is the override configuration read from the consultant's own
// record. The cut is configured per subordinate, not on the team lead.
type TeamLead struct {
	Rate  decimal.Decimal
	Basis Basis
}

type Shares struct {
	Berater decimal.Decimal
	TL      decimal.Decimal
	AG      decimal.Decimal
}

// Sum returns Berater + TL + AG.
func (s Shares) Sum() decimal.Decimal {
	return s.Berater.Add(s.TL).Add(s.AG)
}

var hundred = decimal.NewFromInt(100)

// Compute splits amount between consultant, team lead and house.
// consultantRate is a percentage (0–100). Chargebacks and negative amounts
// are never split with a team lead; the consultant carries the reversal at
// the base rate.
func Compute(amount decimal.Decimal, chargeback bool, consultantRate decimal.Decimal, teamLead *TeamLead) Shares {
	consultantGross := amount.Mul(consultantRate).Div(hundred).Round(2)
	agAnteil := amount.Sub(consultantGross)

	if chargeback || amount.IsNegative() {
		return Shares{Berater: consultantGross, TL: decimal.Zero, AG: agAnteil}
	}

	if teamLead != nil && teamLead.Rate.IsPositive() {
		var tlAnteil decimal.Decimal
		if teamLead.Basis == BasisGrossPremium {
			tlAnteil = amount.Mul(teamLead.Rate).Div(hundred).Round(2)
		} else {
			tlAnteil = consultantGross.Mul(teamLead.Rate).Div(hundred).Round(2)
		}
		// A team lead can never take more than the consultant's own gross share.
		if tlAnteil.GreaterThan(consultantGross) {
			tlAnteil = consultantGross
		}
		return Shares{
			Berater: consultantGross.Sub(tlAnteil),
			TL:      tlAnteil,
			AG:      agAnteil,
		}
	}

	return Shares{Berater: consultantGross, TL: decimal.Zero, AG: agAnteil}
}
