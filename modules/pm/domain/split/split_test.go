package split

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestCompute_NoTeamLead(t *testing.T) {
	shares := Compute(d("1000"), false, d("40"), nil)

	require.True(t, shares.Berater.Equal(d("400")), "berater=%s", shares.Berater)
	require.True(t, shares.TL.Equal(d("0")))
	require.True(t, shares.AG.Equal(d("600")), "ag=%s", shares.AG)
	require.True(t, shares.Sum().Equal(d("1000")))
}

func TestCompute_TeamLeadConsultantShareBasis(t *testing.T) {
	tl := &TeamLead{Rate: d("20"), Basis: BasisConsultantShare}
	shares := Compute(d("1000"), false, d("40"), tl)

	require.True(t, shares.TL.Equal(d("80")), "tl=%s", shares.TL)
	require.True(t, shares.Berater.Equal(d("320")), "berater=%s", shares.Berater)
	require.True(t, shares.AG.Equal(d("600")))
	require.True(t, shares.Sum().Equal(d("1000")))
}

func TestCompute_TeamLeadGrossPremiumBasis(t *testing.T) {
	tl := &TeamLead{Rate: d("5"), Basis: BasisGrossPremium}
	shares := Compute(d("1000"), false, d("40"), tl)

	require.True(t, shares.TL.Equal(d("50")), "tl=%s", shares.TL)
	require.True(t, shares.Berater.Equal(d("350")), "berater=%s", shares.Berater)
	require.True(t, shares.AG.Equal(d("600")))
	require.True(t, shares.Sum().Equal(d("1000")))
}

func TestCompute_TeamLeadCappedAtConsultantGross(t *testing.T) {
	// 50% of gross premium would be 500 but the consultant's gross share is
	// only 400; the cut is capped there.
	tl := &TeamLead{Rate: d("50"), Basis: BasisGrossPremium}
	shares := Compute(d("1000"), false, d("40"), tl)

	require.True(t, shares.TL.Equal(d("400")), "tl=%s", shares.TL)
	require.True(t, shares.Berater.Equal(d("0")))
	require.True(t, shares.AG.Equal(d("600")))
	require.True(t, shares.Sum().Equal(d("1000")))
}

func TestCompute_ChargebackNeverSplitsWithTeamLead(t *testing.T) {
	tl := &TeamLead{Rate: d("20"), Basis: BasisConsultantShare}
	shares := Compute(d("-1000"), true, d("40"), tl)

	require.True(t, shares.Berater.Equal(d("-400")), "berater=%s", shares.Berater)
	require.True(t, shares.TL.Equal(d("0")))
	require.True(t, shares.AG.Equal(d("-600")), "ag=%s", shares.AG)
	require.True(t, shares.Sum().Equal(d("-1000")))
}

func TestCompute_NegativeAmountTreatedAsChargeback(t *testing.T) {
	// Even when the row kind is not flagged, a negative amount short-circuits.
	tl := &TeamLead{Rate: d("20"), Basis: BasisConsultantShare}
	shares := Compute(d("-250"), false, d("40"), tl)

	require.True(t, shares.TL.Equal(d("0")))
	require.True(t, shares.Sum().Equal(d("-250")))
}

func TestCompute_ZeroRate(t *testing.T) {
	shares := Compute(d("1000"), false, d("0"), nil)
	require.True(t, shares.Berater.Equal(d("0")))
	require.True(t, shares.AG.Equal(d("1000")))
}

func TestCompute_SumInvariantAcrossConfigurations(t *testing.T) {
	amounts := []string{"1000", "123.45", "-99.99", "0.01", "333.33", "-0.01"}
	rates := []string{"0", "12.5", "40", "100"}
	teamLeads := []*TeamLead{
		nil,
		{Rate: d("20"), Basis: BasisConsultantShare},
		{Rate: d("7.5"), Basis: BasisGrossPremium},
	}

	for _, a := range amounts {
		for _, r := range rates {
			for _, tl := range teamLeads {
				for _, cb := range []bool{false, true} {
					shares := Compute(d(a), cb, d(r), tl)
					require.True(
						t,
						shares.Sum().Equal(d(a)),
						"amount=%s rate=%s cb=%v: sum=%s", a, r, cb, shares.Sum(),
					)
					if !d(a).IsNegative() {
						require.True(
							t,
							shares.TL.LessThanOrEqual(d(a).Sub(shares.AG)),
							"tl share exceeds consultant gross: amount=%s rate=%s", a, r,
						)
					}
				}
			}
		}
	}
}

func TestCompute_RoundingPerStep(t *testing.T) {
	// 33.33% of 100.01 rounds at the gross step, then again at the TL step.
	tl := &TeamLead{Rate: d("33.33"), Basis: BasisConsultantShare}
	shares := Compute(d("100.01"), false, d("33.33"), tl)

	gross := d("100.01").Mul(d("33.33")).Div(d("100")).Round(2)
	wantTL := gross.Mul(d("33.33")).Div(d("100")).Round(2)
	require.True(t, shares.TL.Equal(wantTL))
	require.True(t, shares.Sum().Equal(d("100.01")))
}
