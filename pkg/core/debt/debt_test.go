package debt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lineitem_engine/pkg/models"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const (
	fy23 = "2023-12-31"
	fy24 = "2024-12-31"
)

func bs(tag string, periods models.Periods) models.LineItem {
	return models.LineItem{Tag: tag, Label: tag, StatementType: models.BalanceSheet, Unit: "USD", Periods: periods}
}

func cf(tag, label string, v float64) models.LineItem {
	return models.LineItem{Tag: tag, Label: label, StatementType: models.CashFlow, Unit: "USD", Periods: models.Periods{fy24: v}}
}

func ptr(v float64) *float64 { return &v }

func TestAggregateMedian(t *testing.T) {
	methods := []MethodResult{
		{MethodName: "a", Value: ptr(2000)},
		{MethodName: "b", Value: ptr(2100)},
		{MethodName: "c"},
		{MethodName: "d", Value: ptr(1900)},
		{MethodName: "e", Value: ptr(2600)},
	}
	s := Aggregate(methods)

	require.NotNil(t, s.RecommendedValue)
	assert.Equal(t, 2050.0, *s.RecommendedValue)
	assert.Equal(t, 2050.0, *s.Median)
	assert.Equal(t, 1900.0, *s.Min)
	assert.Equal(t, 2600.0, *s.Max)
	assert.Equal(t, 2150.0, *s.Average)
	assert.Equal(t, BasisMedian, s.RecommendedBasis)
	assert.Equal(t, 4, s.MethodCount)
	assert.Equal(t, 5, s.TotalMethods)

	spread, ok := s.Spread()
	require.True(t, ok)
	assert.InDelta(t, 700.0/2050.0, spread, 1e-9)
}

func TestAggregateNoEstimates(t *testing.T) {
	s := Aggregate(make([]MethodResult, 5))
	assert.Nil(t, s.RecommendedValue)
	assert.Nil(t, s.Min)
	assert.Nil(t, s.Max)
	assert.Nil(t, s.Median)
	assert.Nil(t, s.Average)
	assert.Equal(t, BasisNoEstimate, s.RecommendedBasis)
	assert.Equal(t, 0, s.MethodCount)
	assert.Equal(t, 5, s.TotalMethods)
	_, ok := s.Spread()
	assert.False(t, ok)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 0.0, Median(nil))

	in := []float64{3, 1, 2}
	Median(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestReliable(t *testing.T) {
	c := []Component{{Name: "x", Value: 1}}
	assert.True(t, MethodResult{Value: ptr(10), Components: c}.Reliable())
	assert.False(t, MethodResult{Value: ptr(-1), Components: c}.Reliable())
	assert.False(t, MethodResult{Value: ptr(10)}.Reliable())
	assert.False(t, MethodResult{Components: c}.Reliable())
}

func TestDirectSum(t *testing.T) {
	in := Input{Items: []models.LineItem{
		bs("us-gaap:LongTermDebtCurrent", models.Periods{fy24: 500}),
		bs("us-gaap:LongTermDebtNoncurrent", models.Periods{fy24: 1500}),
	}}
	m := newEvidence(in).directSum(fy24)

	require.NotNil(t, m.Value)
	assert.Equal(t, 2000.0, *m.Value)
	assert.Len(t, m.Components, 2)
	assert.True(t, m.Reliable())
	require.NotEmpty(t, m.Warnings)
	assert.Contains(t, m.Warnings[0], "Short-term debt")
}

func TestDirectSumSkipsIncludedBuckets(t *testing.T) {
	in := Input{Items: []models.LineItem{
		bs("DebtCurrent", models.Periods{fy24: 700}),
		bs("CommercialPaper", models.Periods{fy24: 200}),
		bs("LongTermDebtAndCapitalLeaseObligations", models.Periods{fy24: 1000}),
		bs("FinanceLeaseLiability", models.Periods{fy24: 90}),
	}}
	m := newEvidence(in).directSum(fy24)

	require.NotNil(t, m.Value)
	assert.Equal(t, 1700.0, *m.Value)
	assert.Len(t, m.Components, 2)
}

func TestDirectSumFallbacks(t *testing.T) {
	ev := newEvidence(Input{Validated: map[string]models.Periods{VarDebtAmount: {fy24: 1234}}})
	m := ev.directSum(fy24)
	require.NotNil(t, m.Value)
	assert.Equal(t, 1234.0, *m.Value)
	assert.Equal(t, SourceDerived, m.Components[0].SourceType)

	m = newEvidence(Input{}).directSum(fy24)
	assert.Nil(t, m.Value)
	assert.NotEmpty(t, m.Warnings)
}

func TestDirectSumUsesAssignedRoles(t *testing.T) {
	li := bs("acme:TermLoanNoncurrent", models.Periods{fy24: 800})
	a := models.NewAssignments()
	a.Assign(li, models.RoleDebtNoncurrent)

	m := newEvidence(Input{Items: []models.LineItem{li}, Assignments: a}).directSum(fy24)
	require.NotNil(t, m.Value)
	assert.Equal(t, 800.0, *m.Value)
	assert.Equal(t, SourceStatement, m.Components[0].SourceType)
}

func TestDirectSumCountsTaggedRolesOnce(t *testing.T) {
	tests := []struct {
		name  string
		items []models.LineItem
		roles []models.Role
		want  float64
	}{
		{
			name: "short-term borrowings as current debt",
			items: []models.LineItem{
				bs("us-gaap:ShortTermBorrowings", models.Periods{fy24: 100}),
				bs("us-gaap:LongTermDebtNoncurrent", models.Periods{fy24: 1000}),
			},
			roles: []models.Role{models.RoleDebtCurrent, models.RoleDebtNoncurrent},
			want:  1100,
		},
		{
			name:  "other long-term debt as noncurrent debt",
			items: []models.LineItem{bs("us-gaap:OtherLongTermDebtNoncurrent", models.Periods{fy24: 500})},
			roles: []models.Role{models.RoleDebtNoncurrent},
			want:  500,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := models.NewAssignments()
			for i, li := range tt.items {
				require.True(t, a.Assign(li, tt.roles[i]))
			}
			m := newEvidence(Input{Items: tt.items, Assignments: a}).directSum(fy24)

			require.NotNil(t, m.Value)
			assert.Equal(t, tt.want, *m.Value)
			assert.Len(t, m.Components, len(tt.items))
		})
	}
}

func TestReconstruction(t *testing.T) {
	items := []models.LineItem{
		bs("Liabilities", models.Periods{fy24: 5000}),
		bs("AccountsPayableCurrent", models.Periods{fy24: 400}),
		bs("AccruedLiabilitiesCurrent", models.Periods{fy24: 300}),
		bs("AccountsPayableAndAccruedLiabilitiesCurrent", models.Periods{fy24: 700}),
		bs("OperatingLeaseLiabilityCurrent", models.Periods{fy24: 50}),
		bs("OperatingLeaseLiabilityNoncurrent", models.Periods{fy24: 150}),
		bs("ContractWithCustomerLiabilityCurrent", models.Periods{fy24: 100}),
	}
	m := newEvidence(Input{Items: items}).reconstruction(fy24)

	require.NotNil(t, m.Value)
	assert.Equal(t, 4000.0, *m.Value)
	joined := strings.Join(m.Warnings, "\n")
	assert.Contains(t, joined, "combined AP and accrued")
	assert.Contains(t, joined, "Pension")
}

func TestReconstructionCombinedOnly(t *testing.T) {
	items := []models.LineItem{
		bs("Liabilities", models.Periods{fy24: 5000}),
		bs("AccountsPayableAndAccruedLiabilitiesCurrent", models.Periods{fy24: 700}),
	}
	m := newEvidence(Input{Items: items}).reconstruction(fy24)
	require.NotNil(t, m.Value)
	assert.Equal(t, 4300.0, *m.Value)
}

func TestReconstructionNegativeIsDiscarded(t *testing.T) {
	items := []models.LineItem{
		bs("Liabilities", models.Periods{fy24: 100}),
		bs("AccountsPayableCurrent", models.Periods{fy24: 400}),
	}
	m := newEvidence(Input{Items: items}).reconstruction(fy24)
	assert.Nil(t, m.Value)
	assert.Contains(t, strings.Join(m.Warnings, "\n"), "negative")
}

func TestReconstructionWithoutLiabilities(t *testing.T) {
	m := newEvidence(Input{}).reconstruction(fy24)
	assert.Nil(t, m.Value)

	m = newEvidence(Input{Validated: map[string]models.Periods{VarTotalLiabilities: {fy24: 900}}}).reconstruction(fy24)
	require.NotNil(t, m.Value)
	assert.Equal(t, 900.0, *m.Value)
}

func TestRollForward(t *testing.T) {
	items := []models.LineItem{
		bs("LongTermDebtNoncurrent", models.Periods{fy23: 1800, fy24: 1950}),
		cf("ProceedsFromIssuanceOfLongTermDebt", "Proceeds from issuance of long-term debt", 500),
		cf("RepaymentsOfLongTermDebt", "Repayments of long-term debt", -300),
		cf("acme:PaymentsOnFinanceLeases", "Principal payments on finance leases", -50),
	}
	m := newEvidence(Input{Items: items}).rollForward(fy24, fy23)

	require.NotNil(t, m.Value)
	assert.Equal(t, 1950.0, *m.Value)
	require.Len(t, m.Components, 4)
	assert.Equal(t, "detected by keyword", m.Components[3].Context)
}

func TestRollForwardNeedsPrior(t *testing.T) {
	items := []models.LineItem{bs("LongTermDebtNoncurrent", models.Periods{fy24: 1950})}
	ev := newEvidence(Input{Items: items})

	assert.Nil(t, ev.rollForward(fy24, "").Value)
	assert.Nil(t, ev.rollForward(fy24, fy23).Value)
}

func TestInterestImplied(t *testing.T) {
	is := models.LineItem{Tag: "InterestExpense", StatementType: models.IncomeStatement, Periods: models.Periods{fy24: -120}}
	ev := newEvidence(Input{Items: []models.LineItem{is}})

	m := ev.interestImplied(fy24, 0.06)
	require.NotNil(t, m.Value)
	assert.InDelta(t, 2000.0, *m.Value, 1e-9)
	assert.NotEmpty(t, m.Warnings)

	m = ev.interestImplied(fy24, 0.05)
	assert.InDelta(t, 2400.0, *m.Value, 1e-9)

	assert.Nil(t, ev.interestImplied(fy24, 0).Value)
	assert.Nil(t, newEvidence(Input{}).interestImplied(fy24, 0.06).Value)
}

func TestSegmented(t *testing.T) {
	americas := bs("LongTermDebtNoncurrent", models.Periods{fy24: 600})
	americas.Segment = "Americas"
	emea := bs("LongTermDebtNoncurrent", models.Periods{fy24: 400})
	emea.Segment = "EMEA"
	consolidated := bs("LongTermDebtNoncurrent", models.Periods{fy24: 1000})

	m := newEvidence(Input{Items: []models.LineItem{consolidated, americas, emea}}).segmented(fy24)
	require.NotNil(t, m.Value)
	assert.Equal(t, 1000.0, *m.Value)
	require.Len(t, m.Components, 2)
	assert.Equal(t, "segment: Americas", m.Components[0].Context)

	assert.Nil(t, newEvidence(Input{Items: []models.LineItem{consolidated}}).segmented(fy24).Value)
}

func TestTriangulate(t *testing.T) {
	items := []models.LineItem{
		bs("LongTermDebtCurrent", models.Periods{fy23: 400, fy24: 500}),
		bs("LongTermDebtNoncurrent", models.Periods{fy23: 1400, fy24: 1500}),
		bs("Liabilities", models.Periods{fy24: 2600}),
		bs("AccountsPayableCurrent", models.Periods{fy24: 500}),
		cf("ProceedsFromIssuanceOfLongTermDebt", "Proceeds from issuance of long-term debt", 300),
		{Tag: "InterestExpense", StatementType: models.IncomeStatement, Periods: models.Periods{fy24: 114}},
	}
	tr := NewEngine(0).Triangulate(Input{Items: items})

	assert.Equal(t, fy24, tr.Period)
	assert.Equal(t, fy23, tr.PriorPeriod)
	require.Len(t, tr.Methods, 5)

	// direct 2000, reconstruction 2100, roll-forward 2100, interest 1900, segmented none
	require.NotNil(t, tr.Summary.RecommendedValue)
	assert.Equal(t, 2050.0, *tr.Summary.RecommendedValue)
	assert.Equal(t, 4, tr.Summary.MethodCount)

	seg, ok := tr.Method(MethodSegmented)
	require.True(t, ok)
	assert.Nil(t, seg.Value)

	text := tr.HumanReadable()
	assert.Contains(t, text, "DEBT TRIANGULATION - period 2024-12-31")
	assert.Contains(t, text, "Segmented Sum")
	assert.Contains(t, text, "not computable")
	assert.Contains(t, text, "Recommended: 2050 (median_of_valid_estimates)")
}

func TestTriangulateEmpty(t *testing.T) {
	tr := NewEngine(DefaultAssumedRate).Triangulate(Input{})
	assert.Nil(t, tr.Summary.RecommendedValue)
	assert.Equal(t, BasisNoEstimate, tr.Summary.RecommendedBasis)
	assert.Len(t, tr.Methods, 5)
	assert.Contains(t, tr.HumanReadable(), "no_valid_estimates")
}

func TestLatestPeriods(t *testing.T) {
	items := []models.LineItem{
		bs("Assets", models.Periods{"2022-12-31": 1, fy23: 1}),
		bs("Cash", models.Periods{fy24: 1}),
		cf("X", "x", 1),
	}
	p, prior := LatestPeriods(items)
	assert.Equal(t, fy24, p)
	assert.Equal(t, fy23, prior)

	p, prior = LatestPeriods(nil)
	assert.Empty(t, p)
	assert.Empty(t, prior)
}
