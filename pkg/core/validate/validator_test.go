package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lineitem_engine/pkg/core/rules"
	"lineitem_engine/pkg/models"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const fy24 = "2024-12-31"

func roleItem(st models.StatementType, tag, label string, role models.Role, v float64) models.LineItem {
	return models.LineItem{
		Tag:           tag,
		Label:         label,
		StatementType: st,
		Unit:          "USD",
		Periods:       models.Periods{fy24: v},
		ModelRole:     role,
	}
}

func llmItem(st models.StatementType, tag, label string, role models.Role, conf, v float64) models.LineItem {
	li := roleItem(st, tag, label, "", v)
	li.LLMClassification = &models.LLMClassification{BestFitRole: role, Confidence: conf}
	return li
}

func bundleOf(st models.StatementType, items ...models.LineItem) *models.Bundle {
	b := &models.Bundle{}
	s := &models.Statement{LineItems: items}
	switch st {
	case models.IncomeStatement:
		b.Statements.IncomeStatement = s
	case models.BalanceSheet:
		b.Statements.BalanceSheet = s
	case models.CashFlow:
		b.Statements.CashFlow = s
	}
	return b
}

func newValidator(m LabelMatcher) *Validator {
	return NewValidator(rules.MustDefault(), m)
}

func TestValidateDirect(t *testing.T) {
	b := bundleOf(models.IncomeStatement,
		roleItem(models.IncomeStatement, "Revenues", "Total revenues", models.RoleRevenue, 1000),
	)
	r := newValidator(nil).Validate(context.Background(), Input{Bundle: b}, "Revenue")

	assert.Equal(t, StatusDirect, r.Status)
	require.NotNil(t, r.Chosen)
	assert.Equal(t, "Revenues", r.Chosen.Tag)
	assert.Equal(t, SourceModelRole, r.Chosen.Source)
	assert.Equal(t, fy24, r.Chosen.LatestPeriod)
	assert.Equal(t, 1000.0, r.Chosen.LatestValue)
	assert.Equal(t, []models.Role{models.RoleRevenue}, r.ExpectedRoles)
	assert.True(t, r.Passed())
}

func TestValidateUsesAssignmentOverlay(t *testing.T) {
	li := roleItem(models.IncomeStatement, "Revenues", "Total revenues", "", 1000)
	a := models.NewAssignments()
	a.Assign(li, models.RoleRevenue)

	r := newValidator(nil).Validate(context.Background(), Input{Bundle: bundleOf(models.IncomeStatement, li), Assignments: a}, "Revenue")
	assert.Equal(t, StatusDirect, r.Status)
}

func TestValidateAccountsPayablePrefersDirectTag(t *testing.T) {
	b := bundleOf(models.BalanceSheet,
		llmItem(models.BalanceSheet, "AccountsPayableAndAccruedLiabilitiesCurrent", "Accounts payable and accrued liabilities", models.RoleAPAndAccrued, 0.95, 900),
		llmItem(models.BalanceSheet, "AccountsPayableCurrent", "Accounts payable", models.RoleAccountsPayable, 0.6, 500),
	)
	r := newValidator(nil).Validate(context.Background(), Input{Bundle: b}, "Accounts Payable")

	require.NotNil(t, r.Chosen)
	assert.Equal(t, "AccountsPayableCurrent", r.Chosen.Tag)
	require.Len(t, r.Alternates, 1)
	assert.Equal(t, "AccountsPayableAndAccruedLiabilitiesCurrent", r.Alternates[0].Tag)
}

func TestValidateAccountsPayableRollupFilter(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  Status
	}{
		{"rollup label is dropped", "Total current liabilities", StatusFail},
		{"payable label is kept", "Accounts payable and other current liabilities", StatusDirect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bundleOf(models.BalanceSheet,
				llmItem(models.BalanceSheet, "LiabilitiesCurrent", tt.label, models.RoleAccountsPayable, 0.9, 4000),
			)
			r := newValidator(nil).Validate(context.Background(), Input{Bundle: b}, "Accounts Payable")
			assert.Equal(t, tt.want, r.Status)
		})
	}
}

func TestValidateRankingOrder(t *testing.T) {
	tests := []struct {
		name    string
		items   []models.LineItem
		wantTag string
	}{
		{
			name: "model role beats classifier guess",
			items: []models.LineItem{
				llmItem(models.IncomeStatement, "A", "Sales", models.RoleRevenue, 0.99, 5000),
				roleItem(models.IncomeStatement, "B", "Revenue", models.RoleRevenue, 10),
			},
			wantTag: "B",
		},
		{
			name: "higher confidence wins",
			items: []models.LineItem{
				llmItem(models.IncomeStatement, "A", "Sales", models.RoleRevenue, 0.7, 5000),
				llmItem(models.IncomeStatement, "B", "Revenue", models.RoleRevenue, 0.8, 10),
			},
			wantTag: "B",
		},
		{
			name: "larger latest value breaks confidence ties",
			items: []models.LineItem{
				llmItem(models.IncomeStatement, "A", "Sales", models.RoleRevenue, 0.8, 10),
				llmItem(models.IncomeStatement, "B", "Revenue", models.RoleRevenue, 0.8, -5000),
			},
			wantTag: "B",
		},
		{
			name: "tag breaks full ties",
			items: []models.LineItem{
				llmItem(models.IncomeStatement, "Z", "Sales", models.RoleRevenue, 0.8, 10),
				llmItem(models.IncomeStatement, "M", "Revenue", models.RoleRevenue, 0.8, 10),
			},
			wantTag: "M",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newValidator(nil).Validate(context.Background(), Input{Bundle: bundleOf(models.IncomeStatement, tt.items...)}, "Revenue")
			require.NotNil(t, r.Chosen)
			assert.Equal(t, tt.wantTag, r.Chosen.Tag)
		})
	}
}

func TestValidateAlternatesCapped(t *testing.T) {
	var items []models.LineItem
	for i, tag := range []string{"R1", "R2", "R3", "R4", "R5", "R6", "R7"} {
		items = append(items, llmItem(models.IncomeStatement, tag, "Revenue", models.RoleRevenue, 0.9, float64(100*(i+1))))
	}
	r := newValidator(nil).Validate(context.Background(), Input{Bundle: bundleOf(models.IncomeStatement, items...)}, "Revenue")

	require.NotNil(t, r.Chosen)
	assert.Equal(t, "R7", r.Chosen.Tag)
	require.Len(t, r.Alternates, MaxAlternates)
	assert.Equal(t, "R6", r.Alternates[0].Tag)
	assert.Equal(t, "R3", r.Alternates[3].Tag)
}

func TestValidateDeterministic(t *testing.T) {
	items := []models.LineItem{
		llmItem(models.IncomeStatement, "B", "Revenue", models.RoleRevenue, 0.8, 10),
		llmItem(models.IncomeStatement, "A", "Sales", models.RoleRevenue, 0.8, 10),
		llmItem(models.IncomeStatement, "C", "Turnover", models.RoleRevenue, 0.8, 10),
	}
	reversed := []models.LineItem{items[2], items[1], items[0]}

	v := newValidator(nil)
	first := v.Validate(context.Background(), Input{Bundle: bundleOf(models.IncomeStatement, items...)}, "Revenue")
	again := v.Validate(context.Background(), Input{Bundle: bundleOf(models.IncomeStatement, items...)}, "Revenue")
	flipped := v.Validate(context.Background(), Input{Bundle: bundleOf(models.IncomeStatement, reversed...)}, "Revenue")

	assert.Equal(t, first.Chosen, again.Chosen)
	assert.Equal(t, "A", first.Chosen.Tag)
	assert.Equal(t, first.Chosen.Tag, flipped.Chosen.Tag)
}

func TestValidateFallsBackToDerivation(t *testing.T) {
	anchors := models.Anchors{
		models.RoleRevenue: {Tag: "Revenues", Role: models.RoleRevenue, Periods: models.Periods{fy24: 1000}},
		models.RoleCOGS:    {Tag: "CostOfRevenue", Role: models.RoleCOGS, Periods: models.Periods{fy24: 600}},
	}
	r := newValidator(nil).Validate(context.Background(), Input{Bundle: &models.Bundle{}, Anchors: anchors}, "Gross Profit")

	assert.Equal(t, StatusComputed, r.Status)
	require.NotNil(t, r.Chosen)
	assert.Equal(t, SourceDerived, r.Chosen.Source)
	assert.Equal(t, 400.0, r.Chosen.Periods[fy24])
}

func TestValidatePrefersComputedBucket(t *testing.T) {
	bucket := map[string]*models.ComputedVariable{
		"Debt Amount": {
			Name:           "Debt Amount",
			Role:           models.RoleTotalDebt,
			Status:         models.StatusProxy,
			Periods:        models.Periods{fy24: 750},
			SupportingTags: []string{"LongTermDebtCurrent"},
		},
	}
	anchors := models.Anchors{
		models.RoleDebtCurrent:    {Tag: "LongTermDebtCurrent", Periods: models.Periods{fy24: 500}},
		models.RoleDebtNoncurrent: {Tag: "LongTermDebtNoncurrent", Periods: models.Periods{fy24: 1500}},
	}
	r := newValidator(nil).Validate(context.Background(), Input{Anchors: anchors, Computed: bucket}, "Debt Amount")

	assert.Equal(t, StatusProxy, r.Status)
	assert.Equal(t, SourceComputedBucket, r.Chosen.Source)
	assert.Equal(t, 750.0, r.Chosen.LatestValue)
}

func TestValidateDebtAmountProxy(t *testing.T) {
	anchors := models.Anchors{
		models.RoleDebtCurrent: {Tag: "LongTermDebtCurrent", Periods: models.Periods{fy24: 500}},
	}
	r := newValidator(nil).Validate(context.Background(), Input{Anchors: anchors}, "Debt Amount")
	assert.Equal(t, StatusProxy, r.Status)
}

func TestValidateAllReturnsOnePerName(t *testing.T) {
	names := []string{"Revenue", "Not A Variable", "EBITDA", "Cash"}
	rs := newValidator(nil).ValidateAll(context.Background(), Input{Bundle: &models.Bundle{}}, names)

	require.Len(t, rs, len(names))
	for i, r := range rs {
		assert.Equal(t, names[i], r.Variable)
		assert.Equal(t, StatusFail, r.Status)
		assert.NotEmpty(t, r.Reason)
	}
	assert.Contains(t, rs[1].Reason, "unknown variable")
}

func TestValidateAllDefaultsToTable(t *testing.T) {
	rs := newValidator(nil).ValidateAll(context.Background(), Input{}, nil)
	assert.Len(t, rs, len(rules.MustDefault().Variables))
}

func TestValidateLabelMatcher(t *testing.T) {
	items := []models.LineItem{
		roleItem(models.IncomeStatement, "custom:NetSalesTotal", "Net sales", "", 1200),
		roleItem(models.IncomeStatement, "custom:GrossMarginPct", "Gross margin %", "", 0.4),
	}
	tests := []struct {
		name    string
		matcher LabelMatcherFunc
		want    Status
	}{
		{
			name: "accepted match becomes proxy",
			matcher: func(_ context.Context, required string, options []LabelOption) (*Match, error) {
				return &Match{MatchedLabel: "Net sales", MatchedTag: "custom:NetSalesTotal", Reason: "sales is revenue"}, nil
			},
			want: StatusProxy,
		},
		{
			name: "computed metric is rejected",
			matcher: func(context.Context, string, []LabelOption) (*Match, error) {
				return &Match{MatchedLabel: "Gross margin %", MatchedTag: "custom:GrossMarginPct"}, nil
			},
			want: StatusFail,
		},
		{
			name: "unknown item is rejected",
			matcher: func(context.Context, string, []LabelOption) (*Match, error) {
				return &Match{MatchedLabel: "Turnover"}, nil
			},
			want: StatusFail,
		},
		{
			name: "matcher error is no match",
			matcher: func(context.Context, string, []LabelOption) (*Match, error) {
				return nil, errors.New("quota exceeded")
			},
			want: StatusFail,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newValidator(tt.matcher).Validate(context.Background(), Input{Bundle: bundleOf(models.IncomeStatement, items...)}, "Revenue")
			assert.Equal(t, tt.want, r.Status)
			if tt.want == StatusProxy {
				assert.Equal(t, SourceLLMFallback, r.Chosen.Source)
				assert.Equal(t, 1200.0, r.Chosen.LatestValue)
			}
		})
	}
}

func TestValidateMatcherSeesOptions(t *testing.T) {
	var got []LabelOption
	m := LabelMatcherFunc(func(_ context.Context, required string, options []LabelOption) (*Match, error) {
		assert.Equal(t, "Revenue", required)
		got = options
		return nil, nil
	})
	b := bundleOf(models.IncomeStatement,
		roleItem(models.IncomeStatement, "X", "Turnover", "", 10),
		models.LineItem{Tag: "Y", Label: "Empty", StatementType: models.IncomeStatement},
	)
	newValidator(m).Validate(context.Background(), Input{Bundle: b}, "Revenue")
	assert.Equal(t, []LabelOption{{Tag: "X", Label: "Turnover"}}, got)
}

func TestRejectReason(t *testing.T) {
	tests := []struct {
		required string
		match    Match
		reject   bool
	}{
		{"Revenue", Match{MatchedLabel: "Net sales"}, false},
		{"Revenue", Match{MatchedLabel: "Gross margin"}, true},
		{"Net Income", Match{MatchedLabel: "Earnings per share, diluted"}, true},
		{"Net Income", Match{MatchedTag: "EffectiveIncomeTaxRateContinuingOperations"}, true},
		{"Revenue", Match{MatchedLabel: "Revenue growth"}, true},
		{"Operating Margin", Match{MatchedLabel: "Operating margin %"}, false},
		{"Cash", Match{MatchedLabel: "Cash as % of assets"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.required+"/"+tt.match.MatchedLabel+tt.match.MatchedTag, func(t *testing.T) {
			assert.Equal(t, tt.reject, RejectReason(tt.required, tt.match) != "")
		})
	}
}
