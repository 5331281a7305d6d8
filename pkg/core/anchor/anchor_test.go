package anchor

import (
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

func item(st models.StatementType, tag, label string, periods models.Periods) models.LineItem {
	return models.LineItem{Tag: tag, Label: label, StatementType: st, Unit: "USD", Periods: periods}
}

func revenueRule() rules.RoleRule {
	r, _ := rules.MustDefault().Rule(models.RoleRevenue)
	return r
}

func TestCollectExactFirstWithValues(t *testing.T) {
	items := []models.LineItem{
		item(models.IncomeStatement, "us-gaap:Revenues", "Revenues", models.Periods{}),
		item(models.IncomeStatement, "SalesRevenueNet", "Net sales", models.Periods{"2024-12-31": 900}),
		item(models.IncomeStatement, "Revenues", "Total revenues", models.Periods{"2024-12-31": 1000}),
	}

	m := Collect(items, revenueRule(), nil)
	require.NotNil(t, m)
	assert.Equal(t, "SalesRevenueNet", m.Fact.Tag)
	assert.Equal(t, 1, m.Index)
	assert.Equal(t, models.ConfidenceDeterministic, m.Fact.Confidence)
	assert.Contains(t, m.Fact.SourceReason, "exact tag match")
}

func TestCollectAnchorPeriodsAreVerbatim(t *testing.T) {
	periods := models.Periods{"2023-12-31": 812.5, "2024-12-31": 1000}
	items := []models.LineItem{item(models.IncomeStatement, "Revenues", "Revenues", periods)}

	m := Collect(items, revenueRule(), nil)
	require.NotNil(t, m)
	assert.Equal(t, periods, m.Fact.Periods)

	// the anchor owns its copy
	m.Fact.Periods["2024-12-31"] = 1
	assert.Equal(t, 1000.0, items[0].Periods["2024-12-31"])
}

func TestCollectKeywordScoring(t *testing.T) {
	rule := rules.RoleRule{
		Role:            models.RoleRevenue,
		Keywords:        []string{"revenue", "net sales", "total"},
		ExcludeKeywords: []string{"cost"},
	}
	tests := []struct {
		name    string
		items   []models.LineItem
		wantTag string
	}{
		{
			name: "most matches wins",
			items: []models.LineItem{
				item(models.IncomeStatement, "X1", "Revenue", models.Periods{"2024": 1}),
				item(models.IncomeStatement, "X2", "Total revenue", models.Periods{"2024": 2}),
			},
			wantTag: "X2",
		},
		{
			name: "ties go to the earlier item",
			items: []models.LineItem{
				item(models.IncomeStatement, "X1", "Net sales", models.Periods{"2024": 1}),
				item(models.IncomeStatement, "X2", "Revenue", models.Periods{"2024": 2}),
			},
			wantTag: "X1",
		},
		{
			name: "exclusions drop the item",
			items: []models.LineItem{
				item(models.IncomeStatement, "X1", "Total cost of revenue", models.Periods{"2024": 1}),
				item(models.IncomeStatement, "X2", "Revenue", models.Periods{"2024": 2}),
			},
			wantTag: "X2",
		},
		{
			name: "items without values are ignored",
			items: []models.LineItem{
				item(models.IncomeStatement, "X1", "Total revenue", nil),
				item(models.IncomeStatement, "X2", "Revenue", models.Periods{"2024": 2}),
			},
			wantTag: "X2",
		},
		{
			name: "no match",
			items: []models.LineItem{
				item(models.IncomeStatement, "X1", "Interest income", models.Periods{"2024": 1}),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Collect(tt.items, rule, nil)
			if tt.wantTag == "" {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tt.wantTag, m.Fact.Tag)
			assert.Contains(t, m.Fact.SourceReason, "keyword match")
		})
	}
}

func TestCollectKeywordSkipsClaimed(t *testing.T) {
	rule := rules.RoleRule{Role: models.RoleRevenue, Keywords: []string{"revenue"}}
	items := []models.LineItem{
		item(models.IncomeStatement, "X1", "Revenue", models.Periods{"2024": 1}),
		item(models.IncomeStatement, "X2", "Other revenue", models.Periods{"2024": 2}),
	}
	m := Collect(items, rule, func(li models.LineItem) bool { return li.Tag == "X1" })
	require.NotNil(t, m)
	assert.Equal(t, "X2", m.Fact.Tag)
}

func TestCollectEmptyInput(t *testing.T) {
	assert.Nil(t, Collect(nil, revenueRule(), nil))
	assert.Nil(t, CollectCombined(nil, revenueRule()))
}

func sampleBundle() *models.Bundle {
	return &models.Bundle{Statements: models.Statements{
		IncomeStatement: &models.Statement{LineItems: []models.LineItem{
			item(models.IncomeStatement, "Revenues", "Total revenues", models.Periods{"2024-12-31": 1000}),
			item(models.IncomeStatement, "CostOfRevenue", "Cost of revenue", models.Periods{"2024-12-31": 600}),
			item(models.IncomeStatement, "OperatingIncomeLoss", "Operating income", models.Periods{"2024-12-31": 150}),
			item(models.IncomeStatement, "NetIncomeLoss", "Net income", models.Periods{"2024-12-31": 90}),
		}},
		BalanceSheet: &models.Statement{LineItems: []models.LineItem{
			item(models.BalanceSheet, "LongTermDebtCurrent", "Current portion of long-term debt", models.Periods{"2024-12-31": 500}),
			item(models.BalanceSheet, "LongTermDebtNoncurrent", "Long-term debt, net of current portion", models.Periods{"2024-12-31": 1500}),
			item(models.BalanceSheet, "Assets", "Total assets", models.Periods{"2024-12-31": 5000}),
		}},
		CashFlow: &models.Statement{LineItems: []models.LineItem{
			item(models.CashFlow, "NetIncomeLoss", "Net income", models.Periods{"2024-12-31": 90}),
		}},
	}}
}

func TestResolverResolvesCoreRoles(t *testing.T) {
	b := sampleBundle()
	res := NewResolver(rules.MustDefault()).Resolve(b)

	for role, tag := range map[models.Role]string{
		models.RoleRevenue:        "Revenues",
		models.RoleCOGS:           "CostOfRevenue",
		models.RoleDebtCurrent:    "LongTermDebtCurrent",
		models.RoleDebtNoncurrent: "LongTermDebtNoncurrent",
		models.RoleTotalAssets:    "Assets",
		models.RoleISNetIncome:    "NetIncomeLoss",
		models.RoleCFNetIncome:    "NetIncomeLoss",
	} {
		f, ok := res.Anchors.Get(role)
		require.True(t, ok, "role %s", role)
		assert.Equal(t, tag, f.Tag, "role %s", role)
	}
	assert.Contains(t, res.Missing, models.RoleCash)
	assert.NotEmpty(t, res.RulesVersion)

	// inputs are untouched, the overlay carries the assignment
	first := b.Statements.IncomeStatement.LineItems[0]
	assert.Empty(t, first.ModelRole)
	assert.Equal(t, models.RoleRevenue, res.Assignments.RoleOf(first))
}

func TestResolverAnchorFidelity(t *testing.T) {
	b := sampleBundle()
	res := NewResolver(rules.MustDefault()).Resolve(b)
	for _, li := range b.All() {
		role := res.Assignments.RoleOf(li)
		if role == "" {
			continue
		}
		f, ok := res.Anchors.Get(role)
		require.True(t, ok)
		if f.Tag == li.Tag {
			assert.Equal(t, li.Periods, f.Periods)
		}
	}
}

func TestResolverCombinedDebtProxy(t *testing.T) {
	b := &models.Bundle{Statements: models.Statements{
		BalanceSheet: &models.Statement{LineItems: []models.LineItem{
			item(models.BalanceSheet, "LongTermDebtAndCapitalLeaseObligations", "Long-term debt and finance leases", models.Periods{"2024-12-31": 2200}),
		}},
	}}
	res := NewResolver(rules.MustDefault()).Resolve(b)

	f, ok := res.Anchors.Get(models.RoleDebtNoncurrent)
	require.True(t, ok)
	assert.Equal(t, "LongTermDebtAndCapitalLeaseObligations", f.Tag)
	assert.Contains(t, f.SourceReason, "noncurrent proxy")
	_, hasCurrent := res.Anchors.Get(models.RoleDebtCurrent)
	assert.False(t, hasCurrent)
}

func TestResolverCombinedDebtIgnoredWhenSplitExists(t *testing.T) {
	b := &models.Bundle{Statements: models.Statements{
		BalanceSheet: &models.Statement{LineItems: []models.LineItem{
			item(models.BalanceSheet, "LongTermDebtCurrent", "Current portion of long-term debt", models.Periods{"2024-12-31": 200}),
			item(models.BalanceSheet, "LongTermDebt", "Total long-term debt", models.Periods{"2024-12-31": 2200}),
		}},
	}}
	res := NewResolver(rules.MustDefault()).Resolve(b)

	_, hasNoncurrent := res.Anchors.Get(models.RoleDebtNoncurrent)
	assert.False(t, hasNoncurrent)
	f, ok := res.Anchors.Get(models.RoleDebtCurrent)
	require.True(t, ok)
	assert.Equal(t, "LongTermDebtCurrent", f.Tag)
}

func TestResolverIgnoresSegmentFacts(t *testing.T) {
	seg := item(models.IncomeStatement, "Revenues", "Revenues", models.Periods{"2024-12-31": 400})
	seg.Segment = "Americas"
	b := &models.Bundle{Statements: models.Statements{
		IncomeStatement: &models.Statement{LineItems: []models.LineItem{seg}},
	}}
	res := NewResolver(rules.MustDefault()).Resolve(b)
	_, ok := res.Anchors.Get(models.RoleRevenue)
	assert.False(t, ok)
}

func TestResolverEmptyBundle(t *testing.T) {
	res := NewResolver(rules.MustDefault()).Resolve(&models.Bundle{})
	assert.Empty(t, res.Anchors)
	assert.Len(t, res.Missing, len(rules.MustDefault().Roles))
}

func TestResolverUntypedItemsKeepStatementIdentity(t *testing.T) {
	ni := models.LineItem{Tag: "NetIncomeLoss", Label: "Net income", Periods: models.Periods{"2024-12-31": 90}}
	b := &models.Bundle{Statements: models.Statements{
		IncomeStatement: &models.Statement{LineItems: []models.LineItem{ni}},
		CashFlow:        &models.Statement{LineItems: []models.LineItem{ni}},
	}}
	res := NewResolver(nil).Resolve(b)

	isNI, ok := res.Anchors.Get(models.RoleISNetIncome)
	require.True(t, ok)
	assert.Equal(t, "NetIncomeLoss", isNI.Tag)
	cfNI, ok := res.Anchors.Get(models.RoleCFNetIncome)
	require.True(t, ok)
	assert.Equal(t, 90.0, cfNI.Periods["2024-12-31"])
	assert.Equal(t, 2, res.Assignments.Len())
}
