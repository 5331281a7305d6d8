package anchor

import (
	"go.uber.org/zap"

	"lineitem_engine/pkg/core/rules"
	"lineitem_engine/pkg/models"
)

// Resolution is the outcome of one anchor run.
type Resolution struct {
	RulesVersion string         `json:"rules_version"`
	Anchors      models.Anchors `json:"anchors"`
	Missing      []models.Role  `json:"missing,omitempty"`

	// Assignments records which line item each anchor came from. Input
	// items are not modified.
	Assignments *models.Assignments `json:"-"`
}

// Resolver applies the rule table to a bundle.
type Resolver struct {
	table *rules.Table
}

// NewResolver creates a resolver over a rule table. A nil table uses the
// embedded default.
func NewResolver(table *rules.Table) *Resolver {
	if table == nil {
		table = rules.MustDefault()
	}
	return &Resolver{table: table}
}

// Resolve produces at most one anchor per role registered in the table.
// Each role takes an exact tag match if one exists, otherwise a keyword
// match. Roles are processed in table order and only consolidated items
// compete.
func (r *Resolver) Resolve(b *models.Bundle) *Resolution {
	res := &Resolution{
		RulesVersion: r.table.Version,
		Anchors:      make(models.Anchors),
		Assignments:  models.NewAssignments(),
	}

	consolidated := map[models.StatementType][]models.LineItem{}
	for _, st := range []models.StatementType{models.IncomeStatement, models.BalanceSheet, models.CashFlow} {
		for _, li := range b.Items(st) {
			if li.Consolidated() {
				consolidated[st] = append(consolidated[st], li)
			}
		}
	}

	// Exact matches for every role go first so a keyword rule for one role
	// cannot take an item another role names explicitly.
	for _, rule := range r.table.Roles {
		if m := collectExact(consolidated[rule.Role.Statement()], rule.Role, rule.ExactTags, "exact tag match"); m != nil {
			res.add(m)
		}
	}
	for _, rule := range r.table.Roles {
		if _, ok := res.Anchors[rule.Role]; ok {
			continue
		}
		role := rule.Role
		claimed := func(li models.LineItem) bool {
			assigned := res.Assignments.RoleOf(li)
			return assigned != "" && assigned != role
		}
		if m := collectKeywords(consolidated[role.Statement()], rule, claimed); m != nil {
			res.add(m)
		}
	}

	r.resolveCombinedDebt(consolidated[models.BalanceSheet], res)

	for _, rule := range r.table.Roles {
		if _, ok := res.Anchors[rule.Role]; !ok {
			res.Missing = append(res.Missing, rule.Role)
		}
	}
	zap.L().Debug("anchor: resolved",
		zap.Int("anchors", len(res.Anchors)),
		zap.Int("assigned_items", res.Assignments.Len()),
		zap.Int("missing", len(res.Missing)),
	)
	return res
}

// resolveCombinedDebt maps a combined debt tag onto the noncurrent role
// when the filer reports no current/noncurrent split at all. The combined
// figure includes any current portion, so this is an approximation.
func (r *Resolver) resolveCombinedDebt(items []models.LineItem, res *Resolution) {
	_, hasCurrent := res.Anchors[models.RoleDebtCurrent]
	_, hasNoncurrent := res.Anchors[models.RoleDebtNoncurrent]
	if hasCurrent || hasNoncurrent {
		return
	}
	rule, ok := r.table.Rule(models.RoleDebtNoncurrent)
	if ok {
		if m := CollectCombined(items, rule); m != nil {
			m.Fact.SourceReason += "; no current/noncurrent split reported, combined debt used as noncurrent proxy"
			res.add(m)
			return
		}
	}
	zap.L().Warn("anchor: no debt anchor found",
		zap.String("rules_version", r.table.Version),
		zap.Int("balance_sheet_items", len(items)),
	)
}

func (res *Resolution) add(m *Match) {
	if !res.Assignments.Assign(m.Item, m.Fact.Role) {
		zap.L().Warn("anchor: item already carries another role",
			zap.String("tag", m.Item.Tag),
			zap.String("role", string(m.Fact.Role)),
			zap.String("assigned", string(res.Assignments.RoleOf(m.Item))),
		)
		return
	}
	res.Anchors[m.Fact.Role] = m.Fact
}
