package validate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"lineitem_engine/pkg/core/derive"
	"lineitem_engine/pkg/core/rules"
	"lineitem_engine/pkg/models"
)

// Input is everything the validator reads for one company.
type Input struct {
	Bundle      *models.Bundle
	Assignments *models.Assignments
	Anchors     models.Anchors
	// Computed is an optional bucket of precomputed variables by name.
	Computed map[string]*models.ComputedVariable
}

// Validator resolves required variables against a rule table.
type Validator struct {
	table   *rules.Table
	matcher LabelMatcher
}

// NewValidator creates a validator. matcher may be nil, and a nil table
// uses the embedded default.
func NewValidator(table *rules.Table, matcher LabelMatcher) *Validator {
	if table == nil {
		table = rules.MustDefault()
	}
	return &Validator{table: table, matcher: matcher}
}

// ValidateAll returns exactly one result per requested name, in order.
// An empty names list validates every variable in the table.
func (v *Validator) ValidateAll(ctx context.Context, in Input, names []string) []Result {
	if len(names) == 0 {
		names = v.table.VariableNames()
	}
	out := make([]Result, 0, len(names))
	for _, name := range names {
		out = append(out, v.Validate(ctx, in, name))
	}
	return out
}

// Validate resolves a single variable.
func (v *Validator) Validate(ctx context.Context, in Input, name string) Result {
	variable, ok := v.table.Variable(name)
	if !ok {
		return Result{
			Variable: name,
			Status:   StatusFail,
			Reason:   fmt.Sprintf("unknown variable %q (rules version %s)", name, v.table.Version),
		}
	}
	res := Result{
		Variable:      variable.Name,
		StatementType: variable.Statement,
		ExpectedRoles: append([]models.Role(nil), variable.Roles...),
	}

	if ranked := rank(variable, gather(variable, in)); len(ranked) > 0 {
		top := ranked[0]
		res.Status = StatusDirect
		res.Chosen = top.provenance()
		for _, c := range ranked[1:] {
			if len(res.Alternates) == MaxAlternates {
				break
			}
			res.Alternates = append(res.Alternates, *c.provenance())
		}
		res.Reason = fmt.Sprintf("%s assigned %s via %s; %d candidate(s) ranked", models.LocalTag(top.item.Tag), top.role, top.source, len(ranked))
		return res
	}

	if cv, ok := in.Computed[variable.Name]; ok && cv != nil && len(cv.Periods) > 0 {
		return fromComputed(res, cv, SourceComputedBucket)
	}
	if variable.Derivation != "" {
		if f, ok := derive.Lookup(variable.Derivation); ok {
			if cv := f(in.Anchors); cv != nil {
				return fromComputed(res, cv, SourceDerived)
			}
		}
	}
	if r, ok := v.matchLabel(ctx, variable, in); ok {
		return r
	}

	res.Status = StatusFail
	res.Reason = fmt.Sprintf("no line item carries %s and no fallback produced a value", joinRoles(variable.Roles))
	return res
}

func fromComputed(res Result, cv *models.ComputedVariable, source string) Result {
	res.Status = StatusComputed
	if cv.Status == models.StatusProxy {
		res.Status = StatusProxy
	}
	res.Chosen = provenance(strings.Join(cv.SupportingTags, ","), cv.Name, cv.Role, 1, cv.Periods, cv.ComputationMethod, source)
	res.Reason = fmt.Sprintf("no direct candidate; %s %s from %s", cv.Status, cv.ComputationMethod, source)
	if len(cv.Guardrails) > 0 {
		res.Reason += "; guardrails: " + strings.Join(cv.Guardrails, "; ")
	}
	return res
}

// matchLabel asks the matcher for a proxy among the variable's statement
// items. The answer must name a real item with values and pass the
// computed-metric guard.
func (v *Validator) matchLabel(ctx context.Context, variable rules.Variable, in Input) (Result, bool) {
	if v.matcher == nil {
		return Result{}, false
	}
	var items []models.LineItem
	var options []LabelOption
	for _, li := range in.Bundle.Items(variable.Statement) {
		if li.Consolidated() && li.HasValues() {
			items = append(items, li)
			options = append(options, LabelOption{Tag: li.Tag, Label: li.Label})
		}
	}
	if len(options) == 0 {
		return Result{}, false
	}
	m, err := v.matcher.Match(ctx, variable.Name, options)
	if err != nil {
		zap.L().Warn("validate: label matcher failed", zap.String("variable", variable.Name), zap.Error(err))
		return Result{}, false
	}
	if m == nil {
		return Result{}, false
	}
	if reason := RejectReason(variable.Name, *m); reason != "" {
		zap.L().Info("validate: label match rejected",
			zap.String("variable", variable.Name),
			zap.String("matched_label", m.MatchedLabel),
			zap.String("reason", reason),
		)
		return Result{}, false
	}
	li, ok := findOption(items, *m)
	if !ok {
		zap.L().Info("validate: label match names no known item",
			zap.String("variable", variable.Name),
			zap.String("matched_tag", m.MatchedTag),
			zap.String("matched_label", m.MatchedLabel),
		)
		return Result{}, false
	}
	res := Result{
		Variable:      variable.Name,
		StatementType: variable.Statement,
		ExpectedRoles: append([]models.Role(nil), variable.Roles...),
		Status:        StatusProxy,
		Chosen:        provenance(li.Tag, li.Label, variable.Roles[0], 0, li.Periods, "label match: "+m.Reason, SourceLLMFallback),
		Reason:        fmt.Sprintf("no direct candidate; label matcher proposed %q", li.Label),
	}
	return res, true
}

func findOption(items []models.LineItem, m Match) (models.LineItem, bool) {
	if m.MatchedTag != "" {
		for _, li := range items {
			if li.Tag == m.MatchedTag || models.LocalTag(li.Tag) == models.LocalTag(m.MatchedTag) {
				return li, true
			}
		}
	}
	want := rules.Normalize(m.MatchedLabel)
	for _, li := range items {
		if want != "" && rules.Normalize(li.Label) == want {
			return li, true
		}
	}
	return models.LineItem{}, false
}

func joinRoles(roles []models.Role) string {
	s := make([]string, len(roles))
	for i, r := range roles {
		s[i] = string(r)
	}
	return strings.Join(s, "/")
}

// =============================================================================
// CANDIDATES
// =============================================================================

type candidate struct {
	item       models.LineItem
	index      int
	role       models.Role
	flags      models.RoleFlags
	confidence float64
	source     string
	latestAbs  float64
}

func (c candidate) provenance() *Provenance {
	return provenance(c.item.Tag, c.item.Label, c.role, c.confidence, c.item.Periods, "reported", c.source)
}

// broadLiabilityTags are rollups that must never stand in for accounts
// payable unless the filer's label says "payable".
var broadLiabilityTags = map[string]bool{
	"LiabilitiesCurrent":               true,
	"Liabilities":                      true,
	"LiabilitiesAndStockholdersEquity": true,
	"OtherLiabilitiesCurrent":          true,
}

// gather collects every consolidated item with values whose effective role
// or classifier guess is one of the variable's roles.
func gather(variable rules.Variable, in Input) []candidate {
	if in.Bundle == nil {
		return nil
	}
	statements := []models.StatementType{variable.Statement}
	for _, r := range variable.Roles {
		if st := r.Statement(); st != "" && st != variable.Statement {
			statements = append(statements, st)
		}
	}

	var out []candidate
	index := 0
	seen := map[models.StatementType]bool{}
	for _, st := range statements {
		if seen[st] {
			continue
		}
		seen[st] = true
		for _, li := range in.Bundle.Items(st) {
			index++
			if !li.Consolidated() || !li.HasValues() {
				continue
			}
			c, ok := classify(variable, li, in.Assignments)
			if !ok || filtered(variable, li) {
				continue
			}
			c.index = index
			out = append(out, c)
		}
	}
	return out
}

func classify(variable rules.Variable, li models.LineItem, assignments *models.Assignments) (candidate, bool) {
	c := candidate{item: li}
	if role := assignments.RoleOf(li); role != "" && variable.HasRole(role) {
		c.role, c.confidence, c.source = role, 1.0, SourceModelRole
	} else if cl := li.LLMClassification; cl != nil && variable.HasRole(cl.BestFitRole) {
		c.role, c.confidence, c.source = cl.BestFitRole, cl.Confidence, SourceLLMClassification
	} else {
		return c, false
	}
	flags, known := c.role.Flags()
	if !known {
		// Roles outside the enumeration rank below every known role.
		zap.L().Debug("validate: candidate has unknown role", zap.String("tag", li.Tag), zap.String("role", string(c.role)))
		flags = models.RoleFlags{}
	}
	c.flags = flags
	if _, v, ok := li.Periods.Latest(); ok {
		c.latestAbs = math.Abs(v)
	}
	return c, true
}

func filtered(variable rules.Variable, li models.LineItem) bool {
	if variable.Name != "Accounts Payable" {
		return false
	}
	if !broadLiabilityTags[models.LocalTag(li.Tag)] {
		return false
	}
	return !strings.Contains(strings.ToLower(li.Label), "payable")
}

// variableTieBreak orders candidates of the same flag class for specific
// variables. Lower wins.
func variableTieBreak(variable rules.Variable, c candidate) int {
	if variable.Name == "Accounts Payable" && c.role == models.RoleAPAndAccrued {
		return 1
	}
	return 0
}

// rank sorts candidates by core-3-statement flag, DCF flag, the variable's
// own tie-break, confidence, absolute latest value, tag and input index.
func rank(variable rules.Variable, cs []candidate) []candidate {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.flags.Core3Statement != b.flags.Core3Statement {
			return a.flags.Core3Statement
		}
		if a.flags.DCFKey != b.flags.DCFKey {
			return a.flags.DCFKey
		}
		if ta, tb := variableTieBreak(variable, a), variableTieBreak(variable, b); ta != tb {
			return ta < tb
		}
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if a.latestAbs != b.latestAbs {
			return a.latestAbs > b.latestAbs
		}
		if a.item.Tag != b.item.Tag {
			return a.item.Tag < b.item.Tag
		}
		return a.index < b.index
	})
	return cs
}
