// Package reconcile runs cross-statement consistency checks over resolved
// anchors. The balance sheet must balance, the cash flow sections must
// roll up to the change in cash, and net income must agree between the
// income statement and the cash flow statement.
//
// Failures are reported as data. Nothing here returns an error.
package reconcile

import (
	"encoding/json"
	"math"
	"sort"

	"go.uber.org/zap"

	"lineitem_engine/pkg/models"
)

// Status is a check's verdict across periods.
type Status string

const (
	StatusPass    Status = "pass"
	StatusPartial Status = "partial"
	StatusFail    Status = "fail"
)

const missingItems = "Missing required line items"

// Tolerances bound the discrepancy each check accepts.
type Tolerances struct {
	// BalanceSheetPct is relative to |Assets|.
	BalanceSheetPct float64 `mapstructure:"balance_sheet_pct" json:"balance_sheet_pct"`
	// CashFlowAbs applies to both cash flow sub-checks.
	CashFlowAbs float64 `mapstructure:"cash_flow_abs" json:"cash_flow_abs"`
	// NetIncomePct is relative to |IS net income|; NetIncomeFloor is used
	// when IS net income is zero.
	NetIncomePct   float64 `mapstructure:"net_income_pct" json:"net_income_pct"`
	NetIncomeFloor float64 `mapstructure:"net_income_floor" json:"net_income_floor"`
}

// DefaultTolerances returns 0.5% / $1000 / 0.1% with a $1000 floor.
func DefaultTolerances() Tolerances {
	return Tolerances{
		BalanceSheetPct: 0.005,
		CashFlowAbs:     1000,
		NetIncomePct:    0.001,
		NetIncomeFloor:  1000,
	}
}

// =============================================================================
// RESULT TYPES
// =============================================================================

// BalanceDetail compares Assets with Liabilities + Equity.
type BalanceDetail struct {
	Assets                float64 `json:"assets"`
	Liabilities           float64 `json:"liabilities"`
	Equity                float64 `json:"equity"`
	LiabilitiesPlusEquity float64 `json:"liabilities_plus_equity"`
	Difference            float64 `json:"difference"`
	DiffPct               float64 `json:"diff_pct"`
}

// MarshalJSON writes an undefined DiffPct as null.
func (d BalanceDetail) MarshalJSON() ([]byte, error) {
	type plain BalanceDetail
	out := struct {
		plain
		DiffPct *float64 `json:"diff_pct"`
	}{plain: plain(d)}
	if !math.IsInf(d.DiffPct, 0) && !math.IsNaN(d.DiffPct) {
		out.DiffPct = &d.DiffPct
	}
	return json.Marshal(out)
}

// CashFlowDetail holds both cash flow sub-checks for one period.
type CashFlowDetail struct {
	CFO          float64 `json:"cfo"`
	CFI          float64 `json:"cfi"`
	CFF          float64 `json:"cff"`
	CFSum        float64 `json:"cf_sum"`
	NetChange    float64 `json:"net_change"`
	CFDifference float64 `json:"cf_difference"`
	SumPasses    bool    `json:"sum_passes"`

	BeginningCashAvailable bool    `json:"beginning_cash_available"`
	BeginningCash          float64 `json:"beginning_cash,omitempty"`
	EndingCash             float64 `json:"ending_cash,omitempty"`
	CashChange             float64 `json:"cash_change,omitempty"`
	CashDifference         float64 `json:"cash_difference,omitempty"`
	// CashPasses is nil when the cash roll-forward could not be evaluated.
	CashPasses *bool `json:"cash_passes,omitempty"`
}

// NetIncomeDetail compares IS and CF net income.
type NetIncomeDetail struct {
	ISNetIncome float64 `json:"is_net_income"`
	CFNetIncome float64 `json:"cf_net_income"`
	Difference  float64 `json:"difference"`
	Tolerance   float64 `json:"tolerance"`
}

// PeriodResult is one period's outcome. Exactly one detail is set when
// the inputs were present.
type PeriodResult struct {
	Passes    bool             `json:"passes"`
	Reason    string           `json:"reason,omitempty"`
	Balance   *BalanceDetail   `json:"balance,omitempty"`
	CashFlow  *CashFlowDetail  `json:"cash_flow,omitempty"`
	NetIncome *NetIncomeDetail `json:"net_income,omitempty"`
}

// CheckResult is one check across all periods.
type CheckResult struct {
	Name       string                  `json:"name"`
	Status     Status                  `json:"status"`
	Periods    map[string]PeriodResult `json:"periods"`
	Resolution string                  `json:"resolution"`
}

// SortedPeriods returns the checked periods ascending.
func (c CheckResult) SortedPeriods() []string {
	keys := make([]string, 0, len(c.Periods))
	for k := range c.Periods {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Report holds all three checks.
type Report struct {
	BalanceSheet  CheckResult `json:"balance_sheet"`
	CashFlow      CheckResult `json:"cash_flow"`
	NetIncome     CheckResult `json:"net_income"`
	OverallStatus Status      `json:"overall_status"`
}

// Checks returns the checks in report order.
func (r Report) Checks() []CheckResult {
	return []CheckResult{r.BalanceSheet, r.CashFlow, r.NetIncome}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine runs the checks with fixed tolerances.
type Engine struct {
	tol Tolerances
}

// NewEngine creates an engine. Unset (zero or negative) tolerances fall
// back to defaults; config.Validate rejects them before they get here.
func NewEngine(tol Tolerances) *Engine {
	def := DefaultTolerances()
	if tol.BalanceSheetPct <= 0 {
		tol.BalanceSheetPct = def.BalanceSheetPct
	}
	if tol.CashFlowAbs <= 0 {
		tol.CashFlowAbs = def.CashFlowAbs
	}
	if tol.NetIncomePct <= 0 {
		tol.NetIncomePct = def.NetIncomePct
	}
	if tol.NetIncomeFloor <= 0 {
		tol.NetIncomeFloor = def.NetIncomeFloor
	}
	return &Engine{tol: tol}
}

// Tolerances returns the effective tolerances.
func (e *Engine) Tolerances() Tolerances {
	return e.tol
}

// Run performs all three checks against anchors.
func (e *Engine) Run(anchors models.Anchors) Report {
	r := Report{
		BalanceSheet: e.BalanceSheet(anchors),
		CashFlow:     e.CashFlow(anchors),
		NetIncome:    e.NetIncome(anchors),
	}
	r.OverallStatus = Overall(r.Checks()...)
	if r.OverallStatus != StatusPass {
		zap.L().Info("reconcile: checks did not all pass",
			zap.String("balance_sheet", string(r.BalanceSheet.Status)),
			zap.String("cash_flow", string(r.CashFlow.Status)),
			zap.String("net_income", string(r.NetIncome.Status)),
		)
	}
	return r
}

// BalanceSheet checks |Assets - (Liabilities + Equity)| / |Assets|.
func (e *Engine) BalanceSheet(anchors models.Anchors) CheckResult {
	assets := series(anchors, models.RoleTotalAssets)
	liabilities := series(anchors, models.RoleTotalLiabilities)
	equity := series(anchors, models.RoleTotalEquity)

	out := newCheck("balance_sheet")
	for _, p := range union(assets, liabilities, equity) {
		a, okA := assets[p]
		l, okL := liabilities[p]
		eq, okE := equity[p]
		if !okA || !okL || !okE {
			out.Periods[p] = PeriodResult{Reason: missingItems}
			continue
		}
		d := CheckBalance(a, l, eq)
		pr := PeriodResult{Balance: d, Passes: a != 0 && d.DiffPct <= e.tol.BalanceSheetPct}
		if a == 0 {
			pr.Reason = "total assets is zero"
		}
		out.Periods[p] = pr
	}
	out.Status = Aggregate(out.Periods)
	out.Resolution = balanceResolution(out.Status)
	return out
}

// CashFlow checks NetChange against CFO+CFI+CFF, and against the change
// in balance sheet cash from the prior period. Both must pass; the cash
// roll-forward is skipped when no prior cash balance exists.
func (e *Engine) CashFlow(anchors models.Anchors) CheckResult {
	cfo := series(anchors, models.RoleOperatingCashFlow)
	cfi := series(anchors, models.RoleInvestingCashFlow)
	cff := series(anchors, models.RoleFinancingCashFlow)
	net := series(anchors, models.RoleNetChangeInCash)
	cash := series(anchors, models.RoleCash)

	out := newCheck("cash_flow")
	for _, p := range union(cfo, cfi, cff, net) {
		o, ok1 := cfo[p]
		i, ok2 := cfi[p]
		f, ok3 := cff[p]
		n, ok4 := net[p]
		if !ok1 || !ok2 || !ok3 || !ok4 {
			out.Periods[p] = PeriodResult{Reason: missingItems}
			continue
		}
		d := CheckCashFlowSum(o, i, f, n)
		d.SumPasses = math.Abs(d.CFDifference) <= e.tol.CashFlowAbs
		passes := d.SumPasses

		ending, okEnd := cash[p]
		prior, okPrior := cash.Prior(p)
		if okEnd && okPrior {
			begin := cash[prior]
			d.BeginningCashAvailable = true
			d.BeginningCash, d.EndingCash = begin, ending
			d.CashChange = ending - begin
			d.CashDifference = n - d.CashChange
			ok := math.Abs(d.CashDifference) <= e.tol.CashFlowAbs
			d.CashPasses = &ok
			passes = passes && ok
		}
		pr := PeriodResult{Passes: passes, CashFlow: d}
		if !d.BeginningCashAvailable {
			pr.Reason = "cash roll-forward not evaluable: no prior balance sheet cash"
		}
		out.Periods[p] = pr
	}
	out.Status = Aggregate(out.Periods)
	out.Resolution = cashFlowResolution(out.Status)
	return out
}

// NetIncome checks IS net income against the CF starting net income.
func (e *Engine) NetIncome(anchors models.Anchors) CheckResult {
	is := series(anchors, models.RoleISNetIncome)
	cf := series(anchors, models.RoleCFNetIncome)

	out := newCheck("net_income")
	for _, p := range union(is, cf) {
		a, okIS := is[p]
		b, okCF := cf[p]
		if !okIS || !okCF {
			out.Periods[p] = PeriodResult{Reason: missingItems}
			continue
		}
		tol := e.tol.NetIncomePct * math.Abs(a)
		if a == 0 {
			tol = e.tol.NetIncomeFloor
		}
		d := &NetIncomeDetail{ISNetIncome: a, CFNetIncome: b, Difference: a - b, Tolerance: tol}
		out.Periods[p] = PeriodResult{Passes: math.Abs(d.Difference) <= tol, NetIncome: d}
	}
	out.Status = Aggregate(out.Periods)
	out.Resolution = netIncomeResolution(out.Status)
	return out
}

// =============================================================================
// EQUATIONS
// =============================================================================

// CheckBalance computes the A = L + E discrepancy. DiffPct is a fraction
// of |Assets|, or +Inf when assets are zero and the sides differ.
func CheckBalance(assets, liabilities, equity float64) *BalanceDetail {
	le := liabilities + equity
	diff := assets - le
	d := &BalanceDetail{
		Assets:                assets,
		Liabilities:           liabilities,
		Equity:                equity,
		LiabilitiesPlusEquity: le,
		Difference:            diff,
	}
	switch {
	case assets != 0:
		d.DiffPct = math.Abs(diff) / math.Abs(assets)
	case diff != 0:
		d.DiffPct = math.Inf(1)
	}
	return d
}

// CheckCashFlowSum computes NetChange - (CFO + CFI + CFF).
func CheckCashFlowSum(cfo, cfi, cff, netChange float64) *CashFlowDetail {
	sum := cfo + cfi + cff
	return &CashFlowDetail{
		CFO:          cfo,
		CFI:          cfi,
		CFF:          cff,
		CFSum:        sum,
		NetChange:    netChange,
		CFDifference: netChange - sum,
	}
}

// =============================================================================
// AGGREGATION
// =============================================================================

// Aggregate is pass when every period passes, fail when none does (or
// there are no periods), partial otherwise.
func Aggregate(periods map[string]PeriodResult) Status {
	passed := 0
	for _, pr := range periods {
		if pr.Passes {
			passed++
		}
	}
	switch {
	case len(periods) == 0 || passed == 0:
		return StatusFail
	case passed == len(periods):
		return StatusPass
	}
	return StatusPartial
}

// Overall combines checks; any fail makes the whole run fail.
func Overall(checks ...CheckResult) Status {
	if len(checks) == 0 {
		return StatusFail
	}
	all := true
	for _, c := range checks {
		if c.Status == StatusFail {
			return StatusFail
		}
		if c.Status != StatusPass {
			all = false
		}
	}
	if all {
		return StatusPass
	}
	return StatusPartial
}

func newCheck(name string) CheckResult {
	return CheckResult{Name: name, Periods: make(map[string]PeriodResult)}
}

func series(anchors models.Anchors, role models.Role) models.Periods {
	if f, ok := anchors.Get(role); ok {
		return f.Periods
	}
	return nil
}

func union(ps ...models.Periods) []string {
	set := map[string]bool{}
	for _, p := range ps {
		for k := range p {
			set[k] = true
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func balanceResolution(s Status) string {
	switch s {
	case StatusPass:
		return "Balance sheet balances in every period."
	case StatusPartial:
		return "Balance sheet balances in some periods only. Check the failing periods for a missing equity component (noncontrolling interest, temporary equity) or a mis-anchored total."
	}
	return "Balance sheet does not balance or is incomplete. Confirm the Total Assets, Total Liabilities and Total Equity anchors; temporary equity and noncontrolling interest are common gaps."
}

func cashFlowResolution(s Status) string {
	switch s {
	case StatusPass:
		return "Cash flow sections sum to the net change in cash."
	case StatusPartial:
		return "Cash flow reconciles in some periods only. Look for an FX effect line or restricted cash in the failing periods."
	}
	return "Cash flow does not reconcile. Check CFO/CFI/CFF anchors, the FX effect on cash, and whether balance sheet cash includes restricted cash."
}

func netIncomeResolution(s Status) string {
	switch s {
	case StatusPass:
		return "Net income agrees between income statement and cash flow statement."
	case StatusPartial:
		return "Net income agrees in some periods only. The cash flow statement may start from net income including noncontrolling interest."
	}
	return "Net income does not agree or is missing. Check whether one statement reports net income attributable to the parent and the other the consolidated figure."
}
