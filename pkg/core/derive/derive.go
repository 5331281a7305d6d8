// Package derive computes variables that are not reported directly, using
// fixed formulas over anchors. Each formula carries a guardrail; periods
// that fail it are dropped and the reason recorded.
//
// Every function returns nil when its inputs are missing or no period
// survives. nil means "not computable", never an error.
package derive

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"lineitem_engine/pkg/models"
)

// Variable names produced by this package.
const (
	GrossProfitName     = "Gross Profit"
	OperatingCostsName  = "Operating Costs"
	EBITDAName          = "EBITDA"
	DebtAmountName      = "Debt Amount"
	AccruedExpensesName = "Accrued Expenses"
	OperatingMarginName = "Operating Margin"
	FreeCashFlowName    = "Free Cash Flow"
	NetDebtName         = "Net Debt"
)

// Func is a derivation over anchors.
type Func func(models.Anchors) *models.ComputedVariable

// registry maps the derivation names used in the rule table.
var registry = map[string]Func{
	"gross_profit":     GrossProfit,
	"operating_costs":  OperatingCosts,
	"ebitda":           EBITDA,
	"debt_amount":      DebtAmount,
	"accrued_expenses": AccruedExpenses,
	"operating_margin": OperatingMargin,
	"free_cash_flow":   FreeCashFlow,
	"net_debt":         NetDebt,
}

// Lookup returns the derivation registered under name.
func Lookup(name string) (Func, bool) {
	f, ok := registry[name]
	return f, ok
}

// All runs every derivation and returns the computable ones by variable
// name.
func All(anchors models.Anchors) map[string]*models.ComputedVariable {
	out := make(map[string]*models.ComputedVariable)
	for _, f := range []Func{GrossProfit, OperatingCosts, EBITDA, DebtAmount, AccruedExpenses, OperatingMargin, FreeCashFlow, NetDebt} {
		if cv := f(anchors); cv != nil {
			out[cv.Name] = cv
		}
	}
	return out
}

// GrossProfit = Revenue - COGS for every period both report.
func GrossProfit(a models.Anchors) *models.ComputedVariable {
	rev, okR := a.Get(models.RoleRevenue)
	cogs, okC := a.Get(models.RoleCOGS)
	if !okR || !okC {
		return nil
	}
	cv := newVar(GrossProfitName, models.RoleGrossProfit, models.StatusComputed, "Revenue - COGS", rev.Tag, cogs.Tag)
	for _, p := range shared(rev.Periods, cogs.Periods) {
		cv.Periods[p] = rev.Periods[p] - cogs.Periods[p]
	}
	return finish(cv)
}

// OperatingCosts = Revenue - Operating Income, kept only where positive.
// Without an operating income anchor, COGS stands in as a proxy.
func OperatingCosts(a models.Anchors) *models.ComputedVariable {
	rev, okR := a.Get(models.RoleRevenue)
	oi, okO := a.Get(models.RoleOperatingIncome)
	if okR && okO {
		cv := newVar(OperatingCostsName, models.RoleOperatingExpenses, models.StatusComputed, "Revenue - Operating Income", rev.Tag, oi.Tag)
		for _, p := range shared(rev.Periods, oi.Periods) {
			v := rev.Periods[p] - oi.Periods[p]
			if v <= 0 {
				cv.Guardrails = append(cv.Guardrails, fmt.Sprintf("%s: Revenue - Operating Income = %s is not positive, excluded", p, num(v)))
				continue
			}
			cv.Periods[p] = v
		}
		return finish(cv)
	}
	if okO {
		return nil
	}
	cogs, okC := a.Get(models.RoleCOGS)
	if !okC {
		return nil
	}
	cv := newVar(OperatingCostsName, models.RoleOperatingExpenses, models.StatusProxy, "COGS used as proxy (operating income not reported)", cogs.Tag)
	for p, v := range cogs.Periods {
		cv.Periods[p] = v
	}
	return finish(cv)
}

// EBITDA = Operating Income + D&A. D&A comes from the income statement
// when reported there, otherwise from the cash flow statement. Both inputs
// must exist for a period. D&A is added as a magnitude; filers report it
// with either sign.
func EBITDA(a models.Anchors) *models.ComputedVariable {
	oi, okO := a.Get(models.RoleOperatingIncome)
	if !okO {
		return nil
	}
	da, okD := a.Get(models.RoleISDepreciation)
	if !okD {
		da, okD = a.Get(models.RoleCFDepreciation)
	}
	if !okD {
		return nil
	}
	cv := newVar(EBITDAName, models.RoleEBITDA, models.StatusComputed, "Operating Income + D&A", oi.Tag, da.Tag)
	for _, p := range shared(oi.Periods, da.Periods) {
		cv.Periods[p] = oi.Periods[p] + math.Abs(da.Periods[p])
	}
	return finish(cv)
}

// DebtAmount = Debt Current + Debt Noncurrent. Either alone is a proxy.
func DebtAmount(a models.Anchors) *models.ComputedVariable {
	cur, okC := a.Get(models.RoleDebtCurrent)
	nc, okN := a.Get(models.RoleDebtNoncurrent)
	switch {
	case okC && okN:
		cv := newVar(DebtAmountName, models.RoleTotalDebt, models.StatusComputed, "Debt Current + Debt Noncurrent", cur.Tag, nc.Tag)
		for _, p := range shared(cur.Periods, nc.Periods) {
			cv.Periods[p] = cur.Periods[p] + nc.Periods[p]
		}
		return finish(cv)
	case okC:
		return copyProxy(DebtAmountName, models.RoleTotalDebt, "Debt Current only (noncurrent not reported)", cur)
	case okN:
		return copyProxy(DebtAmountName, models.RoleTotalDebt, "Debt Noncurrent only (current not reported)", nc)
	}
	return nil
}

// AccruedExpenses = Combined(AP + Accrued) - AP, kept only where not
// negative. Without a separate AP anchor the combined figure is a proxy.
func AccruedExpenses(a models.Anchors) *models.ComputedVariable {
	combined, okC := a.Get(models.RoleAPAndAccrued)
	if !okC {
		return nil
	}
	ap, okA := a.Get(models.RoleAccountsPayable)
	if !okA {
		return copyProxy(AccruedExpensesName, models.RoleAccruedExpenses, "Combined AP and accrued used as proxy (AP not reported separately)", combined)
	}
	cv := newVar(AccruedExpensesName, models.RoleAccruedExpenses, models.StatusComputed, "Combined(AP + Accrued) - AP", combined.Tag, ap.Tag)
	for _, p := range shared(combined.Periods, ap.Periods) {
		v := combined.Periods[p] - ap.Periods[p]
		if v < 0 {
			cv.Guardrails = append(cv.Guardrails, fmt.Sprintf("%s: Combined - AP = %s is negative, excluded", p, num(v)))
			continue
		}
		cv.Periods[p] = v
	}
	return finish(cv)
}

// OperatingMargin = Operating Income / Revenue where revenue is non-zero.
func OperatingMargin(a models.Anchors) *models.ComputedVariable {
	rev, okR := a.Get(models.RoleRevenue)
	oi, okO := a.Get(models.RoleOperatingIncome)
	if !okR || !okO {
		return nil
	}
	cv := newVar(OperatingMarginName, models.RoleOperatingMargin, models.StatusComputed, "Operating Income / Revenue", oi.Tag, rev.Tag)
	for _, p := range shared(rev.Periods, oi.Periods) {
		if rev.Periods[p] == 0 {
			cv.Guardrails = append(cv.Guardrails, fmt.Sprintf("%s: revenue is zero, excluded", p))
			continue
		}
		cv.Periods[p] = oi.Periods[p] / rev.Periods[p]
	}
	return finish(cv)
}

// FreeCashFlow = CFO - |CapEx|. Filers report capex with either sign.
func FreeCashFlow(a models.Anchors) *models.ComputedVariable {
	cfo, okO := a.Get(models.RoleOperatingCashFlow)
	capex, okC := a.Get(models.RoleCapex)
	if !okO || !okC {
		return nil
	}
	cv := newVar(FreeCashFlowName, models.RoleFreeCashFlow, models.StatusComputed, "Operating Cash Flow - |CapEx|", cfo.Tag, capex.Tag)
	for _, p := range shared(cfo.Periods, capex.Periods) {
		cv.Periods[p] = cfo.Periods[p] - math.Abs(capex.Periods[p])
	}
	return finish(cv)
}

// NetDebt = Debt Amount - Cash. A proxy debt amount keeps the result a
// proxy.
func NetDebt(a models.Anchors) *models.ComputedVariable {
	debt := DebtAmount(a)
	cash, okC := a.Get(models.RoleCash)
	if debt == nil || !okC {
		return nil
	}
	tags := append(append([]string{}, debt.SupportingTags...), cash.Tag)
	cv := newVar(NetDebtName, models.RoleNetDebt, debt.Status, "Debt Amount - Cash", tags...)
	for _, p := range shared(debt.Periods, cash.Periods) {
		cv.Periods[p] = debt.Periods[p] - cash.Periods[p]
	}
	return finish(cv)
}

func newVar(name string, role models.Role, status models.ComputedStatus, method string, tags ...string) *models.ComputedVariable {
	return &models.ComputedVariable{
		Name:              name,
		Role:              role,
		Periods:           make(models.Periods),
		Status:            status,
		SupportingTags:    tags,
		ComputationMethod: method,
	}
}

func copyProxy(name string, role models.Role, method string, src models.AnchorFact) *models.ComputedVariable {
	cv := newVar(name, role, models.StatusProxy, method, src.Tag)
	for p, v := range src.Periods {
		cv.Periods[p] = v
	}
	return finish(cv)
}

// finish drops variables with no surviving period.
func finish(cv *models.ComputedVariable) *models.ComputedVariable {
	for _, g := range cv.Guardrails {
		zap.L().Debug("derive: guardrail", zap.String("variable", cv.Name), zap.String("reason", g))
	}
	if len(cv.Periods) == 0 {
		return nil
	}
	return cv
}

// shared returns the periods present in both series, ascending.
func shared(a, b models.Periods) []string {
	var out []string
	for _, p := range a.Keys() {
		if _, ok := b[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func num(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
