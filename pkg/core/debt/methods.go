package debt

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"lineitem_engine/pkg/core/rules"
	"lineitem_engine/pkg/models"
)

// Method names.
const (
	MethodDirectSum      = "Direct Sum"
	MethodReconstruction = "Balance Sheet Reconstruction"
	MethodRollForward    = "Roll-Forward"
	MethodInterest       = "Interest-Expense-Implied"
	MethodSegmented      = "Segmented Sum"
)

// bucket is a named quantity looked up in priority order: the first
// reported tag, otherwise the sum of reported parts, otherwise an item
// carrying the role.
type bucket struct {
	key   string
	name  string
	tags  []string
	parts []string
	role  models.Role
}

var (
	shortTermDebt = bucket{key: "short_term", name: "Short-term debt",
		tags: []string{"ShortTermBorrowings", "CommercialPaper", "ShortTermBankLoansAndNotesPayable", "OtherShortTermBorrowings"}}
	currentLTD = bucket{key: "current_ltd", name: "Current portion of long-term debt",
		tags: []string{"LongTermDebtCurrent", "LongTermDebtAndCapitalLeaseObligationsCurrent", "DebtCurrent"},
		role: models.RoleDebtCurrent}
	longTermDebt = bucket{key: "long_term", name: "Long-term debt",
		tags: []string{"LongTermDebtNoncurrent", "LongTermDebtAndCapitalLeaseObligations", "LongTermNotesPayable", "SeniorLongTermNotes"},
		role: models.RoleDebtNoncurrent}
	financeLeases = bucket{key: "finance_lease", name: "Finance lease liabilities",
		tags:  []string{"FinanceLeaseLiability", "CapitalLeaseObligations"},
		parts: []string{"FinanceLeaseLiabilityCurrent", "FinanceLeaseLiabilityNoncurrent"},
		role:  models.RoleFinanceLeaseLiabilities}
	otherDebt = bucket{key: "other", name: "Other interest-bearing debt",
		tags: []string{"OtherLongTermDebtNoncurrent", "OtherLongTermDebt", "OtherBorrowings", "OtherNotesPayable"}}

	debtBuckets = []bucket{shortTermDebt, currentLTD, longTermDebt, financeLeases, otherDebt}

	// inclusiveTags already contain another bucket's amount.
	inclusiveTags = map[string]string{
		"DebtCurrent":                                   shortTermDebt.key,
		"LongTermDebtAndCapitalLeaseObligations":        financeLeases.key,
		"LongTermDebtAndCapitalLeaseObligationsCurrent": financeLeases.key,
	}
)

var (
	totalLiabilities = bucket{key: "total_liabilities", name: "Total liabilities",
		tags: []string{"Liabilities"}, role: models.RoleTotalLiabilities}

	accountsPayable = bucket{key: "ap", name: "Accounts payable",
		tags: []string{"AccountsPayableCurrent", "AccountsPayableTradeCurrent"}, role: models.RoleAccountsPayable}
	accruedLiabilities = bucket{key: "accrued", name: "Accrued liabilities",
		tags: []string{"AccruedLiabilitiesCurrent", "OtherAccruedLiabilitiesCurrent"}, role: models.RoleAccruedExpenses}
	apAndAccrued = bucket{key: "ap_accrued", name: "Accounts payable and accrued liabilities",
		tags: []string{"AccountsPayableAndAccruedLiabilitiesCurrent", "AccountsPayableAndAccruedLiabilitiesCurrentAndNoncurrent"},
		role: models.RoleAPAndAccrued}

	otherNonDebt = []bucket{
		{key: "deferred_revenue", name: "Deferred revenue",
			tags:  []string{"ContractWithCustomerLiability", "DeferredRevenue"},
			parts: []string{"ContractWithCustomerLiabilityCurrent", "ContractWithCustomerLiabilityNoncurrent"},
			role:  models.RoleDeferredRevenue},
		{key: "operating_lease", name: "Operating lease liabilities",
			tags:  []string{"OperatingLeaseLiability"},
			parts: []string{"OperatingLeaseLiabilityCurrent", "OperatingLeaseLiabilityNoncurrent"},
			role:  models.RoleOperatingLeaseLiab},
		{key: "pension", name: "Pension and postretirement liabilities",
			tags: []string{"DefinedBenefitPensionPlanLiabilitiesNoncurrent", "PensionAndOtherPostretirementDefinedBenefitPlansLiabilitiesNoncurrent"},
			role: models.RolePensionLiabilities},
		{key: "deferred_tax", name: "Deferred tax liabilities",
			tags: []string{"DeferredIncomeTaxLiabilitiesNet", "DeferredTaxLiabilitiesNoncurrent"},
			role: models.RoleDeferredTaxLiabilities},
		{key: "income_tax", name: "Income taxes payable",
			tags: []string{"AccruedIncomeTaxesCurrent", "TaxesPayableCurrent"}},
		{key: "other_liabilities", name: "Other liabilities",
			parts: []string{"OtherLiabilitiesCurrent", "OtherLiabilitiesNoncurrent"}},
	}
)

var (
	debtIssued = bucket{key: "issued", name: "Debt issued",
		tags: []string{"ProceedsFromIssuanceOfLongTermDebt", "ProceedsFromIssuanceOfDebt", "ProceedsFromIssuanceOfSeniorLongTermDebt", "ProceedsFromConvertibleDebt"},
		role: models.RoleDebtIssued}
	debtRepaid = bucket{key: "repaid", name: "Debt repaid",
		tags: []string{"RepaymentsOfLongTermDebt", "RepaymentsOfDebt", "RepaymentsOfSeniorDebt", "RepaymentsOfConvertibleDebt"},
		role: models.RoleDebtRepaid}
	netShortTerm = bucket{key: "net_short_term", name: "Net short-term borrowings",
		tags: []string{"ProceedsFromRepaymentsOfShortTermDebt", "ProceedsFromRepaymentsOfCommercialPaper"}}
	leasePrincipal = bucket{key: "finance_lease_principal", name: "Finance lease principal payments",
		tags: []string{"FinanceLeasePrincipalPayments", "RepaymentsOfLongTermCapitalLeaseObligations"},
		role: models.RoleFinanceLeasePrincipal}

	interestExpense = bucket{key: "interest", name: "Interest expense",
		tags: []string{"InterestExpense", "InterestExpenseDebt", "InterestExpenseNonoperating"},
		role: models.RoleInterestExpense}
)

// listedTags holds every tag a bucket names explicitly. Such items are
// counted by that bucket, so the role fallback never picks them up again.
var listedTags = func() map[string]bool {
	out := map[string]bool{}
	for _, tags := range Tags() {
		for _, tag := range tags {
			out[tag] = true
		}
	}
	return out
}()

// evidence indexes the input by statement.
type evidence struct {
	in       Input
	bs       []models.LineItem
	is       []models.LineItem
	cf       []models.LineItem
	segments map[string][]models.LineItem
}

func newEvidence(in Input) *evidence {
	ev := &evidence{in: in, segments: map[string][]models.LineItem{}}
	for _, li := range in.Items {
		if !li.Consolidated() {
			if li.StatementType == models.BalanceSheet {
				ev.segments[li.Segment] = append(ev.segments[li.Segment], li)
			}
			continue
		}
		switch li.StatementType {
		case models.BalanceSheet:
			ev.bs = append(ev.bs, li)
		case models.IncomeStatement:
			ev.is = append(ev.is, li)
		case models.CashFlow:
			ev.cf = append(ev.cf, li)
		}
	}
	return ev
}

// lookup resolves a bucket for period. found is false when nothing was
// reported.
func (ev *evidence) lookup(items []models.LineItem, b bucket, period string) (total float64, comps []Component, found bool) {
	for _, tag := range b.tags {
		if li, v, ok := valueByTag(items, tag, period); ok {
			return v, []Component{xbrl(b.name, li, v)}, true
		}
	}
	for _, tag := range b.parts {
		if li, v, ok := valueByTag(items, tag, period); ok {
			total += v
			comps = append(comps, xbrl(b.name, li, v))
			found = true
		}
	}
	if found {
		return total, comps, true
	}
	if b.role != "" {
		for _, li := range items {
			if ev.in.Assignments.RoleOf(li) != b.role || listedTags[models.LocalTag(li.Tag)] {
				continue
			}
			if v, ok := li.Periods[period]; ok {
				return v, []Component{{
					Name:             b.name,
					SourceType:       SourceStatement,
					SourceIdentifier: li.Tag,
					Context:          "assigned " + string(b.role),
					Value:            v,
				}}, true
			}
		}
	}
	return 0, nil, false
}

func (ev *evidence) validated(name, period string) (float64, bool) {
	p, ok := ev.in.Validated[name]
	if !ok {
		return 0, false
	}
	v, ok := p[period]
	return v, ok
}

func valueByTag(items []models.LineItem, tag, period string) (models.LineItem, float64, bool) {
	for _, li := range items {
		if models.LocalTag(li.Tag) != tag {
			continue
		}
		if v, ok := li.Periods[period]; ok {
			return li, v, true
		}
	}
	return models.LineItem{}, 0, false
}

func xbrl(name string, li models.LineItem, v float64) Component {
	c := Component{Name: name, SourceType: SourceXBRL, SourceIdentifier: li.Tag, Value: v}
	if li.Segment != "" {
		c.Context = "segment: " + li.Segment
	} else {
		c.Context = "consolidated"
	}
	return c
}

// =============================================================================
// 1. DIRECT SUM
// =============================================================================

func (ev *evidence) directSum(period string) MethodResult {
	m := MethodResult{
		MethodName:  MethodDirectSum,
		Description: "Bottom-up sum of reported debt buckets",
		Formula:     "Short-term debt + Current LTD + Long-term debt + Finance leases + Other interest-bearing",
	}
	total, found := ev.sumBuckets(&m, ev.bs, period)
	if found {
		m.set(total)
		return m
	}
	if v, ok := ev.validated(VarDebtAmount, period); ok {
		m.add(Component{Name: "Debt Amount", SourceType: SourceDerived, SourceIdentifier: "validated " + VarDebtAmount, Value: v})
		m.warn("no debt buckets reported; fell back to validated %s", VarDebtAmount)
		m.set(v)
		return m
	}
	m.warn("no debt buckets reported for %s", period)
	return m
}

// sumBuckets adds every debt bucket reported in items. Missing buckets
// count as zero with a warning.
func (ev *evidence) sumBuckets(m *MethodResult, items []models.LineItem, period string) (float64, bool) {
	type hit struct {
		b     bucket
		total float64
		comps []Component
	}
	var hits []hit
	covered := map[string]string{}
	var missing []string
	for _, b := range debtBuckets {
		total, comps, ok := ev.lookup(items, b, period)
		if !ok {
			missing = append(missing, b.name)
			continue
		}
		hits = append(hits, hit{b, total, comps})
		for _, c := range comps {
			if key, ok := inclusiveTags[models.LocalTag(c.SourceIdentifier)]; ok {
				covered[key] = models.LocalTag(c.SourceIdentifier)
			}
		}
	}
	if len(hits) == 0 {
		return 0, false
	}
	var sum float64
	for _, h := range hits {
		if tag, ok := covered[h.b.key]; ok {
			m.warn("%s skipped: already included in %s", h.b.name, tag)
			continue
		}
		sum += h.total
		for _, c := range h.comps {
			m.add(c)
		}
	}
	if len(missing) > 0 {
		m.warn("not reported, treated as 0: %s", strings.Join(missing, ", "))
	}
	return sum, true
}

// =============================================================================
// 2. BALANCE SHEET RECONSTRUCTION
// =============================================================================

func (ev *evidence) reconstruction(period string) MethodResult {
	m := MethodResult{
		MethodName:  MethodReconstruction,
		Description: "Top-down: total liabilities less known non-debt liabilities",
		Formula:     "Total Liabilities - (AP + Accrued + Deferred revenue + Operating leases + Pension + Deferred tax + Taxes payable + Other)",
	}
	tl, comps, ok := ev.lookup(ev.bs, totalLiabilities, period)
	if !ok {
		v, okV := ev.validated(VarTotalLiabilities, period)
		if !okV {
			m.warn("total liabilities not reported for %s", period)
			return m
		}
		tl = v
		comps = []Component{{Name: totalLiabilities.name, SourceType: SourceDerived, SourceIdentifier: "validated " + VarTotalLiabilities, Value: v}}
	}
	for _, c := range comps {
		m.add(c)
	}

	less := 0.0
	subtract := func(cs []Component, total float64) {
		less += total
		for _, c := range cs {
			c.Name = "Less " + c.Name
			m.add(c)
		}
	}
	var missing []string

	apV, apC, apOK := ev.lookup(ev.bs, accountsPayable, period)
	acV, acC, acOK := ev.lookup(ev.bs, accruedLiabilities, period)
	coV, coC, coOK := ev.lookup(ev.bs, apAndAccrued, period)
	switch {
	case apOK || acOK:
		if apOK {
			subtract(apC, apV)
		} else {
			missing = append(missing, accountsPayable.name)
		}
		if acOK {
			subtract(acC, acV)
		} else {
			missing = append(missing, accruedLiabilities.name)
		}
		if coOK {
			m.warn("combined AP and accrued (%s) ignored: separate components reported", coC[0].SourceIdentifier)
		}
	case coOK:
		subtract(coC, coV)
	default:
		missing = append(missing, accountsPayable.name, accruedLiabilities.name)
	}

	for _, b := range otherNonDebt {
		v, cs, ok := ev.lookup(ev.bs, b, period)
		if !ok {
			missing = append(missing, b.name)
			continue
		}
		subtract(cs, v)
	}
	if len(missing) > 0 {
		m.warn("not reported, treated as 0: %s", strings.Join(missing, ", "))
	}

	v := tl - less
	if v < 0 {
		m.warn("reconstructed debt is negative (%s); non-debt liabilities exceed total liabilities, result discarded", amount(v))
		return m
	}
	if v > tl {
		m.warn("reconstructed debt exceeds total liabilities")
	}
	m.set(v)
	return m
}

// =============================================================================
// 3. ROLL-FORWARD
// =============================================================================

func (ev *evidence) rollForward(period, prior string) MethodResult {
	m := MethodResult{
		MethodName:  MethodRollForward,
		Description: "Prior-period debt rolled forward with cash flow debt movements",
		Formula:     "Prior debt + Issued - Repaid + Net short-term borrowings - Finance lease principal",
	}
	if prior == "" {
		m.warn("no prior period; roll-forward not computable")
		return m
	}
	base := ev.directSum(prior)
	if base.Value == nil {
		m.warn("prior-period debt (%s) not available", prior)
		return m
	}
	m.add(Component{
		Name:             "Prior-period debt",
		SourceType:       SourceDerived,
		SourceIdentifier: MethodDirectSum,
		Context:          "period " + prior,
		Value:            *base.Value,
	})
	v := *base.Value
	moved := false

	if amt, cs, ok := ev.lookup(ev.cf, debtIssued, period); ok {
		v += math.Abs(amt)
		ev.addAll(&m, cs)
		moved = true
	} else {
		m.warn("no debt issuance reported, treated as 0")
	}
	if amt, cs, ok := ev.lookup(ev.cf, debtRepaid, period); ok {
		v -= math.Abs(amt)
		ev.addAll(&m, cs)
		moved = true
	} else {
		m.warn("no debt repayment reported, treated as 0")
	}
	if amt, cs, ok := ev.lookup(ev.cf, netShortTerm, period); ok {
		v += amt
		ev.addAll(&m, cs)
		moved = true
	}
	if amt, cs, ok := ev.leasePrincipal(period); ok {
		v -= math.Abs(amt)
		ev.addAll(&m, cs)
		moved = true
	}
	if !moved {
		m.warn("no debt movements found; result equals prior-period debt")
	}
	if v < 0 {
		m.warn("rolled-forward debt is negative (%s), result discarded", amount(v))
		return m
	}
	m.set(v)
	return m
}

// leasePrincipal finds finance lease principal payments by tag, role, or
// by keyword when the filer uses a custom tag.
func (ev *evidence) leasePrincipal(period string) (float64, []Component, bool) {
	if v, cs, ok := ev.lookup(ev.cf, leasePrincipal, period); ok {
		return v, cs, true
	}
	for _, li := range ev.cf {
		text := rules.MatchText(li)
		if !anyPhrase(text, "finance lease", "finance leases", "capital lease", "capital leases") ||
			!anyPhrase(text, "principal", "payments", "repayments") {
			continue
		}
		if v, ok := li.Periods[period]; ok {
			c := xbrl(leasePrincipal.name, li, v)
			c.Context = "detected by keyword"
			return v, []Component{c}, true
		}
	}
	return 0, nil, false
}

func anyPhrase(text string, phrases ...string) bool {
	for _, p := range phrases {
		if rules.ContainsPhrase(text, p) {
			return true
		}
	}
	return false
}

func (ev *evidence) addAll(m *MethodResult, cs []Component) {
	for _, c := range cs {
		m.add(c)
	}
}

// =============================================================================
// 4. INTEREST-EXPENSE-IMPLIED
// =============================================================================

func (ev *evidence) interestImplied(period string, rate float64) MethodResult {
	m := MethodResult{
		MethodName:  MethodInterest,
		Description: "Sanity check: interest expense divided by an assumed average rate. Approximate, not authoritative",
		Formula:     fmt.Sprintf("|Interest Expense| / %.1f%%", rate*100),
	}
	if rate <= 0 {
		m.warn("assumed rate must be positive")
		return m
	}
	ie, cs, ok := ev.lookup(ev.is, interestExpense, period)
	if !ok {
		v, okV := ev.validated(VarInterestExpense, period)
		if !okV {
			m.warn("interest expense not reported for %s", period)
			return m
		}
		ie = v
		cs = []Component{{Name: interestExpense.name, SourceType: SourceDerived, SourceIdentifier: "validated " + VarInterestExpense, Value: v}}
	}
	ev.addAll(&m, cs)
	if ie == 0 {
		m.warn("interest expense is zero")
		return m
	}
	m.warn("approximation: assumes a %.1f%% average cost of debt", rate*100)
	m.set(math.Abs(ie) / rate)
	return m
}

// =============================================================================
// 5. SEGMENTED SUM
// =============================================================================

func (ev *evidence) segmented(period string) MethodResult {
	m := MethodResult{
		MethodName:  MethodSegmented,
		Description: "Sum of debt reported separately by business segment",
		Formula:     "Σ segment debt buckets",
	}
	names := make([]string, 0, len(ev.segments))
	for s := range ev.segments {
		names = append(names, s)
	}
	sort.Strings(names)

	var total float64
	reporting := 0
	for _, seg := range names {
		sub := MethodResult{}
		v, ok := ev.sumBuckets(&sub, ev.segments[seg], period)
		if !ok {
			continue
		}
		reporting++
		total += v
		ev.addAll(&m, sub.Components)
	}
	switch reporting {
	case 0:
		m.warn("no segment-level debt reported")
		return m
	case 1:
		m.warn("only one segment reports debt; segmented sum may be partial")
	}
	m.set(total)
	return m
}

// Tags returns every tag the estimators read, by statement, so ingestion
// can keep them.
func Tags() map[models.StatementType][]string {
	collect := func(bs ...bucket) []string {
		var out []string
		for _, b := range bs {
			out = append(out, b.tags...)
			out = append(out, b.parts...)
		}
		return out
	}
	bsBuckets := append([]bucket{totalLiabilities, accountsPayable, accruedLiabilities, apAndAccrued}, debtBuckets...)
	bsBuckets = append(bsBuckets, otherNonDebt...)
	return map[models.StatementType][]string{
		models.BalanceSheet:    collect(bsBuckets...),
		models.IncomeStatement: collect(interestExpense),
		models.CashFlow:        collect(debtIssued, debtRepaid, netShortTerm, leasePrincipal),
	}
}
