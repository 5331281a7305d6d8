package models

import "strings"

// Role is a canonical financial-statement concept, independent of any
// filer's tag naming. Roles are prefixed with their statement type.
type Role string

// Income statement roles
const (
	RoleRevenue           Role = "IS_REVENUE"
	RoleCOGS              Role = "IS_COGS"
	RoleGrossProfit       Role = "IS_GROSS_PROFIT"
	RoleOperatingExpenses Role = "IS_OPERATING_EXPENSES"
	RoleSGA               Role = "IS_SGA"
	RoleRD                Role = "IS_RD"
	RoleOperatingIncome   Role = "IS_OPERATING_INCOME"
	RoleISDepreciation    Role = "IS_DEPRECIATION_AMORTIZATION"
	RoleInterestExpense   Role = "IS_INTEREST_EXPENSE"
	RolePretaxIncome      Role = "IS_PRETAX_INCOME"
	RoleIncomeTax         Role = "IS_INCOME_TAX"
	RoleISNetIncome       Role = "IS_NET_INCOME"
	RoleEBITDA            Role = "IS_EBITDA"
	RoleOperatingMargin   Role = "IS_OPERATING_MARGIN"
	RoleDilutedEPS        Role = "IS_EPS_DILUTED"
	RoleDilutedShares     Role = "IS_SHARES_DILUTED"
)

// Balance sheet roles
const (
	RoleCash                    Role = "BS_CASH"
	RoleAccountsReceivable      Role = "BS_ACCOUNTS_RECEIVABLE"
	RoleInventory               Role = "BS_INVENTORY"
	RoleTotalCurrentAssets      Role = "BS_TOTAL_CURRENT_ASSETS"
	RolePPENet                  Role = "BS_PPE_NET"
	RoleGoodwill                Role = "BS_GOODWILL"
	RoleTotalAssets             Role = "BS_TOTAL_ASSETS"
	RoleAccountsPayable         Role = "BS_ACCOUNTS_PAYABLE"
	RoleAccruedExpenses         Role = "BS_ACCRUED_EXPENSES"
	RoleAPAndAccrued            Role = "BS_AP_AND_ACCRUED"
	RoleDeferredRevenue         Role = "BS_DEFERRED_REVENUE"
	RoleDebtCurrent             Role = "BS_DEBT_CURRENT"
	RoleDebtNoncurrent          Role = "BS_DEBT_NONCURRENT"
	RoleTotalDebt               Role = "BS_TOTAL_DEBT"
	RoleNetDebt                 Role = "BS_NET_DEBT"
	RoleFinanceLeaseLiabilities Role = "BS_FINANCE_LEASE_LIABILITIES"
	RoleOperatingLeaseLiab      Role = "BS_OPERATING_LEASE_LIABILITIES"
	RolePensionLiabilities      Role = "BS_PENSION_LIABILITIES"
	RoleDeferredTaxLiabilities  Role = "BS_DEFERRED_TAX_LIABILITIES"
	RoleTotalCurrentLiabilities Role = "BS_TOTAL_CURRENT_LIABILITIES"
	RoleTotalLiabilities        Role = "BS_TOTAL_LIABILITIES"
	RoleTotalEquity             Role = "BS_TOTAL_EQUITY"
	RoleTotalLiabilitiesEquity  Role = "BS_TOTAL_LIABILITIES_AND_EQUITY"
)

// Cash flow roles
const (
	RoleCFNetIncome           Role = "CF_NET_INCOME"
	RoleCFDepreciation        Role = "CF_DEPRECIATION_AMORTIZATION"
	RoleStockCompensation     Role = "CF_STOCK_COMPENSATION"
	RoleOperatingCashFlow     Role = "CF_OPERATING_CASH_FLOW"
	RoleCapex                 Role = "CF_CAPEX"
	RoleInvestingCashFlow     Role = "CF_INVESTING_CASH_FLOW"
	RoleFinancingCashFlow     Role = "CF_FINANCING_CASH_FLOW"
	RoleDebtIssued            Role = "CF_DEBT_ISSUED"
	RoleDebtRepaid            Role = "CF_DEBT_REPAID"
	RoleFinanceLeasePrincipal Role = "CF_FINANCE_LEASE_PRINCIPAL"
	RoleDividendsPaid         Role = "CF_DIVIDENDS_PAID"
	RoleShareRepurchase       Role = "CF_SHARE_REPURCHASE"
	RoleNetChangeInCash       Role = "CF_NET_CHANGE_IN_CASH"
	RoleFreeCashFlow          Role = "CF_FREE_CASH_FLOW"
)

// RoleFlags marks which downstream models a role feeds.
type RoleFlags struct {
	Core3Statement bool `json:"is_core_3_statement"`
	DCFKey         bool `json:"is_dcf_key"`
	CompsKey       bool `json:"is_comps_key"`
}

// Flags returns the role's flags. ok is false for roles outside the
// enumeration; callers decide how to rank those.
func (r Role) Flags() (flags RoleFlags, ok bool) {
	switch r {
	case RoleRevenue, RoleOperatingIncome, RoleISNetIncome, RoleEBITDA:
		return RoleFlags{Core3Statement: true, DCFKey: true, CompsKey: true}, true
	case RoleCOGS, RoleISDepreciation, RoleInterestExpense, RoleIncomeTax, RolePretaxIncome:
		return RoleFlags{Core3Statement: true, DCFKey: true}, true
	case RoleGrossProfit, RoleOperatingExpenses, RoleSGA, RoleRD:
		return RoleFlags{Core3Statement: true, CompsKey: true}, true
	case RoleOperatingMargin, RoleDilutedEPS, RoleDilutedShares:
		return RoleFlags{CompsKey: true}, true

	case RoleCash, RoleDebtCurrent, RoleDebtNoncurrent, RoleTotalDebt:
		return RoleFlags{Core3Statement: true, DCFKey: true, CompsKey: true}, true
	case RoleAccountsReceivable, RoleInventory, RoleAccountsPayable, RoleAccruedExpenses,
		RoleDeferredRevenue:
		return RoleFlags{Core3Statement: true, DCFKey: true}, true
	case RoleTotalAssets, RoleTotalLiabilities, RoleTotalEquity, RoleTotalCurrentAssets,
		RoleTotalCurrentLiabilities, RoleTotalLiabilitiesEquity, RolePPENet, RoleGoodwill:
		return RoleFlags{Core3Statement: true}, true
	case RoleNetDebt:
		return RoleFlags{DCFKey: true, CompsKey: true}, true
	case RoleAPAndAccrued, RoleFinanceLeaseLiabilities, RoleOperatingLeaseLiab,
		RolePensionLiabilities, RoleDeferredTaxLiabilities:
		return RoleFlags{}, true

	case RoleCFNetIncome, RoleOperatingCashFlow, RoleInvestingCashFlow, RoleFinancingCashFlow,
		RoleNetChangeInCash:
		return RoleFlags{Core3Statement: true}, true
	case RoleCapex, RoleCFDepreciation, RoleFreeCashFlow:
		return RoleFlags{Core3Statement: true, DCFKey: true}, true
	case RoleStockCompensation:
		return RoleFlags{DCFKey: true}, true
	case RoleDebtIssued, RoleDebtRepaid, RoleFinanceLeasePrincipal, RoleDividendsPaid,
		RoleShareRepurchase:
		return RoleFlags{Core3Statement: true}, true
	}
	return RoleFlags{}, false
}

// Known reports whether r belongs to the role enumeration.
func (r Role) Known() bool {
	_, ok := r.Flags()
	return ok
}

// Statement returns the statement type encoded in the role prefix.
func (r Role) Statement() StatementType {
	switch {
	case strings.HasPrefix(string(r), "IS_"):
		return IncomeStatement
	case strings.HasPrefix(string(r), "BS_"):
		return BalanceSheet
	case strings.HasPrefix(string(r), "CF_"):
		return CashFlow
	}
	return ""
}
