package models

// Statement is one statement's line items in source order.
type Statement struct {
	LineItems []LineItem `json:"line_items"`
}

// Statements holds the three primary statements of a bundle.
type Statements struct {
	IncomeStatement *Statement `json:"income_statement,omitempty"`
	BalanceSheet    *Statement `json:"balance_sheet,omitempty"`
	CashFlow        *Statement `json:"cash_flow_statement,omitempty"`
}

// Bundle is the statement bundle handed over by extraction.
type Bundle struct {
	Statements Statements `json:"statements"`
}

// Items returns the line items of one statement, or nil. Items without
// a statement type come back as copies stamped with st, so the same tag
// on two statements never shares an identity.
func (b *Bundle) Items(st StatementType) []LineItem {
	if b == nil {
		return nil
	}
	var s *Statement
	switch st {
	case IncomeStatement:
		s = b.Statements.IncomeStatement
	case BalanceSheet:
		s = b.Statements.BalanceSheet
	case CashFlow:
		s = b.Statements.CashFlow
	}
	if s == nil {
		return nil
	}
	for i, li := range s.LineItems {
		if li.StatementType == "" {
			out := make([]LineItem, len(s.LineItems))
			copy(out, s.LineItems)
			for j := i; j < len(out); j++ {
				if out[j].StatementType == "" {
					out[j].StatementType = st
				}
			}
			return out
		}
	}
	return s.LineItems
}

// All returns every line item across statements, IS then BS then CF.
func (b *Bundle) All() []LineItem {
	var out []LineItem
	for _, st := range []StatementType{IncomeStatement, BalanceSheet, CashFlow} {
		out = append(out, b.Items(st)...)
	}
	return out
}

// Clone deep-copies the bundle so a worker can own it exclusively.
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}
	cp := func(s *Statement) *Statement {
		if s == nil {
			return nil
		}
		items := make([]LineItem, len(s.LineItems))
		for i, li := range s.LineItems {
			items[i] = li.Clone()
		}
		return &Statement{LineItems: items}
	}
	return &Bundle{Statements: Statements{
		IncomeStatement: cp(b.Statements.IncomeStatement),
		BalanceSheet:    cp(b.Statements.BalanceSheet),
		CashFlow:        cp(b.Statements.CashFlow),
	}}
}
