// Package models holds the records shared by the resolution engine:
// tagged line items as they arrive from extraction, and the anchors and
// computed variables produced from them.
package models

import (
	"sort"
	"strings"
)

// StatementType identifies one of the three primary statements.
type StatementType string

const (
	IncomeStatement StatementType = "IS"
	BalanceSheet    StatementType = "BS"
	CashFlow        StatementType = "CF"
)

// Name returns the human-readable statement name.
func (s StatementType) Name() string {
	switch s {
	case IncomeStatement:
		return "income statement"
	case BalanceSheet:
		return "balance sheet"
	case CashFlow:
		return "cash flow statement"
	}
	return string(s)
}

// Periods maps an ISO period-end date to a value. Keys sort
// lexicographically, which is chronological for ISO dates.
type Periods map[string]float64

// Keys returns the period keys in ascending order.
func (p Periods) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Latest returns the most recent period and its value.
func (p Periods) Latest() (period string, value float64, ok bool) {
	for k, v := range p {
		if !ok || k > period {
			period, value, ok = k, v, true
		}
	}
	return period, value, ok
}

// Prior returns the greatest period strictly before the given one.
func (p Periods) Prior(period string) (string, bool) {
	prior, found := "", false
	for k := range p {
		if k < period && (!found || k > prior) {
			prior, found = k, true
		}
	}
	return prior, found
}

// Clone returns an independent copy.
func (p Periods) Clone() Periods {
	if p == nil {
		return nil
	}
	out := make(Periods, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// LLMClassification is the upstream classifier's best guess for an item.
type LLMClassification struct {
	BestFitRole Role    `json:"best_fit_role"`
	Confidence  float64 `json:"confidence"`
}

// LineItem is one tagged fact series as delivered by extraction.
// Segment is empty for consolidated facts.
type LineItem struct {
	Tag               string             `json:"tag"`
	Label             string             `json:"label"`
	StatementType     StatementType      `json:"statement_type,omitempty"`
	Unit              string             `json:"unit,omitempty"`
	Periods           Periods            `json:"periods"`
	ModelRole         Role               `json:"model_role,omitempty"`
	LLMClassification *LLMClassification `json:"llm_classification,omitempty"`
	Segment           string             `json:"segment,omitempty"`
}

// Clone returns a deep copy of the item.
func (li LineItem) Clone() LineItem {
	out := li
	out.Periods = li.Periods.Clone()
	if li.LLMClassification != nil {
		c := *li.LLMClassification
		out.LLMClassification = &c
	}
	return out
}

// HasValues reports whether at least one period carries a value.
func (li LineItem) HasValues() bool {
	return len(li.Periods) > 0
}

// Consolidated reports whether the item is an entity-wide fact.
func (li LineItem) Consolidated() bool {
	return li.Segment == ""
}

// LocalTag strips a namespace prefix such as "us-gaap:" or "us-gaap_".
func LocalTag(tag string) string {
	if i := strings.LastIndex(tag, ":"); i >= 0 {
		return tag[i+1:]
	}
	for _, ns := range []string{"us-gaap_", "ifrs-full_", "dei_"} {
		if strings.HasPrefix(tag, ns) {
			return tag[len(ns):]
		}
	}
	return tag
}
