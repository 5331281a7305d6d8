package ingest

import (
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"lineitem_engine/pkg/core/debt"
	"lineitem_engine/pkg/core/rules"
	"lineitem_engine/pkg/models"
)

// ErrNoUSGAAP is returned for a company-facts document without a us-gaap
// section.
var ErrNoUSGAAP = eris.New("ingest: no us-gaap section found")

// =============================================================================
// SEC COMPANY FACTS TYPES
// =============================================================================

// CompanyFacts is the SEC XBRL company-facts document
// (data.sec.gov/api/xbrl/companyfacts/CIK##########.json).
type CompanyFacts struct {
	CIK        int                               `json:"cik"`
	EntityName string                            `json:"entityName"`
	Facts      map[string]map[string]FactConcept `json:"facts"`
}

// FactConcept is one concept with its facts grouped by unit.
type FactConcept struct {
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
	Units       map[string][]FactValue `json:"units"`
}

// FactValue is a single reported fact. Start is empty for instants.
type FactValue struct {
	Start string  `json:"start,omitempty"`
	End   string  `json:"end"`
	Val   float64 `json:"val"`
	Accn  string  `json:"accn"`
	FY    int     `json:"fy"`
	FP    string  `json:"fp"`
	Form  string  `json:"form"`
	Filed string  `json:"filed"`
	Frame string  `json:"frame,omitempty"`
}

var annualForms = map[string]bool{
	"10-K":   true,
	"10-K/A": true,
	"10-KT":  true,
}

// ConvertOptions widens the set of tags kept beyond the rule table.
type ConvertOptions struct {
	ExtraTags map[models.StatementType][]string
}

// ParseCompanyFacts decodes a company-facts document.
func ParseCompanyFacts(r io.Reader) (*CompanyFacts, error) {
	var cf CompanyFacts
	if err := json.NewDecoder(r).Decode(&cf); err != nil {
		return nil, eris.Wrap(err, "ingest: decode company facts")
	}
	if _, ok := cf.Facts["us-gaap"]; !ok {
		return nil, ErrNoUSGAAP
	}
	return &cf, nil
}

// FromCompanyFacts decodes a company-facts document and converts it.
func FromCompanyFacts(r io.Reader, table *rules.Table, opts ConvertOptions) (*models.Bundle, error) {
	cf, err := ParseCompanyFacts(r)
	if err != nil {
		return nil, err
	}
	return cf.Bundle(table, opts)
}

// Bundle converts annual USD facts for the tags the rule table, the debt
// estimators and opts know into a statement bundle. When several filings
// report the same period end, the latest filing wins.
func (cf *CompanyFacts) Bundle(table *rules.Table, opts ConvertOptions) (*models.Bundle, error) {
	gaap, ok := cf.Facts["us-gaap"]
	if !ok {
		return nil, ErrNoUSGAAP
	}
	b := &models.Bundle{}
	for _, st := range []models.StatementType{models.IncomeStatement, models.BalanceSheet, models.CashFlow} {
		stmt := &models.Statement{}
		for _, tag := range statementTags(table, opts, st) {
			concept, ok := gaap[tag]
			if !ok {
				continue
			}
			periods := annualPeriods(concept.Units["USD"], st == models.BalanceSheet)
			if len(periods) == 0 {
				continue
			}
			label := concept.Label
			if label == "" {
				label = rules.HumanizeTag(tag)
			}
			stmt.LineItems = append(stmt.LineItems, models.LineItem{
				Tag:           tag,
				Label:         label,
				StatementType: st,
				Unit:          "USD",
				Periods:       periods,
			})
		}
		switch st {
		case models.IncomeStatement:
			b.Statements.IncomeStatement = stmt
		case models.BalanceSheet:
			b.Statements.BalanceSheet = stmt
		case models.CashFlow:
			b.Statements.CashFlow = stmt
		}
	}
	zap.L().Debug("ingest: converted company facts",
		zap.String("entity", cf.EntityName),
		zap.Int("line_items", len(b.All())),
	)
	return b, nil
}

// statementTags returns the tags to keep for a statement: the rule
// table's tags in table order, then the tags the debt estimators read,
// then any extra tags, without duplicates.
func statementTags(table *rules.Table, opts ConvertOptions, st models.StatementType) []string {
	out := table.StatementTags(st)
	seen := make(map[string]bool, len(out))
	for _, tag := range out {
		seen[tag] = true
	}
	extra := append(append([]string(nil), debt.Tags()[st]...), opts.ExtraTags[st]...)
	for _, tag := range extra {
		tag = models.LocalTag(tag)
		if !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}

// annualPeriods keeps fiscal-year facts from annual forms. Balance sheet
// concepts are instants; flow concepts must span roughly one year.
func annualPeriods(facts []FactValue, instant bool) models.Periods {
	sorted := append([]FactValue(nil), facts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Filed < sorted[j].Filed })

	out := models.Periods{}
	for _, f := range sorted {
		if f.FP != "FY" || !annualForms[f.Form] || f.End == "" {
			continue
		}
		if instant != (f.Start == "") {
			continue
		}
		if !instant && !spansYear(f.Start, f.End) {
			continue
		}
		out[f.End] = f.Val
	}
	return out
}

func spansYear(start, end string) bool {
	s, err1 := time.Parse(time.DateOnly, start)
	e, err2 := time.Parse(time.DateOnly, end)
	if err1 != nil || err2 != nil {
		return false
	}
	days := e.Sub(s).Hours() / 24
	return days >= 350 && days <= 380
}
