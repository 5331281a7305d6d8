// Package ingest is the input boundary of the engine. It decodes statement
// bundles and EDGAR company-facts documents into models.Bundle, coercing
// period values to numbers. Unusable values are skipped with a warning;
// only structural problems are returned as errors.
package ingest

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"lineitem_engine/pkg/models"
)

// ErrNoStatements is returned for a bundle without a statements section.
var ErrNoStatements = eris.New("ingest: bundle has no statements")

type rawBundle struct {
	Statements *rawStatements `json:"statements"`
}

type rawStatements struct {
	IncomeStatement *rawStatement `json:"income_statement"`
	BalanceSheet    *rawStatement `json:"balance_sheet"`
	CashFlow        *rawStatement `json:"cash_flow_statement"`
}

type rawStatement struct {
	LineItems []rawItem `json:"line_items"`
}

type rawItem struct {
	Tag               string                     `json:"tag"`
	Label             string                     `json:"label"`
	StatementType     string                     `json:"statement_type"`
	Unit              string                     `json:"unit"`
	Periods           map[string]json.RawMessage `json:"periods"`
	ModelRole         *string                    `json:"model_role"`
	LLMClassification *models.LLMClassification  `json:"llm_classification"`
	Segment           string                     `json:"segment"`
}

// LoadBundle decodes a statement bundle.
func LoadBundle(r io.Reader) (*models.Bundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read bundle")
	}
	return ParseBundle(data)
}

// ParseBundle decodes a statement bundle from bytes.
func ParseBundle(data []byte) (*models.Bundle, error) {
	var raw rawBundle
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		return nil, eris.Wrap(err, "ingest: decode bundle")
	}
	s := raw.Statements
	if s == nil || (s.IncomeStatement == nil && s.BalanceSheet == nil && s.CashFlow == nil) {
		return nil, ErrNoStatements
	}
	return &models.Bundle{Statements: models.Statements{
		IncomeStatement: convertStatement(s.IncomeStatement, models.IncomeStatement),
		BalanceSheet:    convertStatement(s.BalanceSheet, models.BalanceSheet),
		CashFlow:        convertStatement(s.CashFlow, models.CashFlow),
	}}, nil
}

func convertStatement(raw *rawStatement, st models.StatementType) *models.Statement {
	if raw == nil {
		return nil
	}
	out := &models.Statement{LineItems: make([]models.LineItem, 0, len(raw.LineItems))}
	for _, ri := range raw.LineItems {
		li := models.LineItem{
			Tag:               ri.Tag,
			Label:             ri.Label,
			StatementType:     st,
			Unit:              ri.Unit,
			Periods:           make(models.Periods, len(ri.Periods)),
			LLMClassification: ri.LLMClassification,
			Segment:           ri.Segment,
		}
		if ri.StatementType != "" && models.StatementType(ri.StatementType) != st {
			zap.L().Warn("ingest: statement_type disagrees with section, section wins",
				zap.String("tag", ri.Tag),
				zap.String("statement_type", ri.StatementType),
				zap.String("section", string(st)),
			)
		}
		if ri.ModelRole != nil && *ri.ModelRole != "" {
			li.ModelRole = models.Role(*ri.ModelRole)
			if !li.ModelRole.Known() {
				zap.L().Warn("ingest: unknown model_role", zap.String("tag", ri.Tag), zap.String("model_role", *ri.ModelRole))
			}
		}
		for period, rv := range ri.Periods {
			v, ok := coerce(rv)
			if !ok {
				zap.L().Warn("ingest: skipping unusable period value",
					zap.String("tag", ri.Tag),
					zap.String("period", period),
					zap.String("value", string(rv)),
				)
				continue
			}
			li.Periods[period] = v
		}
		out.LineItems = append(out.LineItems, li)
	}
	return out
}

// coerce turns a JSON number or numeric string into a float. Strings may
// carry thousands separators, a currency sign, or parentheses for
// negatives.
func coerce(rv json.RawMessage) (float64, bool) {
	rv = bytes.TrimSpace(rv)
	if len(rv) == 0 || string(rv) == "null" {
		return 0, false
	}
	if rv[0] == '"' {
		var s string
		if err := json.Unmarshal(rv, &s); err != nil {
			return 0, false
		}
		return ParseNumber(s)
	}
	var f float64
	if err := json.Unmarshal(rv, &f); err != nil {
		return 0, false
	}
	return f, true
}

// ParseNumber parses "1,234", "(56.7)", "$89" and similar.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)
	if s == "" || s == "-" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}
