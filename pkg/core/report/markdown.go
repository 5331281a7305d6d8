// Package report renders pipeline reports as Markdown and HTML.
package report

import (
	"fmt"
	"sort"
	"strings"

	"lineitem_engine/pkg/core/pipeline"
	"lineitem_engine/pkg/core/reconcile"
	"lineitem_engine/pkg/models"
)

// DefaultUnit is used when no anchor names a currency.
const DefaultUnit = "USD"

// Markdown renders the full audit report.
func Markdown(r *pipeline.Report) string {
	var sb strings.Builder
	unit := reportUnit(r.Anchors)

	fmt.Fprintf(&sb, "# Line Item Resolution: %s\n\n", r.Company)
	fmt.Fprintf(&sb, "- Run: `%s`\n", r.RunID)
	fmt.Fprintf(&sb, "- Created: %s\n", r.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "- Rules version: %s\n", r.RulesVersion)
	fmt.Fprintf(&sb, "- Variables passed: %d of %d\n", r.Passed(), len(r.Validation))
	fmt.Fprintf(&sb, "- Reconciliation: **%s**\n\n", r.Reconciliation.OverallStatus)

	writeValidation(&sb, r, unit)
	writeAnchors(&sb, r, unit)
	writeComputed(&sb, r, unit)

	sb.WriteString("## Debt Triangulation\n\n```text\n")
	sb.WriteString(r.Triangulation.HumanReadable())
	sb.WriteString("\n```\n\n")

	writeReconciliation(&sb, r.Reconciliation, unit)
	return sb.String()
}

func writeValidation(sb *strings.Builder, r *pipeline.Report, unit string) {
	sb.WriteString("## Required Variables\n\n")
	sb.WriteString("| Variable | Status | Tag | Latest | Source | Reason |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, v := range r.Validation {
		tag, latest, source := "-", "-", "-"
		if c := v.Chosen; c != nil {
			tag = c.Tag
			source = c.Source
			if c.LatestPeriod != "" {
				latest = fmt.Sprintf("%s (%s)", value(v.Variable, c.LatestValue, unit), c.LatestPeriod)
			}
		}
		fmt.Fprintf(sb, "| %s | %s | %s | %s | %s | %s |\n",
			cell(v.Variable), v.Status, cell(tag), latest, source, cell(v.Reason))
	}
	sb.WriteString("\n")

	var withAlts []string
	for _, v := range r.Validation {
		if len(v.Alternates) > 0 {
			alts := make([]string, len(v.Alternates))
			for i, a := range v.Alternates {
				alts[i] = fmt.Sprintf("`%s`", a.Tag)
			}
			withAlts = append(withAlts, fmt.Sprintf("- %s: %s", v.Variable, strings.Join(alts, ", ")))
		}
	}
	if len(withAlts) > 0 {
		sb.WriteString("### Alternates\n\n")
		sb.WriteString(strings.Join(withAlts, "\n"))
		sb.WriteString("\n\n")
	}
}

func writeAnchors(sb *strings.Builder, r *pipeline.Report, unit string) {
	sb.WriteString("## Anchors\n\n")
	if len(r.Anchors) == 0 {
		sb.WriteString("No anchors resolved.\n\n")
	} else {
		roles := make([]string, 0, len(r.Anchors))
		for role := range r.Anchors {
			roles = append(roles, string(role))
		}
		sort.Strings(roles)

		sb.WriteString("| Role | Tag | Latest | Reason |\n|---|---|---|---|\n")
		for _, role := range roles {
			a := r.Anchors[models.Role(role)]
			latest := "-"
			if p, v, ok := a.Periods.Latest(); ok {
				u := a.Unit
				if u == "" {
					u = unit
				}
				latest = fmt.Sprintf("%s (%s)", FormatAmount(v, u), p)
			}
			fmt.Fprintf(sb, "| %s | %s | %s | %s |\n", role, cell(a.Tag), latest, cell(a.SourceReason))
		}
		sb.WriteString("\n")
	}
	if len(r.MissingAnchors) > 0 {
		missing := make([]string, len(r.MissingAnchors))
		for i, m := range r.MissingAnchors {
			missing[i] = string(m)
		}
		fmt.Fprintf(sb, "Missing core anchors: %s\n\n", strings.Join(missing, ", "))
	}
}

func writeComputed(sb *strings.Builder, r *pipeline.Report, unit string) {
	if len(r.Computed) == 0 {
		return
	}
	names := make([]string, 0, len(r.Computed))
	for n := range r.Computed {
		names = append(names, n)
	}
	sort.Strings(names)

	sb.WriteString("## Computed Variables\n\n")
	sb.WriteString("| Variable | Status | Method | Latest | Guardrails |\n|---|---|---|---|---|\n")
	for _, n := range names {
		cv := r.Computed[n]
		latest := "-"
		if p, v, ok := cv.Periods.Latest(); ok {
			latest = fmt.Sprintf("%s (%s)", value(n, v, unit), p)
		}
		guard := "-"
		if len(cv.Guardrails) > 0 {
			guard = strings.Join(cv.Guardrails, "; ")
		}
		fmt.Fprintf(sb, "| %s | %s | %s | %s | %s |\n", n, cv.Status, cell(cv.ComputationMethod), latest, cell(guard))
	}
	sb.WriteString("\n")
}

func writeReconciliation(sb *strings.Builder, rep reconcile.Report, unit string) {
	sb.WriteString("## Reconciliation\n\n")
	for _, c := range rep.Checks() {
		fmt.Fprintf(sb, "### %s: %s\n\n", c.Name, c.Status)
		periods := c.SortedPeriods()
		if len(periods) == 0 {
			sb.WriteString("No periods could be checked.\n\n")
		}
		for _, p := range periods {
			pr := c.Periods[p]
			mark := "FAIL"
			if pr.Passes {
				mark = "ok"
			}
			fmt.Fprintf(sb, "- %s [%s] %s\n", p, mark, periodDetail(pr, unit))
		}
		if len(periods) > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(sb, "_%s_\n\n", c.Resolution)
	}
}

func periodDetail(pr reconcile.PeriodResult, unit string) string {
	switch {
	case pr.Balance != nil:
		b := pr.Balance
		return fmt.Sprintf("assets %s vs liabilities + equity %s (diff %s, %s)",
			FormatAmount(b.Assets, unit), FormatAmount(b.LiabilitiesPlusEquity, unit),
			FormatAmount(b.Difference, unit), FormatPercent(b.DiffPct))
	case pr.CashFlow != nil:
		cf := pr.CashFlow
		s := fmt.Sprintf("CFO+CFI+CFF %s vs net change %s (diff %s)",
			FormatAmount(cf.CFSum, unit), FormatAmount(cf.NetChange, unit), FormatAmount(cf.CFDifference, unit))
		if cf.BeginningCashAvailable {
			s += fmt.Sprintf("; cash %s + %s vs %s (diff %s)",
				FormatAmount(cf.BeginningCash, unit), FormatAmount(cf.CashChange, unit),
				FormatAmount(cf.EndingCash, unit), FormatAmount(cf.CashDifference, unit))
		} else {
			s += "; cash roll-forward not evaluable"
		}
		return s
	case pr.NetIncome != nil:
		ni := pr.NetIncome
		return fmt.Sprintf("IS %s vs CF %s (diff %s, tolerance %s)",
			FormatAmount(ni.ISNetIncome, unit), FormatAmount(ni.CFNetIncome, unit),
			FormatAmount(ni.Difference, unit), FormatAmount(ni.Tolerance, unit))
	}
	return pr.Reason
}

func value(name string, v float64, unit string) string {
	if isRatio(name) {
		return FormatPercent(v)
	}
	return FormatAmount(v, unit)
}

// reportUnit picks the most common anchor unit.
func reportUnit(anchors models.Anchors) string {
	counts := map[string]int{}
	for _, a := range anchors {
		if a.Unit != "" && !strings.Contains(a.Unit, "/") {
			counts[a.Unit]++
		}
	}
	best, n := DefaultUnit, 0
	for u, c := range counts {
		if c > n || (c == n && u < best) {
			best, n = u, c
		}
	}
	return best
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
