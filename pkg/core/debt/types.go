// Package debt estimates total debt for one period with several
// independent methods and aggregates them by median. Every method result
// is kept, including failed ones, so the audit trail shows why each
// estimate did or did not contribute.
package debt

import (
	"fmt"
	"math"
	"strings"
)

// SourceType says where a component value came from.
type SourceType string

const (
	SourceXBRL      SourceType = "xbrl"
	SourceStatement SourceType = "statement"
	SourceDerived   SourceType = "derived"
)

// Basis values for the summary.
const (
	BasisMedian     = "median_of_valid_estimates"
	BasisNoEstimate = "no_valid_estimates"
)

// Component is one input to a method.
type Component struct {
	Name             string     `json:"name"`
	SourceType       SourceType `json:"source_type"`
	SourceIdentifier string     `json:"source_identifier"`
	Context          string     `json:"context,omitempty"`
	Value            float64    `json:"value"`
}

// MethodResult is one estimator's outcome. Value is nil when the method
// could not produce an estimate.
type MethodResult struct {
	MethodName  string      `json:"method_name"`
	Description string      `json:"description"`
	Formula     string      `json:"formula"`
	Components  []Component `json:"components"`
	Value       *float64    `json:"value"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// Reliable reports a present, non-negative value backed by components.
func (m MethodResult) Reliable() bool {
	return m.Value != nil && *m.Value >= 0 && len(m.Components) > 0
}

func (m *MethodResult) warn(format string, args ...any) {
	m.Warnings = append(m.Warnings, fmt.Sprintf(format, args...))
}

func (m *MethodResult) add(c Component) {
	m.Components = append(m.Components, c)
}

func (m *MethodResult) set(v float64) {
	m.Value = &v
}

// Summary aggregates the non-null method values.
type Summary struct {
	Min              *float64 `json:"min"`
	Max              *float64 `json:"max"`
	Median           *float64 `json:"median"`
	Average          *float64 `json:"average"`
	RecommendedValue *float64 `json:"recommended_value"`
	RecommendedBasis string   `json:"recommended_basis"`
	MethodCount      int      `json:"method_count"`
	TotalMethods     int      `json:"total_methods"`
}

// Spread returns (max - min) / |median|, the relative disagreement between
// methods. ok is false without estimates or with a zero median.
func (s Summary) Spread() (spread float64, ok bool) {
	if s.Min == nil || s.Max == nil || s.Median == nil || *s.Median == 0 {
		return 0, false
	}
	return (*s.Max - *s.Min) / math.Abs(*s.Median), true
}

// Triangulation is the full result for one period.
type Triangulation struct {
	Period      string         `json:"period"`
	PriorPeriod string         `json:"prior_period,omitempty"`
	Methods     []MethodResult `json:"methods"`
	Summary     Summary        `json:"summary"`
}

// Method returns the result with the given name.
func (t Triangulation) Method(name string) (MethodResult, bool) {
	for _, m := range t.Methods {
		if m.MethodName == name {
			return m, true
		}
	}
	return MethodResult{}, false
}

// HumanReadable renders the audit trail.
func (t Triangulation) HumanReadable() string {
	var b strings.Builder
	fmt.Fprintf(&b, "DEBT TRIANGULATION - period %s", t.Period)
	if t.PriorPeriod != "" {
		fmt.Fprintf(&b, " (prior %s)", t.PriorPeriod)
	}
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")

	for i, m := range t.Methods {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, m.MethodName)
		fmt.Fprintf(&b, "   %s\n", m.Description)
		fmt.Fprintf(&b, "   Formula: %s\n", m.Formula)
		for _, c := range m.Components {
			fmt.Fprintf(&b, "   - %-40s %18s  [%s: %s]", c.Name, amount(c.Value), c.SourceType, c.SourceIdentifier)
			if c.Context != "" {
				fmt.Fprintf(&b, " (%s)", c.Context)
			}
			b.WriteString("\n")
		}
		if m.Value != nil {
			fmt.Fprintf(&b, "   Result: %s", amount(*m.Value))
			if !m.Reliable() {
				b.WriteString(" (unreliable)")
			}
			b.WriteString("\n")
		} else {
			b.WriteString("   Result: not computable\n")
		}
		for _, w := range m.Warnings {
			fmt.Fprintf(&b, "   ! %s\n", w)
		}
	}

	s := t.Summary
	b.WriteString("\n" + strings.Repeat("-", 60) + "\n")
	fmt.Fprintf(&b, "Valid estimates: %d of %d\n", s.MethodCount, s.TotalMethods)
	if s.RecommendedValue == nil {
		fmt.Fprintf(&b, "Recommended: none (%s)\n", s.RecommendedBasis)
		return b.String()
	}
	fmt.Fprintf(&b, "Min: %s  Max: %s  Average: %s  Median: %s\n",
		amount(*s.Min), amount(*s.Max), amount(*s.Average), amount(*s.Median))
	if spread, ok := s.Spread(); ok {
		fmt.Fprintf(&b, "Spread: %.1f%% of median\n", spread*100)
	}
	fmt.Fprintf(&b, "Recommended: %s (%s)\n", amount(*s.RecommendedValue), s.RecommendedBasis)
	return b.String()
}

func amount(v float64) string {
	return fmt.Sprintf("%.0f", v)
}
