// Package validate resolves each required variable to one chosen source
// with provenance. Direct candidates are ranked by role flags and
// confidence; when none exist the validator falls back to precomputed
// variables, then to derivation, then to an injected label matcher.
package validate

import "lineitem_engine/pkg/models"

// Status encodes how a variable was resolved.
type Status string

const (
	StatusDirect   Status = "PASS (direct)"
	StatusComputed Status = "PASS (computed)"
	StatusProxy    Status = "PASS (proxy)"
	StatusFail     Status = "FAIL"
)

// Provenance sources.
const (
	SourceModelRole         = "model_role"
	SourceLLMClassification = "llm_classification"
	SourceComputedBucket    = "computed_variables"
	SourceDerived           = "derived"
	SourceLLMFallback       = "llm_fallback"
)

// MaxAlternates caps the runner-ups kept next to the chosen candidate.
const MaxAlternates = 4

// Provenance describes where a value came from.
type Provenance struct {
	Tag          string         `json:"tag"`
	Label        string         `json:"label,omitempty"`
	Role         models.Role    `json:"role"`
	Confidence   float64        `json:"confidence"`
	Periods      models.Periods `json:"periods"`
	LatestPeriod string         `json:"latest_period,omitempty"`
	LatestValue  float64        `json:"latest_value"`
	Method       string         `json:"method"`
	Source       string         `json:"source"`
}

// Result is the outcome for one required variable.
type Result struct {
	Variable      string               `json:"variable"`
	StatementType models.StatementType `json:"statement_type"`
	ExpectedRoles []models.Role        `json:"expected_roles"`
	Status        Status               `json:"status"`
	Reason        string               `json:"reason"`
	Chosen        *Provenance          `json:"chosen,omitempty"`
	Alternates    []Provenance         `json:"alternates,omitempty"`
}

// Passed reports whether the variable resolved to a value.
func (r Result) Passed() bool {
	return r.Status != StatusFail
}

// Periods returns the chosen series, or nil on failure.
func (r Result) Periods() models.Periods {
	if r.Chosen == nil {
		return nil
	}
	return r.Chosen.Periods
}

// Results indexes results by variable name.
func Results(rs []Result) map[string]Result {
	out := make(map[string]Result, len(rs))
	for _, r := range rs {
		out[r.Variable] = r
	}
	return out
}

func provenance(tag, label string, role models.Role, confidence float64, periods models.Periods, method, source string) *Provenance {
	p := &Provenance{
		Tag:        tag,
		Label:      label,
		Role:       role,
		Confidence: confidence,
		Periods:    periods.Clone(),
		Method:     method,
		Source:     source,
	}
	if period, v, ok := periods.Latest(); ok {
		p.LatestPeriod, p.LatestValue = period, v
	}
	return p
}
