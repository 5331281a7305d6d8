package models

// Confidence levels for anchors.
const (
	ConfidenceDeterministic = "deterministic"
)

// AnchorFact is the single high-confidence source chosen for a role.
// Periods are copied verbatim from the winning line item.
type AnchorFact struct {
	Tag          string  `json:"tag"`
	Label        string  `json:"label"`
	Role         Role    `json:"role"`
	Periods      Periods `json:"periods"`
	Unit         string  `json:"unit,omitempty"`
	SourceReason string  `json:"source_reason"`
	Confidence   string  `json:"confidence"`
}

// Anchors indexes anchors by role. At most one per role.
type Anchors map[Role]AnchorFact

// Get returns the anchor for a role, if resolved.
func (a Anchors) Get(role Role) (AnchorFact, bool) {
	f, ok := a[role]
	return f, ok
}

// ComputedStatus tells how a computed variable was obtained.
type ComputedStatus string

const (
	StatusComputed ComputedStatus = "computed"
	StatusProxy    ComputedStatus = "proxy"
)

// ComputedVariable is a derived series. Periods only contains periods
// where the formula's guardrail passed.
type ComputedVariable struct {
	Name              string         `json:"name"`
	Role              Role           `json:"role"`
	Periods           Periods        `json:"periods"`
	Status            ComputedStatus `json:"status"`
	SupportingTags    []string       `json:"supporting_tags"`
	ComputationMethod string         `json:"computation_method"`
	Guardrails        []string       `json:"guardrails,omitempty"`
}
