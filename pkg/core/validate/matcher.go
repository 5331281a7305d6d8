package validate

import (
	"context"
	"strings"

	"lineitem_engine/pkg/core/rules"
)

// LabelOption is one line item offered to a LabelMatcher.
type LabelOption struct {
	Tag   string `json:"tag"`
	Label string `json:"label"`
}

// Match is a LabelMatcher's answer. It is untrusted until checked.
type Match struct {
	MatchedLabel string `json:"matched_label"`
	MatchedTag   string `json:"matched_tag"`
	Reason       string `json:"reason"`
}

// LabelMatcher picks the option that best denotes the required item, or
// returns nil when none fits.
type LabelMatcher interface {
	Match(ctx context.Context, required string, options []LabelOption) (*Match, error)
}

// LabelMatcherFunc adapts a function to LabelMatcher.
type LabelMatcherFunc func(ctx context.Context, required string, options []LabelOption) (*Match, error)

// Match calls f.
func (f LabelMatcherFunc) Match(ctx context.Context, required string, options []LabelOption) (*Match, error) {
	return f(ctx, required, options)
}

// computedMetricWords name figures that are derived from accounts rather
// than being accounts themselves.
var computedMetricWords = []string{
	"margin", "ratio", "percent", "percentage", "per share", "growth", "yield", "rate",
}

// RejectReason returns a non-empty reason when a match names a computed
// metric (a margin, ratio, per-share figure and so on) while the required
// variable is a raw account.
func RejectReason(required string, m Match) string {
	req := " " + rules.Normalize(required) + " "
	text := " " + rules.Normalize(m.MatchedLabel) + " " + rules.Normalize(rules.HumanizeTag(m.MatchedTag)) + " "
	metric := false
	for _, w := range computedMetricWords {
		if rules.ContainsPhrase(req, w) {
			metric = true
		}
	}
	if strings.Contains(m.MatchedLabel, "%") && !metric {
		return "matched label is a percentage"
	}
	for _, w := range computedMetricWords {
		if rules.ContainsPhrase(text, w) && !rules.ContainsPhrase(req, w) {
			return "matched item looks like a computed metric (" + w + "), not a raw account"
		}
	}
	return ""
}
