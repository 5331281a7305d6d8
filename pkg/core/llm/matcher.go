package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"lineitem_engine/pkg/core/validate"
)

const systemPrompt = `You map financial statement line items to required model inputs.
Pick the single line item that denotes the required item as a raw account.
Never pick margins, ratios, percentages, per-share figures, growth rates or yields
unless the required item is one. If nothing fits, return empty strings.
Respond with JSON only: {"matched_label": "...", "matched_tag": "...", "reason": "..."}`

// Matcher asks a Provider which available line item best denotes a
// required variable. The validator treats its answers as untrusted.
type Matcher struct {
	provider Provider
}

var _ validate.LabelMatcher = (*Matcher)(nil)

// NewMatcher creates a Matcher over p.
func NewMatcher(p Provider) *Matcher {
	return &Matcher{provider: p}
}

// Match returns nil when the model finds no fitting option.
func (m *Matcher) Match(ctx context.Context, required string, options []validate.LabelOption) (*validate.Match, error) {
	if len(options) == 0 {
		return nil, nil
	}
	raw, err := m.provider.GenerateResponse(ctx, BuildPrompt(required, options), systemPrompt)
	if err != nil {
		return nil, eris.Wrapf(err, "llm: match %q", required)
	}
	match, err := ParseMatch(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "llm: match %q", required)
	}
	if match == nil {
		zap.L().Debug("llm: no label match", zap.String("required", required))
		return nil, nil
	}
	zap.L().Debug("llm: label match",
		zap.String("required", required),
		zap.String("matched_tag", match.MatchedTag),
		zap.String("matched_label", match.MatchedLabel),
	)
	return match, nil
}

// BuildPrompt lists the options one per line as "tag: label".
func BuildPrompt(required string, options []validate.LabelOption) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Required item: %s\n\nAvailable line items:\n", required)
	for _, o := range options {
		fmt.Fprintf(&sb, "- %s: %s\n", o.Tag, o.Label)
	}
	return sb.String()
}
