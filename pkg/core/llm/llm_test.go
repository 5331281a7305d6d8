package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lineitem_engine/pkg/core/validate"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type stubProvider struct {
	response string
	err      error
	prompt   string
	system   string
}

func (s *stubProvider) GenerateResponse(_ context.Context, prompt, systemPrompt string) (string, error) {
	s.prompt, s.system = prompt, systemPrompt
	return s.response, s.err
}

var options = []validate.LabelOption{
	{Tag: "AccountsPayableTradeCurrent", Label: "Trade payables"},
	{Tag: "GrossProfitMargin", Label: "Gross margin %"},
}

func TestParseMatch(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *validate.Match
	}{
		{
			name: "plain json",
			raw:  `{"matched_label": "Trade payables", "matched_tag": "AccountsPayableTradeCurrent", "reason": "same account"}`,
			want: &validate.Match{MatchedLabel: "Trade payables", MatchedTag: "AccountsPayableTradeCurrent", Reason: "same account"},
		},
		{
			name: "fenced",
			raw:  "```json\n{\"matched_label\": \"Trade payables\", \"matched_tag\": \"AccountsPayableTradeCurrent\", \"reason\": \"r\"}\n```",
			want: &validate.Match{MatchedLabel: "Trade payables", MatchedTag: "AccountsPayableTradeCurrent", Reason: "r"},
		},
		{
			name: "trailing comma",
			raw:  `{"matched_label": "Trade payables", "matched_tag": "AccountsPayableTradeCurrent", "reason": "r",}`,
			want: &validate.Match{MatchedLabel: "Trade payables", MatchedTag: "AccountsPayableTradeCurrent", Reason: "r"},
		},
		{
			name: "declined",
			raw:  `{"matched_label": "", "matched_tag": "", "reason": "nothing fits"}`,
		},
		{
			name: "declined with none",
			raw:  `{"matched_label": "None", "matched_tag": "null", "reason": "nothing fits"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMatch(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence(`  {"a":1} `))
}

func TestMatcherMatch(t *testing.T) {
	p := &stubProvider{response: `{"matched_label": "Trade payables", "matched_tag": "AccountsPayableTradeCurrent", "reason": "same account"}`}
	m := NewMatcher(p)

	got, err := m.Match(context.Background(), "Accounts Payable", options)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AccountsPayableTradeCurrent", got.MatchedTag)

	assert.Contains(t, p.prompt, "Required item: Accounts Payable")
	assert.Contains(t, p.prompt, "- AccountsPayableTradeCurrent: Trade payables")
	assert.Contains(t, p.prompt, "- GrossProfitMargin: Gross margin %")
	assert.Contains(t, p.system, "JSON")
}

func TestMatcherDeclinesAndErrors(t *testing.T) {
	ctx := context.Background()

	got, err := NewMatcher(&stubProvider{response: `{"matched_label": "", "matched_tag": ""}`}).Match(ctx, "Inventory", options)
	require.NoError(t, err)
	assert.Nil(t, got)

	boom := errors.New("quota exceeded")
	_, err = NewMatcher(&stubProvider{err: boom}).Match(ctx, "Inventory", options)
	assert.ErrorIs(t, err, boom)

	p := &stubProvider{}
	got, err = NewMatcher(p).Match(ctx, "Inventory", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, p.prompt)
}

func TestMatcherInValidator(t *testing.T) {
	// A margin answer for a raw account must be rejected downstream.
	m := NewMatcher(&stubProvider{response: `{"matched_label": "Gross margin %", "matched_tag": "GrossProfitMargin", "reason": "closest"}`})
	got, err := m.Match(context.Background(), "Gross Profit", options)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotEmpty(t, validate.RejectReason("Gross Profit", *got))
}

func TestGeminiProviderRequiresKey(t *testing.T) {
	p := NewGeminiProvider("", "")
	assert.Equal(t, DefaultModel, p.Model)
	_, err := p.GenerateResponse(context.Background(), "x", "")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
