// Package anchor resolves canonical roles to single high-confidence source
// line items ("anchors"): an exact tag allowlist first, then keyword rules
// with exclusions.
package anchor

import (
	"fmt"
	"sort"
	"strings"

	"lineitem_engine/pkg/core/rules"
	"lineitem_engine/pkg/models"
)

// Match is a winning candidate together with the item it came from.
type Match struct {
	Fact  models.AnchorFact
	Item  models.LineItem
	Index int
}

// Claimed reports whether an item is already spoken for by another role.
type Claimed func(models.LineItem) bool

type keywordHit struct {
	index   int
	matches []string
}

// Collect picks at most one candidate for rule.Role from items.
//
// Exact pass: the first item (in input order) whose tag is on the allowlist
// and carries a value wins. Keyword pass: items mentioning any exclude
// keyword are dropped, the rest are scored by the number of distinct
// include keywords they contain; the highest score wins and ties go to the
// earlier item. Items without values, combined tags, and items the claimed
// predicate rejects never win the keyword pass.
func Collect(items []models.LineItem, rule rules.RoleRule, claimed Claimed) *Match {
	if m := collectExact(items, rule.Role, rule.ExactTags, "exact tag match"); m != nil {
		return m
	}
	return collectKeywords(items, rule, claimed)
}

// CollectCombined runs the exact pass over a rule's combined tags only.
func CollectCombined(items []models.LineItem, rule rules.RoleRule) *Match {
	return collectExact(items, rule.Role, rule.CombinedTags, "combined tag match")
}

func collectExact(items []models.LineItem, role models.Role, tags []string, reason string) *Match {
	if len(tags) == 0 {
		return nil
	}
	allow := make(map[string]bool, len(tags))
	for _, t := range tags {
		allow[models.LocalTag(t)] = true
	}
	for i, li := range items {
		local := models.LocalTag(li.Tag)
		if !allow[local] || !li.HasValues() {
			continue
		}
		return newMatch(li, i, role, fmt.Sprintf("%s: %s is registered for %s", reason, local, role))
	}
	return nil
}

func collectKeywords(items []models.LineItem, rule rules.RoleRule, claimed Claimed) *Match {
	if len(rule.Keywords) == 0 {
		return nil
	}
	combined := make(map[string]bool, len(rule.CombinedTags))
	for _, t := range rule.CombinedTags {
		combined[models.LocalTag(t)] = true
	}
	var hits []keywordHit
	for i, li := range items {
		if !li.HasValues() || combined[models.LocalTag(li.Tag)] {
			continue
		}
		if claimed != nil && claimed(li) {
			continue
		}
		text := rules.MatchText(li)
		if excluded(text, rule.ExcludeKeywords) {
			continue
		}
		var matched []string
		for _, kw := range rule.Keywords {
			if rules.ContainsPhrase(text, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > 0 {
			hits = append(hits, keywordHit{index: i, matches: matched})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if len(hits[a].matches) != len(hits[b].matches) {
			return len(hits[a].matches) > len(hits[b].matches)
		}
		return hits[a].index < hits[b].index
	})
	best := hits[0]
	reason := fmt.Sprintf("keyword match (%d of %d): %s", len(best.matches), len(rule.Keywords), strings.Join(best.matches, ", "))
	return newMatch(items[best.index], best.index, rule.Role, reason)
}

func excluded(text string, excludes []string) bool {
	for _, kw := range excludes {
		if rules.ContainsPhrase(text, kw) {
			return true
		}
	}
	return false
}

func newMatch(li models.LineItem, index int, role models.Role, reason string) *Match {
	return &Match{
		Fact: models.AnchorFact{
			Tag:          li.Tag,
			Label:        li.Label,
			Role:         role,
			Periods:      li.Periods.Clone(),
			Unit:         li.Unit,
			SourceReason: reason,
			Confidence:   models.ConfidenceDeterministic,
		},
		Item:  li,
		Index: index,
	}
}
