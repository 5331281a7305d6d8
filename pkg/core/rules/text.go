package rules

import (
	"strings"
	"unicode"

	"lineitem_engine/pkg/models"
)

// Normalize lowercases s and folds every run of non-alphanumeric runes
// into a single space.
func Normalize(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// HumanizeTag splits a CamelCase tag into words:
// "AccountsPayableCurrent" -> "Accounts Payable Current".
func HumanizeTag(tag string) string {
	rs := []rune(models.LocalTag(tag))
	var b strings.Builder
	for i, r := range rs {
		if i > 0 && unicode.IsUpper(r) {
			prev := rs[i-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MatchText is the padded, normalized text keywords are matched against.
func MatchText(item models.LineItem) string {
	return " " + Normalize(item.Label) + " " + Normalize(HumanizeTag(item.Tag)) + " "
}

// ContainsPhrase reports whether the padded text contains kw on word
// boundaries.
func ContainsPhrase(text, kw string) bool {
	kw = Normalize(kw)
	if kw == "" {
		return false
	}
	return strings.Contains(text, " "+kw+" ")
}
