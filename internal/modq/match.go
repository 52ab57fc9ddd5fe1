package modq

import "strings"

// NamesMatch applies the loose identity rule: case-insensitive equality, or
// either normalized name being a substring of the other. The substring arm
// tolerates OCR truncating or garbling part of a name, at the cost of false
// positives on short names ("Ana" matches "Anastasia"); MatchPending narrows
// that risk by preferring exact matches and refusing ambiguous ones.
func NamesMatch(a, b string) bool {
	na, nb := NormalizeIdentity(a), NormalizeIdentity(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

// MatchPending resolves an extracted name against the pending-decision set.
// An exact normalized match always wins. Otherwise a single substring match
// is accepted; two or more substring matches are rejected as ambiguous, since
// clicking on behalf of the wrong identity is worse than deferring the
// decision to a later pass.
func MatchPending(name string, pending map[string]Decision) (identity string, d Decision, ok bool) {
	key := NormalizeIdentity(name)
	if key == "" {
		return "", DecisionNone, false
	}
	if d, exact := pending[key]; exact {
		return key, d, true
	}

	var matches []string
	for id := range pending {
		if NamesMatch(key, id) {
			matches = append(matches, id)
		}
	}
	if len(matches) != 1 {
		return "", DecisionNone, false
	}
	return matches[0], pending[matches[0]], true
}
