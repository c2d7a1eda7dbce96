package research

import (
	"strings"
	"unicode"
)

// trigramSimilarityThreshold is the duplicate cutoff for merged key points.
const trigramSimilarityThreshold = 0.85

// trigrams returns the lowercased character trigram set of s.
func trigrams(s string) map[string]bool {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	set := make(map[string]bool)
	runes := []rune(s)
	if len(runes) < 3 {
		if s != "" {
			set[s] = true
		}
		return set
	}
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = true
	}
	return set
}

// TrigramSimilarity is the Jaccard similarity of the two strings' trigram
// sets, in [0,1].
func TrigramSimilarity(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// MergeKeyPoints concatenates per-source key points dropping near-duplicates
// (trigram similarity at or above the threshold). First occurrence wins, so
// source order decides phrasing.
func MergeKeyPoints(groups ...[]string) []string {
	var merged []string
	for _, group := range groups {
		for _, point := range group {
			point = strings.TrimSpace(point)
			if point == "" {
				continue
			}
			dup := false
			for _, kept := range merged {
				if TrigramSimilarity(point, kept) >= trigramSimilarityThreshold {
					dup = true
					break
				}
			}
			if !dup {
				merged = append(merged, point)
			}
		}
	}
	return merged
}

// NormalizeTags lowercases, strips punctuation, trivially singularizes, and
// deduplicates tag strings, preserving order.
func NormalizeTags(tags []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := normalizeTag(tag)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func normalizeTag(tag string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(tag)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune(' ')
		}
	}
	t := strings.Join(strings.Fields(b.String()), " ")
	// Trivial plural only: "schools" → "school", but "wellness" stays.
	if len(t) > 3 && strings.HasSuffix(t, "s") && !strings.HasSuffix(t, "ss") && !strings.HasSuffix(t, "us") {
		t = t[:len(t)-1]
	}
	return t
}
