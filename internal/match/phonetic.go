package match

import "github.com/antzucaro/matchr"

const phoneticSimilarityFloor = 0.9

// PhoneticCompare is a lenient [WordCompare] for recognizers that mishear
// individual words. Two words match when they are equal, when their Double
// Metaphone codes overlap, or when their Jaro-Winkler similarity reaches
// 0.9. Positional window semantics are unchanged; only single-word equality
// is relaxed, so "nite" still matches "night" at its expected position while
// unrelated words do not.
func PhoneticCompare(a, b string) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}

	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	if ap != "" && (ap == bp || ap == bs) {
		return true
	}
	if as != "" && (as == bp || as == bs) {
		return true
	}

	return matchr.JaroWinkler(a, b, false) >= phoneticSimilarityFloor
}
