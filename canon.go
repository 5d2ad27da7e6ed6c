package packify

import (
	"slices"
	"strings"
)

// canonicalize sorts element encodings lexicographically and removes
// duplicates in place. Two elements with byte-identical encodings are the
// same element, so a set never carries the same encoding twice.
func canonicalize(keys []string) []string {
	slices.Sort(keys)
	return slices.Compact(keys)
}

type keyedValue struct {
	key   string
	value any
}

func sortPairs(pairs []keyedValue) {
	slices.SortFunc(pairs, func(a, b keyedValue) int {
		return strings.Compare(a.key, b.key)
	})
}
