package util

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNaturalSortLess(t *testing.T) {
	testCases := []struct {
		s1, s2   string
		expected bool
	}{
		{"report 2", "report 10", true},
		{"report 10", "report 2", false},
		{"scan1.pdf", "scan10.pdf", true},
		{"scan10.pdf", "scan2.pdf", false},
		{"v1.2", "v1.10", true},
		{"a", "b", true},
		{"B", "a", false},
		{"notes", "notes1", true},
		{"notes1", "notes", false},
		{"same.txt", "same.txt", false},
	}
	for _, tc := range testCases {
		if result := NaturalSortLess(tc.s1, tc.s2); result != tc.expected {
			t.Errorf("NaturalSortLess(%q, %q) = %v; want %v", tc.s1, tc.s2, result, tc.expected)
		}
	}
}

func TestNaturalCompareIsTotal(t *testing.T) {
	assert.Zero(t, NaturalCompare("a1", "a1"))
	// Equal under case folding and numeric value, but still ordered.
	assert.NotZero(t, NaturalCompare("A01", "a1"))
	assert.Equal(t, -NaturalCompare("A01", "a1"), NaturalCompare("a1", "A01"))
}

func TestNaturalCompareSortsPaths(t *testing.T) {
	paths := []string{"docs/page10.md", "docs/page2.md", "archive/2024/q1.csv", "docs/page1.md"}
	slices.SortFunc(paths, NaturalCompare)
	assert.Equal(t, []string{"archive/2024/q1.csv", "docs/page1.md", "docs/page2.md", "docs/page10.md"}, paths)
}
