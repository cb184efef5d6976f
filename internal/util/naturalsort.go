// Package util holds small helpers shared across packages.
package util

import (
	"regexp"
	"strconv"
	"strings"
)

var tokenizer = regexp.MustCompile(`(\d+|\D+)`)

type naturalSortToken struct {
	str   string
	num   uint64
	isNum bool
}

func tokenize(s string) []naturalSortToken {
	parts := tokenizer.FindAllString(s, -1)
	tokens := make([]naturalSortToken, len(parts))
	for i, p := range parts {
		if num, err := strconv.ParseUint(p, 10, 64); err == nil {
			tokens[i] = naturalSortToken{num: num, isNum: true}
		} else {
			tokens[i] = naturalSortToken{str: strings.ToLower(p)}
		}
	}
	return tokens
}

// NaturalCompare orders strings so that embedded numbers compare by value:
// "report2.pdf" sorts before "report10.pdf". Letters compare case-insensitively.
// Strings that tie that way fall back to a byte comparison, so the order is
// total and can be used with slices.SortFunc.
func NaturalCompare(a, b string) int {
	ta, tb := tokenize(a), tokenize(b)
	for i := 0; i < min(len(ta), len(tb)); i++ {
		x, y := ta[i], tb[i]
		switch {
		case x.isNum && !y.isNum:
			return -1
		case !x.isNum && y.isNum:
			return 1
		case x.isNum:
			if x.num != y.num {
				if x.num < y.num {
					return -1
				}
				return 1
			}
		default:
			if c := strings.Compare(x.str, y.str); c != 0 {
				return c
			}
		}
	}
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// NaturalSortLess reports whether a sorts before b in natural order.
func NaturalSortLess(a, b string) bool {
	return NaturalCompare(a, b) < 0
}
