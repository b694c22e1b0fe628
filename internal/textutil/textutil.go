// Package textutil holds the small string helpers shared by prompt builders.
package textutil

import (
	"strconv"
	"unicode/utf8"
)

// Quote renders user-supplied text as a double-quoted string literal with
// quotes, backslashes and control characters escaped. Every piece of user
// text placed into a model prompt goes through Quote so it cannot close the
// surrounding quotes or smuggle in new prompt sections.
func Quote(s string) string {
	return strconv.Quote(s)
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
