package search

import "strings"

// Scrub normalizes a caller-supplied value the way the index stores
// controlled-vocabulary fields: lowercased with spaces removed, so
// "Young Adult" becomes "youngadult".
func Scrub(value string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), " ", "")
}

// ScrubList normalizes every member of a list, dropping empties.
func ScrubList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := Scrub(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AgeRange is an inclusive target-age interval. A nil bound means the
// side is unspecified.
type AgeRange struct {
	Lower *int
	Upper *int
}

// NewAgeRange normalizes a (lower, upper) pair into canonical form.
func NewAgeRange(lower, upper int) *AgeRange {
	if upper < lower {
		lower, upper = upper, lower
	}
	l, u := lower, upper
	return &AgeRange{Lower: &l, Upper: &u}
}

// SingleAge treats a bare age as the inclusive range [age, age].
func SingleAge(age int) *AgeRange {
	return NewAgeRange(age, age)
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func floatPtr(v float64) *float64 { return &v }
