package search

import "strings"

// Suffixes that stay at the end of a sort name rather than moving to
// the front with the family name.
var nameSuffixes = map[string]bool{
	"jr":   true,
	"jr.":  true,
	"sr":   true,
	"sr.":  true,
	"ii":   true,
	"iii":  true,
	"iv":   true,
	"m.d.": true,
	"md":   true,
	"ph.d.": true,
	"phd":  true,
}

// DisplayNameToSortName converts a name as usually displayed into its
// probable sort form: "Octavia Butler" becomes "Butler, Octavia". A
// name that already contains a comma is assumed to be in sort form
// already and the empty string is returned, signalling that no
// conversion was possible or necessary.
func DisplayNameToSortName(displayName string) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return ""
	}
	if strings.Contains(name, ",") {
		return ""
	}

	parts := strings.Fields(name)
	if len(parts) == 1 {
		// A single name, like "Plato", sorts as itself.
		return parts[0]
	}

	// Peel suffixes like "Jr." off the end; they belong after the
	// given names in the sort form.
	var suffixes []string
	for len(parts) > 1 && nameSuffixes[strings.ToLower(parts[len(parts)-1])] {
		suffixes = append([]string{parts[len(parts)-1]}, suffixes...)
		parts = parts[:len(parts)-1]
	}

	family := parts[len(parts)-1]
	given := strings.Join(parts[:len(parts)-1], " ")
	sortName := family
	if given != "" {
		sortName += ", " + given
	}
	if len(suffixes) > 0 {
		sortName += ", " + strings.Join(suffixes, " ")
	}
	return sortName
}
