package search

import (
	"regexp"
	"strings"
)

// QueryParser pulls filter information out of a free text query
// string. Queries like "asteroids nonfiction", "grade 5 dogs" or
// "young adult romance" contain signals best treated as filters
// against specific fields; whatever remains is search-like and is
// handed back to the regular hypothesis machinery.
type QueryParser struct {
	OriginalQueryString string
	FinalQueryString    string

	// Filters extracted from the string, as backend filter clauses.
	Filters []M

	// MatchQueries holds the target-age boost query, if an age phrase
	// was recognized, plus the relevance query for whatever text was
	// left over.
	MatchQueries []M
}

// NewQueryParser parses a query string. Extraction happens in a fixed
// order, each step working on what the previous step left behind:
// genre first, so "science fiction" is not chomped by the search for
// "fiction"; then audience, fiction status, grade level, and explicit
// age phrases.
func NewQueryParser(queryString string) *QueryParser {
	p := &QueryParser{OriginalQueryString: strings.TrimSpace(queryString)}
	queryString = p.OriginalQueryString

	// The "romance" in "young adult romance".
	if genre, matched := GenreMatch(queryString); genre != "" {
		queryString = p.addMatchTermFilter(genre, "genres.name", queryString, matched)
	}

	// The "young adult" in "young adult romance".
	if audience, matched := AudienceMatch(queryString); audience != "" {
		queryString = p.addMatchTermFilter(Scrub(audience), "audience", queryString, matched)
	}

	// The "nonfiction" in "asteroids nonfiction".
	if fiction, matched := FictionMatch(queryString); fiction != "" {
		queryString = p.addMatchTermFilter(fiction, "fiction", queryString, matched)
	}

	// The "grade 5" in "grade 5 dogs".
	if age, matched := GradeMatch(queryString); age != nil {
		queryString = p.addTargetAgeFilter(age, queryString, matched)
	}

	// The "age 10 and up" in "divorce age 10 and up".
	if age, matched := AgeMatch(queryString); age != nil {
		queryString = p.addTargetAgeFilter(age, queryString, matched)
	}

	p.FinalQueryString = strings.TrimSpace(queryString)

	if p.FinalQueryString == "" {
		// The entire query string was consumed by filters; there is
		// nothing left to match.
		return p
	}

	if p.FinalQueryString != p.OriginalQueryString {
		// Part of the string was a filter and part of it was a
		// query. The query part could be anything a regular query
		// could be, so build a full hypothesis query for it.
		remainder := newQuery(p.FinalQueryString, nil, false)
		p.MatchQueries = append(p.MatchQueries, remainder.SearchQuery())
	}
	return p
}

// addMatchTermFilter records an exact-match filter for a recognized
// phrase and removes the phrase from the query string.
func (p *QueryParser) addMatchTermFilter(value, field, queryString, matched string) string {
	if value == "" {
		return queryString
	}
	p.Filters = append(p.Filters, matchTerm(field, value))
	return withoutMatch(queryString, matched)
}

// addTargetAgeFilter records both versions of a recognized age
// phrase: the filter drops works outside the range, and the boost
// query ranks works that cluster tightly around the range over works
// that merely overlap it.
func (p *QueryParser) addTargetAgeFilter(age *AgeRange, queryString, matched string) string {
	filter, query := makeTargetAgeQuery(age, slightlyAboveBaseline)
	p.Filters = append(p.Filters, filter)
	p.MatchQueries = append(p.MatchQueries, query)
	return withoutMatch(queryString, matched)
}

// withoutMatch removes a matched vocabulary phrase from the query
// string so it is not reused. Removal extends to the next word
// boundary that is not an apostrophe or dash, so matching "children"
// in "children's" removes the possessive too.
func withoutMatch(queryString, matched string) string {
	pattern := `(?i)\b` + regexp.QuoteMeta(strings.TrimSpace(matched)) + `[\w'\-]*\b`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return queryString
	}
	return re.ReplaceAllString(queryString, "")
}
