package search

import "strings"

// Relative importance of the fields someone might search for. These
// are used directly, and also as the basis for derived weights: a
// fuzzy match on a field is weighted in proportion to a non-fuzzy
// match on the same field.
var weightForField = map[string]float64{
	"title":     140,
	"subtitle":  130,
	"series":    120,
	"author":    120,
	"summary":   80,
	"publisher": 40,
	"imprint":   40,

	// Contributor names carry the same weight as the author field on
	// the main document.
	"contributors.sort_name":    120,
	"contributors.display_name": 120,
}

const (
	// If the entire search string is turned into a filter, works that
	// match the filter get this weight. Very high, but not enough to
	// outweigh an exact title match.
	queryWasAFilterWeight = 600

	// A keyword match means the patron typed a near-exact value for
	// the field; it is the best match there is. A coefficient, not a
	// weight: a keyword title match still beats a keyword subtitle
	// match.
	defaultKeywordMatchCoefficient = 1000

	baselineCoefficient   = 1.0
	slightlyAboveBaseline = 1.1
)

// Keyword matches against publisher or imprint may also be partial
// author or topic matches ("Plympton", "Penguin"), so they are
// weighted far below other keyword matches.
var keywordMatchCoefficientForField = map[string]float64{
	"publisher": 2,
	"imprint":   2,
}

// The hypothesis that the query string is nothing but an attempt to
// match one of these fields is always tested.
var simpleMatchFields = []string{"title", "subtitle", "series", "publisher", "imprint"}

// The hypothesis that the query string combines title words with
// words from one of these fields.
var multiMatchFields = []string{"subtitle", "series", "author"}

// Fields with an aggressively stemmed variant worth testing.
var stemmableFields = map[string]bool{"title": true, "subtitle": true, "series": true}

// Fields with a with-stopwords variant worth testing when the query
// contains stopwords.
var stopwordFields = map[string]bool{"title": true, "subtitle": true, "series": true}

// Query is an attempt to find something in the search index: a free
// text query string plus the Filter describing the circumstances of
// the search.
type Query struct {
	QueryString string
	Filter      *Filter

	useParser         bool
	rawQuery          M
	words             []string
	containsStopwords bool
	fuzzyCoefficient  float64
}

// NewQuery wraps a query string and filter. The string will be parsed
// for structural filter information (genre names, target ages) when
// hypotheses are generated.
func NewQuery(queryString string, filter *Filter) *Query {
	return newQuery(queryString, filter, true)
}

// NewRawQuery wraps an already-built relevance clause, such as the
// output of a JSONQuery, in the standard filter and sort pipeline.
func NewRawQuery(raw M, filter *Filter) *Query {
	q := newQuery("", filter, false)
	q.rawQuery = raw
	return q
}

func newQuery(queryString string, filter *Filter, useParser bool) *Query {
	q := &Query{
		QueryString: queryString,
		Filter:      filter,
		useParser:   useParser,
		words:       strings.Fields(queryString),
	}
	q.containsStopwords = ContainsStopwords(q.words)

	// How heavily to weight fuzzy hypotheses. A fuzzy hypothesis
	// tests the idea that the patron meant the original hypothesis
	// but made a typo. Names generally fail the dictionary check, so
	// failing it is the common case and fuzzy matches get their full
	// weight; if everything is spelled correctly a word can still be
	// misspelled as another word, so fuzzy hypotheses are kept at
	// half strength.
	switch {
	case len(q.words) == 0:
		q.fuzzyCoefficient = 0
	case q.containsStopwords || !AllWordsKnown(q.words):
		q.fuzzyCoefficient = 1.0
	default:
		q.fuzzyCoefficient = 0.5
	}
	return q
}

type hypothesis struct {
	query  M
	weight float64
}

// SearchQuery builds the relevance query for this query string: a
// dis_max that tests a number of hypotheses about what the string
// might really mean, scoring each work by its best hypothesis. With
// no query string at all, everything matches.
func (q *Query) SearchQuery() M {
	if q.rawQuery != nil {
		return q.rawQuery
	}
	if q.QueryString == "" {
		return MatchAll()
	}

	var hypotheses []M

	// The query string might be a match against a single field,
	// probably title or series. These are the most common searches.
	for _, field := range simpleMatchFields {
		for _, h := range q.matchOneFieldHypotheses(field, q.QueryString) {
			hypotheses = q.hypothesize(hypotheses, []M{h.query}, h.weight, nil, false)
		}
	}

	// The string might be an author's name. More complicated than the
	// single-field case because a work has multiple contributors and
	// only some roles count as authorship.
	for _, h := range q.matchAuthorHypotheses() {
		hypotheses = q.hypothesize(hypotheses, []M{h.query}, h.weight, nil, false)
	}

	// The string may be looking for a certain topic or subject.
	for _, h := range q.matchTopicHypotheses() {
		hypotheses = q.hypothesize(hypotheses, []M{h.query}, h.weight, nil, false)
	}

	// The string might combine words from the title with words from
	// another major field, probably the author's name.
	for _, other := range multiMatchFields {
		for _, h := range q.titleMultiMatchFor(other) {
			hypotheses = q.hypothesize(hypotheses, []M{h.query}, h.weight, nil, false)
		}
	}

	// Finally, the string might contain a filter portion (a genre
	// name, a target age) with the remainder being the real query
	// string: for "nonfiction asteroids", searching nonfiction for
	// "asteroids" will beat searching text fields for the whole
	// phrase.
	if q.useParser {
		parser := NewQueryParser(q.QueryString)
		subHypotheses, filters := parser.MatchQueries, parser.Filters
		if len(subHypotheses) > 0 || len(filters) > 0 {
			boost := slightlyAboveBaseline
			if len(subHypotheses) == 0 {
				// The entire search string became a filter
				// (e.g. "young adult romance"). Everything matching
				// the filter matches, with a relatively high boost.
				subHypotheses = []M{MatchAll()}
				boost = queryWasAFilterWeight
			}
			hypotheses = q.hypothesize(hypotheses, subHypotheses, boost, filters, true)
		}
	}

	return combineHypotheses(hypotheses)
}

// matchOneFieldHypotheses yields the ways the query string might be
// an attempt to match a single field: a heavily boosted keyword
// match, a baseline phrase match against the minimally processed
// variant, conditional with-stopwords and stemmed variants, and fuzzy
// versions of the phrase match when fuzziness is worth anything.
func (q *Query) matchOneFieldHypotheses(baseField, queryString string) []hypothesis {
	baseWeight := weightForField[baseField]

	keywordCoefficient := float64(defaultKeywordMatchCoefficient)
	if c, ok := keywordMatchCoefficientForField[baseField]; ok {
		keywordCoefficient = c
	}

	var out []hypothesis

	// A keyword match: the field value is a near-exact match for what
	// was typed.
	out = append(out, hypothesis{
		Term(baseField+".keyword", queryString),
		baseWeight * keywordCoefficient,
	})

	// The baseline: a phrase match against the minimally stemmed
	// variant. Most queries are consecutive words from one field.
	out = append(out, hypothesis{
		MatchPhrase(baseField+".minimal", queryString),
		baseWeight * baselineCoefficient,
	})

	if q.containsStopwords && stopwordFields[baseField] {
		// A phrase match against the variant that keeps stopwords,
		// boosted slightly above baseline so it wins when it matches.
		out = append(out, hypothesis{
			MatchPhrase(baseField+".with_stopwords", queryString),
			baseWeight * slightlyAboveBaseline,
		})
	}

	if stemmableFields[baseField] {
		// A non-phrase match against the aggressively stemmed
		// variant, run at a disadvantage. Handles words out of order
		// and matches that only work after stemming.
		out = append(out, hypothesis{
			matchWithMinimum(baseField, queryString, nil),
			baseWeight * baselineCoefficient * 0.75,
		})
	}

	if q.fuzzyCoefficient > 0 {
		// Fuzzy versions of the baseline hypothesis, checked against
		// something close to what the patron actually typed.
		out = append(out, q.fuzzyMatches(baseField+".minimal", queryString, baseWeight)...)
	}
	return out
}

// matchWithMinimum builds an analyzed match requiring at least two of
// the query's words to match (when there are two or more). This keeps
// "Foo" from topping the results for "foo bar": the match has to
// explain why they typed "bar".
func matchWithMinimum(field, queryString string, extra M) M {
	inner := M{
		"query":                queryString,
		"minimum_should_match": 2,
	}
	for k, v := range extra {
		inner[k] = v
	}
	return M{"match": M{field: inner}}
}

// fuzzyMatches yields fuzzy versions of a phrase-match hypothesis at
// a fraction of its weight. fuzziness AUTO allows typos in proportion
// to word length; max_expansions bounds the alternates considered.
func (q *Query) fuzzyMatches(fieldName, queryString string, baseWeight float64) []hypothesis {
	fuzzy := M{"fuzziness": "AUTO", "max_expansions": 2}
	first := matchWithMinimum(fieldName, queryString, fuzzy)

	// Assuming no typo in the first character of a word, usually a
	// safe bet, the hypothesis is worth three quarters of the
	// non-fuzzy version instead of half.
	withPrefix := M{"fuzziness": "AUTO", "max_expansions": 2, "prefix_length": 1}
	second := matchWithMinimum(fieldName, queryString, withPrefix)

	return []hypothesis{
		{first, baseWeight * q.fuzzyCoefficient * 0.50},
		{second, baseWeight * q.fuzzyCoefficient * 0.75},
	}
}

// matchAuthorHypotheses yields the ways the query string might be an
// author's name: as typed against display names, and converted to a
// probable sort form against sort names. Nobody types a sort name,
// but people do paste them.
func (q *Query) matchAuthorHypotheses() []hypothesis {
	out := q.authorFieldMustMatch("display_name", q.QueryString)
	sortName := DisplayNameToSortName(q.QueryString)
	if sortName != "" {
		out = append(out, q.authorFieldMustMatch("sort_name", sortName)...)
	}
	return out
}

// authorFieldMustMatch yields hypotheses matching one contributors
// field, each additionally requiring an authorship-level role.
func (q *Query) authorFieldMustMatch(baseField, queryString string) []hypothesis {
	fieldName := "contributors." + baseField
	var out []hypothesis
	for _, h := range q.matchOneFieldHypotheses(fieldName, queryString) {
		out = append(out, hypothesis{roleMustAlsoMatch(h.query), h.weight})
	}
	return out
}

// roleMustAlsoMatch restricts a contributors clause so the match only
// counts for search-relevant roles. Weighting primary authors over
// narrators here slows searches down badly without improving results.
func roleMustAlsoMatch(base M) M {
	matchRole := Terms("contributors.role", AuthorMatchRoles)
	return Nested(SubdocContributors, Bool{Must: []M{base, matchRole}}.Map())
}

// matchTopicHypotheses yields the hypothesis that the query string is
// about a topic: the best of a match against the summary or against
// classification terms, stemmed by the default analyzer.
func (q *Query) matchTopicHypotheses() []hypothesis {
	return []hypothesis{{
		M{"multi_match": M{
			"query":  q.QueryString,
			"fields": []string{"summary", "classifications.term"},
			"type":   "best_fields",
		}},
		weightForField["summary"],
	}}
}

// titleMultiMatchFor yields the hypothesis that the query string
// combines title words with words from another field. This only works
// when everything is spelled correctly, can't be combined with
// fuzziness, and is meaningless for single-word queries.
func (q *Query) titleMultiMatchFor(otherField string) []hypothesis {
	if len(q.words) < 2 {
		return nil
	}

	// Somewhere between the weight of a pure title match and a pure
	// match against the other field.
	titleWeight := weightForField["title"]
	otherWeight := weightForField[otherField]
	combinedWeight := otherWeight * (otherWeight / titleWeight)

	return []hypothesis{{
		M{"multi_match": M{
			"query":  q.QueryString,
			"fields": []string{"title.minimal", otherField + ".minimal"},
			"type":   "cross_fields",
			// The hypothesis must explain the entire query string, or
			// the title's weight would boost partial title matches
			// over better matches found some other way.
			"operator":             "and",
			"minimum_should_match": "100%",
		}},
		combinedWeight,
	}}
}

// hypothesize adds one weighted hypothesis to the list, optionally
// restricted by filters that must also match.
func (q *Query) hypothesize(hypotheses []M, queries []M, boost float64, filters []M, allMustMatch bool) []M {
	if len(queries) == 0 && len(filters) == 0 {
		return hypotheses
	}
	return append(hypotheses, boostQuery(boost, queries, filters, allMustMatch))
}

// boostQuery weights a clause relative to its neighbors in a dis_max.
// With allMustMatch, every subquery must match for the boost to
// apply; otherwise one is enough.
func boostQuery(boost float64, queries []M, filters []M, allMustMatch bool) M {
	b := Bool{Boost: boost, Filter: filters}
	if allMustMatch || len(queries) == 1 {
		b.Must = queries
	} else {
		b.Should = queries
		b.MinimumShouldMatch = 1
	}
	return b.Map()
}

// combineHypotheses tests a set of hypotheses at once; with none to
// test, everything matches.
func combineHypotheses(hypotheses []M) M {
	if len(hypotheses) == 0 {
		return MatchAll()
	}
	return DisMax(hypotheses)
}

// nestable wraps a clause in a nested query when its field lives in a
// subdocument.
func nestable(field string, query M) M {
	if i := strings.Index(field, "."); i > 0 {
		switch sub := field[:i]; sub {
		case SubdocLicensePools, SubdocGenres, SubdocCustomLists,
			SubdocContributors, SubdocIdentifiers:
			return Nested(sub, query)
		}
	}
	return query
}

// matchTerm builds an exact-match clause against a field, nested if
// the field requires it.
func matchTerm(field string, value any) M {
	return nestable(field, Term(field, value))
}

// makeTargetAgeQuery builds the two versions of a target age
// restriction: a filter matching any overlap with the range, and a
// boosted query preferring works whose range sits entirely inside it.
// For a query of ages 4-6, a work at 5-6 should beat one at 6-7.
func makeTargetAgeQuery(targetAge *AgeRange, boost float64) (M, M) {
	lower, upper := *targetAge.Lower, *targetAge.Upper
	must := []M{
		RangeClause("target_age.upper", "gte", lower),
		RangeClause("target_age.lower", "lte", upper),
	}
	should := []M{
		RangeClause("target_age.upper", "lte", upper),
		RangeClause("target_age.lower", "gte", lower),
	}
	filterVersion := Bool{Must: must}.Map()
	queryVersion := Bool{Must: must, Should: should, Boost: boost}.Map()
	return filterVersion, queryVersion
}

// BuildBody assembles the complete request body for this query:
// relevance query plus built filter, universal filters, scoring
// functions, sort order, script fields, and pagination.
func (q *Query) BuildBody(pagination *SortKeyPagination) (M, error) {
	query := q.SearchQuery()

	var built BuiltFilter
	if q.Filter != nil {
		built = q.Filter.Build()
	} else {
		built.Nested = map[string][]M{}
	}

	// The caller's base filter and the universal base filter combine
	// by AND; both apply in filter context so they do not affect
	// relevance scores.
	queryFilter := UniversalBaseFilter()
	if built.Main != nil {
		queryFilter = combine([]M{built.Main, queryFilter})
	}
	query = Bool{Must: []M{query}, Filter: []M{queryFilter}}.Map()

	if q.Filter != nil && len(q.Filter.ScoringFunctions) > 0 {
		// Scoring functions contribute to the relevance score on top
		// of whatever the main query produced.
		query = Bool{Must: []M{
			query,
			FunctionScore(MatchAll(), q.Filter.ScoringFunctions),
		}}.Map()
	}

	body := M{"query": query}

	// Universal nested filters join the caller's nested filters; each
	// clause becomes its own nested query in filter context.
	nested := built.Nested
	for path, clauses := range UniversalNestedFilters() {
		nested[path] = append(nested[path], clauses...)
	}
	var nestedQueries []M
	for _, path := range []string{
		SubdocLicensePools, SubdocGenres, SubdocCustomLists,
		SubdocContributors, SubdocIdentifiers,
	} {
		for _, clause := range nested[path] {
			nestedQueries = append(nestedQueries, NestedFilter(path, clause))
		}
	}
	if len(nestedQueries) > 0 {
		query = Bool{Must: []M{query}, Filter: nestedQueries}.Map()
		body["query"] = query
	}

	if q.Filter != nil {
		sortOrder, err := q.Filter.SortOrder()
		if err != nil {
			return nil, err
		}
		if len(sortOrder) > 0 {
			body["sort"] = sortOrder
		}
		if len(q.Filter.ScriptFields) > 0 {
			body["script_fields"] = q.Filter.ScriptFields
		}
		if q.Filter.MinScore != nil {
			body["min_score"] = *q.Filter.MinScore
		}
	}

	body["_source"] = []string{"work_id"}

	if pagination != nil {
		pagination.ModifySearchBody(body)
	}
	return body, nil
}
