package search

// M is a JSON-serializable query clause. Every builder in this package
// emits the backend's query DSL as plain maps so bodies can be composed
// and marshalled without an intermediate type layer.
type M = map[string]any

// Bool collects the pieces of a boolean compound clause. Zero-valued
// fields are omitted from the emitted map.
type Bool struct {
	Must               []M
	Should             []M
	MustNot            []M
	Filter             []M
	MinimumShouldMatch int
	Boost              float64
}

func (b Bool) Map() M {
	inner := M{}
	if len(b.Must) > 0 {
		inner["must"] = b.Must
	}
	if len(b.Should) > 0 {
		inner["should"] = b.Should
	}
	if len(b.MustNot) > 0 {
		inner["must_not"] = b.MustNot
	}
	if len(b.Filter) > 0 {
		inner["filter"] = b.Filter
	}
	if b.MinimumShouldMatch > 0 {
		inner["minimum_should_match"] = b.MinimumShouldMatch
	}
	if b.Boost != 0 {
		inner["boost"] = b.Boost
	}
	return M{"bool": inner}
}

func Term(field string, value any) M {
	return M{"term": M{field: value}}
}

func Terms(field string, values any) M {
	return M{"terms": M{field: values}}
}

func TermsInt(field string, values []int64) M {
	if values == nil {
		values = []int64{}
	}
	return M{"terms": M{field: values}}
}

func Exists(field string) M {
	return M{"exists": M{"field": field}}
}

func MatchAll() M {
	return M{"match_all": M{}}
}

func MatchNone() M {
	return M{"match_none": M{}}
}

// RangeClause builds {"range": {field: {op: value, ...}}} from pairs of
// operator and bound, e.g. RangeClause("target_age.upper", "gte", 5).
func RangeClause(field string, pairs ...any) M {
	bounds := M{}
	for i := 0; i+1 < len(pairs); i += 2 {
		bounds[pairs[i].(string)] = pairs[i+1]
	}
	return M{"range": M{field: bounds}}
}

func MatchPhrase(field, value string) M {
	return M{"match_phrase": M{field: value}}
}

func Regexp(field, pattern string) M {
	return M{"regexp": M{field: M{"value": pattern}}}
}

func Nested(path string, query M) M {
	return M{"nested": M{"path": path, "query": query}}
}

// NestedFilter wraps clauses for a subdocument the way every emitted
// nested restriction is shaped: a bool filter under the subdoc path.
func NestedFilter(path string, clauses ...M) M {
	return Nested(path, Bool{Filter: clauses}.Map())
}

func DisMax(queries []M) M {
	return M{"dis_max": M{"queries": queries}}
}

// Boosted wraps a clause in a boosting bool so hypotheses carry
// independent weights into a dis_max disjunction.
func Boosted(weight float64, clause M) M {
	return Bool{Must: []M{clause}, Boost: weight}.Map()
}

// FunctionScore wraps a base query with weighted scoring functions,
// summing their contributions into the relevance score.
func FunctionScore(base M, functions []M) M {
	return M{"function_score": M{
		"query":      base,
		"functions":  functions,
		"score_mode": "sum",
	}}
}

// combine ANDs a set of top-level filter clauses. One clause passes
// through untouched; several are wrapped in a bool must.
func combine(clauses []M) M {
	switch len(clauses) {
	case 0:
		return nil
	case 1:
		return clauses[0]
	default:
		return Bool{Must: clauses}.Map()
	}
}
