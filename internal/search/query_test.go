package search

import (
	"reflect"
	"testing"
)

func TestNewQuery_FuzzyCoefficient(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  float64
	}{
		{"empty", "", 0},
		{"whitespace only", "   ", 0},
		{"misspelled word", "mockingbrid", 1.0},
		{"names fail the dictionary", "octavia butler kindred", 1.0},
		{"contains stopword", "the martian", 1.0},
		{"all words known", "book about dogs", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQuery(tt.query, nil)
			if q.fuzzyCoefficient != tt.want {
				t.Errorf("fuzzyCoefficient = %v, want %v", q.fuzzyCoefficient, tt.want)
			}
		})
	}
}

func TestSearchQuery_Empty(t *testing.T) {
	q := NewQuery("", nil)
	got := q.SearchQuery()
	if _, ok := got["match_all"]; !ok {
		t.Errorf("expected match_all, got %v", got)
	}
}

func TestSearchQuery_IsDisMax(t *testing.T) {
	q := NewQuery("moby dick", nil)
	got := q.SearchQuery()
	dm, ok := got["dis_max"].(M)
	if !ok {
		t.Fatalf("expected dis_max, got %v", got)
	}
	if len(dm["queries"].([]M)) == 0 {
		t.Error("expected hypotheses")
	}
}

func TestSearchQuery_RawClause(t *testing.T) {
	raw := M{"term": M{"language": "eng"}}
	q := NewRawQuery(raw, nil)
	got := q.SearchQuery()
	term, ok := got["term"].(M)
	if !ok {
		t.Fatalf("expected raw clause back, got %v", got)
	}
	if term["language"] != "eng" {
		t.Errorf("raw clause altered: %v", term)
	}
}

func TestNewRawQuery_BuildBody(t *testing.T) {
	f := NewFilter()
	f.Fiction = boolPtr(true)
	q := NewRawQuery(M{"term": M{"author": "melville"}}, f)

	body, err := q.BuildBody(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The raw clause sits at the innermost must position, wrapped by
	// the universal base and nested filters.
	query := body["query"].(M)
	for {
		term, ok := query["term"].(M)
		if ok {
			if term["author"] != "melville" {
				t.Errorf("raw clause altered: %v", term)
			}
			return
		}
		boolClause, ok := query["bool"].(M)
		if !ok {
			t.Fatalf("expected bool wrapper or raw term, got %v", query)
		}
		must, ok := boolClause["must"].([]M)
		if !ok || len(must) == 0 {
			t.Fatalf("expected must clause, got %v", boolClause)
		}
		query = must[0]
	}
}

func TestMatchOneFieldHypotheses_Title(t *testing.T) {
	q := NewQuery("book of the dead", nil) // contains stopwords
	hs := q.matchOneFieldHypotheses("title", q.QueryString)

	// keyword, minimal phrase, with_stopwords phrase, stemmed, and two
	// fuzzy variants.
	if len(hs) != 6 {
		t.Fatalf("expected 6 hypotheses, got %d", len(hs))
	}

	keyword := hs[0]
	if keyword.weight != 140*1000 {
		t.Errorf("keyword weight = %v", keyword.weight)
	}
	if keyword.query["term"].(M)["title.keyword"] != "book of the dead" {
		t.Errorf("keyword clause = %v", keyword.query)
	}

	phrase := hs[1]
	if phrase.weight != 140 {
		t.Errorf("phrase weight = %v", phrase.weight)
	}
	if phrase.query["match_phrase"].(M)["title.minimal"] != "book of the dead" {
		t.Errorf("phrase clause = %v", phrase.query)
	}

	stopwords := hs[2]
	if stopwords.weight != 140*1.1 {
		t.Errorf("stopwords weight = %v", stopwords.weight)
	}

	stemmed := hs[3]
	if stemmed.weight != 140*0.75 {
		t.Errorf("stemmed weight = %v", stemmed.weight)
	}
	inner := stemmed.query["match"].(M)["title"].(M)
	if inner["minimum_should_match"] != 2 {
		t.Errorf("stemmed clause = %v", inner)
	}
}

func TestMatchOneFieldHypotheses_PublisherCoefficient(t *testing.T) {
	q := NewQuery("penguin", nil)
	hs := q.matchOneFieldHypotheses("publisher", q.QueryString)
	if hs[0].weight != 40*2 {
		t.Errorf("publisher keyword weight = %v, want 80", hs[0].weight)
	}
}

func TestFuzzyMatches_PrefixVariant(t *testing.T) {
	q := NewQuery("mockingbrid", nil)
	hs := q.fuzzyMatches("title.minimal", q.QueryString, 140)
	if len(hs) != 2 {
		t.Fatalf("expected 2 fuzzy hypotheses, got %d", len(hs))
	}
	if hs[0].weight != 140*0.5 {
		t.Errorf("plain fuzzy weight = %v", hs[0].weight)
	}
	if hs[1].weight != 140*0.75 {
		t.Errorf("prefix fuzzy weight = %v", hs[1].weight)
	}
	inner := hs[1].query["match"].(M)["title.minimal"].(M)
	if inner["prefix_length"] != 1 {
		t.Errorf("prefix clause = %v", inner)
	}
	if inner["max_expansions"] != 2 {
		t.Errorf("expansions = %v", inner)
	}
}

func TestMatchAuthorHypotheses_SortNameConversion(t *testing.T) {
	q := NewQuery("ursula k. le guin", nil)
	hs := q.matchAuthorHypotheses()
	if len(hs) == 0 {
		t.Fatal("expected hypotheses")
	}
	// Every hypothesis is nested under contributors with a role
	// restriction.
	for _, h := range hs {
		nested, ok := h.query["nested"].(M)
		if !ok {
			t.Fatalf("expected nested clause, got %v", h.query)
		}
		if nested["path"] != SubdocContributors {
			t.Errorf("path = %v", nested["path"])
		}
	}
}

func TestTitleMultiMatch(t *testing.T) {
	q := NewQuery("dick melville", nil)
	hs := q.titleMultiMatchFor("author")
	if len(hs) != 1 {
		t.Fatalf("expected 1 hypothesis, got %d", len(hs))
	}
	mm := hs[0].query["multi_match"].(M)
	if mm["operator"] != "and" || mm["minimum_should_match"] != "100%" {
		t.Errorf("multi_match = %v", mm)
	}
	want := []string{"title.minimal", "author.minimal"}
	if !reflect.DeepEqual(mm["fields"], want) {
		t.Errorf("fields = %v", mm["fields"])
	}
	// author 120, title 140: 120 * 120/140
	if hs[0].weight != 120*(120.0/140) {
		t.Errorf("weight = %v", hs[0].weight)
	}

	single := NewQuery("dick", nil)
	if hs := single.titleMultiMatchFor("author"); hs != nil {
		t.Errorf("single-word query should have no multi-match, got %v", hs)
	}
}

func TestBuildBody_UniversalFilters(t *testing.T) {
	q := NewQuery("", NewFilter())
	body, err := q.BuildBody(nil)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(body["_source"], []string{"work_id"}) {
		t.Errorf("_source = %v", body["_source"])
	}

	// The outermost query layer carries the nested universal filters.
	outer := body["query"].(M)["bool"].(M)
	nestedFilters := outer["filter"].([]M)
	if len(nestedFilters) != 2 {
		t.Fatalf("expected 2 universal nested filters, got %v", nestedFilters)
	}
	for _, nf := range nestedFilters {
		if nf["nested"].(M)["path"] != SubdocLicensePools {
			t.Errorf("unexpected nested filter %v", nf)
		}
	}

	// Inside it, the relevance query is paired with the base filter.
	inner := outer["must"].([]M)[0]["bool"].(M)
	baseFilter := inner["filter"].([]M)[0]["bool"].(M)["must"].([]M)
	foundPresentationReady := false
	for _, clause := range baseFilter {
		if term, ok := clause["term"].(M); ok {
			if term["presentation_ready"] == true {
				foundPresentationReady = true
			}
		}
	}
	if !foundPresentationReady {
		t.Errorf("presentation_ready missing from %v", baseFilter)
	}
}

func TestBuildBody_MatchNothing(t *testing.T) {
	f := NewFilter()
	f.MatchNothing = true
	q := NewQuery("anything", f)
	body, err := q.BuildBody(nil)
	if err != nil {
		t.Fatal(err)
	}
	// The match-none filter is present somewhere in the query; its
	// exact position does not matter, only that nothing can match.
	if !containsKey(body["query"], "match_none") {
		t.Errorf("expected match_none in %v", body["query"])
	}
}

func TestBuildBody_ScoringFunctions(t *testing.T) {
	f := NewFilter()
	f.ScoringFunctions = f.FeaturabilityScoringFunctions(42, false)
	q := NewQuery("", f)
	body, err := q.BuildBody(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !containsKey(body["query"], "function_score") {
		t.Errorf("expected function_score in %v", body["query"])
	}
	if !containsKey(body["query"], "random_score") {
		t.Errorf("expected random_score in %v", body["query"])
	}
}

func TestBuildBody_MinScoreAndSort(t *testing.T) {
	f := NewFilter()
	f.MinScore = floatPtr(0.3)
	f.Order = []string{"sort_title"}
	q := NewQuery("", f)
	body, err := q.BuildBody(nil)
	if err != nil {
		t.Fatal(err)
	}
	if body["min_score"] != 0.3 {
		t.Errorf("min_score = %v", body["min_score"])
	}
	if len(body["sort"].([]M)) != 3 {
		t.Errorf("sort = %v", body["sort"])
	}
}

func TestBuildBody_SortError(t *testing.T) {
	f := NewFilter()
	f.Order = []string{"genres.name"}
	q := NewQuery("", f)
	if _, err := q.BuildBody(nil); err == nil {
		t.Error("expected a sort error")
	}
}

func TestBuildBody_Pagination(t *testing.T) {
	q := NewQuery("", NewFilter())
	p := NewSortKeyPagination([]any{"Austen, Jane", "Emma", 17}, 25)
	body, err := q.BuildBody(p)
	if err != nil {
		t.Fatal(err)
	}
	if body["size"] != 25 {
		t.Errorf("size = %v", body["size"])
	}
	if !reflect.DeepEqual(body["search_after"], []any{"Austen, Jane", "Emma", 17}) {
		t.Errorf("search_after = %v", body["search_after"])
	}
}

func TestMakeTargetAgeQuery(t *testing.T) {
	age := NewAgeRange(4, 6)
	filter, query := makeTargetAgeQuery(age, 1.1)

	must := filter["bool"].(M)["must"].([]M)
	if must[0]["range"].(M)["target_age.upper"].(M)["gte"] != 4 {
		t.Errorf("filter = %v", filter)
	}
	if must[1]["range"].(M)["target_age.lower"].(M)["lte"] != 6 {
		t.Errorf("filter = %v", filter)
	}

	qb := query["bool"].(M)
	if qb["boost"] != 1.1 {
		t.Errorf("boost = %v", qb["boost"])
	}
	should := qb["should"].([]M)
	if should[0]["range"].(M)["target_age.upper"].(M)["lte"] != 6 {
		t.Errorf("query = %v", query)
	}
}

// containsKey reports whether a key appears anywhere in a query tree.
func containsKey(node any, key string) bool {
	switch v := node.(type) {
	case M:
		for k, child := range v {
			if k == key {
				return true
			}
			if containsKey(child, key) {
				return true
			}
		}
	case []M:
		for _, child := range v {
			if containsKey(child, key) {
				return true
			}
		}
	case []any:
		for _, child := range v {
			if containsKey(child, key) {
				return true
			}
		}
	}
	return false
}
