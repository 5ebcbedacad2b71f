package cache

import (
	"testing"

	"github.com/openshelf/catalog-search/internal/models"
)

func TestHashString(t *testing.T) {
	// Deterministic
	h1 := hashString("test")
	h2 := hashString("test")
	if h1 != h2 {
		t.Errorf("hashString not deterministic: %q != %q", h1, h2)
	}

	// Different inputs produce different hashes
	h3 := hashString("other")
	if h1 == h3 {
		t.Error("different inputs should produce different hashes")
	}

	// Non-empty
	if h1 == "" {
		t.Error("hash should not be empty")
	}

	// Empty string is valid
	h4 := hashString("")
	if h4 == "" {
		t.Error("hash of empty string should not be empty")
	}
}

func TestCanonicalList(t *testing.T) {
	if got := canonicalList("lang", nil); got != "" {
		t.Errorf("expected empty string for nil values, got %q", got)
	}
	if got := canonicalList("lang", []string{"fre", "eng"}); got != "lang=eng,fre" {
		t.Errorf("expected sorted values, got %q", got)
	}

	// Input order must not change the result
	a := canonicalList("aud", []string{"Children", "Young Adult"})
	b := canonicalList("aud", []string{"Young Adult", "Children"})
	if a != b {
		t.Errorf("canonicalList order-sensitive: %q != %q", a, b)
	}
}

func TestBuildSearchKey_Deterministic(t *testing.T) {
	rc := &RedisCache{}

	req := &models.SearchRequest{
		Query:     "moby dick",
		LibraryID: 1,
		PageSize:  20,
		Order:     "title",
	}

	k1 := rc.buildSearchKey(req)
	k2 := rc.buildSearchKey(req)
	if k1 != k2 {
		t.Errorf("buildSearchKey not deterministic: %q != %q", k1, k2)
	}
	if k1 == "" {
		t.Error("search key should not be empty")
	}
	if len(k1) < 3 || k1[:3] != "sr:" {
		t.Errorf("expected 'sr:' prefix, got %q", k1)
	}
}

func TestBuildSearchKey_DifferentQueriesProduceDifferentKeys(t *testing.T) {
	rc := &RedisCache{}

	req1 := &models.SearchRequest{Query: "moby dick", PageSize: 20}
	req2 := &models.SearchRequest{Query: "jane eyre", PageSize: 20}

	if rc.buildSearchKey(req1) == rc.buildSearchKey(req2) {
		t.Error("different queries should produce different keys")
	}
}

func TestBuildSearchKey_LibraryAffectsKey(t *testing.T) {
	rc := &RedisCache{}

	req1 := &models.SearchRequest{Query: "moby dick", LibraryID: 1}
	req2 := &models.SearchRequest{Query: "moby dick", LibraryID: 2}

	if rc.buildSearchKey(req1) == rc.buildSearchKey(req2) {
		t.Error("library should affect cache key")
	}
}

func TestBuildSearchKey_PaginationKeyAffectsKey(t *testing.T) {
	rc := &RedisCache{}

	req1 := &models.SearchRequest{Query: "moby dick", PageSize: 20}
	req2 := &models.SearchRequest{
		Query:         "moby dick",
		PageSize:      20,
		PaginationKey: []any{"melville", "moby dick", 42},
	}

	if rc.buildSearchKey(req1) == rc.buildSearchKey(req2) {
		t.Error("pagination cursor should affect cache key")
	}
}

func TestBuildSearchKey_LanguageOrderDoesNotAffectKey(t *testing.T) {
	rc := &RedisCache{}

	req1 := &models.SearchRequest{Query: "dogs", Languages: []string{"eng", "fre"}}
	req2 := &models.SearchRequest{Query: "dogs", Languages: []string{"fre", "eng"}}

	if rc.buildSearchKey(req1) != rc.buildSearchKey(req2) {
		t.Error("language order should not affect cache key")
	}
}

func TestBuildStaleKey_HasStalePrefix(t *testing.T) {
	rc := &RedisCache{}

	req := &models.SearchRequest{Query: "moby dick", PageSize: 20}
	key := rc.buildStaleKey(req)

	if len(key) < 9 || key[:9] != "stale:sr:" {
		t.Errorf("expected 'stale:sr:' prefix, got %q", key)
	}
}

func TestBuildStaleKey_DifferentFromSearchKey(t *testing.T) {
	rc := &RedisCache{}

	req := &models.SearchRequest{Query: "moby dick", PageSize: 20}
	if rc.buildSearchKey(req) == rc.buildStaleKey(req) {
		t.Error("search key and stale key should be different")
	}
}
