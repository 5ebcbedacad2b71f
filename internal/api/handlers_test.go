package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestHandler() *Handler {
	return &Handler{
		logger: zap.NewNop(),
	}
}

func TestSearchRequestFromParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet,
		"/search?q=moby+dick&library_id=3&media=Book,Audio&language=eng,fre&fiction=nonfiction&audience=Children&min_age=8&max_age=10&order=sort_title&ascending=true&size=30", nil)

	sr := searchRequestFromParams(r)
	if sr.Query != "moby dick" {
		t.Errorf("expected query 'moby dick', got %q", sr.Query)
	}
	if sr.LibraryID != 3 {
		t.Errorf("expected library 3, got %d", sr.LibraryID)
	}
	if len(sr.MediaTypes) != 2 || sr.MediaTypes[1] != "Audio" {
		t.Errorf("unexpected media types: %v", sr.MediaTypes)
	}
	if len(sr.Languages) != 2 || sr.Languages[0] != "eng" {
		t.Errorf("unexpected languages: %v", sr.Languages)
	}
	if sr.Fiction != "nonfiction" {
		t.Errorf("expected nonfiction, got %q", sr.Fiction)
	}
	if len(sr.Audiences) != 1 || sr.Audiences[0] != "Children" {
		t.Errorf("unexpected audiences: %v", sr.Audiences)
	}
	if sr.MinAge != 8 || sr.MaxAge != 10 {
		t.Errorf("unexpected age range: %d-%d", sr.MinAge, sr.MaxAge)
	}
	if sr.Order != "sort_title" || !sr.Ascending {
		t.Errorf("unexpected order: %q asc=%v", sr.Order, sr.Ascending)
	}
	if sr.PageSize != 30 {
		t.Errorf("expected page size 30, got %d", sr.PageSize)
	}
}

func TestSearchRequestFromParams_PaginationKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet,
		`/search?q=dogs&key=`+`%5B%22melville%22%2C%22moby%20dick%22%2C42%5D`, nil)

	sr := searchRequestFromParams(r)
	if len(sr.PaginationKey) != 3 {
		t.Fatalf("expected 3-element pagination key, got %v", sr.PaginationKey)
	}
	if sr.PaginationKey[0] != "melville" {
		t.Errorf("unexpected key element: %v", sr.PaginationKey[0])
	}
}

func TestSearchRequestFromParams_MalformedNumbersIgnored(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet,
		"/search?q=dogs&library_id=abc&size=-5&min_age=x&key=notjson", nil)

	sr := searchRequestFromParams(r)
	if sr.LibraryID != 0 {
		t.Errorf("bad library_id should be ignored, got %d", sr.LibraryID)
	}
	if sr.PageSize != 0 {
		t.Errorf("non-positive size should be ignored, got %d", sr.PageSize)
	}
	if sr.MinAge != 0 {
		t.Errorf("bad min_age should be ignored, got %d", sr.MinAge)
	}
	if sr.PaginationKey != nil {
		t.Errorf("bad key should be ignored, got %v", sr.PaginationKey)
	}
}

func TestParseSearchRequest_POST(t *testing.T) {
	h := newTestHandler()

	body := `{"query": "moby dick", "library_id": 7, "page_size": 25}`
	r := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(body))

	sr, err := h.parseSearchRequest(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sr.Query != "moby dick" {
		t.Errorf("expected query 'moby dick', got %q", sr.Query)
	}
	if sr.LibraryID != 7 {
		t.Errorf("expected library 7, got %d", sr.LibraryID)
	}
	if sr.PageSize != 25 {
		t.Errorf("expected page size 25, got %d", sr.PageSize)
	}
}

func TestParseSearchRequest_POSTInvalidJSON(t *testing.T) {
	h := newTestHandler()

	r := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader("{not json"))
	if _, err := h.parseSearchRequest(r); err == nil {
		t.Fatal("expected error for invalid json body")
	}
}

func TestSearch_MissingQuery(t *testing.T) {
	h := newTestHandler()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/works/search", nil)
	w := httptest.NewRecorder()

	h.Search(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp["code"] != "missing_query" {
		t.Errorf("expected missing_query code, got %q", resp["code"])
	}
}

func TestFeatured_MissingLibrary(t *testing.T) {
	h := newTestHandler()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/feeds/featured?lanes=1,2", nil)
	w := httptest.NewRecorder()

	h.Featured(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestFeatured_BadLaneList(t *testing.T) {
	h := newTestHandler()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/feeds/featured?library_id=1&lanes=1,x", nil)
	w := httptest.NewRecorder()

	h.Featured(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if !strings.Contains(resp["error"], "lanes") {
		t.Errorf("error should mention lanes, got %q", resp["error"])
	}
}

func TestFeatured_EmptyLaneList(t *testing.T) {
	h := newTestHandler()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/feeds/featured?library_id=1&lanes=", nil)
	w := httptest.NewRecorder()

	h.Featured(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestWriteError_Shape(t *testing.T) {
	h := newTestHandler()
	w := httptest.NewRecorder()

	h.writeError(w, http.StatusBadRequest, "invalid_query", "'query' key must be present as the root")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected json content type, got %q", ct)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp["error"] != "'query' key must be present as the root" {
		t.Errorf("unexpected error message: %q", resp["error"])
	}
}
