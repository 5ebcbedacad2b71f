package search

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/openshelf/catalog-search/internal/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// SortKeyPagination paginates search results using the search-after
// mechanism: the next page is requested by supplying the sort key of
// the last item seen, not a numeric offset. Lifecycle: construct
// fresh, splice into a query with ModifySearchBody, record results
// with PageLoaded, derive the next page with NextPage.
//
// There is no way to page backward or learn a total count with this
// strategy, so Offset, TotalSize and PreviousPage are permanently
// undefined.
type SortKeyPagination struct {
	Size int

	// LastItemOnPreviousPage is the opaque sort-key array of the last
	// hit on the previous page, or nil for the first page.
	LastItemOnPreviousPage []any

	pageLoaded         bool
	thisPageSize       int
	lastItemOnThisPage []any
}

// NewSortKeyPagination builds a pagination object resuming after the
// given sort key, which may be nil for the first page. Size is
// clamped to the maximum.
func NewSortKeyPagination(lastItem []any, size int) *SortKeyPagination {
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return &SortKeyPagination{Size: size, LastItemOnPreviousPage: lastItem}
}

// PaginationFromRequest builds a pagination object from request
// arguments: "size" for the page size and "key" for the JSON-encoded
// sort key of the last item seen.
func PaginationFromRequest(getArg func(name, defaultValue string) string, defaultSize int) (*SortKeyPagination, error) {
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	size := defaultSize
	if raw := getArg("size", ""); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid page size: %q", raw)
		}
		size = parsed
	}

	var lastItem []any
	if raw := getArg("key", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &lastItem); err != nil {
			return nil, fmt.Errorf("invalid page key: %q", raw)
		}
	}
	return NewSortKeyPagination(lastItem, size), nil
}

// ModifySearchBody splices this page's slice and resume point into a
// search request body.
func (p *SortKeyPagination) ModifySearchBody(body M) {
	body["size"] = p.Size
	if p.LastItemOnPreviousPage != nil {
		body["search_after"] = p.LastItemOnPreviousPage
	}
}

// ModifyDatabaseQuery always fails: this pagination strategy is
// search-backend-specific.
func (p *SortKeyPagination) ModifyDatabaseQuery() error {
	return ErrDatabasePagination
}

// PageLoaded records the hits actually returned for this page. The
// backend's own sort key for the final hit becomes the resume point
// for the next page.
func (p *SortKeyPagination) PageLoaded(hits []models.WorkHit) {
	p.pageLoaded = true
	p.thisPageSize = len(hits)
	if len(hits) > 0 {
		p.lastItemOnThisPage = hits[len(hits)-1].Sort
	} else {
		p.lastItemOnThisPage = nil
	}
}

// ThisPageSize returns the number of hits on the loaded page, valid
// only after PageLoaded.
func (p *SortKeyPagination) ThisPageSize() int {
	return p.thisPageSize
}

// LastItemOnThisPage returns the sort key of the final hit on the
// loaded page, or nil if the page was empty or never loaded.
func (p *SortKeyPagination) LastItemOnThisPage() []any {
	return p.lastItemOnThisPage
}

// NextPage derives the pagination object for the page after the one
// just loaded. It returns nil if this page has not been loaded or
// came back empty, signalling end of results.
func (p *SortKeyPagination) NextPage() *SortKeyPagination {
	if !p.pageLoaded || p.lastItemOnThisPage == nil {
		return nil
	}
	return NewSortKeyPagination(p.lastItemOnThisPage, p.Size)
}

// Offset is always zero: this strategy has no numeric offsets.
func (p *SortKeyPagination) Offset() int { return 0 }

// TotalSize is always nil: total counts do not exist here.
func (p *SortKeyPagination) TotalSize() *int64 { return nil }

// PreviousPage is always nil: there is no way to page backward.
func (p *SortKeyPagination) PreviousPage() *SortKeyPagination { return nil }
