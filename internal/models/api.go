package models

// SearchRequest is the wire form of a work search. Exactly one of
// Query and JSONQuery is normally set; both empty means "everything
// the filter allows", which is how lane feeds are built.
type SearchRequest struct {
	Query     string `json:"query,omitempty"`
	JSONQuery string `json:"json_query,omitempty"`

	LibraryID int64 `json:"library_id,omitempty"`
	LaneID    int64 `json:"lane_id,omitempty"`

	MediaTypes []string `json:"media_types,omitempty"`
	Languages  []string `json:"languages,omitempty"`
	Fiction    string   `json:"fiction,omitempty"` // fiction, nonfiction, or empty
	Audiences  []string `json:"audiences,omitempty"`
	MinAge     int      `json:"min_age,omitempty"`
	MaxAge     int      `json:"max_age,omitempty"`

	Order     string `json:"order,omitempty"`
	Ascending bool   `json:"ascending,omitempty"`

	PageSize      int   `json:"page_size,omitempty"`
	PaginationKey []any `json:"key,omitempty"`
}

type SearchResponse struct {
	Hits        []WorkHit `json:"hits"`
	Total       int64     `json:"total"`
	TookMs      int64     `json:"took_ms"`
	NextPageKey []any     `json:"next_page_key,omitempty"`
}
