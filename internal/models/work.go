package models

import "time"

// WorkDocument is the shape of a work as stored in the search index.
// Subdocument slices (genres, licensepools, customlists, contributors,
// identifiers) are indexed as nested documents.
type WorkDocument struct {
	WorkID           int64             `json:"work_id"`
	Title            string            `json:"title,omitempty"`
	SortTitle        string            `json:"sort_title,omitempty"`
	Subtitle         string            `json:"subtitle,omitempty"`
	Series           string            `json:"series,omitempty"`
	SeriesPosition   int               `json:"series_position,omitempty"`
	Author           string            `json:"author,omitempty"`
	SortAuthor       string            `json:"sort_author,omitempty"`
	Medium           string            `json:"medium,omitempty"`
	Language         string            `json:"language,omitempty"`
	Publisher        string            `json:"publisher,omitempty"`
	Imprint          string            `json:"imprint,omitempty"`
	Summary          string            `json:"summary,omitempty"`
	Audience         string            `json:"audience,omitempty"`
	Fiction          string            `json:"fiction,omitempty"`
	Quality          float64           `json:"quality,omitempty"`
	Rating           float64           `json:"rating,omitempty"`
	Popularity       float64           `json:"popularity,omitempty"`
	PresentationReady bool             `json:"presentation_ready"`
	Published        float64           `json:"published,omitempty"`
	LastUpdateTime   int64             `json:"last_update_time,omitempty"`
	TargetAge        *TargetAgeDoc     `json:"target_age,omitempty"`
	Classifications  []Classification  `json:"classifications,omitempty"`
	Genres           []GenreDoc        `json:"genres,omitempty"`
	LicensePools     []LicensePoolDoc  `json:"licensepools,omitempty"`
	CustomLists      []CustomListDoc   `json:"customlists,omitempty"`
	Contributors     []ContributorDoc  `json:"contributors,omitempty"`
	Identifiers      []IdentifierDoc   `json:"identifiers,omitempty"`
}

type TargetAgeDoc struct {
	Lower *int `json:"lower,omitempty"`
	Upper *int `json:"upper,omitempty"`
}

type Classification struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight,omitempty"`
}

type GenreDoc struct {
	GenreID int64   `json:"genre_id"`
	Name    string  `json:"name"`
	Weight  float64 `json:"weight,omitempty"`
}

type LicensePoolDoc struct {
	CollectionID     int64 `json:"collection_id"`
	DataSourceID     int64 `json:"data_source_id"`
	OpenAccess       bool  `json:"open_access"`
	Suppressed       bool  `json:"suppressed"`
	Licensed         bool  `json:"licensed"`
	Available        bool  `json:"available"`
	Medium           string `json:"medium,omitempty"`
	AvailabilityTime int64 `json:"availability_time,omitempty"`
}

type CustomListDoc struct {
	ListID          int64 `json:"list_id"`
	Featured        bool  `json:"featured"`
	FirstAppearance int64 `json:"first_appearance,omitempty"`
}

type ContributorDoc struct {
	SortName    string `json:"sort_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
	LC          string `json:"lc,omitempty"`
	VIAF        string `json:"viaf,omitempty"`
}

type IdentifierDoc struct {
	Identifier string `json:"identifier"`
	Type       string `json:"type"`
}

// WorkHit is one search result: the work id plus the backend-assigned
// score and sort key. Sort carries the raw search-after cursor values.
type WorkHit struct {
	WorkID       int64          `json:"work_id"`
	Score        float64        `json:"score"`
	Sort         []any          `json:"sort,omitempty"`
	LastUpdate   *time.Time     `json:"last_update,omitempty"`
	ScriptFields map[string]any `json:"script_fields,omitempty"`
}

type ChangeEvent struct {
	Type      string        `json:"type"` // upsert, delete
	WorkID    int64         `json:"work_id"`
	Document  *WorkDocument `json:"document,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Version   int64         `json:"version"`
}

type IndexAction struct {
	Action    string         `json:"action"` // index, delete
	Index     string         `json:"index"`
	ID        string         `json:"id"`
	Body      map[string]any `json:"body,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type AnalyticsEvent struct {
	EventType   string         `json:"event_type"`
	QueryHash   string         `json:"query_hash"`
	QueryType   string         `json:"query_type"`
	DurationMs  float64        `json:"duration_ms"`
	TotalHits   int64          `json:"total_hits"`
	TimedOut    bool           `json:"timed_out"`
	Timestamp   time.Time      `json:"timestamp"`
	TraceID     string         `json:"trace_id"`
	Source      string         `json:"source"`
	ExtraFields map[string]any `json:"extra_fields,omitempty"`
}
