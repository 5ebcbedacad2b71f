package search

import (
	"fmt"
	"strings"
	"time"
)

// Subdocument paths that nested clauses can be applied to. The set is
// closed: nothing else in the index is nested.
const (
	SubdocLicensePools = "licensepools"
	SubdocGenres       = "genres"
	SubdocCustomLists  = "customlists"
	SubdocContributors = "contributors"
	SubdocIdentifiers  = "identifiers"
)

// Contribution roles that count as authorship when matching a work
// against a person.
var AuthorMatchRoles = []string{"Primary Author", "Author", "Narrator"}

// UnknownAuthor is the sentinel used in bibliographic data when a
// work's author is not actually known. It is never useful as a match
// criterion.
const UnknownAuthor = "[Unknown]"

// ContributorData identifies a person by whichever identifying fields
// happen to be known.
type ContributorData struct {
	SortName    string
	DisplayName string
	VIAF        string
	LC          string
}

// IdentifierData is one (identifier, type) pair, e.g. an ISBN.
type IdentifierData struct {
	Identifier string
	Type       string
}

// Filter holds every structural restriction and the scoring and
// ordering configuration for one search. A Filter is built fresh per
// request, mutated while being configured, and then converted to
// query clauses with Build. It is not safe for concurrent use.
type Filter struct {
	// CollectionIDs nil means no collection restriction; an empty
	// non-nil slice means the caller's library holds no collections
	// and nothing can match.
	CollectionIDs []int64

	Media     []string
	Languages []string
	Fiction   *bool

	// audiences is the raw caller-supplied list. Reads go through
	// Audiences, which applies the All Ages widening rule.
	audiences []string

	TargetAge *AgeRange

	// Outer slice is AND, inner slice is OR. An inner empty slice
	// means "must match none", which is distinct from having no
	// restriction at all.
	GenreRestrictionSets      [][]int64
	CustomListRestrictionSets [][]int64

	LicenseDataSources           []int64
	ExcludedAudiobookDataSources []int64
	AllowHolds                   bool
	Availability                 string

	UpdatedAfter *time.Time

	Author      *ContributorData
	Identifiers []IdentifierData

	// Series restricts to a specific series title; MatchAnySeries
	// restricts to works that belong to any series at all.
	Series         string
	MatchAnySeries bool

	MinScore               *float64
	ScoringFunctions       []M
	Order                  []string
	OrderAscending         bool
	ScriptFields           map[string]M
	MinimumFeaturedQuality float64
	SearchType             string

	// MatchNothing short-circuits Build to a match-none query.
	MatchNothing bool

	// laneBuilding tightens the children's target-age filter when the
	// filter was derived from lane configuration.
	laneBuilding bool
}

// NewFilter returns a Filter with the defaults every search starts
// from: holds allowed, default search type, no restrictions.
func NewFilter() *Filter {
	return &Filter{
		AllowHolds:   true,
		SearchType:   SearchTypeDefault,
		ScriptFields: map[string]M{},
	}
}

// SetAudiences replaces the raw audience list.
func (f *Filter) SetAudiences(audiences ...string) {
	f.audiences = audiences
}

// Audiences applies the All Ages widening rule to the raw audience
// list. All Ages titles suit adult and young-adult readers, so those
// audiences are widened to include them. Audiences that should never
// see All Ages content (Adults Only, Research) are left alone, as are
// children's queries scoped entirely below the reading-fluency cutoff.
func (f *Filter) Audiences() []string {
	asIs := f.audiences
	if len(asIs) == 0 {
		return asIs
	}

	contains := func(target string) bool {
		for _, a := range asIs {
			if a == target {
				return true
			}
		}
		return false
	}

	if contains(AudienceAllAges) {
		return asIs
	}

	withAllAges := append(append([]string{}, asIs...), AudienceAllAges)

	if contains(AudienceYoungAdult) || contains(AudienceAdult) {
		return withAllAges
	}

	// All Ages content does not belong in Adults Only or Research.
	if !contains(AudienceChildren) {
		return asIs
	}

	// For a children's audience it comes down to the upper bound on
	// the target age.
	if f.TargetAge != nil && f.TargetAge.Upper != nil && *f.TargetAge.Upper < AllAgesCutoff {
		return asIs
	}
	return withAllAges
}

// ApplyFacets lets a facet object customize this filter's restrictions
// and scoring functions.
func (f *Filter) ApplyFacets(facets FilterModifier) {
	if facets == nil {
		return
	}
	facets.ModifySearchFilter(f)
	f.ScoringFunctions = facets.ScoringFunctions(f)
}

// BuiltFilter is the result of converting a Filter to query clauses:
// one optional top-level filter, plus per-subdocument nested clauses
// that must each be applied as their own nested query.
type BuiltFilter struct {
	Main   M
	Nested map[string][]M
}

// Build converts the filter to backend query clauses. If MatchNothing
// is set, everything else is ignored.
func (f *Filter) Build() BuiltFilter {
	nested := map[string][]M{}
	if f.MatchNothing {
		return BuiltFilter{Main: MatchNone(), Nested: nested}
	}

	var clauses []M

	if f.CollectionIDs != nil {
		nested[SubdocLicensePools] = append(nested[SubdocLicensePools],
			TermsInt("licensepools.collection_id", f.CollectionIDs))
	}

	if len(f.LicenseDataSources) > 0 {
		nested[SubdocLicensePools] = append(nested[SubdocLicensePools],
			TermsInt("licensepools.data_source_id", f.LicenseDataSources))
	}

	if f.Author != nil {
		nested[SubdocContributors] = append(nested[SubdocContributors], f.AuthorFilter())
	}

	if len(f.Media) > 0 {
		clauses = append(clauses, Terms("medium", ScrubList(f.Media)))
	}

	if len(f.Languages) > 0 {
		clauses = append(clauses, Terms("language", ScrubList(f.Languages)))
	}

	if f.Fiction != nil {
		clauses = append(clauses, Term("fiction", FictionLabel(*f.Fiction)))
	}

	if f.MatchAnySeries {
		clauses = append(clauses, Exists("series"))
		clauses = append(clauses, Bool{MustNot: []M{Term("series.keyword", "")}}.Map())
	} else if f.Series != "" {
		clauses = append(clauses, Term("series.keyword", f.Series))
	}

	if audiences := f.Audiences(); len(audiences) > 0 {
		clauses = append(clauses, Terms("audience", ScrubList(audiences)))
	} else {
		// With no explicit audience, research-only material is still
		// excluded.
		clauses = append(clauses, Bool{MustNot: []M{Term("audience", Scrub(AudienceResearch))}}.Map())
	}

	if taf := f.TargetAgeFilter(); taf != nil {
		clauses = append(clauses, taf)
	}

	for _, genreIDs := range f.GenreRestrictionSets {
		nested[SubdocGenres] = append(nested[SubdocGenres],
			TermsInt("genres.term", genreIDs))
	}

	for _, listIDs := range f.CustomListRestrictionSets {
		nested[SubdocCustomLists] = append(nested[SubdocCustomLists],
			TermsInt("customlists.list_id", listIDs))
	}

	openAccess := Term("licensepools.open_access", true)

	switch f.Availability {
	case AvailableNow:
		// Open-access books, or books with copies currently available.
		available := Term("licensepools.available", true)
		nested[SubdocLicensePools] = append(nested[SubdocLicensePools],
			Bool{Should: []M{openAccess, available}, MinimumShouldMatch: 1}.Map())
	case AvailableOpenAccess:
		nested[SubdocLicensePools] = append(nested[SubdocLicensePools], openAccess)
	case AvailableNotNow:
		// Only books that cannot be checked out right now.
		nested[SubdocLicensePools] = append(nested[SubdocLicensePools],
			Bool{Must: []M{
				Term("licensepools.open_access", false),
				Term("licensepools.licensed", true),
				Term("licensepools.available", false),
			}}.Map())
	}

	if len(f.ExcludedAudiobookDataSources) > 0 {
		// Audiobooks from certain sources cannot be fulfilled and are
		// suppressed outright.
		excluded := Bool{Must: []M{
			TermsInt("licensepools.data_source_id", f.ExcludedAudiobookDataSources),
			Term("licensepools.medium", "audio"),
		}}.Map()
		nested[SubdocLicensePools] = append(nested[SubdocLicensePools],
			Bool{MustNot: []M{excluded}}.Map())
	}

	if len(f.Identifiers) > 0 {
		// Both the identifier value and its type must match for any
		// single identifier to count; any one identifier matching is
		// enough for the work to match.
		var idClauses []M
		for _, ident := range f.Identifiers {
			idClauses = append(idClauses, Bool{Must: []M{
				Term("identifiers.identifier", ident.Identifier),
				Term("identifiers.type", ident.Type),
			}}.Map())
		}
		nested[SubdocIdentifiers] = append(nested[SubdocIdentifiers],
			Bool{Should: idClauses, MinimumShouldMatch: 1}.Map())
	}

	if !f.AllowHolds {
		// When holds are disallowed, only license pools that can be
		// checked out right now should be considered.
		available := Term("licensepools.available", true)
		nested[SubdocLicensePools] = append(nested[SubdocLicensePools],
			Bool{Should: []M{available, openAccess}, MinimumShouldMatch: 1}.Map())
	}

	if f.UpdatedAfter != nil {
		// last_update_time is indexed in epoch seconds.
		clauses = append(clauses,
			RangeClause("last_update_time", "gte", f.UpdatedAfter.Unix()))
	}

	return BuiltFilter{Main: combine(clauses), Nested: nested}
}

// UniversalBaseFilter is the restriction applied to every query no
// matter what the caller asked for: only presentation-ready works are
// ever shown.
func UniversalBaseFilter() M {
	return Term("presentation_ready", true)
}

// UniversalNestedFilters are the subdocument restrictions applied to
// every query: suppressed license pools never count, and a pool must
// be either open access or currently licensed.
func UniversalNestedFilters() map[string][]M {
	return map[string][]M{
		SubdocLicensePools: {
			Term("licensepools.suppressed", false),
			Bool{
				Should: []M{
					Term("licensepools.open_access", true),
					Term("licensepools.licensed", true),
				},
				MinimumShouldMatch: 1,
			}.Map(),
		},
	}
}

// TargetAgeFilter matches works whose target age range overlaps this
// filter's. Works with a missing upper or lower bound are treated as
// unbounded on that side rather than excluded, except when building
// lanes for a children's audience, where both bounds must be present
// and contained in the lane's range.
func (f *Filter) TargetAgeFilter() M {
	if f.TargetAge == nil {
		return nil
	}
	lower, upper := f.TargetAge.Lower, f.TargetAge.Upper
	if lower == nil && upper == nil {
		return nil
	}

	doesNotExist := func(field string) M {
		return Bool{MustNot: []M{Exists(field)}}.Map()
	}
	orDoesNotExist := func(clause M, field string) M {
		return Bool{Should: []M{clause, doesNotExist(field)}, MinimumShouldMatch: 1}.Map()
	}

	if f.laneBuilding && f.audienceIncludes(AudienceChildren) && lower != nil && upper != nil {
		return Bool{Must: []M{
			RangeClause("target_age.lower", "gte", *lower),
			RangeClause("target_age.upper", "lte", *upper),
		}}.Map()
	}

	var clauses []M
	if upper != nil {
		lowerInRange := RangeClause("target_age.lower", "lte", *upper)
		clauses = append(clauses, orDoesNotExist(lowerInRange, "target_age.lower"))
	}
	if lower != nil {
		upperInRange := RangeClause("target_age.upper", "gte", *lower)
		clauses = append(clauses, orDoesNotExist(upperInRange, "target_age.upper"))
	}

	if len(clauses) == 1 {
		return clauses[0]
	}
	return Bool{Must: clauses}.Map()
}

func (f *Filter) audienceIncludes(audience string) bool {
	for _, a := range f.Audiences() {
		if a == audience {
			return true
		}
	}
	return false
}

// AuthorFilter matches a contributors subdocument only if it
// represents an author-level contribution by this filter's author.
// Fields holding the unknown-author sentinel are skipped; if nothing
// remains, the clause degenerates to an unsatisfiable but well-formed
// expression rather than an error.
func (f *Filter) AuthorFilter() M {
	if f.Author == nil {
		return nil
	}
	authorshipRole := Terms("contributors.role", AuthorMatchRoles)
	var clauses []M
	for _, fv := range []struct {
		field string
		value string
	}{
		{"contributors.sort_name.keyword", f.Author.SortName},
		{"contributors.display_name.keyword", f.Author.DisplayName},
		{"contributors.viaf", f.Author.VIAF},
		{"contributors.lc", f.Author.LC},
	} {
		if fv.value == "" || fv.value == UnknownAuthor {
			continue
		}
		clauses = append(clauses, Term(fv.field, fv.value))
	}
	samePerson := Bool{Should: clauses, MinimumShouldMatch: 1}.Map()
	return Bool{Must: []M{authorshipRole, samePerson}}.Map()
}

// Tiebreakers appended after the primary sort key so that result
// order looks sensible to a human before the opaque work_id breaks
// any remaining ties.
var defaultSortOrder = []string{"sort_author", "sort_title", "work_id"}

// SortOrder builds the sort specification for this filter's requested
// order, or nil if no order was requested. Sorting by a nested field
// other than the availability time is rejected: aggregation semantics
// for arbitrary nested fields would be ambiguous.
func (f *Filter) SortOrder() ([]M, error) {
	if len(f.Order) == 0 {
		return nil, nil
	}

	var orderFields []M
	for _, key := range f.Order {
		field, err := f.makeOrderField(key)
		if err != nil {
			return nil, err
		}
		orderFields = append(orderFields, field)
	}

	for _, tiebreaker := range defaultSortOrder {
		already := false
		for _, key := range f.Order {
			if key == tiebreaker {
				already = true
				break
			}
		}
		if !already {
			orderFields = append(orderFields, M{tiebreaker: "asc"})
		}
	}
	return orderFields, nil
}

func (f *Filter) asc() string {
	if f.OrderAscending {
		return "asc"
	}
	return "desc"
}

func (f *Filter) makeOrderField(key string) (M, error) {
	if key == "last_update_time" && (f.CollectionIDs != nil || len(f.CustomListRestrictionSets) > 0) {
		// "Last update" must mean the most recent of a metadata
		// change, being first seen in one of the active collections,
		// or first appearing on one of the active lists. That cannot
		// be expressed as a stored field, so a stored script computes
		// it server-side.
		return f.lastUpdateTimeOrderBy(), nil
	}

	if !strings.Contains(key, ".") {
		return M{key: f.asc()}, nil
	}

	if key != "licensepools.availability_time" {
		return nil, fmt.Errorf("cannot sort by nested field %s", key)
	}

	// Sorting by the time a work became available: only license pools
	// in the filter's collections count, and of those the earliest
	// wins.
	sortDescription := M{"order": f.asc(), "mode": "min"}
	if len(f.CollectionIDs) > 0 {
		sortDescription["nested"] = M{
			"path":   SubdocLicensePools,
			"filter": M{"terms": M{"licensepools.collection_id": f.CollectionIDs}},
		}
	}
	return M{key: sortDescription}, nil
}

// LastUpdateScriptName is the stored script, registered at index
// creation time, that computes a work's effective last-update time
// for a set of collections and lists.
const LastUpdateScriptName = "work_last_update"

// LastUpdateTimeScriptField builds the script_fields entry that
// computes the effective last-update time for this filter.
func (f *Filter) LastUpdateTimeScriptField() M {
	collectionIDs := f.CollectionIDs
	if collectionIDs == nil {
		collectionIDs = []int64{}
	}

	// Restriction set structure does not matter here: the filter part
	// of the query already enforces it. All that matters is the
	// latest time the work was added to any relevant list.
	listIDs := []int64{}
	seen := map[int64]bool{}
	for _, restriction := range f.CustomListRestrictionSets {
		for _, id := range restriction {
			if !seen[id] {
				seen[id] = true
				listIDs = append(listIDs, id)
			}
		}
	}

	return M{"script": M{
		"stored": LastUpdateScriptName,
		"params": M{
			"collection_ids": collectionIDs,
			"list_ids":       listIDs,
		},
	}}
}

func (f *Filter) lastUpdateTimeOrderBy() M {
	field := f.LastUpdateTimeScriptField()
	if f.ScriptFields == nil {
		f.ScriptFields = map[string]M{}
	}
	if _, ok := f.ScriptFields["last_update"]; !ok {
		// Expose the computed value as a script field too, so callers
		// can read the sort value back out of the response.
		f.ScriptFields["last_update"] = field
	}
	return M{"_script": M{
		"type":   "number",
		"script": field["script"],
		"order":  f.asc(),
	}}
}
