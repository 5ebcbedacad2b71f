package search

import (
	"fmt"
	"time"
)

// Sort orders a caller can request by name.
const (
	OrderTitle             = "sort_title"
	OrderAuthor            = "sort_author"
	OrderSeriesPosition    = "series_position"
	OrderAddedToCollection = "licensepools.availability_time"
	OrderLastUpdate        = "last_update_time"
	OrderWorkID            = "work_id"
	OrderRelevance         = "relevance"
)

// Availability facet values.
const (
	AvailableAll        = "all"
	AvailableNow        = "now"
	AvailableOpenAccess = "open-access"
	AvailableNotNow     = "not-now"
)

// Search types.
const (
	SearchTypeDefault = "default"
	SearchTypeJSON    = "json"
)

// FilterModifier is the capability a facets object needs: mutate a
// filter's restrictions in place, and supply scoring functions for the
// filter to store. Each presentation mode (faceted browse, featured
// feeds, search results, crawlable feeds) implements it.
type FilterModifier interface {
	ModifySearchFilter(f *Filter)
	ScoringFunctions(f *Filter) []M
}

// Facets customizes a filter for ordinary faceted browsing: a sort
// order, an availability scope, and optionally a collection,
// distributor, or medium restriction.
type Facets struct {
	Order          string
	OrderAscending bool
	Availability   string
	DistributorID  *int64
	CollectionID   *int64
	Medium         string

	MinimumFeaturedQuality float64
}

func (fc *Facets) ModifySearchFilter(f *Filter) {
	f.MinimumFeaturedQuality = fc.MinimumFeaturedQuality

	if fc.Availability != "" {
		f.Availability = fc.Availability
	}
	if fc.DistributorID != nil {
		f.LicenseDataSources = []int64{*fc.DistributorID}
	}
	if fc.CollectionID != nil {
		f.CollectionIDs = []int64{*fc.CollectionID}
	}
	if fc.Medium != "" {
		f.Media = []string{fc.Medium}
	}

	switch fc.Order {
	case "", OrderRelevance:
		// Relevance needs no sort specification.
	case OrderSeriesPosition:
		// Position within a series ties on title, not author.
		f.Order = []string{OrderSeriesPosition, OrderTitle}
		f.OrderAscending = fc.OrderAscending
	default:
		f.Order = []string{fc.Order}
		f.OrderAscending = fc.OrderAscending
	}
}

func (fc *Facets) ScoringFunctions(f *Filter) []M {
	return nil
}

// FeaturedFacets customizes a filter for a grouped feed of featured
// works: no fixed sort order, but scoring functions that weight works
// randomly with more featurable works tending to come out on top.
type FeaturedFacets struct {
	MinimumFeaturedQuality float64

	// RandomSeed pins the random scoring component; Deterministic
	// removes it entirely, for tests.
	RandomSeed    *int64
	Deterministic bool
}

func (fc *FeaturedFacets) ModifySearchFilter(f *Filter) {
	f.MinimumFeaturedQuality = fc.MinimumFeaturedQuality
}

func (fc *FeaturedFacets) ScoringFunctions(f *Filter) []M {
	var seed int64
	if fc.RandomSeed != nil {
		seed = *fc.RandomSeed
	} else {
		seed = time.Now().Unix()
	}
	return f.FeaturabilityScoringFunctions(seed, fc.Deterministic)
}

// SearchFacets customizes a filter for search-results ranking: an
// optional medium restriction from the active entry point, a minimum
// relevance score, and the search type.
type SearchFacets struct {
	Medium     string
	Languages  []string
	MinScore   *float64
	SearchType string
}

func (fc *SearchFacets) ModifySearchFilter(f *Filter) {
	if fc.Medium != "" {
		f.Media = []string{fc.Medium}
	}
	if len(fc.Languages) > 0 {
		f.Languages = fc.Languages
	}
	if fc.SearchType != "" {
		f.SearchType = fc.SearchType
	}
	if fc.SearchType == SearchTypeJSON {
		// JSON searches are exact matches; relevance scores are
		// meaningless there.
		f.MinScore = nil
	} else if fc.MinScore != nil {
		f.MinScore = fc.MinScore
	}
}

func (fc *SearchFacets) ScoringFunctions(f *Filter) []M {
	return nil
}

// CrawlableFacets customizes a filter for crawlable feeds, which
// clients consume in bulk: most recently updated works first, no
// availability scoping beyond the universal filters.
type CrawlableFacets struct{}

func (fc *CrawlableFacets) ModifySearchFilter(f *Filter) {
	f.Order = []string{OrderLastUpdate}
	f.OrderAscending = false
}

func (fc *CrawlableFacets) ScoringFunctions(f *Filter) []M {
	return nil
}

// A work's quality is missing sometimes; assume the worst.
const featurableScriptDefaultQuality = 0.001

// The script that scores a work's featurability. Works at or above
// the minimum featured quality all get the same high score; below the
// cutoff, the score is proportional to the square of the quality, so
// medium-quality works outrank low-quality ones.
const featurableScript = "Math.pow(Math.min(%.5f, doc['quality'].size() != 0 ? doc['quality'].value : %g), %.5f) * 5"

// FeaturabilityScoringFunctions generates scoring functions that
// weight works randomly, with more featurable works tending to be at
// the top.
func (f *Filter) FeaturabilityScoringFunctions(randomSeed int64, deterministic bool) []M {
	exponent := 2.0
	cutoff := f.MinimumFeaturedQuality * f.MinimumFeaturedQuality
	script := fmt.Sprintf(featurableScript, cutoff, featurableScriptDefaultQuality, exponent)

	functions := []M{
		{"script_score": M{"script": M{"source": script}}},
		// Currently available works are more featurable.
		{
			"filter": NestedFilter(SubdocLicensePools, Term("licensepools.available", true)),
			"weight": 5,
		},
	}

	if !deterministic {
		// Random chance can boost a lower-quality work, but not by
		// much. This mainly ensures we don't serve the exact same
		// books every time.
		functions = append(functions, M{
			"random_score": M{"seed": randomSeed, "field": "work_id"},
			"weight":       1.1,
		})
	}

	if len(f.CustomListRestrictionSets) > 0 {
		var listIDs []int64
		seen := map[int64]bool{}
		for _, restriction := range f.CustomListRestrictionSets {
			for _, id := range restriction {
				if !seen[id] {
					seen[id] = true
					listIDs = append(listIDs, id)
				}
			}
		}
		// A work featured on one of the relevant lists is boosted
		// quite a lot over one that is merely on the list.
		featuredOnList := Bool{Must: []M{
			Term("customlists.featured", true),
			TermsInt("customlists.list_id", listIDs),
		}}.Map()
		functions = append(functions, M{
			"filter": Nested(SubdocCustomLists, featuredOnList),
			"weight": 11,
		})
	}
	return functions
}
