package search

import (
	"strings"
	"testing"
)

func TestFacets_SeriesPositionOrder(t *testing.T) {
	f := NewFilter()
	fc := &Facets{Order: OrderSeriesPosition, OrderAscending: true}
	f.ApplyFacets(fc)

	if len(f.Order) != 2 || f.Order[0] != OrderSeriesPosition || f.Order[1] != OrderTitle {
		t.Errorf("Order = %v", f.Order)
	}
}

func TestFacets_RelevanceLeavesOrderAlone(t *testing.T) {
	f := NewFilter()
	f.ApplyFacets(&Facets{Order: OrderRelevance})
	if f.Order != nil {
		t.Errorf("Order = %v", f.Order)
	}
}

func TestFacets_Restrictions(t *testing.T) {
	f := NewFilter()
	distributor := int64(3)
	collection := int64(9)
	f.ApplyFacets(&Facets{
		Availability:  AvailableNow,
		DistributorID: &distributor,
		CollectionID:  &collection,
		Medium:        "Audio",
	})

	if f.Availability != AvailableNow {
		t.Errorf("Availability = %q", f.Availability)
	}
	if len(f.LicenseDataSources) != 1 || f.LicenseDataSources[0] != 3 {
		t.Errorf("LicenseDataSources = %v", f.LicenseDataSources)
	}
	if len(f.CollectionIDs) != 1 || f.CollectionIDs[0] != 9 {
		t.Errorf("CollectionIDs = %v", f.CollectionIDs)
	}
	if len(f.Media) != 1 || f.Media[0] != "Audio" {
		t.Errorf("Media = %v", f.Media)
	}
}

func TestSearchFacets_JSONSearchDropsMinScore(t *testing.T) {
	f := NewFilter()
	f.MinScore = floatPtr(0.5)
	f.ApplyFacets(&SearchFacets{SearchType: SearchTypeJSON})
	if f.MinScore != nil {
		t.Errorf("MinScore = %v", *f.MinScore)
	}
	if f.SearchType != SearchTypeJSON {
		t.Errorf("SearchType = %q", f.SearchType)
	}
}

func TestCrawlableFacets(t *testing.T) {
	f := NewFilter()
	f.ApplyFacets(&CrawlableFacets{})
	if len(f.Order) != 1 || f.Order[0] != OrderLastUpdate {
		t.Errorf("Order = %v", f.Order)
	}
	if f.OrderAscending {
		t.Error("crawlable feeds sort newest first")
	}
}

func TestFeaturabilityScoringFunctions(t *testing.T) {
	f := NewFilter()
	f.MinimumFeaturedQuality = 0.65

	functions := f.FeaturabilityScoringFunctions(42, false)
	if len(functions) != 3 {
		t.Fatalf("expected 3 functions, got %d", len(functions))
	}

	script := functions[0]["script_score"].(M)["script"].(M)["source"].(string)
	// The cutoff is the square of the minimum quality.
	if !strings.Contains(script, "0.42250") {
		t.Errorf("script = %q", script)
	}

	if functions[1]["weight"] != 5 {
		t.Errorf("availability weight = %v", functions[1]["weight"])
	}

	random := functions[2]["random_score"].(M)
	if random["seed"] != int64(42) {
		t.Errorf("seed = %v", random["seed"])
	}
	if functions[2]["weight"] != 1.1 {
		t.Errorf("random weight = %v", functions[2]["weight"])
	}
}

func TestFeaturabilityScoringFunctions_Deterministic(t *testing.T) {
	f := NewFilter()
	functions := f.FeaturabilityScoringFunctions(42, true)
	for _, fn := range functions {
		if _, ok := fn["random_score"]; ok {
			t.Error("deterministic scoring must not include random_score")
		}
	}
}

func TestFeaturabilityScoringFunctions_FeaturedOnList(t *testing.T) {
	f := NewFilter()
	f.CustomListRestrictionSets = [][]int64{{1, 2}}

	functions := f.FeaturabilityScoringFunctions(42, true)
	last := functions[len(functions)-1]
	if last["weight"] != 11 {
		t.Fatalf("featured-on-list function = %v", last)
	}
	nested := last["filter"].(M)["nested"].(M)
	if nested["path"] != SubdocCustomLists {
		t.Errorf("path = %v", nested["path"])
	}
}
