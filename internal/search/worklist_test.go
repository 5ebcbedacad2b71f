package search

import (
	"context"
	"reflect"
	"testing"
)

type fakeLaneStore struct {
	collections map[int64][]int64
	allowsHolds bool
	excluded    []int64
}

func (s *fakeLaneStore) LibraryCollectionIDs(ctx context.Context, libraryID int64) ([]int64, error) {
	ids := s.collections[libraryID]
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

func (s *fakeLaneStore) LibraryAllowsHolds(ctx context.Context, libraryID int64) (bool, error) {
	return s.allowsHolds, nil
}

func (s *fakeLaneStore) ExcludedAudiobookDataSources(ctx context.Context) ([]int64, error) {
	return s.excluded, nil
}

func TestFilterFromWorkList_Inheritance(t *testing.T) {
	root := NewWorkList("root", nil)
	root.LibraryID = 1
	root.Languages = []string{"eng"}
	root.Fiction = boolPtr(true)
	root.GenreIDs = []int64{10}

	child := NewWorkList("child", root)
	child.GenreIDs = []int64{20, 21}

	store := &fakeLaneStore{
		collections: map[int64][]int64{1: {100, 101}},
		allowsHolds: true,
		excluded:    []int64{7},
	}

	f, err := FilterFromWorkList(context.Background(), store, child, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(f.Languages, []string{"eng"}) {
		t.Errorf("Languages = %v", f.Languages)
	}
	if f.Fiction == nil || !*f.Fiction {
		t.Errorf("Fiction = %v", f.Fiction)
	}
	if !reflect.DeepEqual(f.CollectionIDs, []int64{100, 101}) {
		t.Errorf("CollectionIDs = %v", f.CollectionIDs)
	}
	if !f.AllowHolds {
		t.Error("AllowHolds should come from the library")
	}
	if !reflect.DeepEqual(f.ExcludedAudiobookDataSources, []int64{7}) {
		t.Errorf("ExcludedAudiobookDataSources = %v", f.ExcludedAudiobookDataSources)
	}

	// Genre restrictions accumulate: the child's group AND the
	// parent's group.
	want := [][]int64{{20, 21}, {10}}
	if !reflect.DeepEqual(f.GenreRestrictionSets, want) {
		t.Errorf("GenreRestrictionSets = %v", f.GenreRestrictionSets)
	}
}

func TestFilterFromWorkList_InheritanceOptOut(t *testing.T) {
	root := NewWorkList("root", nil)
	root.LibraryID = 1
	root.Fiction = boolPtr(true)
	root.GenreIDs = []int64{10}

	child := NewWorkList("child", root)
	child.InheritParentRestrictions = false

	store := &fakeLaneStore{collections: map[int64][]int64{1: {100}}}
	f, err := FilterFromWorkList(context.Background(), store, child, nil)
	if err != nil {
		t.Fatal(err)
	}

	if f.Fiction != nil {
		t.Errorf("Fiction = %v, should not be inherited", f.Fiction)
	}
	if len(f.GenreRestrictionSets) != 0 {
		t.Errorf("GenreRestrictionSets = %v", f.GenreRestrictionSets)
	}
}

func TestFilterFromWorkList_LibraryWithoutCollections(t *testing.T) {
	wl := NewWorkList("lane", nil)
	wl.LibraryID = 2

	store := &fakeLaneStore{collections: map[int64][]int64{}}
	f, err := FilterFromWorkList(context.Background(), store, wl, nil)
	if err != nil {
		t.Fatal(err)
	}

	// An explicit empty restriction: this library can match nothing.
	if f.CollectionIDs == nil {
		t.Fatal("CollectionIDs should be non-nil")
	}
	if len(f.CollectionIDs) != 0 {
		t.Errorf("CollectionIDs = %v", f.CollectionIDs)
	}
}

func TestFilterFromWorkList_ChildrensLaneTightensTargetAge(t *testing.T) {
	wl := NewWorkList("picture books", nil)
	wl.LibraryID = 1
	wl.Audiences = []string{AudienceChildren}
	wl.TargetAge = NewAgeRange(3, 5)

	store := &fakeLaneStore{collections: map[int64][]int64{1: {100}}}
	f, err := FilterFromWorkList(context.Background(), store, wl, nil)
	if err != nil {
		t.Fatal(err)
	}

	// A lane-derived children's filter requires both bounds strictly
	// inside the lane's range instead of mere overlap.
	clause := f.TargetAgeFilter()
	must := clause["bool"].(M)["must"].([]M)
	if _, ok := must[0]["range"]; !ok {
		t.Errorf("expected a strict range, got %v", clause)
	}
}

func TestFilterFromWorkList_AppliesFacets(t *testing.T) {
	wl := NewWorkList("lane", nil)
	wl.LibraryID = 1

	store := &fakeLaneStore{collections: map[int64][]int64{1: {100}}}
	f, err := FilterFromWorkList(context.Background(), store, wl, &CrawlableFacets{})
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Order) != 1 || f.Order[0] != OrderLastUpdate {
		t.Errorf("Order = %v", f.Order)
	}
}
