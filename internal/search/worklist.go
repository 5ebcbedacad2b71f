package search

import (
	"context"
)

// WorkList is a node in a library's lane hierarchy: a named slice of
// the catalog with optional restrictions on what belongs to it. Most
// restrictions are inherited from the parent unless a node opts out;
// genre and custom-list restrictions instead accumulate down the
// chain, each level adding its own AND-group.
type WorkList struct {
	Name   string
	Parent *WorkList

	// InheritParentRestrictions false stops the upward walk for
	// inherited values at this node.
	InheritParentRestrictions bool

	LibraryID int64

	Media     []string
	Languages []string
	Fiction   *bool
	Audiences []string
	TargetAge *AgeRange

	LicenseDataSourceID *int64

	// CollectionIDs nil means the node inherits, ultimately falling
	// back to every collection of the library.
	CollectionIDs []int64

	GenreIDs      []int64
	CustomListIDs []int64
}

// NewWorkList returns a WorkList that inherits from its parent, which
// is what nearly every configured lane does.
func NewWorkList(name string, parent *WorkList) *WorkList {
	return &WorkList{
		Name:                      name,
		Parent:                    parent,
		InheritParentRestrictions: true,
	}
}

// Library walks up to the root to find the owning library.
func (wl *WorkList) Library() int64 {
	for node := wl; node != nil; node = node.Parent {
		if node.LibraryID != 0 {
			return node.LibraryID
		}
	}
	return 0
}

// inheritedMedia and friends resolve one inherited value: the first
// node, walking upward, that declares the value wins. The walk stops
// when a node opts out of inheritance.
func (wl *WorkList) inheritedMedia() []string {
	for node := wl; node != nil; node = node.next() {
		if node.Media != nil {
			return node.Media
		}
	}
	return nil
}

func (wl *WorkList) inheritedLanguages() []string {
	for node := wl; node != nil; node = node.next() {
		if node.Languages != nil {
			return node.Languages
		}
	}
	return nil
}

func (wl *WorkList) inheritedFiction() *bool {
	for node := wl; node != nil; node = node.next() {
		if node.Fiction != nil {
			return node.Fiction
		}
	}
	return nil
}

func (wl *WorkList) inheritedAudiences() []string {
	for node := wl; node != nil; node = node.next() {
		if node.Audiences != nil {
			return node.Audiences
		}
	}
	return nil
}

func (wl *WorkList) inheritedTargetAge() *AgeRange {
	for node := wl; node != nil; node = node.next() {
		if node.TargetAge != nil {
			return node.TargetAge
		}
	}
	return nil
}

func (wl *WorkList) inheritedLicenseDataSource() *int64 {
	for node := wl; node != nil; node = node.next() {
		if node.LicenseDataSourceID != nil {
			return node.LicenseDataSourceID
		}
	}
	return nil
}

func (wl *WorkList) inheritedCollectionIDs() []int64 {
	for node := wl; node != nil; node = node.next() {
		if node.CollectionIDs != nil {
			return node.CollectionIDs
		}
	}
	return nil
}

func (wl *WorkList) next() *WorkList {
	if !wl.InheritParentRestrictions {
		return nil
	}
	return wl.Parent
}

// accumulatedGenreSets gathers every genre restriction declared from
// this node up to the root. Each level's genres form one AND-group; a
// work must match at least one genre in every group.
func (wl *WorkList) accumulatedGenreSets() [][]int64 {
	var sets [][]int64
	for node := wl; node != nil; node = node.next() {
		if len(node.GenreIDs) > 0 {
			sets = append(sets, node.GenreIDs)
		}
	}
	return sets
}

func (wl *WorkList) accumulatedCustomListSets() [][]int64 {
	var sets [][]int64
	for node := wl; node != nil; node = node.next() {
		if len(node.CustomListIDs) > 0 {
			sets = append(sets, node.CustomListIDs)
		}
	}
	return sets
}

// LaneStore provides the process-wide configuration a lane-derived
// filter needs beyond what the lane hierarchy itself declares.
type LaneStore interface {
	// LibraryCollectionIDs lists every collection of a library. A
	// library with no collections returns an empty non-nil slice.
	LibraryCollectionIDs(ctx context.Context, libraryID int64) ([]int64, error)

	LibraryAllowsHolds(ctx context.Context, libraryID int64) (bool, error)

	// ExcludedAudiobookDataSources is sitewide, not per library.
	ExcludedAudiobookDataSources(ctx context.Context) ([]int64, error)
}

// FilterFromWorkList derives a Filter from a lane hierarchy plus the
// library-level policy the store knows about. The facets object, if
// any, is applied last so it can override lane configuration.
func FilterFromWorkList(ctx context.Context, store LaneStore, wl *WorkList, facets FilterModifier) (*Filter, error) {
	f := NewFilter()
	f.laneBuilding = true

	f.Media = wl.inheritedMedia()
	f.Languages = wl.inheritedLanguages()
	f.Fiction = wl.inheritedFiction()
	f.SetAudiences(wl.inheritedAudiences()...)
	f.TargetAge = wl.inheritedTargetAge()

	if source := wl.inheritedLicenseDataSource(); source != nil {
		f.LicenseDataSources = []int64{*source}
	}

	f.CollectionIDs = wl.inheritedCollectionIDs()
	libraryID := wl.Library()
	if f.CollectionIDs == nil && libraryID != 0 {
		ids, err := store.LibraryCollectionIDs(ctx, libraryID)
		if err != nil {
			return nil, err
		}
		// Even when the library has zero collections this stays
		// non-nil: such a library can match nothing.
		if ids == nil {
			ids = []int64{}
		}
		f.CollectionIDs = ids
	}

	f.GenreRestrictionSets = wl.accumulatedGenreSets()
	f.CustomListRestrictionSets = wl.accumulatedCustomListSets()

	if libraryID != 0 {
		allowsHolds, err := store.LibraryAllowsHolds(ctx, libraryID)
		if err != nil {
			return nil, err
		}
		f.AllowHolds = allowsHolds
	}

	excluded, err := store.ExcludedAudiobookDataSources(ctx)
	if err != nil {
		return nil, err
	}
	f.ExcludedAudiobookDataSources = excluded

	if facets != nil {
		f.ApplyFacets(facets)
	}
	return f, nil
}
