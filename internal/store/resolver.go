package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/openshelf/catalog-search/internal/cache"
)

// CachedResolver fronts the data source registry and library
// collection lookups with Redis. Cache failures fall through to
// Postgres; both tables change rarely, so short TTLs keep the load
// off the database without staleness problems.
type CachedResolver struct {
	store  *Store
	cache  *cache.RedisCache
	logger *zap.Logger
}

func NewCachedResolver(store *Store, cache *cache.RedisCache, logger *zap.Logger) *CachedResolver {
	return &CachedResolver{store: store, cache: cache, logger: logger}
}

// DataSourceID resolves a data source name to its id. An unknown name
// returns (0, false); lookup failures are treated the same way since
// the caller has a defined behavior for unresolvable names.
func (r *CachedResolver) DataSourceID(ctx context.Context, name string) (int64, bool) {
	if r.cache != nil {
		if id, ok, err := r.cache.GetDataSourceID(ctx, name); err != nil {
			r.logger.Warn("data source cache read failed", zap.Error(err))
		} else if ok {
			return id, true
		}
	}

	id, ok, err := r.store.DataSourceIDByName(ctx, name)
	if err != nil {
		r.logger.Warn("data source lookup failed",
			zap.String("name", name), zap.Error(err))
		return 0, false
	}
	if !ok {
		return 0, false
	}

	if r.cache != nil {
		if err := r.cache.SetDataSourceID(ctx, name, id); err != nil {
			r.logger.Warn("data source cache write failed", zap.Error(err))
		}
	}
	return id, true
}

// LibraryCollectionIDs serves search.LaneStore with the cached copy
// when one exists.
func (r *CachedResolver) LibraryCollectionIDs(ctx context.Context, libraryID int64) ([]int64, error) {
	if r.cache != nil {
		if ids, ok, err := r.cache.GetLibraryCollections(ctx, libraryID); err != nil {
			r.logger.Warn("library collections cache read failed", zap.Error(err))
		} else if ok {
			return ids, nil
		}
	}

	ids, err := r.store.LibraryCollectionIDs(ctx, libraryID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.SetLibraryCollections(ctx, libraryID, ids); err != nil {
			r.logger.Warn("library collections cache write failed", zap.Error(err))
		}
	}
	return ids, nil
}

func (r *CachedResolver) LibraryAllowsHolds(ctx context.Context, libraryID int64) (bool, error) {
	return r.store.LibraryAllowsHolds(ctx, libraryID)
}

func (r *CachedResolver) ExcludedAudiobookDataSources(ctx context.Context) ([]int64, error) {
	return r.store.ExcludedAudiobookDataSources(ctx)
}
