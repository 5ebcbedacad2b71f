package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openshelf/catalog-search/internal/config"
	"github.com/openshelf/catalog-search/internal/models"
	"github.com/openshelf/catalog-search/internal/observability"
)

type RedisCache struct {
	client redis.UniversalClient
	ttl    config.CacheTTLConfig
	logger *zap.Logger
}

func NewRedisCache(cfg config.RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	var client redis.UniversalClient

	if len(cfg.Addresses) > 1 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addresses,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addresses[0],
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis cache connected", zap.Strings("addresses", cfg.Addresses))

	return &RedisCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

func (rc *RedisCache) GetSearchResults(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	key := rc.buildSearchKey(req)
	return rc.getResponse(ctx, key)
}

func (rc *RedisCache) SetSearchResults(ctx context.Context, req *models.SearchRequest, resp *models.SearchResponse) error {
	key := rc.buildSearchKey(req)
	if err := rc.setResponse(ctx, key, resp, rc.ttl.SearchResults); err != nil {
		return err
	}
	staleKey := rc.buildStaleKey(req)
	return rc.setResponse(ctx, staleKey, resp, rc.ttl.StaleFallback)
}

// GetStaleResults returns a longer-lived copy of a previously cached
// response, for serving when the search backend is unavailable.
func (rc *RedisCache) GetStaleResults(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	key := rc.buildStaleKey(req)
	return rc.getResponse(ctx, key)
}

// GetDataSourceID looks up a cached data source name to id mapping.
// The second return value distinguishes "not cached" from id 0.
func (rc *RedisCache) GetDataSourceID(ctx context.Context, name string) (int64, bool, error) {
	key := fmt.Sprintf("ds:%s", hashString(strings.ToLower(name)))
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		observability.CacheMisses.WithLabelValues("data_sources").Inc()
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache get data source: %w", err)
	}
	observability.CacheHits.WithLabelValues("data_sources").Inc()
	var id int64
	if err := json.Unmarshal([]byte(val), &id); err != nil {
		return 0, false, fmt.Errorf("cache unmarshal data source: %w", err)
	}
	return id, true, nil
}

func (rc *RedisCache) SetDataSourceID(ctx context.Context, name string, id int64) error {
	key := fmt.Sprintf("ds:%s", hashString(strings.ToLower(name)))
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("cache marshal data source: %w", err)
	}
	return rc.client.Set(ctx, key, data, rc.ttl.DataSources).Err()
}

func (rc *RedisCache) GetLibraryCollections(ctx context.Context, libraryID int64) ([]int64, bool, error) {
	key := fmt.Sprintf("lc:%d", libraryID)
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		observability.CacheMisses.WithLabelValues("library_collections").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get library collections: %w", err)
	}
	observability.CacheHits.WithLabelValues("library_collections").Inc()
	var ids []int64
	if err := json.Unmarshal([]byte(val), &ids); err != nil {
		return nil, false, fmt.Errorf("cache unmarshal library collections: %w", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, true, nil
}

func (rc *RedisCache) SetLibraryCollections(ctx context.Context, libraryID int64, ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	key := fmt.Sprintf("lc:%d", libraryID)
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("cache marshal library collections: %w", err)
	}
	return rc.client.Set(ctx, key, data, rc.ttl.LibraryCollections).Err()
}

func (rc *RedisCache) GetFeaturedFeed(ctx context.Context, libraryID, laneID int64) (*models.SearchResponse, error) {
	key := fmt.Sprintf("ff:%d:%d", libraryID, laneID)
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		observability.CacheMisses.WithLabelValues("featured_feeds").Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get featured feed: %w", err)
	}
	observability.CacheHits.WithLabelValues("featured_feeds").Inc()
	var resp models.SearchResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, fmt.Errorf("cache unmarshal featured feed: %w", err)
	}
	return &resp, nil
}

func (rc *RedisCache) SetFeaturedFeed(ctx context.Context, libraryID, laneID int64, resp *models.SearchResponse) error {
	key := fmt.Sprintf("ff:%d:%d", libraryID, laneID)
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("cache marshal featured feed: %w", err)
	}
	return rc.client.Set(ctx, key, data, rc.ttl.FeaturedFeeds).Err()
}

// InvalidatePattern removes every key matching the given glob
// patterns. Used after bulk index updates; scan errors are logged and
// skipped so one bad pattern doesn't block the rest.
func (rc *RedisCache) InvalidatePattern(ctx context.Context, patterns []string) error {
	for _, pattern := range patterns {
		iter := rc.client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			rc.logger.Warn("cache scan error", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		if len(keys) > 0 {
			if err := rc.client.Del(ctx, keys...).Err(); err != nil {
				rc.logger.Warn("cache delete error", zap.Strings("keys", keys), zap.Error(err))
			}
		}
	}
	return nil
}

func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

func (rc *RedisCache) getResponse(ctx context.Context, key string) (*models.SearchResponse, error) {
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		observability.CacheMisses.WithLabelValues("search_results").Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	observability.CacheHits.WithLabelValues("search_results").Inc()
	var resp models.SearchResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, fmt.Errorf("cache unmarshal: %w", err)
	}
	return &resp, nil
}

func (rc *RedisCache) setResponse(ctx context.Context, key string, resp *models.SearchResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	return rc.client.Set(ctx, key, data, ttl).Err()
}

func (rc *RedisCache) buildSearchKey(req *models.SearchRequest) string {
	return fmt.Sprintf("sr:%s", hashString(canonicalRequest(req)))
}

func (rc *RedisCache) buildStaleKey(req *models.SearchRequest) string {
	// Not under the sr: prefix so bulk invalidation of fresh results
	// leaves the fallback copies alone.
	return fmt.Sprintf("stale:sr:%s", hashString(canonicalRequest(req)))
}

// canonicalRequest flattens a request into a stable string so that
// equivalent requests share a cache key. Multi-valued fields are
// sorted; pagination cursors are included as-is since their order is
// meaningful.
func canonicalRequest(req *models.SearchRequest) string {
	parts := []string{
		req.Query,
		req.JSONQuery,
		fmt.Sprintf("lib=%d", req.LibraryID),
		fmt.Sprintf("lane=%d", req.LaneID),
		canonicalList("media", req.MediaTypes),
		canonicalList("lang", req.Languages),
		canonicalList("aud", req.Audiences),
		req.Fiction,
		fmt.Sprintf("age=%d-%d", req.MinAge, req.MaxAge),
		fmt.Sprintf("order=%s:%t", req.Order, req.Ascending),
		fmt.Sprintf("size=%d", req.PageSize),
		fmt.Sprintf("key=%v", req.PaginationKey),
	}
	return strings.Join(parts, "|")
}

func canonicalList(prefix string, values []string) string {
	if len(values) == 0 {
		return ""
	}
	sorted := make([]string, len(values))
	copy(sorted, values)
	sort.Strings(sorted)
	return prefix + "=" + strings.Join(sorted, ",")
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:8])
}
