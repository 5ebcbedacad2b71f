package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/openshelf/catalog-search/internal/cache"
	"github.com/openshelf/catalog-search/internal/config"
	"github.com/openshelf/catalog-search/internal/elasticsearch"
	"github.com/openshelf/catalog-search/internal/models"
	"github.com/openshelf/catalog-search/internal/observability"
	"github.com/openshelf/catalog-search/internal/search"
)

// CatalogStore is what the orchestrator needs to know about library
// configuration: lane policy lookups plus data source resolution.
type CatalogStore interface {
	search.LaneStore
	search.DataSourceResolver
}

// LaneSource loads configured lanes as WorkList chains.
type LaneSource interface {
	LaneWorkList(ctx context.Context, laneID int64) (*search.WorkList, error)
}

// Orchestrator turns an incoming search request into a filter, a
// query, and a backend round trip, with a cache in front and a stale
// copy behind for when the backend is down.
type Orchestrator struct {
	esClient  *elasticsearch.Client
	resolver  CatalogStore
	laneStore LaneSource
	cache     *cache.RedisCache
	slowQuery *observability.SlowQueryDetector
	cfg       config.SearchConfig
	logger    *zap.Logger
}

func New(
	esClient *elasticsearch.Client,
	resolver CatalogStore,
	laneStore LaneSource,
	redisCache *cache.RedisCache,
	slowQuery *observability.SlowQueryDetector,
	cfg config.SearchConfig,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		esClient:  esClient,
		resolver:  resolver,
		laneStore: laneStore,
		cache:     redisCache,
		slowQuery: slowQuery,
		cfg:       cfg,
		logger:    logger,
	}
}

func (o *Orchestrator) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "orchestrator.search",
		attribute.String("query", req.Query),
		attribute.Int64("library_id", req.LibraryID),
	)
	defer span.End()

	searchType := search.SearchTypeDefault
	if req.JSONQuery != "" {
		searchType = search.SearchTypeJSON
	}

	if o.cache != nil {
		cached, err := o.cache.GetSearchResults(ctx, req)
		if err != nil {
			o.logger.Warn("cache lookup error", zap.Error(err))
		}
		if cached != nil {
			cached.TookMs = time.Since(start).Milliseconds()
			observability.SearchRequestsTotal.WithLabelValues(searchType, "cache_hit").Inc()
			return cached, nil
		}
	}

	filter, err := o.buildFilter(ctx, req)
	if err != nil {
		observability.SearchRequestsTotal.WithLabelValues(searchType, "error").Inc()
		return nil, err
	}

	query, err := o.buildQuery(ctx, req, filter)
	if err != nil {
		// Parse errors are the caller's fault and skip the fallback
		// chain entirely.
		observability.SearchRequestsTotal.WithLabelValues(searchType, "invalid").Inc()
		return nil, err
	}

	pagination := search.NewSortKeyPagination(req.PaginationKey, req.PageSize)

	resp, err := o.executeWithFallback(ctx, req, query, pagination)
	if err != nil {
		observability.SearchRequestsTotal.WithLabelValues(searchType, "error").Inc()
		observability.SearchRequestDuration.WithLabelValues(searchType, "error").Observe(time.Since(start).Seconds())
		return nil, err
	}

	resp.TookMs = time.Since(start).Milliseconds()

	if o.cache != nil {
		if err := o.cache.SetSearchResults(ctx, req, resp); err != nil {
			o.logger.Warn("cache set error", zap.Error(err))
		}
	}

	observability.SearchRequestsTotal.WithLabelValues(searchType, "success").Inc()
	observability.SearchRequestDuration.WithLabelValues(searchType, "success").Observe(time.Since(start).Seconds())

	queryText := req.Query
	if searchType == search.SearchTypeJSON {
		queryText = req.JSONQuery
	}
	o.slowQuery.Intercept(ctx, queryText, searchType,
		time.Since(start), resp.Total, false)

	return resp, nil
}

func (o *Orchestrator) executeWithFallback(ctx context.Context, req *models.SearchRequest, query *search.Query, pagination *search.SortKeyPagination) (*models.SearchResponse, error) {
	queryCtx, cancel := context.WithTimeout(ctx, o.cfg.QueryTimeout)
	result, err := o.esClient.QueryWorks(queryCtx, query, pagination)
	cancel()

	if err == nil {
		resp := &models.SearchResponse{
			Hits:  result.Hits,
			Total: result.Total,
		}
		if pagination.NextPage() != nil {
			resp.NextPageKey = pagination.LastItemOnThisPage()
		}
		return resp, nil
	}

	o.logger.Warn("primary search failed, trying stale cache", zap.Error(err))

	if o.cache != nil {
		stale, cacheErr := o.cache.GetStaleResults(ctx, req)
		if cacheErr != nil {
			o.logger.Warn("stale cache lookup error", zap.Error(cacheErr))
		}
		if stale != nil {
			return stale, nil
		}
	}

	return nil, fmt.Errorf("search backend unavailable: %w", err)
}

// Count reports how many works a request's filter matches, without
// running the relevance query.
func (o *Orchestrator) Count(ctx context.Context, req *models.SearchRequest) (int64, error) {
	filter, err := o.buildFilter(ctx, req)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.QueryTimeout)
	defer cancel()
	return o.esClient.CountWorks(ctx, filter)
}

// FeaturedWorks assembles one featured sample per lane in a single
// multi-search round trip. The whole group is cached per library
// under the first lane's id, which is how grouped feeds are
// requested.
func (o *Orchestrator) FeaturedWorks(ctx context.Context, libraryID int64, laneIDs []int64, size int) ([]*models.SearchResponse, error) {
	ctx, span := observability.StartSpan(ctx, "orchestrator.featured",
		attribute.Int64("library_id", libraryID),
		attribute.Int("lane_count", len(laneIDs)),
	)
	defer span.End()

	if len(laneIDs) == 0 {
		return nil, nil
	}

	responses := make([]*models.SearchResponse, len(laneIDs))

	// Each lane's sample is cached on its own, so a group feed only
	// pays for the lanes that expired.
	var misses []int
	for i, laneID := range laneIDs {
		if o.cache != nil {
			cached, err := o.cache.GetFeaturedFeed(ctx, libraryID, laneID)
			if err != nil {
				o.logger.Warn("featured feed cache error", zap.Error(err))
			}
			if cached != nil {
				responses[i] = cached
				continue
			}
		}
		misses = append(misses, i)
	}
	if len(misses) == 0 {
		return responses, nil
	}

	queries := make([]*search.Query, len(misses))
	paginations := make([]*search.SortKeyPagination, len(misses))
	for n, i := range misses {
		wl, err := o.laneStore.LaneWorkList(ctx, laneIDs[i])
		if err != nil {
			return nil, err
		}
		facets := &search.FeaturedFacets{
			MinimumFeaturedQuality: o.cfg.MinimumFeaturedQuality,
		}
		filter, err := search.FilterFromWorkList(ctx, o.resolver, wl, facets)
		if err != nil {
			return nil, err
		}
		queries[n] = search.NewQuery("", filter)
		paginations[n] = search.NewSortKeyPagination(nil, size)
	}

	queryCtx, cancel := context.WithTimeout(ctx, o.cfg.QueryTimeout)
	defer cancel()

	results, err := o.esClient.QueryWorksMulti(queryCtx, queries, paginations)
	if err != nil {
		return nil, fmt.Errorf("featured works: %w", err)
	}

	for n, i := range misses {
		resp := &models.SearchResponse{
			Hits:   results[n].Hits,
			Total:  results[n].Total,
			TookMs: results[n].TookMs,
		}
		responses[i] = resp
		if o.cache != nil {
			if err := o.cache.SetFeaturedFeed(ctx, libraryID, laneIDs[i], resp); err != nil {
				o.logger.Warn("featured feed cache set error", zap.Error(err))
			}
		}
	}
	return responses, nil
}

// CrawlableFeed lists works most recently updated first, for bulk
// consumers walking the whole catalog.
func (o *Orchestrator) CrawlableFeed(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	filter, err := o.buildFilter(ctx, req)
	if err != nil {
		return nil, err
	}
	filter.ApplyFacets(&search.CrawlableFacets{})

	query := search.NewQuery("", filter)
	pagination := search.NewSortKeyPagination(req.PaginationKey, req.PageSize)

	queryCtx, cancel := context.WithTimeout(ctx, o.cfg.QueryTimeout)
	defer cancel()

	result, err := o.esClient.QueryWorks(queryCtx, query, pagination)
	if err != nil {
		return nil, fmt.Errorf("crawlable feed: %w", err)
	}

	resp := &models.SearchResponse{
		Hits:   result.Hits,
		Total:  result.Total,
		TookMs: result.TookMs,
	}
	if pagination.NextPage() != nil {
		resp.NextPageKey = pagination.LastItemOnThisPage()
	}
	return resp, nil
}

func (o *Orchestrator) buildFilter(ctx context.Context, req *models.SearchRequest) (*search.Filter, error) {
	if req.LaneID != 0 {
		wl, err := o.laneStore.LaneWorkList(ctx, req.LaneID)
		if err != nil {
			return nil, err
		}
		return search.FilterFromWorkList(ctx, o.resolver, wl, requestFacets(req))
	}

	f := search.NewFilter()

	if req.LibraryID != 0 {
		collections, err := o.resolver.LibraryCollectionIDs(ctx, req.LibraryID)
		if err != nil {
			return nil, err
		}
		f.CollectionIDs = collections

		allowHolds, err := o.resolver.LibraryAllowsHolds(ctx, req.LibraryID)
		if err != nil {
			return nil, err
		}
		f.AllowHolds = allowHolds
	}

	excluded, err := o.resolver.ExcludedAudiobookDataSources(ctx)
	if err != nil {
		return nil, err
	}
	f.ExcludedAudiobookDataSources = excluded

	f.Media = req.MediaTypes
	f.Languages = req.Languages
	if req.Fiction != "" {
		fiction := req.Fiction == "fiction"
		f.Fiction = &fiction
	}
	if len(req.Audiences) > 0 {
		f.SetAudiences(req.Audiences...)
	}
	if req.MinAge != 0 || req.MaxAge != 0 {
		f.TargetAge = search.NewAgeRange(req.MinAge, req.MaxAge)
	}

	f.ApplyFacets(requestFacets(req))
	return f, nil
}

func requestFacets(req *models.SearchRequest) *search.Facets {
	return &search.Facets{
		Order:          req.Order,
		OrderAscending: req.Ascending,
	}
}

func (o *Orchestrator) buildQuery(ctx context.Context, req *models.SearchRequest, filter *search.Filter) (*search.Query, error) {
	if req.JSONQuery == "" {
		return search.NewQuery(req.Query, filter), nil
	}

	jq, err := search.NewJSONQuery([]byte(req.JSONQuery), filter)
	if err != nil {
		return nil, err
	}
	jq.Resolver = o.resolver

	clause, err := jq.SearchQuery(ctx)
	if err != nil {
		return nil, err
	}

	filter.ApplyFacets(&search.SearchFacets{SearchType: search.SearchTypeJSON})
	return search.NewRawQuery(clause, filter), nil
}
