package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/openshelf/catalog-search/internal/config"
	"github.com/openshelf/catalog-search/internal/models"
	"github.com/openshelf/catalog-search/internal/observability"
	"github.com/openshelf/catalog-search/internal/resilience"
	"github.com/openshelf/catalog-search/internal/search"
)

// Client wraps the search backend behind a circuit breaker and retry
// loop. All work queries go through here.
type Client struct {
	es       *elasticsearch.Client
	cb       *gobreaker.CircuitBreaker
	cfg      config.ElasticsearchConfig
	retryCfg resilience.RetryConfig
	logger   *zap.Logger
}

func NewClient(cfg config.ElasticsearchConfig, searchCfg config.SearchConfig, logger *zap.Logger) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses:  cfg.Addresses,
		Username:   cfg.Username,
		Password:   cfg.Password,
		MaxRetries: cfg.MaxRetries,
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	res, err := es.Ping()
	if err != nil {
		return nil, fmt.Errorf("pinging elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch ping returned status: %s", res.Status())
	}

	cb := resilience.NewCircuitBreaker("elasticsearch-primary", searchCfg.CircuitBreaker, logger)

	logger.Info("elasticsearch client connected", zap.Strings("addresses", cfg.Addresses))

	return &Client{
		es:  es,
		cb:  cb,
		cfg: cfg,
		retryCfg: resilience.RetryConfig{
			MaxAttempts: searchCfg.Retry.MaxAttempts,
			InitialWait: searchCfg.Retry.InitialWait,
			MaxWait:     searchCfg.Retry.MaxWait,
			Multiplier:  searchCfg.Retry.Multiplier,
		},
		logger: logger,
	}, nil
}

// QueryResult is the outcome of one work query.
type QueryResult struct {
	Hits     []models.WorkHit
	Total    int64
	TookMs   int64
	TimedOut bool
}

// QueryWorks runs a query against the works index and records the
// loaded page on the pagination object. A filter configured to match
// nothing returns an empty result without touching the network; the
// pagination object is deliberately left unloaded, since no page of
// results ever existed.
func (c *Client) QueryWorks(ctx context.Context, query *search.Query, pagination *search.SortKeyPagination) (*QueryResult, error) {
	if query.Filter != nil && query.Filter.MatchNothing {
		return &QueryResult{}, nil
	}

	body, err := query.BuildBody(pagination)
	if err != nil {
		return nil, err
	}

	result, err := c.searchBody(ctx, body)
	if err != nil {
		return nil, err
	}

	if pagination != nil {
		pagination.PageLoaded(result.Hits)
	}
	return result, nil
}

// QueryWorksMulti runs several work queries in a single multi-search
// round trip. Results come back in query order; each pagination
// object records its own page. Queries whose filter matches nothing
// produce empty results but still occupy their slot.
func (c *Client) QueryWorksMulti(ctx context.Context, queries []*search.Query, paginations []*search.SortKeyPagination) ([]*QueryResult, error) {
	if len(queries) != len(paginations) {
		return nil, fmt.Errorf("got %d queries but %d pagination objects", len(queries), len(paginations))
	}

	results := make([]*QueryResult, len(queries))

	// Only queries that can match anything go over the wire.
	var buf bytes.Buffer
	var live []int
	for i, q := range queries {
		if q.Filter != nil && q.Filter.MatchNothing {
			results[i] = &QueryResult{}
			continue
		}
		body, err := q.BuildBody(paginations[i])
		if err != nil {
			return nil, err
		}
		header, err := json.Marshal(map[string]any{"index": c.cfg.WorksIndex})
		if err != nil {
			return nil, fmt.Errorf("marshaling msearch header: %w", err)
		}
		bodyLine, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling msearch body: %w", err)
		}
		buf.Write(header)
		buf.WriteByte('\n')
		buf.Write(bodyLine)
		buf.WriteByte('\n')
		live = append(live, i)
	}

	if len(live) == 0 {
		return results, nil
	}

	ctx, span := observability.StartSpan(ctx, "es.msearch",
		attribute.Int("query_count", len(live)),
	)
	defer span.End()

	res, err := c.es.Msearch(
		bytes.NewReader(buf.Bytes()),
		c.es.Msearch.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("executing msearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("msearch error status=%s body=%s", res.Status(), string(bodyBytes))
	}

	var msResp struct {
		Responses []esSearchResponse `json:"responses"`
	}
	if err := json.NewDecoder(res.Body).Decode(&msResp); err != nil {
		return nil, fmt.Errorf("decoding msearch response: %w", err)
	}
	if len(msResp.Responses) != len(live) {
		return nil, fmt.Errorf("msearch returned %d responses for %d queries", len(msResp.Responses), len(live))
	}

	for n, i := range live {
		result := decodeSearchResponse(&msResp.Responses[n])
		if paginations[i] != nil {
			paginations[i].PageLoaded(result.Hits)
		}
		results[i] = result
	}
	return results, nil
}

// CountWorks returns the number of works matching a filter, without
// fetching any of them.
func (c *Client) CountWorks(ctx context.Context, filter *search.Filter) (int64, error) {
	if filter != nil && filter.MatchNothing {
		return 0, nil
	}

	q := search.NewQuery("", filter)
	body, err := q.BuildBody(nil)
	if err != nil {
		return 0, err
	}
	// The count API takes only the query portion of a search body.
	countBody := map[string]any{"query": body["query"]}

	payload, err := json.Marshal(countBody)
	if err != nil {
		return 0, fmt.Errorf("marshaling count query: %w", err)
	}

	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(c.cfg.WorksIndex),
		c.es.Count.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return 0, fmt.Errorf("executing count: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("count error status=%s body=%s", res.Status(), string(bodyBytes))
	}

	var countResp struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&countResp); err != nil {
		return 0, fmt.Errorf("decoding count response: %w", err)
	}
	return countResp.Count, nil
}

func (c *Client) searchBody(ctx context.Context, body map[string]any) (*QueryResult, error) {
	ctx, span := observability.StartSpan(ctx, "es.search",
		attribute.String("es.index", c.cfg.WorksIndex),
	)
	defer span.End()

	start := time.Now()

	cbResult, err := c.cb.Execute(func() (any, error) {
		var retryResult *QueryResult
		retryErr := resilience.Retry(ctx, c.retryCfg, func() error {
			var execErr error
			retryResult, execErr = c.executeSearch(ctx, body)
			return execErr
		})
		return retryResult, retryErr
	})

	duration := time.Since(start)
	if err != nil {
		observability.ESQueryDuration.WithLabelValues(c.cfg.WorksIndex, "error").Observe(duration.Seconds())
		return nil, fmt.Errorf("es search (index=%s): %w", c.cfg.WorksIndex, err)
	}

	result, ok := cbResult.(*QueryResult)
	if !ok || result == nil {
		observability.ESQueryDuration.WithLabelValues(c.cfg.WorksIndex, "error").Observe(duration.Seconds())
		return nil, fmt.Errorf("es search (index=%s): unexpected nil result from circuit breaker", c.cfg.WorksIndex)
	}
	observability.ESQueryDuration.WithLabelValues(c.cfg.WorksIndex, "success").Observe(duration.Seconds())

	return result, nil
}

func (c *Client) executeSearch(ctx context.Context, query map[string]any) (*QueryResult, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshaling es query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.cfg.WorksIndex),
		c.es.Search.WithBody(bytes.NewReader(body)),
		c.es.Search.WithTimeout(c.cfg.RequestTimeout),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("executing es search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("es search error status=%s body=%s", res.Status(), string(bodyBytes))
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("decoding es response: %w", err)
	}

	return decodeSearchResponse(&esResp), nil
}

func decodeSearchResponse(esResp *esSearchResponse) *QueryResult {
	hits := make([]models.WorkHit, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		hit := models.WorkHit{
			Score: h.Score,
			Sort:  h.Sort,
		}
		if h.Source != nil {
			if v, ok := h.Source["work_id"].(float64); ok {
				hit.WorkID = int64(v)
			}
		}
		if len(h.Fields) > 0 {
			hit.ScriptFields = map[string]any{}
			for name, values := range h.Fields {
				if len(values) > 0 {
					hit.ScriptFields[name] = values[0]
				}
			}
			if raw, ok := hit.ScriptFields["last_update"].(float64); ok {
				t := time.Unix(int64(raw), 0).UTC()
				hit.LastUpdate = &t
			}
		}
		hits = append(hits, hit)
	}

	return &QueryResult{
		Hits:     hits,
		Total:    esResp.Hits.Total.Value,
		TookMs:   esResp.Took,
		TimedOut: esResp.TimedOut,
	}
}

// BulkIndex applies a batch of index and delete actions in one
// request.
func (c *Client) BulkIndex(ctx context.Context, actions []models.IndexAction) error {
	if len(actions) == 0 {
		return nil
	}

	ctx, span := observability.StartSpan(ctx, "es.bulk_index",
		attribute.Int("batch_size", len(actions)),
	)
	defer span.End()

	var buf bytes.Buffer
	for _, action := range actions {
		meta := map[string]any{
			action.Action: map[string]any{
				"_index": action.Index,
				"_id":    action.ID,
			},
		}

		metaLine, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshaling bulk meta: %w", err)
		}
		buf.Write(metaLine)
		buf.WriteByte('\n')

		if action.Action != "delete" && action.Body != nil {
			bodyLine, err := json.Marshal(action.Body)
			if err != nil {
				return fmt.Errorf("marshaling bulk body: %w", err)
			}
			buf.Write(bodyLine)
			buf.WriteByte('\n')
		}
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("executing bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk request error status=%s body=%s", res.Status(), string(bodyBytes))
	}

	var bulkResp bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("decoding bulk response: %w", err)
	}

	if bulkResp.Errors {
		var errMsgs []string
		for _, item := range bulkResp.Items {
			for _, result := range item {
				if result.Error != nil {
					errMsgs = append(errMsgs, fmt.Sprintf("id=%s: %s", result.ID, result.Error.Reason))
				}
			}
		}
		return fmt.Errorf("bulk indexing had errors: %s", strings.Join(errMsgs, "; "))
	}

	return nil
}

// EnsureStoredScripts registers the stored scripts sorting depends on.
// Run once at startup; re-registering an existing script is harmless.
func (c *Client) EnsureStoredScripts(ctx context.Context) error {
	// The effective last-update time of a work: the latest of its
	// metadata change, when it was first seen in a relevant
	// collection, and when it first appeared on a relevant list.
	source := strings.Join([]string{
		"long last = doc['last_update_time'].size() != 0 ? doc['last_update_time'].value : 0;",
		"for (lp in params._source.licensepools) {",
		"  if (params.collection_ids.contains(lp.collection_id) && lp.availability_time > last) { last = lp.availability_time; }",
		"}",
		"for (cl in params._source.customlists) {",
		"  if (params.list_ids.contains(cl.list_id) && cl.first_appearance > last) { last = cl.first_appearance; }",
		"}",
		"return last;",
	}, " ")

	body, err := json.Marshal(map[string]any{
		"script": map[string]any{
			"lang":   "painless",
			"source": source,
		},
	})
	if err != nil {
		return fmt.Errorf("marshaling stored script: %w", err)
	}

	res, err := c.es.PutScript(
		search.LastUpdateScriptName,
		bytes.NewReader(body),
		c.es.PutScript.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("registering stored script: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("stored script error status=%s body=%s", res.Status(), string(bodyBytes))
	}
	return nil
}

func (c *Client) HealthCheck(ctx context.Context) (string, error) {
	res, err := c.es.Cluster.Health(
		c.es.Cluster.Health.WithContext(ctx),
	)
	if err != nil {
		return "red", fmt.Errorf("es health check: %w", err)
	}
	defer res.Body.Close()

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return "red", fmt.Errorf("decoding health response: %w", err)
	}
	return health.Status, nil
}

func (c *Client) Close() error {
	return nil
}

// ES response types

type esSearchResponse struct {
	Took     int64 `json:"took"`
	TimedOut bool  `json:"timed_out"`
	Shards   struct {
		Total      int `json:"total"`
		Successful int `json:"successful"`
		Skipped    int `json:"skipped"`
		Failed     int `json:"failed"`
	} `json:"_shards"`
	Hits struct {
		Total struct {
			Value    int64  `json:"value"`
			Relation string `json:"relation"`
		} `json:"total"`
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

type esHit struct {
	Index  string           `json:"_index"`
	ID     string           `json:"_id"`
	Score  float64          `json:"_score"`
	Source map[string]any   `json:"_source"`
	Sort   []any            `json:"sort,omitempty"`
	Fields map[string][]any `json:"fields,omitempty"`
}

type bulkResponse struct {
	Errors bool                        `json:"errors"`
	Items  []map[string]bulkItemResult `json:"items"`
}

type bulkItemResult struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}
