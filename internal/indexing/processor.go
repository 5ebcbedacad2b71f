package indexing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openshelf/catalog-search/internal/cache"
	"github.com/openshelf/catalog-search/internal/clickhouse"
	"github.com/openshelf/catalog-search/internal/config"
	"github.com/openshelf/catalog-search/internal/elasticsearch"
	"github.com/openshelf/catalog-search/internal/models"
	"github.com/openshelf/catalog-search/internal/observability"
)

// maxBufferSize bounds the bulk buffer when the backend is down; past
// this the processor starts failing events so they land in the DLQ
// instead of eating memory.
const maxBufferSize = 50000

type StreamProcessor struct {
	esClient *elasticsearch.Client
	chClient *clickhouse.Client
	cache    *cache.RedisCache
	esCfg    config.ElasticsearchConfig
	logger   *zap.Logger

	mu     sync.Mutex
	buffer []models.IndexAction
	ticker *time.Ticker
	done   chan struct{}
}

func NewStreamProcessor(
	esClient *elasticsearch.Client,
	chClient *clickhouse.Client,
	cache *cache.RedisCache,
	esCfg config.ElasticsearchConfig,
	logger *zap.Logger,
) *StreamProcessor {
	sp := &StreamProcessor{
		esClient: esClient,
		chClient: chClient,
		cache:    cache,
		esCfg:    esCfg,
		logger:   logger,
		buffer:   make([]models.IndexAction, 0, esCfg.BulkSize),
		ticker:   time.NewTicker(esCfg.BulkFlushInterval),
		done:     make(chan struct{}),
	}

	go sp.flushLoop()

	return sp
}

func (sp *StreamProcessor) HandleEvent(ctx context.Context, event *models.ChangeEvent) error {
	action, err := sp.transformEvent(event)
	if err != nil {
		return fmt.Errorf("transforming event: %w", err)
	}

	sp.mu.Lock()
	if len(sp.buffer) >= maxBufferSize {
		sp.mu.Unlock()
		return fmt.Errorf("index buffer full (%d actions), rejecting work %d", maxBufferSize, event.WorkID)
	}
	sp.buffer = append(sp.buffer, *action)
	shouldFlush := len(sp.buffer) >= sp.esCfg.BulkSize
	sp.mu.Unlock()

	if shouldFlush {
		if err := sp.flush(ctx); err != nil {
			sp.logger.Error("flush on buffer full failed", zap.Error(err))
		}
	}

	// Changelog row for analytics, best-effort.
	if sp.chClient != nil {
		go func() {
			chCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sp.chClient.InsertWorkChange(chCtx, event); err != nil {
				sp.logger.Warn("clickhouse changelog insert failed",
					zap.Int64("work_id", event.WorkID),
					zap.Error(err),
				)
			}
		}()
	}

	if sp.cache != nil {
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := sp.cache.InvalidatePattern(cacheCtx, invalidationPatterns()); err != nil {
				sp.logger.Warn("cache invalidation failed",
					zap.Int64("work_id", event.WorkID),
					zap.Error(err),
				)
			}
		}()
	}

	return nil
}

func (sp *StreamProcessor) transformEvent(event *models.ChangeEvent) (*models.IndexAction, error) {
	action := &models.IndexAction{
		ID:        strconv.FormatInt(event.WorkID, 10),
		Index:     sp.esCfg.WorksIndex,
		Timestamp: event.Timestamp,
	}

	switch event.Type {
	case "upsert":
		if event.Document == nil {
			return nil, fmt.Errorf("upsert for work %d has no document", event.WorkID)
		}
		body, err := documentBody(event.Document)
		if err != nil {
			return nil, err
		}
		action.Action = "index"
		action.Body = body
	case "delete":
		action.Action = "delete"
	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}

	return action, nil
}

// documentBody converts a work document into the generic map shape
// the bulk API takes, going through JSON so the index field names
// stay in one place, on the struct tags.
func documentBody(doc *models.WorkDocument) (map[string]any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling work document: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshaling work document: %w", err)
	}
	return body, nil
}

// invalidationPatterns lists the cache namespaces a work change makes
// stale. Search results and feeds are dropped; stale fallback copies
// are deliberately kept, they exist to survive outages.
func invalidationPatterns() []string {
	return []string{"sr:*", "ff:*"}
}

func (sp *StreamProcessor) flushLoop() {
	for {
		select {
		case <-sp.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := sp.flush(ctx); err != nil {
				sp.logger.Error("periodic flush failed", zap.Error(err))
			}
			cancel()
		case <-sp.done:
			return
		}
	}
}

func (sp *StreamProcessor) flush(ctx context.Context) error {
	sp.mu.Lock()
	if len(sp.buffer) == 0 {
		sp.mu.Unlock()
		return nil
	}
	batch := make([]models.IndexAction, len(sp.buffer))
	copy(batch, sp.buffer)
	sp.buffer = sp.buffer[:0]
	sp.mu.Unlock()

	start := time.Now()
	if err := sp.esClient.BulkIndex(ctx, batch); err != nil {
		// Put failed items back into buffer for retry
		sp.mu.Lock()
		sp.buffer = append(batch, sp.buffer...)
		sp.mu.Unlock()

		observability.IndexingEventsTotal.WithLabelValues("bulk", "error").Inc()
		return fmt.Errorf("bulk index flush: %w", err)
	}

	observability.IndexingEventsTotal.WithLabelValues("bulk", "success").Add(float64(len(batch)))
	sp.logger.Info("bulk flush completed",
		zap.Int("count", len(batch)),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}

func (sp *StreamProcessor) Stop() error {
	sp.ticker.Stop()
	close(sp.done)

	// Final flush
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return sp.flush(ctx)
}
