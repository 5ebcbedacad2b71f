package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/openshelf/catalog-search/internal/config"
	"github.com/openshelf/catalog-search/internal/models"
	"github.com/openshelf/catalog-search/internal/observability"
)

// Client writes query performance events and indexing changelog rows
// to ClickHouse, and serves the aggregations built on them.
type Client struct {
	conn   driver.Conn
	logger *zap.Logger
}

func NewClient(cfg config.ClickHouseConfig, logger *zap.Logger) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addresses,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": int(cfg.QueryTimeout.Seconds()),
		},
		DialTimeout:  cfg.DialTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}

	logger.Info("clickhouse client connected", zap.Strings("addresses", cfg.Addresses))

	return &Client{
		conn:   conn,
		logger: logger,
	}, nil
}

func (c *Client) WriteQueryPerformance(ctx context.Context, event *models.AnalyticsEvent) error {
	query := `
		INSERT INTO query_performance (
			event_type, query_hash, query_type, duration_ms,
			total_hits, timed_out, timestamp, trace_id, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	return c.conn.Exec(ctx, query,
		event.EventType,
		event.QueryHash,
		event.QueryType,
		event.DurationMs,
		event.TotalHits,
		event.TimedOut,
		event.Timestamp,
		event.TraceID,
		event.Source,
	)
}

func (c *Client) InsertWorkChange(ctx context.Context, event *models.ChangeEvent) error {
	query := `
		INSERT INTO work_changelog (
			work_id, operation, timestamp, version
		) VALUES (?, ?, ?, ?)
	`
	return c.conn.Exec(ctx, query,
		event.WorkID,
		event.Type,
		event.Timestamp,
		event.Version,
	)
}

// SlowQueryRow is one bucket of the slow query report.
type SlowQueryRow struct {
	QueryType  string
	Count      int64
	AvgMs      float64
	P95Ms      float64
	TimeoutPct float64
}

// SlowQueryReport aggregates query performance per query type over a
// window, slowest types first.
func (c *Client) SlowQueryReport(ctx context.Context, since time.Time) ([]SlowQueryRow, error) {
	ctx, span := observability.StartSpan(ctx, "ch.slow_query_report",
		attribute.String("since", since.Format(time.RFC3339)),
	)
	defer span.End()

	start := time.Now()

	query := `
		SELECT
			query_type,
			count() AS cnt,
			avg(duration_ms) AS avg_ms,
			quantile(0.95)(duration_ms) AS p95_ms,
			countIf(timed_out) / count() AS timeout_pct
		FROM query_performance
		WHERE timestamp >= ?
		GROUP BY query_type
		ORDER BY p95_ms DESC
		LIMIT 50
	`

	rows, err := c.conn.Query(ctx, query, since)
	if err != nil {
		observability.CHQueryDuration.WithLabelValues("slow_query_report", "error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("ch slow query report: %w", err)
	}
	defer rows.Close()

	var report []SlowQueryRow
	for rows.Next() {
		var r SlowQueryRow
		if err := rows.Scan(&r.QueryType, &r.Count, &r.AvgMs, &r.P95Ms, &r.TimeoutPct); err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		report = append(report, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating report rows: %w", err)
	}

	observability.CHQueryDuration.WithLabelValues("slow_query_report", "success").Observe(time.Since(start).Seconds())
	return report, nil
}

// IndexingThroughput counts changelog rows per operation over a
// window, for dashboarding the indexing pipeline.
func (c *Client) IndexingThroughput(ctx context.Context, since time.Time) (map[string]int64, error) {
	ctx, span := observability.StartSpan(ctx, "ch.indexing_throughput")
	defer span.End()

	start := time.Now()

	query := `
		SELECT operation, count() AS cnt
		FROM work_changelog
		WHERE timestamp >= ?
		GROUP BY operation
	`

	rows, err := c.conn.Query(ctx, query, since)
	if err != nil {
		observability.CHQueryDuration.WithLabelValues("indexing_throughput", "error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("ch indexing throughput: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var op string
		var cnt int64
		if err := rows.Scan(&op, &cnt); err != nil {
			return nil, fmt.Errorf("scanning throughput row: %w", err)
		}
		counts[op] = cnt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating throughput rows: %w", err)
	}

	observability.CHQueryDuration.WithLabelValues("indexing_throughput", "success").Observe(time.Since(start).Seconds())
	return counts, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) EnsureTables(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS query_performance (
			event_type String,
			query_hash String,
			query_type String,
			duration_ms Float64,
			total_hits Int64,
			timed_out Bool,
			timestamp DateTime,
			trace_id String,
			source String
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (timestamp, query_hash)`,

		`CREATE TABLE IF NOT EXISTS work_changelog (
			work_id Int64,
			operation String,
			timestamp DateTime,
			version Int64
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (timestamp, work_id)`,
	}

	for _, ddl := range tables {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
	}

	c.logger.Info("clickhouse tables ensured")
	return nil
}
