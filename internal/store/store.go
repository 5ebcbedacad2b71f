package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/openshelf/catalog-search/internal/config"
	"github.com/openshelf/catalog-search/internal/observability"
	"github.com/openshelf/catalog-search/internal/search"
)

// Store reads library configuration out of Postgres: which
// collections a library holds, its lending policy, its lane
// hierarchy, and the data source registry. It satisfies
// search.LaneStore.
type Store struct {
	pool   *pgxpool.Pool
	cfg    config.PostgresConfig
	logger *zap.Logger
}

func NewStore(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	logger.Info("postgres store connected",
		zap.Int32("max_conns", poolCfg.MaxConns),
	)

	return &Store{pool: pool, cfg: cfg, logger: logger}, nil
}

// LibraryCollectionIDs lists the collections of a library. A library
// with no collections gets an empty non-nil slice, which downstream
// turns into a match-nothing restriction rather than an unrestricted
// search.
func (s *Store) LibraryCollectionIDs(ctx context.Context, libraryID int64) ([]int64, error) {
	ids, err := s.queryIDs(ctx, "library_collections",
		`SELECT collection_id FROM library_collections WHERE library_id = $1 ORDER BY collection_id`,
		libraryID,
	)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

func (s *Store) LibraryAllowsHolds(ctx context.Context, libraryID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	var allows bool
	err := s.pool.QueryRow(ctx,
		`SELECT allow_holds FROM libraries WHERE id = $1`,
		libraryID,
	).Scan(&allows)
	s.observe("library_allows_holds", start, err)

	if errors.Is(err, pgx.ErrNoRows) {
		// Unknown libraries get the permissive default.
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying library %d: %w", libraryID, err)
	}
	return allows, nil
}

// ExcludedAudiobookDataSources is a sitewide setting, not per
// library.
func (s *Store) ExcludedAudiobookDataSources(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, "excluded_audio_sources",
		`SELECT data_source_id FROM excluded_audiobook_sources ORDER BY data_source_id`,
	)
}

// DataSourceIDByName resolves a data source by case-insensitive name.
// A missing name is not an error; the boolean reports whether the
// source exists.
func (s *Store) DataSourceIDByName(ctx context.Context, name string) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM data_sources WHERE lower(name) = lower($1)`,
		name,
	).Scan(&id)
	s.observe("data_source_by_name", start, err)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying data source %q: %w", name, err)
	}
	return id, true, nil
}

type laneRow struct {
	id        int64
	parentID  *int64
	name      string
	libraryID int64
	inherit   bool

	media     []string
	languages []string
	fiction   *bool
	audiences []string
	ageLower  *int
	ageUpper  *int

	licenseSourceID *int64
	collectionIDs   []int64
	genreIDs        []int64
	listIDs         []int64
}

// LaneWorkList loads a lane and its ancestors as a WorkList chain.
// Lanes reference their parent by id, so the chain is assembled
// bottom-up; a cycle in the configuration is reported rather than
// looped over.
func (s *Store) LaneWorkList(ctx context.Context, laneID int64) (*search.WorkList, error) {
	ctx, span := observability.StartSpan(ctx, "pg.lane_worklist",
		attribute.Int64("lane_id", laneID),
	)
	defer span.End()

	var chain []*laneRow
	seen := map[int64]bool{}
	next := &laneID

	for next != nil {
		if seen[*next] {
			return nil, fmt.Errorf("lane %d: parent cycle detected", laneID)
		}
		seen[*next] = true

		row, err := s.loadLane(ctx, *next)
		if err != nil {
			return nil, err
		}
		chain = append(chain, row)
		next = row.parentID
	}

	// Build from the root down so each node can point at its parent.
	var parent *search.WorkList
	for i := len(chain) - 1; i >= 0; i-- {
		row := chain[i]
		wl := search.NewWorkList(row.name, parent)
		wl.InheritParentRestrictions = row.inherit
		wl.LibraryID = row.libraryID
		wl.Media = row.media
		wl.Languages = row.languages
		wl.Fiction = row.fiction
		wl.Audiences = row.audiences
		if row.ageLower != nil && row.ageUpper != nil {
			wl.TargetAge = search.NewAgeRange(*row.ageLower, *row.ageUpper)
		}
		wl.LicenseDataSourceID = row.licenseSourceID
		wl.CollectionIDs = row.collectionIDs
		wl.GenreIDs = row.genreIDs
		wl.CustomListIDs = row.listIDs
		parent = wl
	}
	return parent, nil
}

func (s *Store) loadLane(ctx context.Context, laneID int64) (*laneRow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	row := &laneRow{id: laneID}
	err := s.pool.QueryRow(ctx,
		`SELECT parent_id, display_name, library_id, inherit_parent_restrictions,
		        media, languages, fiction, audiences,
		        target_age_lower, target_age_upper, license_datasource_id
		 FROM lanes WHERE id = $1`,
		laneID,
	).Scan(
		&row.parentID, &row.name, &row.libraryID, &row.inherit,
		&row.media, &row.languages, &row.fiction, &row.audiences,
		&row.ageLower, &row.ageUpper, &row.licenseSourceID,
	)
	s.observe("lane_by_id", start, err)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lane %d not found", laneID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying lane %d: %w", laneID, err)
	}

	if row.collectionIDs, err = s.laneJoin(ctx, "lane_collections", "collection_id", laneID); err != nil {
		return nil, err
	}
	if row.genreIDs, err = s.laneJoin(ctx, "lane_genres", "genre_id", laneID); err != nil {
		return nil, err
	}
	if row.listIDs, err = s.laneJoin(ctx, "lane_customlists", "customlist_id", laneID); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Store) laneJoin(ctx context.Context, table, column string, laneID int64) ([]int64, error) {
	return s.queryIDs(ctx, table,
		fmt.Sprintf(`SELECT %s FROM %s WHERE lane_id = $1 ORDER BY %s`, column, table, column),
		laneID,
	)
}

// queryIDs runs a single-column int64 query under the configured
// timeout and drains it before returning, so the timeout covers
// iteration too.
func (s *Store) queryIDs(ctx context.Context, name, sql string, args ...any) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		s.observe(name, start, err)
		return nil, fmt.Errorf("querying %s: %w", name, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			s.observe(name, start, err)
			return nil, fmt.Errorf("scanning %s: %w", name, err)
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	s.observe(name, start, err)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return ids, nil
}

func (s *Store) observe(query string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		status = "error"
	}
	observability.PGQueryDuration.WithLabelValues(query, status).Observe(time.Since(start).Seconds())
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}
