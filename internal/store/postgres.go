package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/scansafe/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore; pgxmock
// implements it for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	barcode         TEXT PRIMARY KEY,
	record          JSONB NOT NULL,
	cached_at       TIMESTAMPTZ NOT NULL,
	cache_expiry    TIMESTAMPTZ NOT NULL,
	scan_count      INTEGER NOT NULL DEFAULT 1,
	last_scanned_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_log (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	barcode      TEXT NOT NULL,
	product_name TEXT,
	safety_score DOUBLE PRECISION,
	region       TEXT,
	user_id      TEXT,
	logged_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_products_cache_expiry ON products(cache_expiry);
CREATE INDEX IF NOT EXISTS idx_scan_log_logged_at ON scan_log(logged_at DESC);
CREATE INDEX IF NOT EXISTS idx_scan_log_barcode ON scan_log(barcode);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetCachedProduct(ctx context.Context, barcode string) (*model.ProductRecord, error) {
	// The returned scan_count already includes this hit.
	row := s.pool.QueryRow(ctx,
		`UPDATE products
		 SET scan_count = scan_count + 1, last_scanned_at = now()
		 WHERE barcode = $1 AND cache_expiry > now()
		 RETURNING record, cached_at, cache_expiry, scan_count, last_scanned_at`,
		barcode,
	)

	var recordJSON []byte
	var cachedAt, cacheExpiry, lastScannedAt time.Time
	var scanCount int
	err := row.Scan(&recordJSON, &cachedAt, &cacheExpiry, &scanCount, &lastScannedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get product %s", barcode)
	}

	var record model.ProductRecord
	if err := json.Unmarshal(recordJSON, &record); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal product %s", barcode)
	}

	record.CachedAt = cachedAt
	record.CacheExpiry = cacheExpiry
	record.ScanCount = scanCount
	record.LastScannedAt = lastScannedAt
	record.Source = model.SourceCache
	return &record, nil
}

func (s *PostgresStore) UpsertProduct(ctx context.Context, record *model.ProductRecord, ttl time.Duration) (*model.ProductRecord, error) {
	now := time.Now().UTC()
	expiry := now.Add(ttl)

	stored := *record
	stored.CachedAt = now
	stored.CacheExpiry = expiry
	stored.Source = model.SourceLive

	recordJSON, err := json.Marshal(&stored)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: marshal product %s", record.Barcode)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO products (barcode, record, cached_at, cache_expiry, scan_count, last_scanned_at)
		 VALUES ($1, $2, $3, $4, 1, $3)
		 ON CONFLICT (barcode) DO UPDATE SET
			record = excluded.record,
			cached_at = excluded.cached_at,
			cache_expiry = excluded.cache_expiry
		 RETURNING scan_count, last_scanned_at`,
		record.Barcode, recordJSON, now, expiry,
	)

	var scanCount int
	var lastScannedAt time.Time
	if err := row.Scan(&scanCount, &lastScannedAt); err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert product %s", record.Barcode)
	}

	stored.ScanCount = scanCount
	stored.LastScannedAt = lastScannedAt
	return &stored, nil
}

func (s *PostgresStore) AppendScanLog(ctx context.Context, entry model.ScanLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_log (id, barcode, product_name, safety_score, region, user_id, logged_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Barcode, entry.ProductName, entry.SafetyScore, entry.Region, entry.UserID, entry.LoggedAt,
	)
	return eris.Wrapf(err, "postgres: append scan log %s", entry.Barcode)
}

func (s *PostgresStore) RecentScans(ctx context.Context, limit int) ([]model.ScanLogEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, barcode, product_name, safety_score, region, user_id, logged_at
		 FROM scan_log ORDER BY logged_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent scans")
	}
	defer rows.Close()

	var entries []model.ScanLogEntry
	for rows.Next() {
		var e model.ScanLogEntry
		var score *float64
		var userID *string
		if err := rows.Scan(&e.ID, &e.Barcode, &e.ProductName, &score, &e.Region, &userID, &e.LoggedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan log row")
		}
		e.SafetyScore = score
		if userID != nil {
			e.UserID = *userID
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: recent scans iterate")
}
