package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/scansafe/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	barcode         TEXT PRIMARY KEY,
	record          TEXT NOT NULL,
	cached_at       DATETIME NOT NULL,
	cache_expiry    DATETIME NOT NULL,
	scan_count      INTEGER NOT NULL DEFAULT 1,
	last_scanned_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_log (
	id           TEXT PRIMARY KEY,
	barcode      TEXT NOT NULL,
	product_name TEXT,
	safety_score REAL,
	region       TEXT,
	user_id      TEXT,
	logged_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_cache_expiry ON products(cache_expiry);
CREATE INDEX IF NOT EXISTS idx_scan_log_logged_at ON scan_log(logged_at);
CREATE INDEX IF NOT EXISTS idx_scan_log_barcode ON scan_log(barcode);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetCachedProduct(ctx context.Context, barcode string) (*model.ProductRecord, error) {
	now := time.Now().UTC()

	row := s.db.QueryRowContext(ctx,
		`SELECT record, cached_at, cache_expiry, scan_count, last_scanned_at
		 FROM products WHERE barcode = ? AND cache_expiry > ?`,
		barcode, now,
	)

	var recordJSON string
	var cachedAt, cacheExpiry, lastScannedAt time.Time
	var scanCount int
	err := row.Scan(&recordJSON, &cachedAt, &cacheExpiry, &scanCount, &lastScannedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get product %s", barcode)
	}

	var record model.ProductRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal product %s", barcode)
	}

	scanCount++
	if _, err := s.db.ExecContext(ctx,
		`UPDATE products SET scan_count = ?, last_scanned_at = ? WHERE barcode = ?`,
		scanCount, now, barcode,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: touch product %s", barcode)
	}

	record.CachedAt = cachedAt
	record.CacheExpiry = cacheExpiry
	record.ScanCount = scanCount
	record.LastScannedAt = now
	record.Source = model.SourceCache
	return &record, nil
}

func (s *SQLiteStore) UpsertProduct(ctx context.Context, record *model.ProductRecord, ttl time.Duration) (*model.ProductRecord, error) {
	now := time.Now().UTC()
	expiry := now.Add(ttl)

	stored := *record
	stored.CachedAt = now
	stored.CacheExpiry = expiry
	stored.Source = model.SourceLive

	row := s.db.QueryRowContext(ctx,
		`SELECT scan_count, last_scanned_at FROM products WHERE barcode = ?`,
		record.Barcode,
	)

	var scanCount int
	var lastScannedAt time.Time
	err := row.Scan(&scanCount, &lastScannedAt)
	switch {
	case err == sql.ErrNoRows:
		scanCount = 1
		lastScannedAt = now
	case err != nil:
		return nil, eris.Wrapf(err, "sqlite: lookup product %s", record.Barcode)
	}

	stored.ScanCount = scanCount
	stored.LastScannedAt = lastScannedAt

	recordJSON, err := json.Marshal(&stored)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: marshal product %s", record.Barcode)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO products (barcode, record, cached_at, cache_expiry, scan_count, last_scanned_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(barcode) DO UPDATE SET
			record = excluded.record,
			cached_at = excluded.cached_at,
			cache_expiry = excluded.cache_expiry`,
		record.Barcode, string(recordJSON), now, expiry, scanCount, lastScannedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert product %s", record.Barcode)
	}

	return &stored, nil
}

func (s *SQLiteStore) AppendScanLog(ctx context.Context, entry model.ScanLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_log (id, barcode, product_name, safety_score, region, user_id, logged_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Barcode, entry.ProductName, entry.SafetyScore, entry.Region, entry.UserID, entry.LoggedAt,
	)
	return eris.Wrapf(err, "sqlite: append scan log %s", entry.Barcode)
}

func (s *SQLiteStore) RecentScans(ctx context.Context, limit int) ([]model.ScanLogEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, barcode, product_name, safety_score, region, user_id, logged_at
		 FROM scan_log ORDER BY logged_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent scans")
	}
	defer rows.Close()

	var entries []model.ScanLogEntry
	for rows.Next() {
		var e model.ScanLogEntry
		var score sql.NullFloat64
		var userID sql.NullString
		if err := rows.Scan(&e.ID, &e.Barcode, &e.ProductName, &score, &e.Region, &userID, &e.LoggedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log row")
		}
		if score.Valid {
			e.SafetyScore = &score.Float64
		}
		e.UserID = userID.String
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: recent scans iterate")
}
