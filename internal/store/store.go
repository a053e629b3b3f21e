// Package store persists enriched product records and the append-only scan
// log, with SQLite and Postgres backends.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/scansafe/internal/model"
)

// Store defines the persistence interface for the scan pipeline.
type Store interface {
	// GetCachedProduct returns the record for barcode only while its cache
	// expiry lies in the future. A hit increments the scan counter and
	// refreshes the last-scanned timestamp; the returned copy is tagged
	// Source="cache". Misses and expired records return (nil, nil).
	GetCachedProduct(ctx context.Context, barcode string) (*model.ProductRecord, error)

	// UpsertProduct stores the record under its barcode. An existing row
	// (expired or not) is overwritten in place with a fresh cachedAt and
	// expiry of now+ttl, keeping its scan counter; a new row starts the
	// counter at 1. The stored record is returned.
	UpsertProduct(ctx context.Context, record *model.ProductRecord, ttl time.Duration) (*model.ProductRecord, error)

	// Scan log
	AppendScanLog(ctx context.Context, entry model.ScanLogEntry) error
	RecentScans(ctx context.Context, limit int) ([]model.ScanLogEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// Open creates a Store for the configured driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "scansafe.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
