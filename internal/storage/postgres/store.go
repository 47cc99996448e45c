// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cardstock/stockwatch/internal/monitor"
)

// Config controls the Postgres connection pool backing the monitor store.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store persists targets, variants, snapshots, and stock events in Postgres.
type Store struct {
	pool pgxPool
	ids  monitor.IDGenerator
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config, ids monitor.IDGenerator) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, ids: ids}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, ids monitor.IDGenerator) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	return &Store{pool: pool, ids: ids}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("store is not configured")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// GetTarget loads a single monitored target by id.
func (s *Store) GetTarget(ctx context.Context, id string) (monitor.Target, error) {
	const query = `
SELECT id, url, retailer_id, retailer_platform, title
FROM targets
WHERE id = $1`
	var t monitor.Target
	err := s.pool.QueryRow(ctx, query, id).Scan(&t.ID, &t.URL, &t.RetailerID, &t.RetailerPlatform, &t.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Target{}, monitor.ErrTargetNotFound
	}
	if err != nil {
		return monitor.Target{}, fmt.Errorf("select target: %w", err)
	}
	return t, nil
}

// ListTargets returns all monitored targets, optionally filtered by platform.
func (s *Store) ListTargets(ctx context.Context, filter monitor.TargetFilter) ([]monitor.Target, error) {
	query := `
SELECT id, url, retailer_id, retailer_platform, title
FROM targets`
	args := []any{}
	if filter.Platform != "" {
		query += `
WHERE retailer_platform = $1`
		args = append(args, filter.Platform)
	}
	query += `
ORDER BY id`
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select targets: %w", err)
	}
	defer rows.Close()

	var targets []monitor.Target
	for rows.Next() {
		var t monitor.Target
		if err := rows.Scan(&t.ID, &t.URL, &t.RetailerID, &t.RetailerPlatform, &t.Title); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return targets, nil
}

// EnsureVariant returns the target's variant id, creating the variant row when
// the target has none yet.
func (s *Store) EnsureVariant(ctx context.Context, targetID string) (string, error) {
	const selectQuery = `
SELECT id
FROM variants
WHERE target_id = $1
ORDER BY id
LIMIT 1`
	var variantID string
	err := s.pool.QueryRow(ctx, selectQuery, targetID).Scan(&variantID)
	if err == nil {
		return variantID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("select variant: %w", err)
	}

	if _, err := s.GetTarget(ctx, targetID); err != nil {
		return "", err
	}

	variantID, err = s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate variant id: %w", err)
	}
	const insertQuery = `
INSERT INTO variants (id, target_id)
VALUES ($1, $2)
ON CONFLICT (target_id) DO UPDATE SET target_id = EXCLUDED.target_id
RETURNING id`
	if err := s.pool.QueryRow(ctx, insertQuery, variantID, targetID).Scan(&variantID); err != nil {
		return "", fmt.Errorf("insert variant: %w", err)
	}
	return variantID, nil
}

// UpsertStore records a physical retail store, updating the display name when
// the store is already known.
func (s *Store) UpsertStore(ctx context.Context, retailerID, storeCode, name string) (monitor.StoreRecord, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return monitor.StoreRecord{}, fmt.Errorf("generate store id: %w", err)
	}
	const query = `
INSERT INTO retail_stores (id, retailer_id, store_code, name)
VALUES ($1, $2, $3, $4)
ON CONFLICT (retailer_id, store_code) DO UPDATE SET name = EXCLUDED.name
RETURNING id, retailer_id, store_code, name`
	var rec monitor.StoreRecord
	err = s.pool.QueryRow(ctx, query, id, retailerID, storeCode, name).
		Scan(&rec.ID, &rec.RetailerID, &rec.StoreCode, &rec.Name)
	if err != nil {
		return monitor.StoreRecord{}, fmt.Errorf("upsert store: %w", err)
	}
	return rec, nil
}

// UpsertStoreAvailability records the latest per-store availability signal for
// a variant.
func (s *Store) UpsertStoreAvailability(ctx context.Context, variantID, storeID string, avail monitor.StoreAvail, seenAt time.Time) error {
	const query = `
INSERT INTO store_availability (variant_id, store_id, in_stock, price, seen_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (variant_id, store_id) DO UPDATE SET
	in_stock = EXCLUDED.in_stock,
	price = EXCLUDED.price,
	seen_at = EXCLUDED.seen_at`
	_, err := s.pool.Exec(ctx, query, variantID, storeID, avail.InStock, priceText(avail.Price), seenAt)
	if err != nil {
		return fmt.Errorf("upsert store availability: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot for a variant, or
// ErrNoSnapshot when the variant has never been observed.
func (s *Store) LatestSnapshot(ctx context.Context, variantID string) (monitor.Snapshot, error) {
	const query = `
SELECT id, variant_id, in_stock, price, fingerprint, observed_at
FROM snapshots
WHERE variant_id = $1
ORDER BY observed_at DESC
LIMIT 1`
	var (
		snap  monitor.Snapshot
		price *string
	)
	err := s.pool.QueryRow(ctx, query, variantID).
		Scan(&snap.ID, &snap.VariantID, &snap.InStock, &price, &snap.Fingerprint, &snap.ObservedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Snapshot{}, monitor.ErrNoSnapshot
	}
	if err != nil {
		return monitor.Snapshot{}, fmt.Errorf("select snapshot: %w", err)
	}
	if price != nil {
		parsed, err := decimal.NewFromString(*price)
		if err != nil {
			return monitor.Snapshot{}, fmt.Errorf("parse snapshot price %q: %w", *price, err)
		}
		snap.Price = &parsed
	}
	return snap, nil
}

// AppendChange persists a snapshot and its event inside one transaction.
func (s *Store) AppendChange(ctx context.Context, snap monitor.Snapshot, event monitor.StockEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin change tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const snapshotQuery = `
INSERT INTO snapshots (id, variant_id, in_stock, price, fingerprint, observed_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = tx.Exec(ctx, snapshotQuery,
		snap.ID, snap.VariantID, snap.InStock, priceText(snap.Price), snap.Fingerprint, snap.ObservedAt)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	const eventQuery = `
INSERT INTO stock_events (id, variant_id, event_type, details, occurred_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err = tx.Exec(ctx, eventQuery,
		event.ID, event.VariantID, string(event.Type), details, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert stock event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit change tx: %w", err)
	}
	return nil
}

func priceText(price *decimal.Decimal) *string {
	if price == nil {
		return nil
	}
	text := price.String()
	return &text
}
