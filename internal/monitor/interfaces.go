package monitor

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by Store implementations.
var (
	ErrTargetNotFound = errors.New("monitor: target not found")
	ErrNoSnapshot     = errors.New("monitor: no snapshot for variant")
)

// Store persists monitoring state. Any backend satisfying these operations is
// acceptable; AppendChange must be atomic so that a compare-fingerprint-then-
// write race cannot produce duplicate events for the same variant.
type Store interface {
	GetTarget(ctx context.Context, id string) (Target, error)
	ListTargets(ctx context.Context, filter TargetFilter) ([]Target, error)

	// EnsureVariant returns the target's variant id, creating the variant
	// row if the target has none yet.
	EnsureVariant(ctx context.Context, targetID string) (string, error)

	UpsertStore(ctx context.Context, retailerID, storeCode, name string) (StoreRecord, error)
	UpsertStoreAvailability(ctx context.Context, variantID, storeID string, avail StoreAvail, seenAt time.Time) error

	// LatestSnapshot returns ErrNoSnapshot when the variant has never been
	// observed.
	LatestSnapshot(ctx context.Context, variantID string) (Snapshot, error)

	// AppendChange persists a snapshot and its event in one transaction.
	AppendChange(ctx context.Context, snap Snapshot, event StockEvent) error
}

// Locker is the throttle lock backend. Unreachability is a recoverable
// condition, not fatal.
type Locker interface {
	// TrySetIfAbsent atomically sets key with a TTL if it does not exist,
	// reporting whether the lock was acquired.
	TrySetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Adapter scrapes one target into a normalized product. Implementations never
// return an error for scrape failures; they return a placeholder result with
// Err set so the orchestrator can count it.
type Adapter interface {
	Adapt(ctx context.Context, target Target, opts AdaptOptions) NormalizedProduct
}

// Fetcher performs a static HTTP GET and returns raw markup plus transport
// status. Non-2xx statuses are pages, not errors.
type Fetcher interface {
	Fetch(ctx context.Context, url string, referer string) (Page, error)
}

// Renderer drives a headless browser to produce a hydrated DOM.
type Renderer interface {
	Render(ctx context.Context, url string) (Page, error)
}

// Publisher pushes stock events to a notification channel.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore archives page evidence and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces snapshot and event IDs.
type IDGenerator interface {
	NewID() (string, error)
}
