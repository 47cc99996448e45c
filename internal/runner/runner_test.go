package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	archivemem "github.com/cardstock/stockwatch/internal/archive/memory"
	"github.com/cardstock/stockwatch/internal/metrics"
	"github.com/cardstock/stockwatch/internal/monitor"
	"github.com/cardstock/stockwatch/internal/normalize"
	publishermem "github.com/cardstock/stockwatch/internal/publisher/memory"
	storagemem "github.com/cardstock/stockwatch/internal/storage/memory"
	"github.com/cardstock/stockwatch/internal/throttle"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

// scriptedAdapter returns a canned product per target id.
type scriptedAdapter struct {
	mu       sync.Mutex
	products map[string]monitor.NormalizedProduct
	calls    int
}

func (a *scriptedAdapter) Adapt(_ context.Context, target monitor.Target, _ monitor.AdaptOptions) monitor.NormalizedProduct {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if product, ok := a.products[target.ID]; ok {
		return product
	}
	return monitor.NormalizedProduct{
		Retailer: "example.com",
		URL:      target.URL,
		Variants: []monitor.NormalizedVariant{{InStock: true}},
		Verdict:  monitor.Verdict{Status: monitor.StatusInStock, Reason: monitor.ReasonAddToCartAvailable},
	}
}

// memLocker is an in-process SET NX EX implementation.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker { return &memLocker{held: make(map[string]bool)} }

func (l *memLocker) TrySetIfAbsent(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func inStockProduct(url, body string) monitor.NormalizedProduct {
	price := decimal.RequireFromString("49.95")
	return monitor.NormalizedProduct{
		Retailer: "example.com",
		URL:      url,
		Title:    "Widget",
		Variants: []monitor.NormalizedVariant{{InStock: true, Price: &price}},
		Verdict:  monitor.Verdict{Status: monitor.StatusInStock, Reason: monitor.ReasonAddToCartAvailable},
		Evidence: &monitor.PageEvidence{URL: url, StatusCode: 200, Body: []byte(body)},
	}
}

func newRunner(t *testing.T, cfg Config, opts Options) *Runner {
	t.Helper()
	metrics.Init()
	if opts.Clock == nil {
		opts.Clock = fixedClock{at: time.Unix(1700000000, 0).UTC()}
	}
	if opts.Throttle == nil {
		opts.Throttle = throttle.New(newMemLocker(), time.Minute, false, nil)
	}
	r, err := New(cfg, opts)
	require.NoError(t, err)
	return r
}

func TestRunProcessesAllTargets(t *testing.T) {
	t.Parallel()

	store := storagemem.New()
	for i := 1; i <= 5; i++ {
		store.AddTarget(monitor.Target{
			ID:               fmt.Sprintf("t-%d", i),
			URL:              fmt.Sprintf("https://example.com/p/%d", i),
			RetailerID:       "r-1",
			RetailerPlatform: "genericDom",
		})
	}
	clock := fixedClock{at: time.Unix(1700000000, 0).UTC()}
	r := newRunner(t, Config{Concurrency: 3}, Options{
		Store:      store,
		Adapter:    &scriptedAdapter{},
		Normalizer: normalize.New(store, clock, &seqIDs{}, nil),
	})

	summary, err := r.Run(context.Background(), monitor.TargetFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 0, summary.Errors)
	assert.Equal(t, 5, summary.Total)
	assert.Empty(t, summary.Message)
}

func TestRunCountsAdapterFailuresWithoutAborting(t *testing.T) {
	t.Parallel()

	store := storagemem.New()
	store.AddTarget(monitor.Target{ID: "t-ok", URL: "https://example.com/p/1", RetailerID: "r-1"})
	store.AddTarget(monitor.Target{ID: "t-bad", URL: "https://example.com/p/2", RetailerID: "r-1"})

	adapter := &scriptedAdapter{products: map[string]monitor.NormalizedProduct{
		"t-bad": {
			Retailer: "example.com",
			URL:      "https://example.com/p/2",
			Variants: []monitor.NormalizedVariant{{IsUnavailable: true}},
			Verdict:  monitor.Verdict{Status: monitor.StatusUnknown, Reason: monitor.ReasonUnknown},
			Err:      fmt.Errorf("connection refused"),
		},
	}}
	clock := fixedClock{at: time.Unix(1700000000, 0).UTC()}
	r := newRunner(t, Config{Concurrency: 2}, Options{
		Store:      store,
		Adapter:    adapter,
		Normalizer: normalize.New(store, clock, &seqIDs{}, nil),
	})

	summary, err := r.Run(context.Background(), monitor.TargetFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, "1 of 2 targets failed", summary.Message)
}

func TestRunPlatformFilterNarrowsBatch(t *testing.T) {
	t.Parallel()

	store := storagemem.New()
	store.AddTarget(monitor.Target{ID: "t-1", URL: "https://ebgames.com.au/p/1", RetailerID: "r-1", RetailerPlatform: "ebgames"})
	store.AddTarget(monitor.Target{ID: "t-2", URL: "https://www.bigw.com.au/p/2", RetailerID: "r-2", RetailerPlatform: "bigw"})

	clock := fixedClock{at: time.Unix(1700000000, 0).UTC()}
	r := newRunner(t, Config{Concurrency: 1}, Options{
		Store:      store,
		Adapter:    &scriptedAdapter{},
		Normalizer: normalize.New(store, clock, &seqIDs{}, nil),
	})

	summary, err := r.Run(context.Background(), monitor.TargetFilter{Platform: "bigw"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Processed)
}

func TestRunSkipsLockedTargets(t *testing.T) {
	t.Parallel()

	store := storagemem.New()
	store.AddTarget(monitor.Target{ID: "t-1", URL: "https://example.com/p/1", RetailerID: "r-1"})
	store.AddTarget(monitor.Target{ID: "t-2", URL: "https://example.com/p/2", RetailerID: "r-1"})

	locker := newMemLocker()
	acquired, err := locker.TrySetIfAbsent(context.Background(), "target:t-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	clock := fixedClock{at: time.Unix(1700000000, 0).UTC()}
	adapter := &scriptedAdapter{}
	r := newRunner(t, Config{Concurrency: 2}, Options{
		Store:      store,
		Adapter:    adapter,
		Normalizer: normalize.New(store, clock, &seqIDs{}, nil),
		Throttle:   throttle.New(locker, time.Minute, false, nil),
	})

	summary, err := r.Run(context.Background(), monitor.TargetFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Errors)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, adapter.calls)
}

func TestRunArchivesAndPublishesOnChange(t *testing.T) {
	t.Parallel()

	store := storagemem.New()
	store.AddTarget(monitor.Target{ID: "t-1", URL: "https://example.com/p/1", RetailerID: "r-1", Title: "Widget"})

	blobs := archivemem.New()
	pub := publishermem.New()
	adapter := &scriptedAdapter{products: map[string]monitor.NormalizedProduct{
		"t-1": inStockProduct("https://example.com/p/1", "<html>in stock</html>"),
	}}
	clock := fixedClock{at: time.Unix(1700000000, 0).UTC()}
	r := newRunner(t, Config{Concurrency: 1, Topic: "stock-events", ArchivePrefix: "evidence"}, Options{
		Store:      store,
		Adapter:    adapter,
		Normalizer: normalize.New(store, clock, &seqIDs{}, nil),
		Archive:    blobs,
		Publisher:  pub,
		Clock:      clock,
	})

	summary, err := r.Run(context.Background(), monitor.TargetFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	require.Equal(t, 1, blobs.Len())
	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "stock-events", msgs[0].Topic)
	payload, ok := msgs[0].Payload.(eventPayload)
	require.True(t, ok)
	assert.Equal(t, "t-1", payload.TargetID)
	assert.Equal(t, monitor.EventStatusFlip, payload.Event.Type)
	assert.NotEmpty(t, payload.EvidenceURI)
}

func TestRunNoChangeMeansNoSideEffects(t *testing.T) {
	t.Parallel()

	store := storagemem.New()
	store.AddTarget(monitor.Target{ID: "t-1", URL: "https://example.com/p/1", RetailerID: "r-1"})

	blobs := archivemem.New()
	pub := publishermem.New()
	adapter := &scriptedAdapter{products: map[string]monitor.NormalizedProduct{
		"t-1": inStockProduct("https://example.com/p/1", "<html>in stock</html>"),
	}}
	clock := fixedClock{at: time.Unix(1700000000, 0).UTC()}
	normalizer := normalize.New(store, clock, &seqIDs{}, nil)

	run := func() monitor.RunSummary {
		r := newRunner(t, Config{Concurrency: 1}, Options{
			Store:      store,
			Adapter:    adapter,
			Normalizer: normalizer,
			Archive:    blobs,
			Publisher:  pub,
		})
		summary, err := r.Run(context.Background(), monitor.TargetFilter{})
		require.NoError(t, err)
		return summary
	}

	run()
	second := run()

	assert.Equal(t, 1, second.Processed)
	assert.Equal(t, 1, blobs.Len())
	assert.Len(t, pub.Messages(), 1)
}
