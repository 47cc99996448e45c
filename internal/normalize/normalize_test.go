package normalize

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardstock/stockwatch/internal/monitor"
	"github.com/cardstock/stockwatch/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newNormalizer(store monitor.Store) *Normalizer {
	return New(store, fixedClock{t: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)}, &seqIDs{}, nil)
}

func target() monitor.Target {
	return monitor.Target{ID: "t1", RetailerID: "r1", URL: "https://example.com/p/1"}
}

func TestApplyFirstObservationIsStatusFlip(t *testing.T) {
	t.Parallel()

	store := memory.New()
	n := newNormalizer(store)

	event, err := n.Apply(context.Background(), target(), "v1",
		monitor.NormalizedVariant{InStock: false, Price: price("99.95")})
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, monitor.EventStatusFlip, event.Type)
	assert.Nil(t, event.Details.Previous)
	assert.Equal(t, "99.95", event.Details.Current.Price)
	assert.Len(t, store.Snapshots("v1"), 1)
}

func TestApplyIsIdempotent(t *testing.T) {
	t.Parallel()

	store := memory.New()
	n := newNormalizer(store)
	v := monitor.NormalizedVariant{InStock: true, Price: price("50")}

	first, err := n.Apply(context.Background(), target(), "v1", v)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := n.Apply(context.Background(), target(), "v1", v)
	require.NoError(t, err)
	assert.Nil(t, second, "identical observation must be a no-op")

	assert.Len(t, store.Snapshots("v1"), 1, "exactly one snapshot/event pair")
	assert.Len(t, store.Events("v1"), 1)
}

func TestApplyClassifiesTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from monitor.NormalizedVariant
		to   monitor.NormalizedVariant
		want monitor.EventType
	}{
		{
			"restock",
			monitor.NormalizedVariant{InStock: false, Price: price("100")},
			monitor.NormalizedVariant{InStock: true, Price: price("100")},
			monitor.EventInStock,
		},
		{
			"sellout",
			monitor.NormalizedVariant{InStock: true, Price: price("100")},
			monitor.NormalizedVariant{InStock: false, Price: price("100")},
			monitor.EventOutOfStock,
		},
		{
			"price drop",
			monitor.NormalizedVariant{InStock: true, Price: price("100")},
			monitor.NormalizedVariant{InStock: true, Price: price("80")},
			monitor.EventPriceDrop,
		},
		{
			"price rise is a status flip",
			monitor.NormalizedVariant{InStock: true, Price: price("100")},
			monitor.NormalizedVariant{InStock: true, Price: price("120")},
			monitor.EventStatusFlip,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := memory.New()
			n := newNormalizer(store)

			_, err := n.Apply(context.Background(), target(), "v1", tt.from)
			require.NoError(t, err)
			event, err := n.Apply(context.Background(), target(), "v1", tt.to)
			require.NoError(t, err)
			require.NotNil(t, event)
			assert.Equal(t, tt.want, event.Type)
			require.NotNil(t, event.Details.Previous)
		})
	}
}

func TestApplyUpsertsStoreAvailability(t *testing.T) {
	t.Parallel()

	store := memory.New()
	n := newNormalizer(store)

	event, err := n.Apply(context.Background(), target(), "v1", monitor.NormalizedVariant{
		InStock: true,
		StoreAvails: []monitor.StoreAvail{
			{StoreCode: "3001", StoreName: "Melbourne CBD", InStock: true},
			{StoreCode: "2000", StoreName: "Sydney", InStock: false},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, event)

	// Same state with stores permuted must not produce a second change.
	event, err = n.Apply(context.Background(), target(), "v1", monitor.NormalizedVariant{
		InStock: true,
		StoreAvails: []monitor.StoreAvail{
			{StoreCode: "2000", StoreName: "Sydney", InStock: false},
			{StoreCode: "3001", StoreName: "Melbourne CBD", InStock: true},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, event)
}
