package fingerprint

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cardstock/stockwatch/internal/monitor"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestComputeIsDeterministic(t *testing.T) {
	t.Parallel()

	stores := []monitor.StoreAvail{
		{StoreCode: "2000", InStock: true},
		{StoreCode: "3000", InStock: false},
	}

	first, err := Compute(true, dec("79.95"), stores)
	require.NoError(t, err)
	second, err := Compute(true, dec("79.95"), stores)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 16)
}

func TestComputeIgnoresStoreOrder(t *testing.T) {
	t.Parallel()

	forward := []monitor.StoreAvail{
		{StoreCode: "2000", InStock: true},
		{StoreCode: "3000", InStock: false},
		{StoreCode: "4000", InStock: true},
	}
	reversed := []monitor.StoreAvail{
		{StoreCode: "4000", InStock: true},
		{StoreCode: "3000", InStock: false},
		{StoreCode: "2000", InStock: true},
	}

	a, err := Compute(false, nil, forward)
	require.NoError(t, err)
	b, err := Compute(false, nil, reversed)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestComputeDistinguishesState(t *testing.T) {
	t.Parallel()

	base, err := Compute(true, dec("50"), nil)
	require.NoError(t, err)

	flipped, err := Compute(false, dec("50"), nil)
	require.NoError(t, err)
	require.NotEqual(t, base, flipped)

	repriced, err := Compute(true, dec("45"), nil)
	require.NoError(t, err)
	require.NotEqual(t, base, repriced)

	noPrice, err := Compute(true, nil, nil)
	require.NoError(t, err)
	require.NotEqual(t, base, noPrice)

	withStore, err := Compute(true, dec("50"), []monitor.StoreAvail{{StoreCode: "2000", InStock: false}})
	require.NoError(t, err)
	require.NotEqual(t, base, withStore)
}
