package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"https://www.ebgames.com.au/product/123", "www.ebgames.com.au"},
		{"http://BIGW.com.au", "bigw.com.au"},
		{"kmart.com.au/p/1", "kmart.com.au"},
		{"://nope", "unknown"},
		{"", "unknown"},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, SanitizeSite(tc.in), tc.in)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	require.NotPanics(t, Init)

	// Collectors must be usable after Init.
	ObserveTarget("processed")
	ObserveVerdict("ebgames", "IN_STOCK")
	ObserveEvent("PRICE_DROP")
	ObserveHydration("collectiblemadness", "resolved")
	ObserveLockSkip()
}
