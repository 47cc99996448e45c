package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clocksystem "github.com/cardstock/stockwatch/internal/clock/system"
)

func TestFetchSendsBrowserHeaders(t *testing.T) {
	t.Parallel()

	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "test-agent", Timeout: 5 * time.Second}, clocksystem.Clock{})
	page, err := f.Fetch(context.Background(), srv.URL, "https://example.com/list")
	require.NoError(t, err)

	assert.Equal(t, 200, page.StatusCode)
	assert.Contains(t, string(page.Body), "ok")
	assert.False(t, page.FetchedAt.IsZero())
	assert.Equal(t, "test-agent", gotHeaders.Get("User-Agent"))
	assert.Equal(t, "en-AU,en;q=0.9", gotHeaders.Get("Accept-Language"))
	assert.Equal(t, "https://example.com/list", gotHeaders.Get("Referer"))
}

func TestFetchNotFoundIsAPageNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<html><body>page not found</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second}, clocksystem.Clock{})
	page, err := f.Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)

	assert.Equal(t, 404, page.StatusCode)
	assert.Contains(t, string(page.Body), "page not found")
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := New(Config{Timeout: 5 * time.Second}, clocksystem.Clock{})
	_, err := f.Fetch(ctx, srv.URL, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
