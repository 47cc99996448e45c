package retailer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardstock/stockwatch/internal/hydrate"
	"github.com/cardstock/stockwatch/internal/monitor"
)

type fakeFetcher struct {
	page monitor.Page
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, url, _ string) (monitor.Page, error) {
	if f.err != nil {
		return monitor.Page{}, f.err
	}
	page := f.page
	page.URL = url
	return page, nil
}

type countingRenderer struct {
	page  monitor.Page
	err   error
	calls int
}

func (r *countingRenderer) Render(_ context.Context, url string) (monitor.Page, error) {
	r.calls++
	if r.err != nil {
		return monitor.Page{}, r.err
	}
	page := r.page
	page.URL = url
	page.Rendered = true
	return page, nil
}

func noEscalation() *hydrate.Escalator {
	return hydrate.NewEscalator(hydrate.Noop{}, 3, nil)
}

func htmlPage(status int, html string) monitor.Page {
	return monitor.Page{StatusCode: status, Body: []byte(html)}
}

func ebTarget() monitor.Target {
	return monitor.Target{
		ID:               "t1",
		URL:              "https://www.ebgames.com.au/product/1",
		RetailerPlatform: PlatformEBGames,
	}
}

func TestEBGamesJSONLDInStock(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{page: htmlPage(200, `<html><body><main>
		<h1 class="product-title">Charizard ex Box</h1>
		<span class="price" content="79.95">$79.95</span>
		<script type="application/ld+json">
		{"@type":"Product","offers":{"availability":"https://schema.org/InStock","price":"79.95"}}
		</script>
	</main></body></html>`)}

	adapter := NewEBGames(Deps{Fetcher: fetcher, Escalator: noEscalation()})
	product := adapter.Adapt(context.Background(), ebTarget(), monitor.AdaptOptions{})

	require.NoError(t, product.Err)
	assert.Equal(t, monitor.StatusInStock, product.Verdict.Status)
	assert.Equal(t, monitor.ReasonJSONLDInStock, product.Verdict.Reason)
	assert.Equal(t, "Charizard ex Box", product.Title)
	require.Len(t, product.Variants, 1)
	assert.True(t, product.Variants[0].InStock)
	require.NotNil(t, product.Variants[0].Price)
	assert.Equal(t, "79.95", product.Variants[0].Price.String())
}

func TestEBGamesRemovedBeatsOtherSignals(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{page: htmlPage(404, `<html><body><main>
		<script type="application/ld+json">
		{"@type":"Product","offers":{"availability":"InStock"}}
		</script>
	</main></body></html>`)}

	adapter := NewEBGames(Deps{Fetcher: fetcher, Escalator: noEscalation()})
	product := adapter.Adapt(context.Background(), ebTarget(), monitor.AdaptOptions{})

	assert.Equal(t, monitor.StatusRemoved, product.Verdict.Status)
	assert.Equal(t, monitor.ReasonPageNotFound, product.Verdict.Reason)
	assert.True(t, product.Variants[0].IsUnavailable)
}

func TestEBGamesPreorderBeatsSoldOut(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{page: htmlPage(200, `<html><body><main>
		<h1 class="product-title">Prismatic Evolutions ETB</h1>
		<p>Pre-order now, pay a deposit. Online allocation sold out.</p>
	</main></body></html>`)}

	adapter := NewEBGames(Deps{Fetcher: fetcher, Escalator: noEscalation()})
	product := adapter.Adapt(context.Background(), ebTarget(), monitor.AdaptOptions{})

	assert.Equal(t, monitor.StatusPreorder, product.Verdict.Status)
	assert.True(t, product.Variants[0].IsPreorder)
	assert.False(t, product.Variants[0].InStock)
}

func TestEBGamesUnknownEscalatesAndStaysFinal(t *testing.T) {
	t.Parallel()

	emptyShell := `<html><body><main><h1 class="product-title">Mystery Box</h1></main></body></html>`
	fetcher := &fakeFetcher{page: htmlPage(200, emptyShell)}
	renderer := &countingRenderer{page: htmlPage(200, emptyShell)}

	adapter := NewEBGames(Deps{Fetcher: fetcher, Escalator: hydrate.NewEscalator(renderer, 3, nil)})
	product := adapter.Adapt(context.Background(), ebTarget(), monitor.AdaptOptions{})

	assert.Equal(t, monitor.StatusUnknown, product.Verdict.Status,
		"a still-unknown hydrated verdict is final, never upgraded")
	assert.Equal(t, 3, renderer.calls, "hydration retries while unknown, then stops")
	assert.False(t, product.Variants[0].InStock)
}

func TestEBGamesHydratedCartDecides(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{page: htmlPage(200,
		`<html><body><main><h1 class="product-title">Plush</h1></main></body></html>`)}
	renderer := &countingRenderer{page: htmlPage(200, `<html><body><main>
		<h1 class="product-title">Plush</h1>
		<button>Add to Cart</button>
	</main></body></html>`)}

	adapter := NewEBGames(Deps{Fetcher: fetcher, Escalator: hydrate.NewEscalator(renderer, 3, nil)})
	product := adapter.Adapt(context.Background(), ebTarget(), monitor.AdaptOptions{})

	assert.Equal(t, monitor.StatusInStock, product.Verdict.Status)
	assert.Equal(t, monitor.ReasonAddToCartAvailable, product.Verdict.Reason)
	assert.Equal(t, 1, renderer.calls)
}

func TestRegistryFallsBackToGeneric(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{page: htmlPage(200, `<html><head>
		<meta property="og:title" content="Some Product">
	</head><body><button>Add to cart</button></body></html>`)}

	registry := NewRegistry(Deps{Fetcher: fetcher, Escalator: noEscalation()})
	product := registry.Adapt(context.Background(), monitor.Target{
		URL:              "https://shop.example.com/p/1",
		RetailerPlatform: "unregistered",
	}, monitor.AdaptOptions{})

	require.NoError(t, product.Err)
	assert.Equal(t, "shop.example.com", product.Retailer)
	assert.Equal(t, monitor.StatusInStock, product.Verdict.Status)
}

func TestRegistryFetchErrorYieldsPlaceholder(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: errors.New("dns failure")}
	registry := NewRegistry(Deps{Fetcher: fetcher, Escalator: noEscalation()})

	product := registry.Adapt(context.Background(), ebTarget(), monitor.AdaptOptions{})

	require.Error(t, product.Err)
	assert.Equal(t, "Error loading product", product.Title)
	require.Len(t, product.Variants, 1)
	assert.False(t, product.Variants[0].InStock)
	assert.Nil(t, product.Variants[0].Price)
}

type panickyAdapter struct{}

func (panickyAdapter) Adapt(context.Context, monitor.Target, monitor.AdaptOptions) monitor.NormalizedProduct {
	panic("boom")
}

func TestRegistryRecoversPanics(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(Deps{Fetcher: &fakeFetcher{}, Escalator: noEscalation()})
	registry.adapters["panicky"] = panickyAdapter{}

	product := registry.Adapt(context.Background(), monitor.Target{
		URL:              "https://example.com/p",
		RetailerPlatform: "panicky",
	}, monitor.AdaptOptions{})

	require.Error(t, product.Err)
	assert.Contains(t, product.Err.Error(), "panic")
}

func TestKmartInStoreOnly(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{page: htmlPage(200, `<html><body>
		<h1 data-automation="product-title">Pokemon Tin</h1>
		<div data-automation="product-price">$17.00</div>
		<p>In Store Only - check stock at your local store</p>
	</body></html>`)}

	adapter := NewKmart(Deps{Fetcher: fetcher})
	product := adapter.Adapt(context.Background(), monitor.Target{
		URL:              "https://www.kmart.com.au/product/1",
		RetailerPlatform: PlatformKmart,
	}, monitor.AdaptOptions{})

	assert.Equal(t, monitor.StatusInStock, product.Verdict.Status)
	assert.Equal(t, monitor.ReasonInStoreOnly, product.Verdict.Reason)
	require.Len(t, product.Variants, 1)
	assert.True(t, product.Variants[0].InStock)
	assert.True(t, product.Variants[0].IsInStoreOnly)
	require.NotNil(t, product.Variants[0].Price)
	assert.Equal(t, "17", product.Variants[0].Price.String())
}

func TestCollectibleMadnessStockLine(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{page: htmlPage(200, `<html><body><main>
		<h1>Umbreon VMAX Alt Art</h1>
		<div class="product-form__inventory">Stock: In stock</div>
		<span class="price">$499.95</span>
	</main></body></html>`)}

	adapter := NewCollectibleMadness(Deps{Fetcher: fetcher, Escalator: noEscalation()})
	product := adapter.Adapt(context.Background(), monitor.Target{
		URL:              "https://collectiblemadness.com.au/products/umbreon",
		RetailerPlatform: PlatformCollectibleMadness,
	}, monitor.AdaptOptions{})

	assert.Equal(t, monitor.StatusInStock, product.Verdict.Status)
	assert.Equal(t, monitor.ReasonStockLine, product.Verdict.Reason)
	assert.Equal(t, "Umbreon VMAX Alt Art", product.Title)
}

func TestBigWSKUFromURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "6047806", bigwSKU("https://www.bigw.com.au/product/pokemon-tcg/p/6047806"))
	assert.Equal(t, "", bigwSKU("https://www.bigw.com.au/toys"))
}
