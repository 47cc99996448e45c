package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardstock/stockwatch/internal/monitor"
)

func parseHTML(t *testing.T, html string) *Document {
	t.Helper()
	d, err := Parse(monitor.Page{StatusCode: 200, Body: []byte(html)})
	require.NoError(t, err)
	return d
}

func TestMainPrefersContainer(t *testing.T) {
	t.Parallel()

	d := parseHTML(t, `<html><body>
		<header>Sold Out Sale Banner</header>
		<main class="product-detail">Charizard ex Premium Collection</main>
		<footer>sold out items return soon</footer>
	</body></html>`)

	text := d.MainText(".product-detail")
	assert.Contains(t, text, "charizard")
	assert.NotContains(t, text, "banner")
}

func TestMainFallbackStripsChrome(t *testing.T) {
	t.Parallel()

	d := parseHTML(t, `<html><body>
		<header>sold out banner</header>
		<div>Pikachu plush in stock now</div>
		<footer class="site-footer">sold out</footer>
	</body></html>`)

	text := d.MainText(".does-not-exist")
	assert.Contains(t, text, "pikachu plush")
	assert.NotContains(t, text, "banner")
	assert.False(t, StrongOOS(text))
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "add to cart", NormalizeText("  Add \n\t To   Cart "))
}

func TestTitleFallbackChain(t *testing.T) {
	t.Parallel()

	d := parseHTML(t, `<html><head>
		<title>Kmart Australia</title>
		<meta property="og:title" content="Pokemon TCG Booster Box">
	</head><body></body></html>`)

	assert.Equal(t, "Pokemon TCG Booster Box", Title(d, "h1.missing"))

	plain := parseHTML(t, `<html><head><title>Plain Title</title></head><body></body></html>`)
	assert.Equal(t, "Plain Title", Title(plain, "h1.missing"))

	empty := parseHTML(t, `<html><body></body></html>`)
	assert.Equal(t, "Unknown Product", Title(empty, "h1.missing"))
}
