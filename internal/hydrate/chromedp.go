// Package hydrate renders JavaScript-dependent product pages with headless
// Chrome and re-runs verdict decisions against the hydrated DOM.
package hydrate

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/cardstock/stockwatch/internal/extract"
	"github.com/cardstock/stockwatch/internal/monitor"
)

// Config controls the behavior of the headless renderer.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
}

// Renderer implements monitor.Renderer using chromedp and headless Chrome.
// A shared exec allocator keeps one browser process across renders; the
// limiter bounds concurrent tabs.
type Renderer struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	now         func() time.Time
}

// NewRenderer creates a headless renderer backed by chromedp.
func NewRenderer(cfg Config, clock monitor.Clock) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 8 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		now:         clock.Now,
	}, nil
}

// Close cancels the allocator context and tears down the browser.
func (r *Renderer) Close() {
	r.allocCancel()
}

// Render navigates to the URL, waits for the page to settle, and returns the
// hydrated DOM. Settling means skeleton placeholders are gone and a stock
// signal or CTA has appeared; when the wait deadline passes the last capture
// is returned anyway so the caller can still decide.
func (r *Renderer) Render(ctx context.Context, url string) (monitor.Page, error) {
	if err := r.acquire(ctx); err != nil {
		return monitor.Page{}, err
	}
	defer r.release()

	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, r.cfg.NavigationTimeout)
	defer cancel()

	var finalURL string
	actions := []chromedp.Action{
		r.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return monitor.Page{}, fmt.Errorf("chromedp navigate: %w", err)
	}

	html, err := r.waitSettled(taskCtx)
	if err != nil {
		return monitor.Page{}, err
	}

	return monitor.Page{
		URL:        url,
		FinalURL:   finalURL,
		StatusCode: 200,
		Body:       []byte(html),
		FetchedAt:  r.now(),
		Rendered:   true,
	}, nil
}

func (r *Renderer) waitSettled(ctx context.Context) (string, error) {
	deadline := time.Now().Add(r.cfg.WaitTimeout)
	var html string
	for {
		if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
			return "", fmt.Errorf("chromedp capture: %w", err)
		}
		if pageSettled([]byte(html)) || time.Now().After(deadline) {
			return html, nil
		}
		select {
		case <-ctx.Done():
			return html, nil
		case <-time.After(pollInterval()):
		}
	}
}

// pollInterval is 250ms plus jitter so concurrent tabs do not poll in step.
func pollInterval() time.Duration {
	return 250*time.Millisecond + time.Duration(rand.Intn(100))*time.Millisecond
}

func pageSettled(body []byte) bool {
	d, err := extract.Parse(monitor.Page{StatusCode: 200, Body: body})
	if err != nil {
		return false
	}
	region := d.Main("main, [class*='product']")
	if extract.HasSkeleton(region) {
		return false
	}
	text := extract.NormalizeText(region.Text())
	if extract.StrongOOS(text) || extract.PreorderText(text) {
		return true
	}
	signals := extract.ScanButtons(region)
	return signals.HasAddToCart || signals.HasNotify || signals.HasWishlist
}

func (r *Renderer) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}
