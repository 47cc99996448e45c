// Package runner orchestrates one monitoring pass over all registered targets.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cardstock/stockwatch/internal/metrics"
	"github.com/cardstock/stockwatch/internal/monitor"
	"github.com/cardstock/stockwatch/internal/normalize"
	"github.com/cardstock/stockwatch/internal/throttle"
)

// Config carries the orchestrator knobs.
type Config struct {
	Concurrency   int
	Postcode      string
	Topic         string
	ArchivePrefix string
}

// Runner fans targets out over a bounded worker pool and funnels each one
// through throttle, adapter, and normalizer.
type Runner struct {
	cfg        Config
	store      monitor.Store
	adapter    monitor.Adapter
	normalizer *normalize.Normalizer
	throttle   *throttle.Throttle
	archive    monitor.BlobStore
	publisher  monitor.Publisher
	clock      monitor.Clock
	logger     *zap.Logger
}

// Options bundles the orchestrator dependencies. Archive and Publisher are
// optional; a nil value disables that side effect.
type Options struct {
	Store      monitor.Store
	Adapter    monitor.Adapter
	Normalizer *normalize.Normalizer
	Throttle   *throttle.Throttle
	Archive    monitor.BlobStore
	Publisher  monitor.Publisher
	Clock      monitor.Clock
	Logger     *zap.Logger
}

// New constructs a Runner.
func New(cfg Config, opts Options) (*Runner, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	if opts.Normalizer == nil {
		return nil, fmt.Errorf("normalizer is required")
	}
	if opts.Throttle == nil {
		return nil, fmt.Errorf("throttle is required")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Topic == "" {
		cfg.Topic = "stock-events"
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "evidence"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		store:      opts.Store,
		adapter:    opts.Adapter,
		normalizer: opts.Normalizer,
		throttle:   opts.Throttle,
		archive:    opts.Archive,
		publisher:  opts.Publisher,
		clock:      opts.Clock,
		logger:     logger,
	}, nil
}

// eventPayload is the notification body published for one persisted change.
type eventPayload struct {
	Event       monitor.StockEvent `json:"event"`
	TargetID    string             `json:"targetId"`
	TargetURL   string             `json:"targetUrl"`
	TargetTitle string             `json:"targetTitle"`
	EvidenceURI string             `json:"evidenceUri,omitempty"`
}

// Run executes one monitoring pass. Per-target failures are counted in the
// summary; only a target listing failure aborts the run.
func (r *Runner) Run(ctx context.Context, filter monitor.TargetFilter) (monitor.RunSummary, error) {
	start := r.clock.Now()
	defer func() { metrics.ObserveRun(r.clock.Now().Sub(start)) }()

	targets, err := r.store.ListTargets(ctx, filter)
	if err != nil {
		return monitor.RunSummary{}, fmt.Errorf("list targets: %w", err)
	}

	var (
		mu        sync.Mutex
		processed int
		failed    int
	)
	jobs := make(chan monitor.Target)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				outcome := r.runTarget(ctx, target)
				mu.Lock()
				switch outcome {
				case outcomeProcessed:
					processed++
				case outcomeError:
					failed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, target := range targets {
		jobs <- target
	}
	close(jobs)
	wg.Wait()

	summary := monitor.RunSummary{
		Processed: processed,
		Errors:    failed,
		Total:     len(targets),
	}
	if failed > 0 {
		summary.Message = fmt.Sprintf("%d of %d targets failed", failed, len(targets))
	}
	r.logger.Info("monitor run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("errors", summary.Errors),
		zap.Int("total", summary.Total),
		zap.Duration("elapsed", r.clock.Now().Sub(start)))
	return summary, nil
}

type targetOutcome int

const (
	outcomeProcessed targetOutcome = iota
	outcomeError
	outcomeSkipped
)

func (r *Runner) runTarget(ctx context.Context, target monitor.Target) targetOutcome {
	err := r.throttle.With(ctx, "target:"+target.ID, func(ctx context.Context) error {
		return r.processTarget(ctx, target)
	})
	switch {
	case errors.Is(err, throttle.ErrSkipped):
		metrics.ObserveLockSkip()
		metrics.ObserveTarget("skipped")
		r.logger.Debug("target locked by another run", zap.String("target", target.ID))
		return outcomeSkipped
	case err != nil:
		metrics.ObserveTarget("error")
		r.logger.Warn("target failed",
			zap.String("target", target.ID),
			zap.String("url", target.URL),
			zap.Error(err))
		return outcomeError
	default:
		metrics.ObserveTarget("processed")
		return outcomeProcessed
	}
}

func (r *Runner) processTarget(ctx context.Context, target monitor.Target) error {
	product := r.adapter.Adapt(ctx, target, monitor.AdaptOptions{Postcode: r.cfg.Postcode})
	metrics.ObserveVerdict(product.Retailer, string(product.Verdict.Status))
	if product.Evidence != nil && product.Evidence.Rendered {
		outcome := "resolved"
		if product.Verdict.Status == monitor.StatusUnknown {
			outcome = "unknown"
		}
		metrics.ObserveHydration(product.Retailer, outcome)
	}
	if product.Err != nil {
		return fmt.Errorf("adapt %s: %w", target.URL, product.Err)
	}
	if len(product.Variants) == 0 {
		return fmt.Errorf("adapt %s: no variants", target.URL)
	}

	variantID, err := r.store.EnsureVariant(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("ensure variant: %w", err)
	}

	event, err := r.normalizer.Apply(ctx, target, variantID, product.Variants[0])
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	if event == nil {
		return nil
	}
	metrics.ObserveEvent(string(event.Type))

	evidenceURI := r.archiveEvidence(ctx, target, event, product.Evidence)
	r.publishEvent(ctx, target, *event, evidenceURI)
	return nil
}

// archiveEvidence stores the page backing a change. Failures are logged and
// swallowed; the change is already persisted.
func (r *Runner) archiveEvidence(ctx context.Context, target monitor.Target, event *monitor.StockEvent, evidence *monitor.PageEvidence) string {
	if r.archive == nil || evidence == nil || len(evidence.Body) == 0 {
		return ""
	}
	path := fmt.Sprintf("%s/%s/%s/%s.html",
		r.cfg.ArchivePrefix,
		event.OccurredAt.UTC().Format("2006/01/02"),
		target.ID,
		event.ID)
	uri, err := r.archive.PutObject(ctx, path, "text/html", evidence.Body)
	if err != nil {
		r.logger.Warn("evidence archive failed",
			zap.String("target", target.ID),
			zap.String("event", event.ID),
			zap.Error(err))
		return ""
	}
	return uri
}

// publishEvent notifies downstream consumers of a change. Failures are logged
// and swallowed.
func (r *Runner) publishEvent(ctx context.Context, target monitor.Target, event monitor.StockEvent, evidenceURI string) {
	if r.publisher == nil {
		return
	}
	payload := eventPayload{
		Event:       event,
		TargetID:    target.ID,
		TargetURL:   target.URL,
		TargetTitle: target.Title,
		EvidenceURI: evidenceURI,
	}
	id, err := r.publisher.Publish(ctx, r.cfg.Topic, payload)
	if err != nil {
		r.logger.Warn("event publish failed",
			zap.String("target", target.ID),
			zap.String("event", event.ID),
			zap.Error(err))
		return
	}
	r.logger.Info("stock event published",
		zap.String("target", target.ID),
		zap.String("event", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("messageId", id))
}
