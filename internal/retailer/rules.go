// Package retailer composes the per-retailer scrape pipelines: fetch,
// extract, decide, and optionally hydrate. Each retailer's decision engine is
// a declarative ordered rule table evaluated top-down, first match wins.
package retailer

import "github.com/cardstock/stockwatch/internal/monitor"

// rule pairs a verdict with the signal predicate that produces it.
type rule[S any] struct {
	status monitor.Status
	reason string
	match  func(S) bool
}

// decide walks the ladder top-down and returns the first matching verdict.
// No match means UNKNOWN, never a guess.
func decide[S any](ladder []rule[S], signals S) monitor.Verdict {
	for _, r := range ladder {
		if r.match(signals) {
			return monitor.Verdict{Status: r.status, Reason: r.reason}
		}
	}
	return monitor.Verdict{Status: monitor.StatusUnknown, Reason: monitor.ReasonUnknown}
}
