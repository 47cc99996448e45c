package hydrate

import (
	"context"
	"errors"

	"github.com/cardstock/stockwatch/internal/monitor"
)

// ErrDisabled is returned when hydration is switched off in config.
var ErrDisabled = errors.New("hydration disabled")

// Noop is a Renderer that always refuses. Adapters treat the refusal as
// "static verdict stands".
type Noop struct{}

// Render always returns ErrDisabled.
func (Noop) Render(context.Context, string) (monitor.Page, error) {
	return monitor.Page{}, ErrDisabled
}
