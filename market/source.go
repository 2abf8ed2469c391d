package market

import (
	"context"
	"time"
)

// BarSource loads the ordered minute bars of one symbol within [from, to).
// A zero from or to leaves that side open.
type BarSource interface {
	LoadBars(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error)
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
