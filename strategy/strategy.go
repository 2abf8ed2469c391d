// Package strategy defines the regime and entry-signal contracts the
// backtest engine consumes, plus the built-in fallback providers.
//
// Providers are pure functions of the bar prefix they are given: the
// engine passes bars[:i+1] at bar i, so a provider cannot see the future
// and may be shared between symbol runs.
package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rustyeddy/barsim/market"
)

// RegimeProvider classifies the market as of the last bar in bars.
type RegimeProvider interface {
	Classify(bars []market.Bar) (market.Regime, error)
}

// SignalProvider proposes an entry as of the last bar in bars, or nil.
type SignalProvider interface {
	Signal(bars []market.Bar, regime market.Regime) (*EntrySignal, error)
}

// EntrySignal is a proposed entry. A zero Stop or Target asks the engine to
// derive it from ATR.
type EntrySignal struct {
	Direction market.Direction
	Stop      float64
	Target    float64
}

// Params carries the tunables for the built-in providers.
type Params struct {
	NShort     int
	NLong      int
	MALookback int
}

type (
	RegimeFactory func(Params) (RegimeProvider, error)
	SignalFactory func(Params) (SignalProvider, error)
)

var (
	mu      sync.RWMutex
	regimes = map[string]RegimeFactory{}
	signals = map[string]SignalFactory{}
)

// RegisterRegime makes a regime provider selectable by name.
func RegisterRegime(name string, f RegimeFactory) {
	mu.Lock()
	defer mu.Unlock()
	regimes[normalize(name)] = f
}

// RegisterSignal makes a signal provider selectable by name.
func RegisterSignal(name string, f SignalFactory) {
	mu.Lock()
	defer mu.Unlock()
	signals[normalize(name)] = f
}

func RegimeByName(name string, p Params) (RegimeProvider, error) {
	mu.RLock()
	f, ok := regimes[normalize(name)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown regime provider %q (supported: %s)", name, strings.Join(RegimeNames(), ", "))
	}
	return f(p)
}

func SignalByName(name string, p Params) (SignalProvider, error) {
	mu.RLock()
	f, ok := signals[normalize(name)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown signal provider %q (supported: %s)", name, strings.Join(SignalNames(), ", "))
	}
	return f(p)
}

func RegimeNames() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedKeys(regimes)
}

func SignalNames() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedKeys(signals)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

func init() {
	RegisterRegime("slope", func(p Params) (RegimeProvider, error) {
		return NewSlopeRegime(p.NShort, p.NLong)
	})
	RegisterSignal("pullback_resumption", func(p Params) (SignalProvider, error) {
		return NewPullbackResumption(p.MALookback)
	})
}
