package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/pkg/errs"
	"github.com/rustyeddy/barsim/pkg/metrics"
	"github.com/rustyeddy/barsim/strategy"
	"github.com/rustyeddy/barsim/walkforward"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSource serves pre-built bars and fails for symbols in errs.
type memSource struct {
	bars  map[string][]market.Bar
	errs  map[string]error
	loads atomic.Int32
}

func (m *memSource) LoadBars(_ context.Context, symbol string, from, to time.Time) ([]market.Bar, error) {
	m.loads.Add(1)
	if err := m.errs[symbol]; err != nil {
		return nil, err
	}
	var out []market.Bar
	for _, b := range m.bars[symbol] {
		if !b.Time.Before(from) && b.Time.Before(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

type recordingSink struct {
	mu   sync.Mutex
	keys []string
}

func (s *recordingSink) WriteResult(_ context.Context, w walkforward.WindowSpec, r SymbolResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, fmt.Sprintf("%s/%s/%t", w.Name(), r.Symbol, r.Failed()))
	return nil
}

// everyMonth returns five quiet bars at the start of each month of 2024 up
// to and including the given month.
func everyMonth(last time.Month) []market.Bar {
	var out []market.Bar
	for m := time.January; m <= last; m++ {
		start := time.Date(2024, m, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 5; i++ {
			out = append(out, market.Bar{Time: start.Add(time.Duration(i) * time.Minute), Open: 100, High: 101, Low: 99, Close: 100})
		}
	}
	return out
}

// secondBarLong signals long on the second bar of every month.
type secondBarLong struct{}

func (secondBarLong) Signal(bars []market.Bar, _ market.Regime) (*strategy.EntrySignal, error) {
	if len(bars) == 2 {
		return long(), nil
	}
	return nil, nil
}

type upRegime struct{}

func (upRegime) Classify([]market.Bar) (market.Regime, error) { return market.TrendUp, nil }

func newRunner(src market.BarSource) *Runner {
	return &Runner{
		Source:    src,
		Providers: Providers{Regime: upRegime{}, Signal: secondBarLong{}},
		Params:    func(string) Params { return testParams() },
		Workers:   2,
		Log:       zerolog.Nop(),
		Metrics:   metrics.New(),
	}
}

func TestRunner_RunFolds(t *testing.T) {
	t.Parallel()

	src := &memSource{bars: map[string][]market.Bar{
		"BTCUSDT": everyMonth(time.April),
		"ETHUSDT": everyMonth(time.April),
	}}
	sink := &recordingSink{}
	r := newRunner(src)
	r.Sink = sink

	windows, err := walkforward.Generate(walkforward.Schedule{
		Mode: walkforward.Walkforward, Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		TrainMonths: 3, TestMonths: 1, StepMonths: 1,
	})
	require.NoError(t, err)

	folds, err := r.RunFolds(context.Background(), windows, []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)
	require.Len(t, folds, 3)

	for i, f := range folds {
		assert.Equal(t, i, f.Window.Index)
		require.Len(t, f.Symbols, 2)
		assert.Equal(t, "BTCUSDT", f.Symbols[0].Symbol)
		assert.Equal(t, "ETHUSDT", f.Symbols[1].Symbol)
		for _, s := range f.Symbols {
			require.NoError(t, s.Err)
			assert.Equal(t, 5, s.Bars)
			require.Len(t, s.Trades, 1)
			assert.Equal(t, f.Window.TestStart.Add(time.Minute), s.Trades[0].EntryTime)
		}
	}
	assert.Equal(t, int32(6), src.loads.Load())
	assert.Equal(t, []string{
		"fold_0/BTCUSDT/false", "fold_0/ETHUSDT/false",
		"fold_1/BTCUSDT/false", "fold_1/ETHUSDT/false",
		"fold_2/BTCUSDT/false", "fold_2/ETHUSDT/false",
	}, sink.keys)
}

func TestRunner_FailedSymbolDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	bad := everyMonth(time.January)
	bad[3].Time = bad[2].Time

	src := &memSource{
		bars: map[string][]market.Bar{
			"GOOD": everyMonth(time.January),
			"DUPS": bad,
		},
		errs: map[string]error{"GONE": errors.New("no such symbol")},
	}
	r := newRunner(src)
	r.Workers = 0

	w := walkforward.WindowSpec{Mode: walkforward.InSample,
		TestStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), TestEnd: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	fr, err := r.RunWindow(context.Background(), w, []string{"GONE", "GOOD", "DUPS"})
	require.NoError(t, err)
	require.Len(t, fr.Symbols, 3)

	assert.True(t, fr.Symbols[0].Failed())
	assert.ErrorContains(t, fr.Symbols[0].Err, "no such symbol")

	assert.False(t, fr.Symbols[1].Failed())
	assert.Len(t, fr.Symbols[1].Trades, 1)

	assert.ErrorIs(t, fr.Symbols[2].Err, errs.ErrDataIntegrity)
	assert.Equal(t, "DUPS", fr.Symbols[2].Symbol)
	assert.Empty(t, fr.Symbols[2].Trades)
	assert.Empty(t, fr.Symbols[2].Timeline)
}

func TestRunner_ConfigErrorBeforeAnyBar(t *testing.T) {
	t.Parallel()

	src := &memSource{bars: map[string][]market.Bar{"X": everyMonth(time.January)}}
	r := newRunner(src)
	r.Params = func(sym string) Params {
		p := testParams()
		if sym == "Y" {
			p.SLMult = 0
		}
		return p
	}

	windows, err := walkforward.Generate(walkforward.Schedule{Mode: walkforward.InSample,
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	_, err = r.RunFolds(context.Background(), windows, []string{"X", "Y"})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.Zero(t, src.loads.Load())

	_, err = r.RunFolds(context.Background(), windows, nil)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestRunner_Cancelled(t *testing.T) {
	t.Parallel()

	src := &memSource{bars: map[string][]market.Bar{"X": everyMonth(time.January)}}
	r := newRunner(src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := walkforward.WindowSpec{Mode: walkforward.InSample,
		TestStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), TestEnd: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	_, err := r.RunWindow(ctx, w, []string{"X"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.loads.Load())
}

func TestRunner_ResultsIndependentOfWorkerCount(t *testing.T) {
	t.Parallel()

	symbols := []string{"A", "B", "C", "D", "E"}
	bars := map[string][]market.Bar{}
	for _, s := range symbols {
		bars[s] = everyMonth(time.February)
	}
	w := walkforward.WindowSpec{Mode: walkforward.InSample,
		TestStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), TestEnd: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}

	var got [][]string
	for _, workers := range []int{1, 3, 8} {
		r := newRunner(&memSource{bars: bars})
		r.Workers = workers
		fr, err := r.RunWindow(context.Background(), w, symbols)
		require.NoError(t, err)

		var names []string
		for _, s := range fr.Symbols {
			names = append(names, fmt.Sprintf("%s:%d:%d", s.Symbol, s.Bars, len(s.Trades)))
		}
		got = append(got, names)
	}
	assert.Equal(t, got[0], got[1])
	assert.Equal(t, got[0], got[2])
}
