// Package walkforward plans the date windows a backtest is evaluated over.
package walkforward

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/barsim/pkg/errs"
)

// ErrInvalidSchedule reports an unusable window schedule. It is a
// configuration error.
var ErrInvalidSchedule = fmt.Errorf("%w: invalid schedule", errs.ErrConfiguration)

type Mode string

const (
	InSample    Mode = "insample"
	OOS         Mode = "oos"
	Walkforward Mode = "walkforward"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case InSample, OOS, Walkforward:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q (supported: insample, oos, walkforward)", ErrInvalidSchedule, s)
}

// WindowSpec is one evaluation slice. Test bounds are half-open
// [TestStart, TestEnd). Train bounds are informational; nothing is fitted
// against them.
type WindowSpec struct {
	Mode       Mode      `json:"mode"`
	Index      int       `json:"index"`
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`
}

// Name labels the window in output paths and summaries.
func (w WindowSpec) Name() string {
	if w.Mode == Walkforward {
		return "fold_" + strconv.Itoa(w.Index)
	}
	return string(w.Mode)
}

func (w WindowSpec) String() string {
	const layout = "2006-01-02"
	return fmt.Sprintf("%s train=[%s..%s) test=[%s..%s)", w.Name(),
		w.TrainStart.Format(layout), w.TrainEnd.Format(layout),
		w.TestStart.Format(layout), w.TestEnd.Format(layout))
}

// Schedule describes the windows to generate. Month counts only apply to
// the modes that use them.
type Schedule struct {
	Mode        Mode
	Start       time.Time
	End         time.Time
	TrainMonths int
	TestMonths  int
	StepMonths  int
	OOSLastK    int
}

// Generate validates s and returns its windows as a lazy sequence. The
// sequence is finite and may be ranged over any number of times.
//
// Walkforward test windows tile forward from Start, each TestMonths long,
// and stop before one would end after End; a shorter trailing remainder
// is dropped. Each train window is the TrainMonths before its test window.
func Generate(s Schedule) (iter.Seq[WindowSpec], error) {
	if s.Start.IsZero() || s.End.IsZero() || !s.Start.Before(s.End) {
		return nil, fmt.Errorf("%w: start %s must be before end %s", ErrInvalidSchedule,
			s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
	}

	switch s.Mode {
	case InSample:
		return func(yield func(WindowSpec) bool) {
			yield(WindowSpec{Mode: InSample, TrainStart: s.Start, TrainEnd: s.End, TestStart: s.Start, TestEnd: s.End})
		}, nil

	case OOS:
		if s.OOSLastK <= 0 {
			return nil, fmt.Errorf("%w: oos_last_k_months must be positive, got %d", ErrInvalidSchedule, s.OOSLastK)
		}
		testStart := AddMonths(s.End, -s.OOSLastK)
		if testStart.Before(s.Start) {
			testStart = s.Start
		}
		return func(yield func(WindowSpec) bool) {
			yield(WindowSpec{Mode: OOS, TrainStart: s.Start, TrainEnd: testStart, TestStart: testStart, TestEnd: s.End})
		}, nil

	case Walkforward:
		if err := (Spec{Train: s.TrainMonths, Test: s.TestMonths, Step: s.StepMonths}).Validate(); err != nil {
			return nil, err
		}
		return func(yield func(WindowSpec) bool) {
			for i := 0; ; i++ {
				offset := i * s.StepMonths
				w := WindowSpec{
					Mode:       Walkforward,
					Index:      i,
					TrainStart: AddMonths(s.Start, offset-s.TrainMonths),
					TrainEnd:   AddMonths(s.Start, offset),
					TestStart:  AddMonths(s.Start, offset),
					TestEnd:    AddMonths(s.Start, offset+s.TestMonths),
				}
				if w.TestEnd.After(s.End) || !yield(w) {
					return
				}
			}
		}, nil
	}

	return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidSchedule, s.Mode)
}

// AddMonths shifts t by n calendar months, clamping the day to the end of
// the target month (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(d, last)-1)
}
