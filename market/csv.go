package market

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/barsim/pkg/errs"
)

var (
	tsAliases    = []string{"timestamp", "ts", "t", "time"}
	priceAliases = []string{"price", "p", "last_price", "close", "c"}
	qtyAliases   = []string{"qty", "quantity", "size", "amount", "volume", "q"}

	monthInName = regexp.MustCompile(`(\d{4})[-_](\d{2})`)
)

// CSVSource reads <Root>/<SYMBOL>/*.csv. Each file is either 1-minute OHLCV
//
//	timestamp,open,high,low,close[,volume]
//
// or raw ticks (a timestamp, a price and a quantity column) which are
// aggregated into 1-minute bars. Files whose names carry a YYYY-MM month
// that cannot overlap the requested window are skipped.
type CSVSource struct {
	Root string
}

func NewCSVSource(root string) *CSVSource {
	return &CSVSource{Root: root}
}

func (s *CSVSource) LoadBars(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error) {
	files, err := s.files(symbol, from, to)
	if err != nil {
		return nil, err
	}

	var bars []Bar
	for _, fp := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := ReadCSVFile(fp)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(fp), err)
		}
		for _, b := range got {
			if inRange(b.Time, from, to) {
				bars = append(bars, b)
			}
		}
	}

	if err := ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	return bars, nil
}

// files lists the symbol's CSV files that may overlap [from, to), sorted by name.
func (s *CSVSource) files(symbol string, from, to time.Time) ([]string, error) {
	all, err := filepath.Glob(filepath.Join(s.Root, symbol, "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(all)

	kept := all[:0]
	for _, fp := range all {
		start, end, ok := monthOfName(filepath.Base(fp))
		if !ok {
			kept = append(kept, fp)
			continue
		}
		if (to.IsZero() || start.Before(to)) && (from.IsZero() || end.After(from)) {
			kept = append(kept, fp)
		}
	}
	return kept, nil
}

func monthOfName(name string) (start, end time.Time, ok bool) {
	m := monthInName.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	if mo < 1 || mo > 12 {
		return time.Time{}, time.Time{}, false
	}
	start = time.Date(y, time.Month(mo), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), true
}

// ReadCSVFile parses one OHLCV or tick file into minute bars.
func ReadCSVFile(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV detects the schema from the header row and parses the rest.
func ReadCSV(r io.Reader) ([]Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", errs.ErrDataIntegrity, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}

	ts, hasTS := firstCol(cols, tsAliases)
	_, hasPrice := firstCol(cols, priceAliases)
	_, hasQty := firstCol(cols, qtyAliases)

	switch {
	case hasCols(cols, "open", "high", "low", "close"):
		if !hasTS {
			return nil, fmt.Errorf("%w: missing timestamp column in %v", errs.ErrDataIntegrity, header)
		}
		return readOHLCV(cr, cols, ts)
	case hasPrice && hasQty:
		if !hasTS {
			return nil, fmt.Errorf("%w: missing timestamp column in %v", errs.ErrDataIntegrity, header)
		}
		return readTicks(cr, cols, ts)
	}
	return nil, fmt.Errorf("%w: unrecognized CSV schema %v", errs.ErrDataIntegrity, header)
}

func readOHLCV(cr *csv.Reader, cols map[string]int, tsCol int) ([]Bar, error) {
	volCol, hasVol := cols["volume"]

	var bars []Bar
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return bars, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrDataIntegrity, err)
		}
		line, _ := cr.FieldPos(0)

		t, err := ParseTimestamp(cell(row, tsCol))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", errs.ErrDataIntegrity, line, err)
		}

		var px [4]float64
		for i, name := range []string{"open", "high", "low", "close"} {
			v, err := parseFinite(cell(row, cols[name]))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad %s %q", errs.ErrDataIntegrity, line, name, cell(row, cols[name]))
			}
			px[i] = v
		}

		var vol float64
		if hasVol {
			if s := cell(row, volCol); s != "" {
				if vol, err = parseFinite(s); err != nil {
					return nil, fmt.Errorf("%w: line %d: bad volume %q", errs.ErrDataIntegrity, line, s)
				}
			}
		}

		bars = append(bars, Bar{
			Time:   t.Truncate(time.Minute),
			Open:   px[0],
			High:   px[1],
			Low:    px[2],
			Close:  px[3],
			Volume: vol,
		})
	}
}

// readTicks aggregates trade ticks into 1-minute bars. Rows without a
// timestamp or a parsable price are skipped; a bad quantity counts as 0.
func readTicks(cr *csv.Reader, cols map[string]int, tsCol int) ([]Bar, error) {
	var (
		bars []Bar
		cur  *Bar
	)

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrDataIntegrity, err)
		}

		tsRaw := cell(row, tsCol)
		if tsRaw == "" {
			continue
		}
		t, err := ParseTimestamp(tsRaw)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d: %v", errs.ErrDataIntegrity, line, err)
		}
		minute := t.Truncate(time.Minute)

		pRaw, ok := firstValue(row, cols, priceAliases)
		if !ok {
			continue
		}
		p, err := strconv.ParseFloat(pRaw, 64)
		if err != nil {
			continue
		}
		if math.IsNaN(p) || math.IsInf(p, 0) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d: non-finite price %q", errs.ErrDataIntegrity, line, pRaw)
		}
		var q float64
		if qRaw, ok := firstValue(row, cols, qtyAliases); ok {
			if v, err := parseFinite(qRaw); err == nil {
				q = v
			}
		}

		if cur != nil && cur.Time.Equal(minute) {
			cur.Close = p
			cur.High = max(cur.High, p)
			cur.Low = min(cur.Low, p)
			cur.Volume += q
			continue
		}
		if cur != nil {
			bars = append(bars, *cur)
		}
		cur = &Bar{Time: minute, Open: p, High: p, Low: p, Close: p, Volume: q}
	}

	if cur != nil {
		bars = append(bars, *cur)
	}
	return bars, nil
}

// parseFinite is strconv.ParseFloat without NaN and infinities.
func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

// ParseTimestamp accepts epoch seconds, epoch milliseconds (values above
// 1e10) or RFC3339/ISO-8601 strings. Zone-less strings are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if isDigits(s) {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
		}
		if v > 10_000_000_000 {
			return time.UnixMilli(v).UTC(), nil
		}
		return time.Unix(v, 0).UTC(), nil
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func hasCols(cols map[string]int, names ...string) bool {
	for _, n := range names {
		if _, ok := cols[n]; !ok {
			return false
		}
	}
	return true
}

func firstCol(cols map[string]int, aliases []string) (int, bool) {
	for _, a := range aliases {
		if i, ok := cols[a]; ok {
			return i, true
		}
	}
	return 0, false
}

// firstValue returns the first non-empty cell among the alias columns.
func firstValue(row []string, cols map[string]int, aliases []string) (string, bool) {
	for _, a := range aliases {
		if i, ok := cols[a]; ok {
			if v := cell(row, i); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
