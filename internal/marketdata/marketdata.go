// Package marketdata loads the market-data and historical-fixing CSV files
// (spec §6): one quote per line, `date,key,value`, keys following the
// CATEGORY/SUBCATEGORY/CURVE/CCY/... convention. The fixing file shares the
// exact same structure and is interpreted as historical fixings rather than
// live quotes. No CSV library appears anywhere in the example pack, so this
// follows the teacher's "read structured external data into Go structs,
// minimal abstraction" texture (`data/backtest.go`, `data/data.go`) using
// the standard library's encoding/csv.
package marketdata

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banachtech/orex/internal/apperr"
	"github.com/banachtech/orex/internal/fixing"
)

// Quote is one parsed market-data or fixing line.
type Quote struct {
	Date  time.Time
	Key   string
	Value float64
}

// Category, Subcategory, and Currency split a quote key of the form
// CATEGORY/SUBCATEGORY/CURVE/CCY/... back into its leading components;
// the remainder (tenor, strike, and so on) is left as Tail.
type Key struct {
	Category, Subcategory, Curve, Currency string
	Tail                                   []string
}

// ParseKey splits a quote key on "/".
func ParseKey(key string) Key {
	parts := strings.Split(key, "/")
	k := Key{}
	if len(parts) > 0 {
		k.Category = parts[0]
	}
	if len(parts) > 1 {
		k.Subcategory = parts[1]
	}
	if len(parts) > 2 {
		k.Curve = parts[2]
	}
	if len(parts) > 3 {
		k.Currency = parts[3]
	}
	if len(parts) > 4 {
		k.Tail = parts[4:]
	}
	return k
}

// Load reads a date,key,value CSV stream into a slice of Quote.
func Load(r io.Reader) ([]Quote, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	var quotes []Quote
	lineNo := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.NewIOError("marketdata", err)
		}
		lineNo++
		date, err := time.Parse("2006-01-02", record[0])
		if err != nil {
			return nil, apperr.NewIOError("marketdata", rowError(lineNo, err))
		}
		value, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, apperr.NewIOError("marketdata", rowError(lineNo, err))
		}
		quotes = append(quotes, Quote{Date: date, Key: record[1], Value: value})
	}
	return quotes, nil
}

// LoadFile opens path and loads it as a market-data or fixing CSV.
func LoadFile(path string) ([]Quote, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.NewIOError(path, err)
	}
	defer f.Close()
	return Load(f)
}

// ByKeyAndDate indexes quotes for fast lookup by the valuation driver and
// the fixing store.
func ByKeyAndDate(quotes []Quote) map[string]map[time.Time]float64 {
	idx := make(map[string]map[time.Time]float64)
	for _, q := range quotes {
		byDate, ok := idx[q.Key]
		if !ok {
			byDate = make(map[time.Time]float64)
			idx[q.Key] = byDate
		}
		byDate[q.Date] = q.Value
	}
	return idx
}

// PopulateFixings records every quote into store under its key, treating
// the market-data file's rows as historical fixings per spec §6's note
// that the fixing file shares the market-data file's structure.
func PopulateFixings(quotes []Quote, store *fixing.Memory) {
	for _, q := range quotes {
		store.Set(q.Key, q.Date, q.Value)
	}
}

type rowErr struct {
	line int
	err  error
}

func (e rowErr) Error() string { return "row " + strconv.Itoa(e.line) + ": " + e.err.Error() }
func (e rowErr) Unwrap() error { return e.err }

func rowError(line int, err error) error { return rowErr{line: line, err: err} }
