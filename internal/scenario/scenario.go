// Package scenario implements AggregationScenarioData (spec §3): a dense
// store indexed by (date, sample, key) holding FX spots, numeraires, and
// named index fixings, dimensioned to match an NPV cube.
package scenario

import (
	"fmt"
	"time"
)

// Data is a dense (date, sample, key) -> value store. Dimensions are fixed
// at construction and must match the companion cube's date and sample
// axes, per the dimensional-consistency invariant.
type Data struct {
	dates   []time.Time
	samples int
	keys    []string
	keyIdx  map[string]int

	values []float64 // C-order: (date*numKeys+key)*samples+sample
}

// New allocates a zeroed scenario store for the given dates, sample count,
// and key set (e.g. "FX/EURUSD", "NUMERAIRE/USD", "INDEX/SPX").
func New(dates []time.Time, samples int, keys []string) (*Data, error) {
	if len(dates) == 0 {
		return nil, fmt.Errorf("scenario: date list must be non-empty")
	}
	if samples <= 0 {
		return nil, fmt.Errorf("scenario: sample count must be positive")
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("scenario: key list must be non-empty")
	}
	keyIdx := make(map[string]int, len(keys))
	for i, k := range keys {
		if _, dup := keyIdx[k]; dup {
			return nil, fmt.Errorf("scenario: duplicate key %q", k)
		}
		keyIdx[k] = i
	}
	return &Data{
		dates:   append([]time.Time(nil), dates...),
		samples: samples,
		keys:    append([]string(nil), keys...),
		keyIdx:  keyIdx,
		values:  make([]float64, len(dates)*len(keys)*samples),
	}, nil
}

func (d *Data) NumDates() int   { return len(d.dates) }
func (d *Data) NumSamples() int { return d.samples }
func (d *Data) Keys() []string  { return append([]string(nil), d.keys...) }

func (d *Data) dateIndex(date time.Time) (int, error) {
	for i, dd := range d.dates {
		if dd.Equal(date) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("scenario: unknown date %s", date.Format("2006-01-02"))
}

func (d *Data) offset(dateIdx, keyIdx, sample int) (int, error) {
	if dateIdx < 0 || dateIdx >= len(d.dates) {
		return 0, fmt.Errorf("scenario: date index %d out of range", dateIdx)
	}
	if keyIdx < 0 || keyIdx >= len(d.keys) {
		return 0, fmt.Errorf("scenario: key index %d out of range", keyIdx)
	}
	if sample < 0 || sample >= d.samples {
		return 0, fmt.Errorf("scenario: sample index %d out of range", sample)
	}
	return (dateIdx*len(d.keys)+keyIdx)*d.samples + sample, nil
}

// Set writes a single (date, sample, key) cell.
func (d *Data) Set(date time.Time, sample int, key string, value float64) error {
	di, err := d.dateIndex(date)
	if err != nil {
		return err
	}
	ki, ok := d.keyIdx[key]
	if !ok {
		return fmt.Errorf("scenario: unknown key %q", key)
	}
	off, err := d.offset(di, ki, sample)
	if err != nil {
		return err
	}
	d.values[off] = value
	return nil
}

// Get reads a single (date, sample, key) cell.
func (d *Data) Get(date time.Time, sample int, key string) (float64, error) {
	di, err := d.dateIndex(date)
	if err != nil {
		return 0, err
	}
	ki, ok := d.keyIdx[key]
	if !ok {
		return 0, fmt.Errorf("scenario: unknown key %q", key)
	}
	off, err := d.offset(di, ki, sample)
	if err != nil {
		return 0, err
	}
	return d.values[off], nil
}

// DimensionsMatch reports whether d's date count and sample count agree
// with numDates/numSamples, the check the aggregation post-processor runs
// before reading from a cube/scenario pair (spec §7's AggregationError on
// mismatch).
func (d *Data) DimensionsMatch(numDates, numSamples int) bool {
	return len(d.dates) == numDates && d.samples == numSamples
}
