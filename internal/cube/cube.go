// Package cube implements the dense NPV cube (spec §3, §4.5, §6): a
// 4-D store indexed by (trade, date, sample, depth) with a binary wire
// format, concurrency-safe on disjoint index tuples.
package cube

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/banachtech/orex/internal/apperr"
)

// Cube is a dense trade x date x sample x depth array of float64 values,
// plus a separate T0 row of trade x depth values held outside the scenario
// grid. Depth slot 0 is NPV; slot 1, when present, is path-wise cashflow;
// higher slots are reserved for caller use (spec §3's "NPV Cube" entry).
type Cube struct {
	tradeIDs []string
	dates    []time.Time
	asof     time.Time
	samples  int
	depth    int

	data []float64 // C-order: ((trade*numDates+date)*samples+sample)*depth+d
	t0   []float64 // trade*depth + d
}

// New allocates a zeroed cube. tradeIDs and dates must be non-empty; depth
// must be at least 1.
func New(asof time.Time, tradeIDs []string, dates []time.Time, samples, depth int) (*Cube, error) {
	if len(tradeIDs) == 0 {
		return nil, fmt.Errorf("cube: trade-id list must be non-empty")
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("cube: date list must be non-empty")
	}
	if samples <= 0 {
		return nil, fmt.Errorf("cube: sample count must be positive")
	}
	if depth <= 0 {
		return nil, fmt.Errorf("cube: depth must be at least 1")
	}
	c := &Cube{
		tradeIDs: append([]string(nil), tradeIDs...),
		dates:    append([]time.Time(nil), dates...),
		asof:     asof,
		samples:  samples,
		depth:    depth,
	}
	c.data = make([]float64, len(tradeIDs)*len(dates)*samples*depth)
	c.t0 = make([]float64, len(tradeIDs)*depth)
	return c, nil
}

func (c *Cube) NumTrades() int      { return len(c.tradeIDs) }
func (c *Cube) NumDates() int       { return len(c.dates) }
func (c *Cube) NumSamples() int     { return c.samples }
func (c *Cube) Depth() int          { return c.depth }
func (c *Cube) AsOfDate() time.Time { return c.asof }
func (c *Cube) TradeIDs() []string  { return append([]string(nil), c.tradeIDs...) }
func (c *Cube) Dates() []time.Time  { return append([]time.Time(nil), c.dates...) }

// tradeIndex and dateIndex are linear scans: cube dimension lists are small
// (hundreds to low thousands of trades/dates) relative to the sample axis,
// and construction-time lookups are not on the hot path.
func (c *Cube) tradeIndex(tradeID string) (int, error) {
	for i, id := range c.tradeIDs {
		if id == tradeID {
			return i, nil
		}
	}
	return 0, fmt.Errorf("cube: unknown trade id %q", tradeID)
}

func (c *Cube) dateIndex(d time.Time) (int, error) {
	for i, dd := range c.dates {
		if dd.Equal(d) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("cube: unknown date %s", d.Format("2006-01-02"))
}

func (c *Cube) offset(trade, date, sample, depth int) (int, error) {
	if trade < 0 || trade >= len(c.tradeIDs) {
		return 0, fmt.Errorf("cube: trade index %d out of range", trade)
	}
	if date < 0 || date >= len(c.dates) {
		return 0, fmt.Errorf("cube: date index %d out of range", date)
	}
	if sample < 0 || sample >= c.samples {
		return 0, fmt.Errorf("cube: sample index %d out of range", sample)
	}
	if depth < 0 || depth >= c.depth {
		return 0, fmt.Errorf("cube: depth index %d out of range", depth)
	}
	return ((trade*len(c.dates)+date)*c.samples+sample)*c.depth + depth, nil
}

// Set writes a single cell. Safe to call concurrently across goroutines
// writing disjoint (trade, date, sample, depth) tuples, per the valuation
// driver's sample-parallel scheduling model.
func (c *Cube) Set(tradeID string, date time.Time, sample, depth int, value float64) error {
	ti, err := c.tradeIndex(tradeID)
	if err != nil {
		return err
	}
	di, err := c.dateIndex(date)
	if err != nil {
		return err
	}
	off, err := c.offset(ti, di, sample, depth)
	if err != nil {
		return err
	}
	c.data[off] = value
	return nil
}

// SetByIndex is Set's index-based counterpart, for callers that already
// hold resolved trade/date positions (avoiding the linear-scan lookups).
func (c *Cube) SetByIndex(tradeIdx, dateIdx, sample, depth int, value float64) error {
	off, err := c.offset(tradeIdx, dateIdx, sample, depth)
	if err != nil {
		return err
	}
	c.data[off] = value
	return nil
}

func (c *Cube) Get(tradeID string, date time.Time, sample, depth int) (float64, error) {
	ti, err := c.tradeIndex(tradeID)
	if err != nil {
		return 0, err
	}
	di, err := c.dateIndex(date)
	if err != nil {
		return 0, err
	}
	off, err := c.offset(ti, di, sample, depth)
	if err != nil {
		return 0, err
	}
	return c.data[off], nil
}

func (c *Cube) GetByIndex(tradeIdx, dateIdx, sample, depth int) (float64, error) {
	off, err := c.offset(tradeIdx, dateIdx, sample, depth)
	if err != nil {
		return 0, err
	}
	return c.data[off], nil
}

func (c *Cube) t0Offset(trade, depth int) (int, error) {
	if trade < 0 || trade >= len(c.tradeIDs) {
		return 0, fmt.Errorf("cube: trade index %d out of range", trade)
	}
	if depth < 0 || depth >= c.depth {
		return 0, fmt.Errorf("cube: depth index %d out of range", depth)
	}
	return trade*c.depth + depth, nil
}

func (c *Cube) SetT0(tradeID string, depth int, value float64) error {
	ti, err := c.tradeIndex(tradeID)
	if err != nil {
		return err
	}
	off, err := c.t0Offset(ti, depth)
	if err != nil {
		return err
	}
	c.t0[off] = value
	return nil
}

func (c *Cube) GetT0(tradeID string, depth int) (float64, error) {
	ti, err := c.tradeIndex(tradeID)
	if err != nil {
		return 0, err
	}
	off, err := c.t0Offset(ti, depth)
	if err != nil {
		return 0, err
	}
	return c.t0[off], nil
}

// Equal reports whether c and other hold identical dimensions and contents,
// used by the round-trip test (spec §8's "Serialize/deserialize cube"
// testable property).
func (c *Cube) Equal(other *Cube) bool {
	if other == nil {
		return false
	}
	if c.samples != other.samples || c.depth != other.depth || !c.asof.Equal(other.asof) {
		return false
	}
	if len(c.tradeIDs) != len(other.tradeIDs) || len(c.dates) != len(other.dates) {
		return false
	}
	for i := range c.tradeIDs {
		if c.tradeIDs[i] != other.tradeIDs[i] {
			return false
		}
	}
	for i := range c.dates {
		if !c.dates[i].Equal(other.dates[i]) {
			return false
		}
	}
	for i := range c.data {
		if c.data[i] != other.data[i] {
			return false
		}
	}
	for i := range c.t0 {
		if c.t0[i] != other.t0[i] {
			return false
		}
	}
	return true
}

const dateLayout = "2006-01-02"

// Save writes the cube's binary serialization (spec §6): a header of
// trade-count, date-count, sample-count, depth, and asofDate, followed by
// the trade-id list, the date list, the dense trade/date/sample/depth
// array as IEEE-754 single-precision floats in C-order, then the T0 row.
func (c *Cube) Save(w io.Writer) error {
	if err := c.save(w); err != nil {
		return apperr.NewIOError("cube", err)
	}
	return nil
}

func (c *Cube) save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	header := struct {
		NumTrades, NumDates, NumSamples, Depth int32
	}{int32(len(c.tradeIDs)), int32(len(c.dates)), int32(c.samples), int32(c.depth)}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("cube: write header: %w", err)
	}
	if err := writeString(bw, c.asof.Format(dateLayout)); err != nil {
		return fmt.Errorf("cube: write asof date: %w", err)
	}
	for _, id := range c.tradeIDs {
		if err := writeString(bw, id); err != nil {
			return fmt.Errorf("cube: write trade id: %w", err)
		}
	}
	for _, d := range c.dates {
		if err := writeString(bw, d.Format(dateLayout)); err != nil {
			return fmt.Errorf("cube: write date: %w", err)
		}
	}
	for _, v := range c.data {
		if err := binary.Write(bw, binary.LittleEndian, float32(v)); err != nil {
			return fmt.Errorf("cube: write cell: %w", err)
		}
	}
	for _, v := range c.t0 {
		if err := binary.Write(bw, binary.LittleEndian, float32(v)); err != nil {
			return fmt.Errorf("cube: write t0 cell: %w", err)
		}
	}
	return bw.Flush()
}

// Load reads a cube written by Save.
func Load(r io.Reader) (*Cube, error) {
	c, err := load(r)
	if err != nil {
		return nil, apperr.NewIOError("cube", err)
	}
	return c, nil
}

func load(r io.Reader) (*Cube, error) {
	br := bufio.NewReader(r)
	var header struct {
		NumTrades, NumDates, NumSamples, Depth int32
	}
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("cube: read header: %w", err)
	}
	asofStr, err := readString(br)
	if err != nil {
		return nil, fmt.Errorf("cube: read asof date: %w", err)
	}
	asof, err := time.Parse(dateLayout, asofStr)
	if err != nil {
		return nil, fmt.Errorf("cube: parse asof date: %w", err)
	}
	tradeIDs := make([]string, header.NumTrades)
	for i := range tradeIDs {
		s, err := readString(br)
		if err != nil {
			return nil, fmt.Errorf("cube: read trade id: %w", err)
		}
		tradeIDs[i] = s
	}
	dates := make([]time.Time, header.NumDates)
	for i := range dates {
		s, err := readString(br)
		if err != nil {
			return nil, fmt.Errorf("cube: read date: %w", err)
		}
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("cube: parse date: %w", err)
		}
		dates[i] = d
	}
	c, err := New(asof, tradeIDs, dates, int(header.NumSamples), int(header.Depth))
	if err != nil {
		return nil, err
	}
	for i := range c.data {
		var f float32
		if err := binary.Read(br, binary.LittleEndian, &f); err != nil {
			return nil, fmt.Errorf("cube: read cell: %w", err)
		}
		c.data[i] = float64(f)
	}
	for i := range c.t0 {
		var f float32
		if err := binary.Read(br, binary.LittleEndian, &f); err != nil {
			return nil, fmt.Errorf("cube: read t0 cell: %w", err)
		}
		c.t0[i] = float64(f)
	}
	return c, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
