package cube

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testDates(n int, ref time.Time) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = ref.AddDate(0, 0, (i+1)*30)
	}
	return out
}

func testTradeIDs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "trade-" + string(rune('A'+i))
	}
	return out
}

func TestNewRejectsInvalidDimensions(t *testing.T) {
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := testDates(2, ref)

	_, err := New(ref, nil, dates, 10, 1)
	require.Error(t, err)

	_, err = New(ref, []string{"t1"}, nil, 10, 1)
	require.Error(t, err)

	_, err = New(ref, []string{"t1"}, dates, 0, 1)
	require.Error(t, err)

	_, err = New(ref, []string{"t1"}, dates, 10, 0)
	require.Error(t, err)
}

func TestSetGetRoundTripsByName(t *testing.T) {
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := testDates(3, ref)
	c, err := New(ref, []string{"t1", "t2"}, dates, 5, 2)
	require.NoError(t, err)

	require.NoError(t, c.Set("t2", dates[1], 3, 1, 42.5))
	v, err := c.Get("t2", dates[1], 3, 1)
	require.NoError(t, err)
	require.Equal(t, 42.5, v)

	v2, err := c.Get("t2", dates[1], 3, 0)
	require.NoError(t, err)
	require.Equal(t, 0.0, v2)
}

func TestGetUnknownTradeOrDateErrors(t *testing.T) {
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := testDates(2, ref)
	c, err := New(ref, []string{"t1"}, dates, 5, 1)
	require.NoError(t, err)

	_, err = c.Get("nope", dates[0], 0, 0)
	require.Error(t, err)
	_, err = c.Get("t1", ref, 0, 0)
	require.Error(t, err)
}

func TestT0RowIndependentOfScenarioGrid(t *testing.T) {
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := testDates(2, ref)
	c, err := New(ref, []string{"t1"}, dates, 5, 2)
	require.NoError(t, err)

	require.NoError(t, c.SetT0("t1", 0, 99.0))
	v, err := c.GetT0("t1", 0)
	require.NoError(t, err)
	require.Equal(t, 99.0, v)

	cell, err := c.Get("t1", dates[0], 0, 0)
	require.NoError(t, err)
	require.Equal(t, 0.0, cell)
}

func TestDisjointIndicesAreConcurrencySafe(t *testing.T) {
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := testDates(2, ref)
	trades := testTradeIDs(4)
	c, err := New(ref, trades, dates, 50, 1)
	require.NoError(t, err)

	done := make(chan struct{})
	for s := 0; s < 50; s++ {
		s := s
		go func() {
			for _, tr := range trades {
				for _, d := range dates {
					_ = c.Set(tr, d, s, 0, float64(s))
				}
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	v, err := c.Get(trades[0], dates[0], 10, 0)
	require.NoError(t, err)
	require.Equal(t, 10.0, v)
}

func TestSaveLoadRoundTripMatchesElementwise(t *testing.T) {
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := testDates(5, ref)
	trades := testTradeIDs(10)
	c, err := New(ref, trades, dates, 100, 2)
	require.NoError(t, err)

	for ti, tr := range trades {
		for di, d := range dates {
			for s := 0; s < 100; s++ {
				require.NoError(t, c.Set(tr, d, s, 0, float64(ti*1000+di*10+s)))
				require.NoError(t, c.Set(tr, d, s, 1, -float64(s)))
			}
		}
		require.NoError(t, c.SetT0(tr, 0, float64(ti)+0.5))
	}

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	loaded, err := Load(&buf)
	require.NoError(t, err)
	require.True(t, c.Equal(loaded))
}

func TestLoadRejectsTruncatedStream(t *testing.T) {
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := testDates(2, ref)
	c, err := New(ref, []string{"t1"}, dates, 3, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-4])
	_, err = Load(truncated)
	require.Error(t, err)
}
