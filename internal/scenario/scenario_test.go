package scenario

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testDates() []time.Time {
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []time.Time{ref.AddDate(0, 1, 0), ref.AddDate(0, 2, 0)}
}

func TestNewRejectsDuplicateKeys(t *testing.T) {
	_, err := New(testDates(), 10, []string{"FX/EURUSD", "FX/EURUSD"})
	require.Error(t, err)
}

func TestNewRejectsEmptyDimensions(t *testing.T) {
	_, err := New(nil, 10, []string{"FX/EURUSD"})
	require.Error(t, err)
	_, err = New(testDates(), 0, []string{"FX/EURUSD"})
	require.Error(t, err)
	_, err = New(testDates(), 10, nil)
	require.Error(t, err)
}

func TestSetGetRoundTrips(t *testing.T) {
	dates := testDates()
	d, err := New(dates, 5, []string{"FX/EURUSD", "NUMERAIRE/USD"})
	require.NoError(t, err)

	require.NoError(t, d.Set(dates[1], 3, "NUMERAIRE/USD", 1.0234))
	v, err := d.Get(dates[1], 3, "NUMERAIRE/USD")
	require.NoError(t, err)
	require.Equal(t, 1.0234, v)

	other, err := d.Get(dates[1], 3, "FX/EURUSD")
	require.NoError(t, err)
	require.Equal(t, 0.0, other)
}

func TestGetUnknownKeyOrDateErrors(t *testing.T) {
	dates := testDates()
	d, err := New(dates, 5, []string{"FX/EURUSD"})
	require.NoError(t, err)

	_, err = d.Get(dates[0], 0, "NOPE")
	require.Error(t, err)
	_, err = d.Get(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC), 0, "FX/EURUSD")
	require.Error(t, err)
}

func TestDimensionsMatch(t *testing.T) {
	dates := testDates()
	d, err := New(dates, 5, []string{"FX/EURUSD"})
	require.NoError(t, err)

	require.True(t, d.DimensionsMatch(2, 5))
	require.False(t, d.DimensionsMatch(3, 5))
	require.False(t, d.DimensionsMatch(2, 6))
}
