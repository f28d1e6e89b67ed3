package marketdata

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banachtech/orex/internal/fixing"
)

const sample = `2026-01-01,EQUITY_OPTION/RATE_LNVOL/SP5/USD/1Y/ATMF,0.22
2026-01-01,IR/RATE/USD/6M,0.031
2026-01-02,EQUITY_OPTION/RATE_LNVOL/SP5/USD/1Y/ATMF,0.23
`

func TestLoadParsesRows(t *testing.T) {
	quotes, err := Load(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, quotes, 3)
	require.Equal(t, "EQUITY_OPTION/RATE_LNVOL/SP5/USD/1Y/ATMF", quotes[0].Key)
	require.InDelta(t, 0.22, quotes[0].Value, 1e-12)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), quotes[0].Date)
}

func TestLoadRejectsMalformedValue(t *testing.T) {
	_, err := Load(strings.NewReader("2026-01-01,KEY,not-a-number\n"))
	require.Error(t, err)
}

func TestParseKeySplitsComponents(t *testing.T) {
	k := ParseKey("EQUITY_OPTION/RATE_LNVOL/SP5/USD/1Y/ATMF")
	require.Equal(t, "EQUITY_OPTION", k.Category)
	require.Equal(t, "RATE_LNVOL", k.Subcategory)
	require.Equal(t, "SP5", k.Curve)
	require.Equal(t, "USD", k.Currency)
	require.Equal(t, []string{"1Y", "ATMF"}, k.Tail)
}

func TestByKeyAndDateIndexesLatestPerKeyDate(t *testing.T) {
	quotes, err := Load(strings.NewReader(sample))
	require.NoError(t, err)
	idx := ByKeyAndDate(quotes)
	require.Len(t, idx["IR/RATE/USD/6M"], 1)
	require.Len(t, idx["EQUITY_OPTION/RATE_LNVOL/SP5/USD/1Y/ATMF"], 2)
}

func TestPopulateFixingsFeedsStore(t *testing.T) {
	quotes, err := Load(strings.NewReader(sample))
	require.NoError(t, err)
	store := fixing.NewMemory()
	PopulateFixings(quotes, store)
	v, ok := store.Fixing("IR/RATE/USD/6M", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	require.InDelta(t, 0.031, v, 1e-12)
}
