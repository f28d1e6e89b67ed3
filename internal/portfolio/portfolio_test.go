package portfolio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePortfolio = `<Portfolio>
  <Trade id="T1">
    <Currency>USD</Currency>
    <NettingSet>NS1</NettingSet>
    <IsOption>false</IsOption>
    <Script>NUMBER amount; amount = strike; logpay(amount, obsDate, payDate, "USD");</Script>
    <Term name="strike" kind="Number">100</Term>
    <Term name="obsDate" kind="Event">2026-01-01</Term>
    <Term name="payDate" kind="Event">2027-01-01</Term>
  </Trade>
</Portfolio>`

func TestParsePortfolio(t *testing.T) {
	trades, err := Parse(strings.NewReader(samplePortfolio), 8)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0].(*Trade)
	require.Equal(t, "T1", tr.ID())
	require.Equal(t, "USD", tr.Currency())
	require.Equal(t, "NS1", tr.NettingSet())
	require.False(t, tr.IsOption())
	require.NotNil(t, tr.Script())
	require.Len(t, tr.Terms, 3)

	ctx := tr.BindContext()
	require.True(t, ctx.IsConstant("strike"))
}

func TestParsePortfolioRejectsUnknownTermKind(t *testing.T) {
	bad := strings.Replace(samplePortfolio, `kind="Number"`, `kind="Bogus"`, 1)
	_, err := Parse(strings.NewReader(bad), 8)
	require.Error(t, err)
}
