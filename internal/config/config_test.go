package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sample = `<ORE>
  <Setup>
    <Parameter name="asofDate">2026-01-01</Parameter>
    <Parameter name="portfolioFile">portfolio.xml</Parameter>
    <Parameter name="logMask">15</Parameter>
  </Setup>
  <XVA>
    <Parameter name="active">Y</Parameter>
    <Parameter name="quantile">0.95</Parameter>
  </XVA>
  <Sensitivity>
    <Parameter name="active">N</Parameter>
  </Sensitivity>
</ORE>`

func TestParseReadsGroupsAndParameters(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	asof, err := cfg.AsOfDate()
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), asof)

	mask, err := cfg.LogMask()
	require.NoError(t, err)
	require.Equal(t, 15, mask)

	require.True(t, cfg.XVA.Active())
	require.False(t, cfg.Sensitivity.Active())
	require.True(t, cfg.Setup.Active()) // no "active" key: always active

	v, ok := cfg.XVA.Get("quantile")
	require.True(t, ok)
	require.Equal(t, "0.95", v)
}

func TestParseRejectsMissingRequiredKey(t *testing.T) {
	_, err := Parse(strings.NewReader(`<ORE><Setup><Parameter name="asofDate">2026-01-01</Parameter></Setup></ORE>`))
	require.Error(t, err)
}

func TestParseRejectsMalformedXML(t *testing.T) {
	_, err := Parse(strings.NewReader(`not xml`))
	require.Error(t, err)
}

func TestGetOrDefaultFallsBack(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Equal(t, "fallback", cfg.Markets.GetOrDefault("missing", "fallback"))
}
