package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banachtech/orex/internal/config"
)

const sampleRunConfig = `<ORE>
  <Setup>
    <Parameter name="asofDate">2026-01-01</Parameter>
    <Parameter name="portfolioFile">portfolio.xml</Parameter>
  </Setup>
  <Curves>
    <Parameter name="curve.USD.rate">0.03</Parameter>
  </Curves>
  <Markets>
    <Parameter name="index.SPX.spot">100</Parameter>
    <Parameter name="index.SPX.currency">USD</Parameter>
    <Parameter name="index.SPX.sigma">0.2</Parameter>
  </Markets>
  <Simulation>
    <Parameter name="samples">16</Parameter>
    <Parameter name="horizonYears">1</Parameter>
    <Parameter name="gridSize">2</Parameter>
    <Parameter name="seed">7</Parameter>
  </Simulation>
</ORE>`

func TestBuildFromConfig(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(sampleRunConfig))
	require.NoError(t, err)

	asof := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mdl, dates, err := BuildFromConfig(cfg, asof)
	require.NoError(t, err)
	require.Equal(t, 16, mdl.Size())
	require.Len(t, dates, 2)

	rv, err := mdl.Eval("SPX", asof, nil)
	require.NoError(t, err)
	require.InDelta(t, 100.0, rv.At(0), 1e-9)
}

func TestBuildFromConfigRejectsMissingIndices(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(`<ORE><Setup><Parameter name="asofDate">2026-01-01</Parameter><Parameter name="portfolioFile">p.xml</Parameter></Setup></ORE>`))
	require.NoError(t, err)
	_, _, err = BuildFromConfig(cfg, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}
