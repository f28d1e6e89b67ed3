package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banachtech/orex/internal/xva"
)

func TestWriteExposureReportWritesHeaderAndRows(t *testing.T) {
	asof := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	res := &xva.NettingSetResult{
		Dates:              []time.Time{asof, asof.AddDate(0, 6, 0)},
		EPE:                []float64{1, 2},
		ENE:                []float64{0, 0},
		EEB:                []float64{1, 2},
		EEEB:               []float64{1, 2},
		PFE:                []float64{3, 4},
		ExpectedCollateral: []float64{0, 1},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteExposureReport(&buf, asof, res))
	out := buf.String()
	require.Contains(t, out, "time,date,EPE,ENE,EE_B,EEE_B,PFE,expectedCollateral")
	require.Contains(t, out, "2026-01-01")
	require.Contains(t, out, "2026-07-01")
}

func TestNettingSetXVARowsOrdersTradesDeterministically(t *testing.T) {
	res := &xva.NettingSetResult{
		CVA: 10, DVA: 5,
		AllocatedCVA: map[string]float64{"B": 3, "A": 7},
		AllocatedDVA: map[string]float64{"B": 1, "A": 4},
	}
	rows := NettingSetXVARows("NS1", res)
	require.Len(t, rows, 3)
	require.Equal(t, "", rows[0].TradeID)
	require.Equal(t, "A", rows[1].TradeID)
	require.Equal(t, "B", rows[2].TradeID)
}

func TestWriteXVAReportProducesOneLinePerRow(t *testing.T) {
	var buf bytes.Buffer
	rows := []XVARow{{NettingSetID: "NS1", CVA: 1.5}, {TradeID: "A", NettingSetID: "NS1", AllocatedCVA: 0.5}}
	require.NoError(t, WriteXVAReport(&buf, rows))
	require.Contains(t, buf.String(), "tradeId,nettingSetId,CVA,DVA,FBA,FCA,MVA,COLVA,collateralFloor,allocatedCVA,allocatedDVA,KVACCR,KVACVA")
}
