// Package report writes the CSV reports spec §6 describes: one header
// line followed by one row per entity (trade / netting-set / time
// bucket). No CSV library appears anywhere in the example pack, so this
// follows the same stdlib-first texture as internal/marketdata.
package report

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/banachtech/orex/internal/apperr"
	"github.com/banachtech/orex/internal/xva"
)

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// WriteExposureReport writes one row per time grid point for a single
// netting set: time, date, EPE, ENE, EE_B, EEE_B, PFE, expectedCollateral.
func WriteExposureReport(w io.Writer, asof time.Time, res *xva.NettingSetResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "date", "EPE", "ENE", "EE_B", "EEE_B", "PFE", "expectedCollateral"}); err != nil {
		return apperr.NewIOError("exposure report", err)
	}
	for i, d := range res.Dates {
		t := d.Sub(asof).Hours() / 24 / 365
		row := []string{
			formatFloat(t),
			d.Format("2006-01-02"),
			formatFloat(res.EPE[i]),
			formatFloat(res.ENE[i]),
			formatFloat(res.EEB[i]),
			formatFloat(res.EEEB[i]),
			formatFloat(res.PFE[i]),
			formatFloat(res.ExpectedCollateral[i]),
		}
		if err := cw.Write(row); err != nil {
			return apperr.NewIOError("exposure report", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperr.NewIOError("exposure report", err)
	}
	return nil
}

// XVARow is one line of the xva.csv report: either a trade-level row
// (TradeID set, NettingSetID set) carrying only its allocated CVA/DVA, or
// a netting-set-level row (TradeID empty) carrying the full XVA suite.
type XVARow struct {
	TradeID, NettingSetID                           string
	CVA, DVA, FBA, FCA, MVA, COLVA, CollateralFloor  float64
	AllocatedCVA, AllocatedDVA, KVACCR, KVACVA       float64
}

// WriteXVAReport writes xva.csv: one row per trade and per netting set,
// columns tradeId, nettingSetId, CVA, DVA, FBA, FCA, MVA, COLVA,
// collateralFloor, allocatedCVA, allocatedDVA, KVACCR, KVACVA.
func WriteXVAReport(w io.Writer, rows []XVARow) error {
	cw := csv.NewWriter(w)
	header := []string{
		"tradeId", "nettingSetId", "CVA", "DVA", "FBA", "FCA", "MVA", "COLVA",
		"collateralFloor", "allocatedCVA", "allocatedDVA", "KVACCR", "KVACVA",
	}
	if err := cw.Write(header); err != nil {
		return apperr.NewIOError("xva report", err)
	}
	for _, r := range rows {
		record := []string{
			r.TradeID, r.NettingSetID,
			formatFloat(r.CVA), formatFloat(r.DVA), formatFloat(r.FBA), formatFloat(r.FCA),
			formatFloat(r.MVA), formatFloat(r.COLVA), formatFloat(r.CollateralFloor),
			formatFloat(r.AllocatedCVA), formatFloat(r.AllocatedDVA),
			formatFloat(r.KVACCR), formatFloat(r.KVACVA),
		}
		if err := cw.Write(record); err != nil {
			return apperr.NewIOError("xva report", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperr.NewIOError("xva report", err)
	}
	return nil
}

// NettingSetXVARows builds the netting-set-level row plus one allocated
// row per member trade from a fully run PostProcess result, in a
// deterministic trade order.
func NettingSetXVARows(nettingSetID string, res *xva.NettingSetResult) []XVARow {
	rows := []XVARow{{
		NettingSetID:     nettingSetID,
		CVA:              res.CVA,
		DVA:              res.DVA,
		FBA:              res.FBA,
		FCA:              res.FCA,
		MVA:              res.MVA,
		COLVA:            res.COLVA,
		CollateralFloor:  res.CollateralFloor,
		KVACCR:           res.KVACCR,
		KVACVA:           res.KVACVA,
	}}
	tradeIDs := make([]string, 0, len(res.AllocatedCVA))
	for id := range res.AllocatedCVA {
		tradeIDs = append(tradeIDs, id)
	}
	sort.Strings(tradeIDs)
	for _, id := range tradeIDs {
		rows = append(rows, XVARow{
			TradeID:      id,
			NettingSetID: nettingSetID,
			AllocatedCVA: res.AllocatedCVA[id],
			AllocatedDVA: res.AllocatedDVA[id],
		})
	}
	return rows
}
