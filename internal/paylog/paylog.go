// Package paylog records the ordered, path-wise cashflow log produced by
// the logpay script primitive (spec §2, §4.4).
package paylog

import (
	"time"

	"github.com/banachtech/orex/internal/randvar"
)

// Entry is one recorded cashflow. Amount is undiscounted, per spec §4.4's
// logpay contract; Mask is the filter active at the point of record.
type Entry struct {
	TradeID      string
	FlowIndex    int
	Amount       randvar.RandomVariable
	Mask         randvar.Filter
	Obs, Pay     time.Time
	Currency     string
	LegNo        int
	CashflowType string
	Slot         int
}

// Log is an ordered, per-trade record of Entry values. Writes occur in
// node-visitation order within a trade (spec §5); a thread-local Log per
// (trade, sample) is merged into a single per-trade ordering at the end of
// a parallel valuation run.
type Log struct {
	entries []Entry
}

// New builds an empty Log.
func New() *Log { return &Log{} }

// Record appends an entry, stamping its FlowIndex with the current length.
func (l *Log) Record(e Entry) {
	e.FlowIndex = len(l.entries)
	l.entries = append(l.entries, e)
}

// Entries returns the recorded entries in visitation order.
func (l *Log) Entries() []Entry { return l.entries }

// Merge appends another log's entries, renumbering FlowIndex to stay
// monotonic; used to combine thread-local per-sample logs for one trade.
func (l *Log) Merge(other *Log) {
	for _, e := range other.entries {
		l.Record(e)
	}
}
