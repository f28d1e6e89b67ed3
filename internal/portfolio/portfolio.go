// Package portfolio reads the trade list a run prices (spec §6's
// portfolioFile): one scripted-payoff trade per entry, each naming its
// netting set, currency and option/exercise facts plus the terms bound
// into its script's Context before evaluation. Instrument construction
// proper is an external collaborator per spec §1's Non-goals; this
// package only wires a parsed AST and its term bindings into the
// valuation.Trade shape the driver needs, following the same
// encoding/xml, struct-tag approach as internal/config.
package portfolio

import (
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/banachtech/orex/internal/apperr"
	"github.com/banachtech/orex/internal/randvar"
	"github.com/banachtech/orex/internal/script/ast"
	"github.com/banachtech/orex/internal/script/parser"
	"github.com/banachtech/orex/internal/valuation"
	"github.com/banachtech/orex/internal/valuetype"
)

// termXML is one externally-bound script variable, e.g. a strike or a
// settlement date.
type termXML struct {
	Name  string `xml:"name,attr"`
	Kind  string `xml:"kind,attr"` // "Number", "Event", "Currency", "Index", "DayCounter"
	Value string `xml:",chardata"`
}

type tradeXML struct {
	ID                  string    `xml:"id,attr"`
	Currency            string    `xml:"Currency"`
	NettingSet          string    `xml:"NettingSet"`
	IsOption            bool      `xml:"IsOption"`
	ExercisedPhysically bool      `xml:"ExercisedPhysically"`
	Script              string    `xml:"Script"`
	Terms               []termXML `xml:"Term"`
}

type document struct {
	XMLName xml.Name   `xml:"Portfolio"`
	Trades  []tradeXML `xml:"Trade"`
}

// Trade is a parsed portfolio entry, implementing valuation.Trade. Its
// Terms are the externally-injected bindings (spec §3's Context note
// (c)) the driver's ContextFor installs before the script runs.
type Trade struct {
	id, ccy, nettingSet string
	script              *ast.Node
	isOption, exercised bool
	Terms               []Term
}

// Term is one externally-bound script variable.
type Term struct {
	Name  string
	Value valuetype.ValueType
}

func (t *Trade) ID() string                { return t.id }
func (t *Trade) Currency() string          { return t.ccy }
func (t *Trade) NettingSet() string        { return t.nettingSet }
func (t *Trade) Script() *ast.Node         { return t.script }
func (t *Trade) IsOption() bool            { return t.isOption }
func (t *Trade) ExercisedPhysically() bool { return t.exercised }

// BindContext installs the trade's Terms into a fresh Context, matching
// spec §3's "externally injected bindings" Context lifecycle note.
func (t *Trade) BindContext() *valuetype.Context {
	ctx := valuetype.NewContext()
	for _, term := range t.Terms {
		ctx.Bind(term.Name, term.Value)
	}
	return ctx
}

const dateLayout = "2006-01-02"

func parseTermSized(raw termXML, sampleSize int) (Term, error) {
	switch raw.Kind {
	case "Number":
		v, err := strconv.ParseFloat(raw.Value, 64)
		if err != nil {
			return Term{}, apperr.NewConfigError("Term/"+raw.Name, err)
		}
		return Term{Name: raw.Name, Value: valuetype.Number(randvar.New(sampleSize, v))}, nil
	case "Event":
		d, err := time.Parse(dateLayout, raw.Value)
		if err != nil {
			return Term{}, apperr.NewConfigError("Term/"+raw.Name, err)
		}
		return Term{Name: raw.Name, Value: valuetype.Event(d)}, nil
	case "Currency":
		return Term{Name: raw.Name, Value: valuetype.Currency(raw.Value)}, nil
	case "Index":
		return Term{Name: raw.Name, Value: valuetype.Index(raw.Value)}, nil
	case "DayCounter":
		return Term{Name: raw.Name, Value: valuetype.DayCounter(raw.Value)}, nil
	default:
		return Term{}, apperr.NewConfigError("Term/"+raw.Name, errUnknownKind(raw.Kind))
	}
}

type unknownKindError string

func (e unknownKindError) Error() string { return "unknown term kind: " + string(e) }
func errUnknownKind(k string) error      { return unknownKindError(k) }

// Parse reads a portfolio document from r. sampleSize must equal the
// model's Size() so every bound Number term carries the right lane count.
func Parse(r io.Reader, sampleSize int) ([]valuation.Trade, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, apperr.NewConfigError("portfolio", err)
	}
	trades := make([]valuation.Trade, 0, len(doc.Trades))
	for _, tx := range doc.Trades {
		root, err := parser.Parse(tx.Script)
		if err != nil {
			return nil, err
		}
		trade := &Trade{
			id:         tx.ID,
			ccy:        tx.Currency,
			nettingSet: tx.NettingSet,
			script:     root,
			isOption:   tx.IsOption,
			exercised:  tx.ExercisedPhysically,
		}
		for _, raw := range tx.Terms {
			term, err := parseTermSized(raw, sampleSize)
			if err != nil {
				return nil, err
			}
			trade.Terms = append(trade.Terms, term)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// ParseFile opens path and parses it as a portfolio document.
func ParseFile(path string, sampleSize int) ([]valuation.Trade, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.NewConfigError(path, err)
	}
	defer f.Close()
	return Parse(f, sampleSize)
}
