// Package valuetype implements the tagged-union ValueType and the Context
// variable store that the script engine reads and mutates.
package valuetype

import (
	"fmt"
	"time"

	"github.com/banachtech/orex/internal/randvar"
)

// Kind discriminates the ValueType variants.
type Kind int

const (
	KindNumber Kind = iota
	KindFilter
	KindEvent
	KindCurrency
	KindIndex
	KindDayCounter
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "Number"
	case KindFilter:
		return "Filter"
	case KindEvent:
		return "Event"
	case KindCurrency:
		return "Currency"
	case KindIndex:
		return "Index"
	case KindDayCounter:
		return "DayCounter"
	default:
		return "Unknown"
	}
}

// ValueType is a closed sum type over the six variants the payoff DSL
// manipulates. Exactly one payload field is meaningful, selected by Kind.
type ValueType struct {
	Kind   Kind
	Number randvar.RandomVariable
	Filter randvar.Filter
	Event  time.Time
	Text   string // Currency / Index / DayCounter name
}

func Number(r randvar.RandomVariable) ValueType { return ValueType{Kind: KindNumber, Number: r} }
func FilterVal(f randvar.Filter) ValueType       { return ValueType{Kind: KindFilter, Filter: f} }
func Event(t time.Time) ValueType                { return ValueType{Kind: KindEvent, Event: t} }
func Currency(code string) ValueType             { return ValueType{Kind: KindCurrency, Text: code} }
func Index(name string) ValueType                { return ValueType{Kind: KindIndex, Text: name} }
func DayCounter(name string) ValueType           { return ValueType{Kind: KindDayCounter, Text: name} }

// SameKind reports whether a and b carry the same variant.
func (a ValueType) SameKind(b ValueType) bool { return a.Kind == b.Kind }

// AssignableFrom implements the variant-compatibility rule of spec §3:
// assignment between variants is permitted only for matching kinds, except
// that Event/Currency/Index/DayCounter targets may accept a compatible
// constant (here: an identical value of the same kind — the script engine
// is responsible for rejecting a differing value under the active mask).
func (target ValueType) AssignableFrom(src ValueType) bool {
	if target.Kind == KindNumber {
		return src.Kind == KindNumber
	}
	return target.Kind == src.Kind
}

// Equal reports equality for the non-numeric, non-filter kinds used by the
// "type-safe assign" check in spec §4.4.
func (a ValueType) Equal(b ValueType) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindEvent:
		return a.Event.Equal(b.Event)
	case KindCurrency, KindIndex, KindDayCounter:
		return a.Text == b.Text
	default:
		return false
	}
}

func (a ValueType) String() string {
	switch a.Kind {
	case KindNumber:
		return fmt.Sprintf("Number(det=%v)", a.Number.Deterministic())
	case KindFilter:
		return fmt.Sprintf("Filter(det=%v)", a.Filter.Deterministic())
	case KindEvent:
		return "Event(" + a.Event.Format("2006-01-02") + ")"
	default:
		return a.Kind.String() + "(" + a.Text + ")"
	}
}
