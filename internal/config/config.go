// Package config reads the top-level XML run configuration (spec §6): a
// handful of named groups (setup, markets, curves, npv, cashflow,
// simulation, xva, sensitivity), each a flat set of name/value pairs, with
// an "active" key gating whether a stage runs at all. No XML library
// appears anywhere in the retrieved example pack, and the format is a
// direct struct-tag fit for the standard library, so this package uses
// encoding/xml rather than introducing a third-party parser (documented
// in this repository's design ledger).
package config

import (
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/banachtech/orex/internal/apperr"
)

// Parameter is one name/value pair inside a group.
type Parameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlGroup struct {
	Parameters []Parameter `xml:"Parameter"`
}

type document struct {
	XMLName     xml.Name `xml:"ORE"`
	Setup       xmlGroup `xml:"Setup"`
	Markets     xmlGroup `xml:"Markets"`
	Curves      xmlGroup `xml:"Curves"`
	NPV         xmlGroup `xml:"NPV"`
	Cashflow    xmlGroup `xml:"Cashflow"`
	Simulation  xmlGroup `xml:"Simulation"`
	XVA         xmlGroup `xml:"XVA"`
	Sensitivity xmlGroup `xml:"Sensitivity"`
}

// Group is a parsed name/value group. Lookups return ("", false) for an
// absent key rather than panicking, so callers decide what's required.
type Group map[string]string

func (g Group) Get(key string) (string, bool) {
	v, ok := g[key]
	return v, ok
}

func (g Group) GetOrDefault(key, def string) string {
	if v, ok := g[key]; ok {
		return v
	}
	return def
}

// Active reports whether the group's "active" key is "Y"; groups with no
// "active" key at all are treated as active (the setup group, which has
// no such key, always runs).
func (g Group) Active() bool {
	v, ok := g["active"]
	if !ok {
		return true
	}
	return v == "Y" || v == "y"
}

func toGroup(x xmlGroup) Group {
	g := make(Group, len(x.Parameters))
	for _, p := range x.Parameters {
		g[p.Name] = p.Value
	}
	return g
}

// Config is the fully parsed run configuration.
type Config struct {
	Setup, Markets, Curves, NPV, Cashflow, Simulation, XVA, Sensitivity Group
}

// requiredSetupKeys are the setup-group keys this repository cannot run
// without: an as-of date and the portfolio to price.
var requiredSetupKeys = []string{"asofDate", "portfolioFile"}

// Parse reads and validates a configuration document from r.
func Parse(r io.Reader) (*Config, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, apperr.NewConfigError("xml", err)
	}
	cfg := &Config{
		Setup:       toGroup(doc.Setup),
		Markets:     toGroup(doc.Markets),
		Curves:      toGroup(doc.Curves),
		NPV:         toGroup(doc.NPV),
		Cashflow:    toGroup(doc.Cashflow),
		Simulation:  toGroup(doc.Simulation),
		XVA:         toGroup(doc.XVA),
		Sensitivity: toGroup(doc.Sensitivity),
	}
	for _, key := range requiredSetupKeys {
		if _, ok := cfg.Setup[key]; !ok {
			return nil, apperr.NewConfigError(key, errMissingKey(key))
		}
	}
	return cfg, nil
}

// ParseFile opens path and parses it as a configuration document.
func ParseFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.NewConfigError(path, err)
	}
	defer f.Close()
	return Parse(f)
}

// AsOfDate parses the setup group's asofDate key (format: 2006-01-02).
func (c *Config) AsOfDate() (time.Time, error) {
	s, ok := c.Setup.Get("asofDate")
	if !ok {
		return time.Time{}, apperr.NewConfigError("asofDate", errMissingKey("asofDate"))
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, apperr.NewConfigError("asofDate", err)
	}
	return t, nil
}

// LogMask parses the setup group's logMask key (a 0-15 bitmask), defaulting
// to 0 (logging disabled) when absent.
func (c *Config) LogMask() (int, error) {
	s := c.Setup.GetOrDefault("logMask", "0")
	mask, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperr.NewConfigError("logMask", err)
	}
	if mask < 0 || mask > 15 {
		return 0, apperr.NewConfigError("logMask", errOutOfRange(s))
	}
	return mask, nil
}

type missingKeyError string

func (e missingKeyError) Error() string { return "missing required key: " + string(e) }

func errMissingKey(key string) error { return missingKeyError(key) }

type outOfRangeError string

func (e outOfRangeError) Error() string { return "value out of range [0,15]: " + string(e) }

func errOutOfRange(v string) error { return outOfRangeError(v) }
