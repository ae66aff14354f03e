// Package attr extracts structured attributes (brand, dimensions, capacity,
// power, spin speed, energy class) from free-text product names.
package attr

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hazyhaar/supplier-ingest/pkg/catalog"
	"github.com/hazyhaar/supplier-ingest/pkg/normalize"
)

// PatternSpec defines a named regex. Group selects the capture group whose
// text becomes the attribute value; 0 is the whole match.
type PatternSpec struct {
	Name  string `yaml:"name" json:"name"`
	Regex string `yaml:"regex" json:"regex"`
	Group int    `yaml:"group" json:"group"`
}

// DefaultPatterns is the built-in appliance pattern table.
var DefaultPatterns = []PatternSpec{
	{Name: catalog.AttrBrand, Regex: `\(([^)]+)\)`, Group: 1},
	{Name: catalog.AttrDimensions, Regex: `\b\d+(?:[.,]\d+)?\s*[xX]\s*\d+(?:[.,]\d+)?(?:\s*[xX]\s*\d+(?:[.,]\d+)?)?\b`},
	{Name: catalog.AttrCapacity, Regex: `(?i)\b\d+(?:[.,]\d+)?\s*(?:kg|l)\b`},
	{Name: catalog.AttrPower, Regex: `(?i)\b\d+(?:[.,]\d+)?\s*(?:kw|w)\b`},
	{Name: catalog.AttrRPM, Regex: `(?i)\b\d+\s*rpm\b`},
	{Name: catalog.AttrEnergyClass, Regex: `"([A-G](?:\+{1,3})?)"`, Group: 1},
}

type compiledPattern struct {
	name  string
	re    *regexp.Regexp
	group int
}

// Extractor applies an ordered set of independent patterns to product names.
type Extractor struct {
	patterns []compiledPattern
}

// New compiles specs. Each spec must have a name and a valid regex with at
// least Group capture groups.
func New(specs []PatternSpec) (*Extractor, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no patterns defined")
	}

	e := &Extractor{patterns: make([]compiledPattern, 0, len(specs))}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("pattern %q: missing name", spec.Regex)
		}
		re, err := regexp.Compile(spec.Regex)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", spec.Name, err)
		}
		if spec.Group < 0 || spec.Group > re.NumSubexp() {
			return nil, fmt.Errorf("pattern %q: group %d out of range", spec.Name, spec.Group)
		}
		e.patterns = append(e.patterns, compiledPattern{name: spec.Name, re: re, group: spec.Group})
	}
	return e, nil
}

// Default returns an extractor over DefaultPatterns.
func Default() *Extractor {
	e, err := New(DefaultPatterns)
	if err != nil {
		panic(err)
	}
	return e
}

// Match is one extracted attribute and the span of the full match in the name.
type Match struct {
	Name       string
	Value      string
	Start, End int
}

// Match evaluates every pattern against the full name. Patterns never see
// each other's matches. Values are trimmed and inner whitespace collapsed.
func (e *Extractor) Match(name string) []Match {
	var out []Match
	for _, p := range e.patterns {
		loc := p.re.FindStringSubmatchIndex(name)
		if loc == nil {
			continue
		}
		vs, ve := loc[2*p.group], loc[2*p.group+1]
		if vs < 0 {
			continue
		}
		out = append(out, Match{Name: p.name, Value: normalize.Text(name[vs:ve]), Start: loc[0], End: loc[1]})
	}
	return out
}

// Apply fills p.Attributes from p.Name and derives p.NormalizedName by
// removing the matched brand text only.
func (e *Extractor) Apply(p *catalog.Product) {
	normalized := p.Name
	for _, m := range e.Match(p.Name) {
		p.SetAttribute(m.Name, m.Value)
		if m.Name == catalog.AttrBrand {
			normalized = p.Name[:m.Start] + " " + p.Name[m.End:]
		}
	}
	p.NormalizedName = normalize.Text(normalized)
}

// ApplyAll runs Apply over products.
func (e *Extractor) ApplyAll(products []*catalog.Product) {
	for _, p := range products {
		e.Apply(p)
	}
}

// Names returns the attribute names in evaluation order.
func (e *Extractor) Names() []string {
	names := make([]string, len(e.patterns))
	for i, p := range e.patterns {
		names[i] = p.name
	}
	return names
}

// String lists the attribute names, for logs.
func (e *Extractor) String() string {
	return strings.Join(e.Names(), ",")
}
