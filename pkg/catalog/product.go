// Package catalog defines the canonical product record produced by the
// ingestion pipeline and the normalizer that builds it from classified rows.
package catalog

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Flag is a data-quality issue attached to a product for human review.
type Flag string

const (
	FlagMissingPrice      Flag = "missing_price"
	FlagCoercionFailed    Flag = "coercion_failed"
	FlagPossibleDuplicate Flag = "possible_duplicate"
	FlagUncategorized     Flag = "uncategorized"
)

// Attribute names filled by the attribute extractor.
const (
	AttrBrand       = "brand"
	AttrDimensions  = "dimensions"
	AttrCapacity    = "capacity"
	AttrPower       = "power"
	AttrRPM         = "rpm"
	AttrEnergyClass = "energy_class"
)

// Product is the canonical record. Category is empty until set or inferred.
// Prices are null when absent or not coercible.
type Product struct {
	Code             string              `json:"code"`
	Name             string              `json:"name"`
	NormalizedName   string              `json:"normalized_name"`
	Category         string              `json:"category,omitempty"`
	CategoryInferred bool                `json:"category_inferred"`
	CategoryScore    float64             `json:"category_score,omitempty"`
	CostPrice        decimal.NullDecimal `json:"cost_price"`
	SalePrice        decimal.NullDecimal `json:"sale_price"`
	Attributes       map[string]string   `json:"attributes,omitempty"`
	Flags            []Flag              `json:"quality_flags"`
	DuplicateOf      string              `json:"duplicate_of,omitempty"`
	Provider         string              `json:"provider"`
	SourceLine       int                 `json:"source_line"`
}

// AddFlag adds f once, keeping Flags sorted.
func (p *Product) AddFlag(f Flag) {
	if p.HasFlag(f) {
		return
	}
	p.Flags = append(p.Flags, f)
	sort.Slice(p.Flags, func(i, j int) bool { return p.Flags[i] < p.Flags[j] })
}

// HasFlag reports whether f is set.
func (p *Product) HasFlag(f Flag) bool {
	for _, v := range p.Flags {
		if v == f {
			return true
		}
	}
	return false
}

// SetAttribute records an extracted attribute.
func (p *Product) SetAttribute(name, value string) {
	if p.Attributes == nil {
		p.Attributes = make(map[string]string)
	}
	p.Attributes[name] = value
}

// DuplicatePair is two products whose names scored at or above the
// duplicate threshold. A precedes B in source order.
type DuplicatePair struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Score float64 `json:"score"`
}

// Summary is the per-file tally exposed to callers.
// SkippedRows counts every body row that did not become a product: rows the
// classifier dropped, rows rejected for a missing code or name, and rows
// repeating a code already seen in the run.
type Summary struct {
	TotalRows           int `json:"total_rows"`
	SkippedRows         int `json:"skipped_rows"`
	RejectedRows        int `json:"rejected_rows"`
	DuplicateCodes      int `json:"duplicate_codes"`
	CoercionFailures    int `json:"coercion_failures"`
	UncategorizedCount  int `json:"uncategorized_count"`
	DuplicatePairsFound int `json:"duplicate_pairs_found"`
	LowConfidence       int `json:"low_confidence_inferences"`
}

// Add accumulates o into s.
func (s *Summary) Add(o Summary) {
	s.TotalRows += o.TotalRows
	s.SkippedRows += o.SkippedRows
	s.RejectedRows += o.RejectedRows
	s.DuplicateCodes += o.DuplicateCodes
	s.CoercionFailures += o.CoercionFailures
	s.UncategorizedCount += o.UncategorizedCount
	s.DuplicatePairsFound += o.DuplicatePairsFound
	s.LowConfidence += o.LowConfidence
}
