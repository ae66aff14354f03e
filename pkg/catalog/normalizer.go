package catalog

import (
	"errors"
	"fmt"

	"github.com/hazyhaar/supplier-ingest/pkg/classify"
	"github.com/hazyhaar/supplier-ingest/pkg/normalize"
	"github.com/shopspring/decimal"
)

var (
	// ErrMissingIdentity rejects a candidate without a code or a name.
	ErrMissingIdentity = errors.New("missing code or name")
	// ErrDuplicateCode rejects a candidate whose code was already emitted in the run.
	ErrDuplicateCode = errors.New("duplicate code")
)

var one = decimal.NewFromInt(1)

// BackfillSale returns cost × (1 + margin) rounded to cents.
func BackfillSale(cost, margin decimal.Decimal) decimal.Decimal {
	return cost.Mul(one.Add(margin)).Round(2)
}

// Normalizer turns product candidates of one file into products. It keeps
// the set of codes already emitted, so use one Normalizer per run.
type Normalizer struct {
	provider string
	margin   decimal.Decimal
	seen     map[string]int
}

// NewNormalizer returns a normalizer tagging products with provider and
// backfilling sale prices with margin.
func NewNormalizer(provider string, margin decimal.Decimal) *Normalizer {
	return &Normalizer{
		provider: provider,
		margin:   margin,
		seen:     make(map[string]int),
	}
}

// Normalize coerces c into a Product. It returns the number of price fields
// that failed coercion; those fields are null and the product is flagged
// coercion_failed but kept. Candidates missing a code or a name, or repeating
// a code, are rejected with ErrMissingIdentity or ErrDuplicateCode.
func (n *Normalizer) Normalize(c classify.ProductCandidate) (*Product, int, error) {
	code := normalize.Text(c.Code)
	name := normalize.Text(c.Name)
	if code == "" || name == "" {
		return nil, 0, fmt.Errorf("line %d: %w", c.Line, ErrMissingIdentity)
	}
	if first, dup := n.seen[code]; dup {
		return nil, 0, fmt.Errorf("line %d: %w %q (first at line %d)", c.Line, ErrDuplicateCode, code, first)
	}
	n.seen[code] = c.Line

	p := &Product{
		Code:           code,
		Name:           name,
		NormalizedName: name,
		Category:       normalize.Text(c.Category),
		Flags:          []Flag{},
		Provider:       n.provider,
		SourceLine:     c.Line,
	}

	failures := 0
	var err error
	if p.CostPrice, err = normalize.ParseDecimal(c.Cost); err != nil {
		failures++
	}
	if p.SalePrice, err = normalize.ParseDecimal(c.Sale); err != nil {
		failures++
	}
	if failures > 0 {
		p.AddFlag(FlagCoercionFailed)
	}

	// Sale is only derived once cost is resolved.
	if !p.SalePrice.Valid && p.CostPrice.Valid {
		p.SalePrice = decimal.NewNullDecimal(BackfillSale(p.CostPrice.Decimal, n.margin))
	}
	if !p.SalePrice.Valid {
		p.AddFlag(FlagMissingPrice)
	}
	return p, failures, nil
}
