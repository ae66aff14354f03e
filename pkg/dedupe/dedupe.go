// Package dedupe flags likely duplicate products by pairwise name similarity.
// Detection only: nothing is merged or removed.
package dedupe

import (
	"fmt"
	"log/slog"

	"github.com/hazyhaar/supplier-ingest/pkg/catalog"
	"github.com/hazyhaar/supplier-ingest/pkg/normalize"
)

// DefaultThreshold is the minimum similarity (inclusive) for a pair.
const DefaultThreshold = 0.85

// NearMissBand is how far below the threshold a pair counts as a near miss.
const NearMissBand = 0.05

// LargeSet is the product count above which the quadratic scan is logged.
const LargeSet = 2000

// Options configure a Detector. Zero values select the defaults.
type Options struct {
	Threshold float64
	Normalize string // comparison mode, see normalize.Get
	Logger    *slog.Logger
}

// Detector compares every unordered pair of product names.
type Detector struct {
	threshold float64
	compare   normalize.Normalizer
	logger    *slog.Logger
}

// New builds a Detector.
func New(opts Options) (*Detector, error) {
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("duplicate threshold %v out of range [0,1]", threshold)
	}
	compare := normalize.Lower
	if opts.Normalize != "" {
		compare = normalize.Get(opts.Normalize)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{threshold: threshold, compare: compare, logger: logger}, nil
}

// Result is the outcome of one Detect call.
type Result struct {
	Pairs      []catalog.DuplicatePair
	NearMisses int
}

// Detect reports every pair scoring at or above the threshold. Both members
// are flagged possible_duplicate and the later one points at the first
// earlier product it matched through DuplicateOf.
func (d *Detector) Detect(products []*catalog.Product) Result {
	if len(products) > LargeSet {
		d.logger.Warn("duplicate scan on large set", "products", len(products), "pairs", len(products)*(len(products)-1)/2)
	}

	names := make([]string, len(products))
	for i, p := range products {
		names[i] = d.compare(p.Name)
	}

	var res Result
	for i := 0; i < len(products); i++ {
		for j := i + 1; j < len(products); j++ {
			score := normalize.Similarity(names[i], names[j])
			if score < d.threshold {
				if d.threshold-score <= NearMissBand {
					res.NearMisses++
					d.logger.Debug("near duplicate below threshold",
						"a", products[i].Code, "b", products[j].Code, "score", score)
				}
				continue
			}
			a, b := products[i], products[j]
			a.AddFlag(catalog.FlagPossibleDuplicate)
			b.AddFlag(catalog.FlagPossibleDuplicate)
			if b.DuplicateOf == "" {
				b.DuplicateOf = a.Code
			}
			res.Pairs = append(res.Pairs, catalog.DuplicatePair{A: a.Code, B: b.Code, Score: score})
		}
	}
	return res
}
