// Package category infers a category for products that arrive without one:
// an ordered keyword table first, then name similarity against products of
// the same run that already have a category.
package category

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/supplier-ingest/pkg/catalog"
	"github.com/hazyhaar/supplier-ingest/pkg/normalize"
)

// Rule maps a keyword found in a product name to a category.
type Rule struct {
	Keyword  string `yaml:"keyword" json:"keyword"`
	Category string `yaml:"category" json:"category"`
}

// DefaultRules is the appliance taxonomy. Order is the tie-break: the first
// rule whose keyword appears in the name wins.
var DefaultRules = []Rule{
	{"lavadora", "Lavadoras"},
	{"lavasecadora", "Lavadoras"},
	{"carga frontal", "Lavadoras"},
	{"carga superior", "Lavadoras"},
	{"lavavajillas", "Lavavajillas"},
	{"lavaplatos", "Lavavajillas"},
	{"secadora", "Secadoras"},
	{"frigorífico", "Frigoríficos"},
	{"combi", "Frigoríficos"},
	{"refrigerador", "Frigoríficos"},
	{"nevera", "Frigoríficos"},
	{"congelador", "Congeladores"},
	{"arcón", "Congeladores"},
	{"microondas", "Microondas"},
	{"horno", "Hornos"},
	{"vitrocerámica", "Vitrocerámicas"},
	{"inducción", "Placas de Inducción"},
	{"cocina", "Hornos"},
	{"campana", "Campanas"},
	{"extractor", "Campanas"},
	{"aire acondicionado", "Aire Acondicionado"},
	{"calefacción", "Calefacción"},
	{"calefactor", "Calefacción"},
	{"radiador", "Calefacción"},
	{"televisor", "Televisores"},
	{"robot", "Robots de Limpieza"},
	{"aspirador", "Aspiradoras"},
	{"cafetera", "Cafeteras"},
	{"batidora", "Pequeño Electrodoméstico"},
	{"tostadora", "Pequeño Electrodoméstico"},
	{"plancha", "Pequeño Electrodoméstico"},
}

// DefaultThreshold is the minimum similarity (exclusive) for the fallback.
const DefaultThreshold = 0.6

// LowConfidenceBand is how close to the threshold a similarity match must be
// to be reported as low confidence.
const LowConfidenceBand = 0.05

// Options configure an Inferencer. Zero values select the defaults.
type Options struct {
	Rules     []Rule
	Threshold float64
	Normalize string // similarity comparison mode, see normalize.Get
	Logger    *slog.Logger
}

type rule struct {
	keyword  string
	category string
}

// Inferencer assigns categories. It holds no per-run state and is safe for
// concurrent use.
type Inferencer struct {
	rules     []rule
	threshold float64
	compare   normalize.Normalizer
	logger    *slog.Logger
}

// New builds an Inferencer.
func New(opts Options) (*Inferencer, error) {
	rules := opts.Rules
	if len(rules) == 0 {
		rules = DefaultRules
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("category threshold %v out of range [0,1]", threshold)
	}
	compare := normalize.Lower
	if opts.Normalize != "" {
		compare = normalize.Get(opts.Normalize)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	inf := &Inferencer{threshold: threshold, compare: compare, logger: logger}
	for _, r := range rules {
		kw := normalize.Fold(strings.TrimSpace(r.Keyword))
		if kw == "" || r.Category == "" {
			return nil, fmt.Errorf("category rule %q -> %q: empty keyword or category", r.Keyword, r.Category)
		}
		inf.rules = append(inf.rules, rule{keyword: kw, category: r.Category})
	}
	return inf, nil
}

// Result tallies one InferAll call.
type Result struct {
	Keyword       int
	Similarity    int
	Uncategorized int
	LowConfidence int
}

// Keyword returns the category of the first rule whose keyword appears in
// name, accent- and case-insensitively.
func (inf *Inferencer) Keyword(name string) (string, bool) {
	folded := normalize.Fold(name)
	for _, r := range inf.rules {
		if strings.Contains(folded, r.keyword) {
			return r.category, true
		}
	}
	return "", false
}

// InferAll fills the category of every product that has none.
// The keyword table runs first over all of them. The similarity fallback then
// compares each remaining product with the products categorized at that
// point (explicitly or by keyword); categories assigned by similarity are
// never used as references. Unresolved products are flagged uncategorized.
func (inf *Inferencer) InferAll(products []*catalog.Product) Result {
	var res Result
	var pending []*catalog.Product
	for _, p := range products {
		if p.Category != "" {
			continue
		}
		if cat, ok := inf.Keyword(p.Name); ok {
			p.Category = cat
			p.CategoryInferred = true
			p.CategoryScore = 1
			res.Keyword++
			continue
		}
		pending = append(pending, p)
	}
	if len(pending) == 0 {
		return res
	}

	type reference struct {
		name     string
		category string
	}
	var refs []reference
	for _, p := range products {
		if p.Category != "" {
			refs = append(refs, reference{name: inf.compare(p.Name), category: p.Category})
		}
	}

	for _, p := range pending {
		name := inf.compare(p.Name)
		best, bestScore := -1, 0.0
		for i, ref := range refs {
			if s := normalize.Similarity(name, ref.name); s > bestScore {
				best, bestScore = i, s
			}
		}

		if best < 0 || bestScore <= inf.threshold {
			p.AddFlag(catalog.FlagUncategorized)
			res.Uncategorized++
			continue
		}

		p.Category = refs[best].category
		p.CategoryInferred = true
		p.CategoryScore = bestScore
		res.Similarity++
		if bestScore-inf.threshold < LowConfidenceBand {
			res.LowConfidence++
			inf.logger.Info("low confidence category inference",
				"code", p.Code,
				"name", p.Name,
				"category", p.Category,
				"score", bestScore,
			)
		}
	}
	return res
}
