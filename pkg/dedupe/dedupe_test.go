package dedupe

import (
	"testing"

	"github.com/hazyhaar/supplier-ingest/pkg/catalog"
)

func newDetector(t *testing.T, opts Options) *Detector {
	t.Helper()
	d, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestDetect_NearDuplicate(t *testing.T) {
	products := []*catalog.Product{
		{Code: "LG1", Name: "Lavadora LG F4WV5012S0W"},
		{Code: "LG2", Name: "Lavadora LG F4WV5012S0W "},
	}
	res := newDetector(t, Options{}).Detect(products)
	if len(res.Pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(res.Pairs))
	}
	if res.Pairs[0].A != "LG1" || res.Pairs[0].B != "LG2" || res.Pairs[0].Score < 0.85 {
		t.Errorf("pair = %+v", res.Pairs[0])
	}
	for _, p := range products {
		if !p.HasFlag(catalog.FlagPossibleDuplicate) {
			t.Errorf("%s not flagged", p.Code)
		}
	}
	if products[1].DuplicateOf != "LG1" || products[0].DuplicateOf != "" {
		t.Errorf("DuplicateOf = %q / %q", products[0].DuplicateOf, products[1].DuplicateOf)
	}
}

func TestDetect_Distinct(t *testing.T) {
	products := []*catalog.Product{
		{Code: "L", Name: "Lavadora LG"},
		{Code: "F", Name: "Frigorífico Samsung"},
	}
	res := newDetector(t, Options{}).Detect(products)
	if len(res.Pairs) != 0 {
		t.Errorf("pairs = %v, want none", res.Pairs)
	}
	for _, p := range products {
		if len(p.Flags) != 0 {
			t.Errorf("%s flags = %v", p.Code, p.Flags)
		}
	}
}

func TestDetect_AllPairs(t *testing.T) {
	products := []*catalog.Product{
		{Code: "A", Name: "Horno Balay 3HB5358N0"},
		{Code: "B", Name: "Horno Balay 3HB5358N0"},
		{Code: "C", Name: "horno balay 3HB5358N0"},
		{Code: "D", Name: "Campana decorativa 90 cm"},
	}
	res := newDetector(t, Options{}).Detect(products)
	if len(res.Pairs) != 3 {
		t.Fatalf("pairs = %d, want 3", len(res.Pairs))
	}
	if products[2].DuplicateOf != "A" {
		t.Errorf("C.DuplicateOf = %q, want A (first match)", products[2].DuplicateOf)
	}
	if products[3].HasFlag(catalog.FlagPossibleDuplicate) {
		t.Error("D should not be flagged")
	}
}

func TestDetect_NearMiss(t *testing.T) {
	products := []*catalog.Product{
		{Code: "A", Name: "abcdefghijklmnopqrstuvwxy"},
		{Code: "B", Name: "abcdefghijklmnopqrstu1234"}, // 0.84
	}
	res := newDetector(t, Options{}).Detect(products)
	if len(res.Pairs) != 0 || res.NearMisses != 1 {
		t.Errorf("result = %+v, want one near miss", res)
	}
}

func TestDetect_Threshold(t *testing.T) {
	products := []*catalog.Product{
		{Code: "A", Name: "abcdefghijklmnopqrstuvwxy"},
		{Code: "B", Name: "abcdefghijklmnopqrstu1234"},
	}
	res := newDetector(t, Options{Threshold: 0.8}).Detect(products)
	if len(res.Pairs) != 1 {
		t.Errorf("pairs = %d, want 1 at threshold 0.8", len(res.Pairs))
	}
	if _, err := New(Options{Threshold: 2}); err == nil {
		t.Error("threshold 2: expected error")
	}
}
