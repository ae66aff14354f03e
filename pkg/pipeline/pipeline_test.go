package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/supplier-ingest/pkg/catalog"
	"github.com/hazyhaar/supplier-ingest/pkg/profile"
	"github.com/hazyhaar/supplier-ingest/pkg/sheet"
	"github.com/shopspring/decimal"
)

const bshCSV = `TARIFA BSH 2024;;;
CÓDIGO;DESCRIPCIÓN;TOTAL;P.V.P FINAL CLIENTE
LAVADORAS;;;
3TS383BC;Lavadora (BALAY) 60x55 8KG 1200RPM;399,50;
3TS383BD;Lavadora (BALAY) 60x55 8KG 1200RPM;399,50;519,00
;;;
HORNOS;;;
3HB5358N0;Horno multifunción (BALAY) 71 L 3400W "A";consultar;
3HB5358N0;Horno repetido;1;
;Sin código;5;
`

const mielectroCSV = `CÓDIGO;DESCRIPCIÓN;IMPORTE BRUTO;P.V.P FINAL CLIENTE;FAMILIA
M1;Frigorífico combi (LG) 185x60x65;450,00;;
M2;Termo eléctrico 80L;120;;
M3;Cafetera express;"1.234,56";;Café
;;;;
`

type countingObserver struct {
	mu    sync.Mutex
	files []string
}

func (o *countingObserver) FileProcessed(res *FileResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files = append(o.files, res.File)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	reg, err := profile.Default()
	if err != nil {
		t.Fatalf("profile.Default: %v", err)
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	r, err := New(reg, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func byCode(products []*catalog.Product) map[string]*catalog.Product {
	m := make(map[string]*catalog.Product, len(products))
	for _, p := range products {
		m[p.Code] = p
	}
	return m
}

func TestProcessFile_CategoryRows(t *testing.T) {
	path := writeFile(t, t.TempDir(), "PVP BSH.csv", bshCSV)
	res := newRunner(t, Options{}).ProcessFile(context.Background(), path)
	if res.Err != nil {
		t.Fatalf("ProcessFile: %v", res.Err)
	}
	if res.Provider != "BSH" || res.HeaderRow != 1 {
		t.Errorf("provider/header = %s/%d", res.Provider, res.HeaderRow)
	}

	want := catalog.Summary{
		TotalRows:           8,
		SkippedRows:         3,
		DuplicateCodes:      1,
		CoercionFailures:    1,
		DuplicatePairsFound: 1,
	}
	if res.Summary != want {
		t.Errorf("summary = %+v, want %+v", res.Summary, want)
	}
	if len(res.Products) != 3 {
		t.Fatalf("products = %d, want 3", len(res.Products))
	}

	products := byCode(res.Products)
	first := products["3TS383BC"]
	if first.Category != "LAVADORAS" || first.CategoryInferred {
		t.Errorf("first category = %q inferred=%v", first.Category, first.CategoryInferred)
	}
	if !first.SalePrice.Decimal.Equal(decimal.RequireFromString("519.35")) {
		t.Errorf("backfilled sale = %s, want 519.35", first.SalePrice.Decimal)
	}
	if !first.HasFlag(catalog.FlagPossibleDuplicate) || products["3TS383BD"].DuplicateOf != "3TS383BC" {
		t.Error("identical lavadoras should be flagged as duplicates")
	}

	horno := products["3HB5358N0"]
	if horno.Category != "HORNOS" || horno.Name != `Horno multifunción (BALAY) 71 L 3400W "A"` {
		t.Errorf("horno = %+v", horno)
	}
	if !horno.HasFlag(catalog.FlagCoercionFailed) || !horno.HasFlag(catalog.FlagMissingPrice) {
		t.Errorf("horno flags = %v", horno.Flags)
	}
	if horno.Attributes[catalog.AttrPower] != "3400W" || horno.Attributes[catalog.AttrEnergyClass] != "A" {
		t.Errorf("horno attributes = %v", horno.Attributes)
	}
	if horno.NormalizedName != `Horno multifunción 71 L 3400W "A"` {
		t.Errorf("normalized = %q", horno.NormalizedName)
	}
}

func TestProcessFile_ColumnCategories(t *testing.T) {
	path := writeFile(t, t.TempDir(), "PVP MIELECTRO.csv", mielectroCSV)
	res := newRunner(t, Options{}).ProcessFile(context.Background(), path)
	if res.Err != nil {
		t.Fatalf("ProcessFile: %v", res.Err)
	}
	if res.Summary.TotalRows != 4 || res.Summary.SkippedRows != 1 || res.Summary.UncategorizedCount != 1 {
		t.Errorf("summary = %+v", res.Summary)
	}
	products := byCode(res.Products)
	if p := products["M1"]; p.Category != "Frigoríficos" || !p.CategoryInferred {
		t.Errorf("M1 = %q inferred=%v", p.Category, p.CategoryInferred)
	}
	if p := products["M2"]; p.Category != "" || !p.HasFlag(catalog.FlagUncategorized) {
		t.Errorf("M2 = %q flags=%v", p.Category, p.Flags)
	}
	m3 := products["M3"]
	if m3.Category != "Café" || m3.CategoryInferred {
		t.Errorf("M3 = %q inferred=%v", m3.Category, m3.CategoryInferred)
	}
	if m3.CostPrice.Decimal.String() != "1234.56" || m3.SalePrice.Decimal.String() != "1604.93" {
		t.Errorf("M3 prices = %s / %s", m3.CostPrice.Decimal, m3.SalePrice.Decimal)
	}
}

func TestProcessFile_FileErrors(t *testing.T) {
	dir := t.TempDir()
	r := newRunner(t, Options{})

	res := r.ProcessFile(context.Background(), writeFile(t, dir, "tarifa.csv", "a;b\n"))
	if !errors.Is(res.Err, profile.ErrUnknownProvider) {
		t.Errorf("unknown provider: error = %v", res.Err)
	}

	res = r.ProcessFile(context.Background(), writeFile(t, dir, "PVP UFESA.csv", "ARTICULO;TEXTO\nU1;Plancha\n"))
	if !errors.Is(res.Err, sheet.ErrMissingRequiredColumn) {
		t.Errorf("missing column: error = %v", res.Err)
	}
	if res.Provider != "UFESA" || len(res.Products) != 0 || res.Error == "" {
		t.Errorf("result = %+v", res)
	}

	res = r.ProcessFile(context.Background(), filepath.Join(dir, "PVP BSH.csv"))
	if res.Err == nil {
		t.Error("missing file: expected error")
	}
}

func TestProcessSheet_CarriedCategory(t *testing.T) {
	reg, _ := profile.Default()
	p, _ := reg.Get("ALMCE")
	s := &sheet.Sheet{Rows: [][]string{
		{"CÓDIGO", "", "TOTAL"},
		{"LAVADORAS", "", ""},
		{"L001", "Lavadora X", "199,99"},
		{"L002", "Lavadora Y", "249,99"},
		{"", "", ""},
	}}
	res := newRunner(t, Options{}).ProcessSheet(context.Background(), "PVP ALMCE.xlsx", p, s)
	if res.Err != nil {
		t.Fatalf("ProcessSheet: %v", res.Err)
	}
	if len(res.Products) != 2 {
		t.Fatalf("products = %d, want 2", len(res.Products))
	}
	for _, prod := range res.Products {
		if prod.Category != "LAVADORAS" {
			t.Errorf("%s category = %q", prod.Code, prod.Category)
		}
	}
	if !res.Products[0].CostPrice.Decimal.Equal(decimal.RequireFromString("199.99")) {
		t.Errorf("cost = %s", res.Products[0].CostPrice.Decimal)
	}
	if res.Summary.SkippedRows != 1 {
		t.Errorf("skipped = %d, want 1", res.Summary.SkippedRows)
	}
}

func TestProcess_Reader(t *testing.T) {
	r := newRunner(t, Options{})
	res := r.Process(context.Background(), "PVP_MIELECTRO.csv", strings.NewReader(mielectroCSV))
	if res.Err != nil {
		t.Fatalf("Process: %v", res.Err)
	}
	if len(res.Products) != 3 {
		t.Errorf("products = %d, want 3", len(res.Products))
	}
	res = r.Process(context.Background(), "PVP_MIELECTRO.ods", strings.NewReader(""))
	if !errors.Is(res.Err, sheet.ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", res.Err)
	}
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "PVP BSH.csv", bshCSV),
		writeFile(t, dir, "PVP MIELECTRO.csv", mielectroCSV),
		writeFile(t, dir, "tarifa.csv", "a;b\n"),
		writeFile(t, dir, "PVP UFESA.csv", "ARTICULO;TEXTO\n"),
	}
	obs := &countingObserver{}
	rep := newRunner(t, Options{Workers: 2, Observer: obs}).RunBatch(context.Background(), files)

	if rep.RunID == "" {
		t.Error("empty run id")
	}
	if len(rep.Files) != 4 {
		t.Fatalf("files = %d, want 4", len(rep.Files))
	}
	for i, res := range rep.Files {
		if res.File != files[i] {
			t.Errorf("result %d = %s, want %s (input order)", i, res.File, files[i])
		}
	}
	if rep.Failed != 2 || rep.Products != 6 {
		t.Errorf("failed=%d products=%d, want 2/6", rep.Failed, rep.Products)
	}
	if rep.Totals.TotalRows != 12 || rep.Totals.DuplicatePairsFound != 1 {
		t.Errorf("totals = %+v", rep.Totals)
	}
	if len(obs.files) != 4 {
		t.Errorf("observer saw %d files, want 4", len(obs.files))
	}

	var buf bytes.Buffer
	if err := rep.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	for _, want := range []string{rep.RunID, "ERROR", "unknown provider", "BSH", "Files: 4 (failed 2)"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

// Run with -race: workers share the accent folding used by header scoring
// and keyword inference.
func TestRunBatch_ParallelFilesMatchSingleRuns(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for i := 0; i < 8; i++ {
		if i%2 == 0 {
			files = append(files, writeFile(t, dir, fmt.Sprintf("PVP BSH %d.csv", i), bshCSV))
		} else {
			files = append(files, writeFile(t, dir, fmt.Sprintf("PVP MIELECTRO %d.csv", i), mielectroCSV))
		}
	}

	r := newRunner(t, Options{Workers: 4})
	want := map[string]*FileResult{
		"BSH":       r.ProcessFile(context.Background(), files[0]),
		"MIELECTRO": r.ProcessFile(context.Background(), files[1]),
	}

	rep := r.RunBatch(context.Background(), files)
	if rep.Failed != 0 {
		t.Fatalf("failed = %d, want 0", rep.Failed)
	}
	for _, res := range rep.Files {
		ref := want[res.Provider]
		if ref == nil {
			t.Fatalf("%s: provider %q", res.File, res.Provider)
		}
		if res.HeaderRow != ref.HeaderRow || res.Summary != ref.Summary {
			t.Errorf("%s: header=%d summary=%+v, want header=%d summary=%+v",
				res.File, res.HeaderRow, res.Summary, ref.HeaderRow, ref.Summary)
		}
		got := byCode(res.Products)
		for _, p := range ref.Products {
			q := got[p.Code]
			if q == nil || q.Category != p.Category || q.NormalizedName != p.NormalizedName {
				t.Errorf("%s: product %s = %+v, want category %q", res.File, p.Code, q, p.Category)
			}
		}
	}
}

func TestRunBatch_Cancelled(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "PVP BSH.csv", bshCSV),
		writeFile(t, dir, "PVP MIELECTRO.csv", mielectroCSV),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := newRunner(t, Options{Workers: 1}).RunBatch(ctx, files)
	if rep.Failed != 2 {
		t.Errorf("failed = %d, want 2", rep.Failed)
	}
	for _, res := range rep.Files {
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("%s error = %v, want context.Canceled", res.File, res.Err)
		}
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	reg, _ := profile.Default()
	if _, err := New(reg, Options{CategoryThreshold: 3}); err == nil {
		t.Error("category threshold 3: expected error")
	}
	if _, err := New(reg, Options{DuplicateThreshold: -1}); err == nil {
		t.Error("duplicate threshold -1: expected error")
	}
}
