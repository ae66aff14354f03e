// Package export writes canonical product records as CSV, JSON or a SQLite
// products table.
package export

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
	"github.com/hazyhaar/supplier-ingest/pkg/catalog"
	"github.com/hazyhaar/supplier-ingest/pkg/pipeline"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Format selects the output encoding.
type Format string

const (
	CSV    Format = "csv"
	JSON   Format = "json"
	SQLite Format = "sqlite"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, JSON, SQLite:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Ext is the file extension used for f.
func (f Format) Ext() string {
	if f == SQLite {
		return ".db"
	}
	return "." + string(f)
}

// Columns is the flat column order shared by the CSV and SQLite writers.
var Columns = []string{
	"code", "name", "normalized_name", "category", "category_inferred", "category_score",
	"cost_price", "sale_price",
	catalog.AttrBrand, catalog.AttrDimensions, catalog.AttrCapacity,
	catalog.AttrPower, catalog.AttrRPM, catalog.AttrEnergyClass,
	"quality_flags", "duplicate_of", "provider", "source_line",
}

// outputName is the slug of the source base name, falling back to the
// provider when the name has nothing to keep.
func outputName(res *pipeline.FileResult) string {
	base := filepath.Base(res.File)
	if name := slug.Make(strings.TrimSuffix(base, filepath.Ext(base))); name != "" {
		return name
	}
	if res.Provider != "" {
		return slug.Make(res.Provider)
	}
	return "products"
}

// WriteResult writes the products of res into dir, naming the output after
// the slug of the source file name, and returns the output path.
func WriteResult(dir string, res *pipeline.FileResult, f Format) (string, error) {
	return NewExporter(dir, f).Write(res)
}

// Exporter writes the results of one run into a directory. Sources whose
// names slug to the same output get -2, -3... suffixes instead of
// overwriting each other.
type Exporter struct {
	dir    string
	format Format
	used   map[string]bool
}

// NewExporter returns an Exporter writing f files into dir.
func NewExporter(dir string, f Format) *Exporter {
	return &Exporter{dir: dir, format: f, used: make(map[string]bool)}
}

func (e *Exporter) claim(res *pipeline.FileResult) string {
	base := outputName(res)
	name := base
	for n := 2; e.used[name]; n++ {
		name = fmt.Sprintf("%s-%d", base, n)
	}
	e.used[name] = true
	return name
}

// Write exports res and returns the output path.
func (e *Exporter) Write(res *pipeline.FileResult) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(e.dir, e.claim(res)+e.format.Ext())

	if e.format == SQLite {
		return out, WriteSQLite(out, res.Products)
	}

	file, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", out, err)
	}
	switch e.format {
	case CSV:
		err = WriteCSV(file, res.Products)
	case JSON:
		err = WriteJSON(file, res)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownFormat, e.format)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	return out, nil
}

// WriteCSV writes a header line then one line per product.
func WriteCSV(w io.Writer, products []*catalog.Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, p := range products {
		if err := cw.Write(row(p)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the whole file result, summary and duplicates included.
func WriteJSON(w io.Writer, res *pipeline.FileResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func row(p *catalog.Product) []string {
	flags := make([]string, len(p.Flags))
	for i, f := range p.Flags {
		flags[i] = string(f)
	}
	return []string{
		p.Code,
		p.Name,
		p.NormalizedName,
		p.Category,
		strconv.FormatBool(p.CategoryInferred),
		strconv.FormatFloat(p.CategoryScore, 'f', 4, 64),
		price(p.CostPrice),
		price(p.SalePrice),
		p.Attributes[catalog.AttrBrand],
		p.Attributes[catalog.AttrDimensions],
		p.Attributes[catalog.AttrCapacity],
		p.Attributes[catalog.AttrPower],
		p.Attributes[catalog.AttrRPM],
		p.Attributes[catalog.AttrEnergyClass],
		strings.Join(flags, "|"),
		p.DuplicateOf,
		p.Provider,
		strconv.Itoa(p.SourceLine),
	}
}

func price(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

// WriteSQLite replaces path with a database holding one products table.
func WriteSQLite(path string, products []*catalog.Product) error {
	_ = os.Remove(path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	colTypes := map[string]string{
		"category_inferred": "INTEGER", "source_line": "INTEGER",
		"category_score": "REAL", "cost_price": "REAL", "sale_price": "REAL",
	}
	defs := make([]string, len(Columns))
	quoted := make([]string, len(Columns))
	for i, c := range Columns {
		t := colTypes[c]
		if t == "" {
			t = "TEXT"
		}
		defs[i] = fmt.Sprintf("%q %s", c, t)
		quoted[i] = fmt.Sprintf("%q", c)
	}
	if _, err := db.Exec(`CREATE TABLE "products" (` + strings.Join(defs, ",") + `)`); err != nil {
		return fmt.Errorf("create products table: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ph := strings.TrimRight(strings.Repeat("?,", len(Columns)), ",")
	stmt, err := tx.Prepare(`INSERT INTO "products" (` + strings.Join(quoted, ",") + `) VALUES (` + ph + `)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range products {
		if _, err := stmt.Exec(sqliteValues(p)...); err != nil {
			return fmt.Errorf("insert %s: %w", p.Code, err)
		}
	}
	return tx.Commit()
}

func sqliteValues(p *catalog.Product) []any {
	text := row(p)
	args := make([]any, len(Columns))
	for i, c := range Columns {
		switch c {
		case "category_inferred":
			args[i] = p.CategoryInferred
		case "category_score":
			args[i] = p.CategoryScore
		case "cost_price":
			args[i] = nullFloat(p.CostPrice)
		case "sale_price":
			args[i] = nullFloat(p.SalePrice)
		case "source_line":
			args[i] = p.SourceLine
		default:
			if text[i] == "" {
				args[i] = nil
			} else {
				args[i] = text[i]
			}
		}
	}
	return args
}

func nullFloat(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}
