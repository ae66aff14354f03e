package sheet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/supplier-ingest/pkg/normalize"
	"github.com/hazyhaar/supplier-ingest/pkg/profile"
)

const (
	// HeaderScanRows is how many leading rows ResolveHeader inspects.
	HeaderScanRows = 5
	// HeaderThreshold is the minimum number of keyword cells for a header row.
	HeaderThreshold = 2
)

// Folded header keywords. A cell scores when it contains any of them.
var headerKeywords = []string{
	"codigo", "cod.", "code", "ref",
	"descripcion", "description", "nombre", "name",
	"precio", "price", "pvp", "p.v.p", "total", "importe", "coste",
}

// ErrMissingRequiredColumn is wrapped by MissingColumnError.
var ErrMissingRequiredColumn = errors.New("missing required column")

// MissingColumnError names the required field that no header cell matched.
type MissingColumnError struct {
	Profile    string
	Field      string
	Candidates []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("profile %s: %s: field %q (tried %s)",
		e.Profile, ErrMissingRequiredColumn, e.Field, strings.Join(e.Candidates, ", "))
}

func (e *MissingColumnError) Unwrap() error {
	return ErrMissingRequiredColumn
}

// ResolveHeader returns the index of the first of the leading HeaderScanRows
// rows with at least HeaderThreshold keyword cells. When none qualifies it
// returns fallback, or 0 if fallback is out of range.
func ResolveHeader(rows [][]string, fallback int) int {
	for i := 0; i < len(rows) && i < HeaderScanRows; i++ {
		if headerScore(rows[i]) >= HeaderThreshold {
			return i
		}
	}
	if fallback < 0 || fallback >= len(rows) {
		return 0
	}
	return fallback
}

func headerScore(row []string) int {
	score := 0
	for _, cell := range row {
		folded := normalize.Fold(cell)
		if folded == "" {
			continue
		}
		for _, kw := range headerKeywords {
			if strings.Contains(folded, kw) {
				score++
				break
			}
		}
	}
	return score
}

// Unbound marks a canonical field with no column in the sheet.
const Unbound = -1

// Layout holds the column slot of each canonical field.
type Layout struct {
	Code     int
	Name     int
	Cost     int
	Sale     int
	Category int
}

func (l *Layout) slot(field string) *int {
	switch field {
	case profile.FieldCode:
		return &l.Code
	case profile.FieldName:
		return &l.Name
	case profile.FieldCost:
		return &l.Cost
	case profile.FieldSale:
		return &l.Sale
	case profile.FieldCategory:
		return &l.Category
	}
	return nil
}

// Get returns the trimmed cell at slot, or "" when unbound or past the row end.
func (l Layout) Get(cells []string, slot int) string {
	if slot < 0 || slot >= len(cells) {
		return ""
	}
	return normalize.Text(cells[slot])
}

// Bind resolves every profile column against header once.
// Exact header matches (header, then alternates) are tried for all fields
// first, then prefix matches, then the positional index. A column is bound
// to at most one field.
func Bind(header []string, p *profile.Profile) (Layout, error) {
	l := Layout{Code: Unbound, Name: Unbound, Cost: Unbound, Sale: Unbound, Category: Unbound}

	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = normalize.HeaderKey(h)
	}
	taken := make(map[int]bool)

	match := func(field string, exact bool) {
		col, ok := p.Columns[field]
		if !ok || *l.slot(field) != Unbound {
			return
		}
		for _, cand := range candidates(col) {
			want := normalize.HeaderKey(cand)
			if want == "" {
				continue
			}
			for i, key := range keys {
				if taken[i] || key == "" {
					continue
				}
				if key == want || (!exact && strings.HasPrefix(key, want)) {
					*l.slot(field) = i
					taken[i] = true
					return
				}
			}
		}
	}

	for _, field := range profile.Fields {
		match(field, true)
	}
	for _, field := range profile.Fields {
		match(field, false)
	}
	for _, field := range profile.Fields {
		col, ok := p.Columns[field]
		if !ok || col.Index == nil || *l.slot(field) != Unbound || taken[*col.Index] {
			continue
		}
		*l.slot(field) = *col.Index
		taken[*col.Index] = true
	}

	for _, field := range p.Required {
		if *l.slot(field) == Unbound {
			return l, &MissingColumnError{Profile: p.ID, Field: field, Candidates: candidates(p.Columns[field])}
		}
	}
	return l, nil
}

func candidates(c profile.Column) []string {
	out := make([]string, 0, 1+len(c.Alternates))
	if c.Header != "" {
		out = append(out, c.Header)
	}
	return append(out, c.Alternates...)
}
