// Package classify walks the body rows of a supplier sheet and tells category
// marker rows apart from product rows, carrying the current category forward.
package classify

import (
	"github.com/hazyhaar/supplier-ingest/pkg/normalize"
	"github.com/hazyhaar/supplier-ingest/pkg/sheet"
)

// State is the classifier state: NoCategory or InCategory(label).
type State struct {
	label string
	in    bool
}

// NoCategory is the initial state.
func NoCategory() State { return State{} }

// InCategory returns the state carrying label.
func InCategory(label string) State { return State{label: label, in: true} }

// Category returns the carried label, if any.
func (s State) Category() (string, bool) { return s.label, s.in }

func (s State) String() string {
	if !s.in {
		return "NoCategory"
	}
	return "InCategory(" + s.label + ")"
}

// Classified is either a CategoryMarker or a ProductCandidate.
type Classified interface {
	classified()
}

// CategoryMarker is a standalone row naming the category of the rows below.
type CategoryMarker struct {
	Label string
	Line  int
}

// ProductCandidate holds the raw, trimmed cells of a product row.
// Category is empty when the row carries none.
type ProductCandidate struct {
	Code     string
	Name     string
	Cost     string
	Sale     string
	Category string
	Line     int
}

func (CategoryMarker) classified()   {}
func (ProductCandidate) classified() {}

// Classifier reads rows through a bound column layout.
type Classifier struct {
	layout        sheet.Layout
	categoryIsRow bool
}

// New returns a classifier for the layout. categoryIsRow selects the
// category-row layout where categories are standalone rows.
func New(layout sheet.Layout, categoryIsRow bool) Classifier {
	return Classifier{layout: layout, categoryIsRow: categoryIsRow}
}

// Step classifies one row from state s. A nil Classified means the row was
// skipped; the state is then unchanged.
func (c Classifier) Step(s State, row sheet.Row) (State, Classified) {
	l := c.layout
	code := l.Get(row.Cells, l.Code)
	if normalize.IsPlaceholder(code) {
		code = ""
	}
	name := l.Get(row.Cells, l.Name)

	if !c.categoryIsRow {
		if row.Blank() {
			return s, nil
		}
		return s, ProductCandidate{
			Code:     code,
			Name:     name,
			Cost:     l.Get(row.Cells, l.Cost),
			Sale:     l.Get(row.Cells, l.Sale),
			Category: l.Get(row.Cells, l.Category),
			Line:     row.Line,
		}
	}

	switch {
	case code != "" && name == "":
		return InCategory(code), CategoryMarker{Label: code, Line: row.Line}
	case code != "" && name != "":
		label, _ := s.Category()
		return s, ProductCandidate{
			Code:     code,
			Name:     name,
			Cost:     l.Get(row.Cells, l.Cost),
			Sale:     l.Get(row.Cells, l.Sale),
			Category: label,
			Line:     row.Line,
		}
	default:
		return s, nil
	}
}

// Classify folds Step over rows in order, starting from NoCategory.
// It returns the classified rows and the number of skipped rows.
func (c Classifier) Classify(rows []sheet.Row) ([]Classified, int) {
	state := NoCategory()
	out := make([]Classified, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		var cr Classified
		state, cr = c.Step(state, row)
		if cr == nil {
			skipped++
			continue
		}
		out = append(out, cr)
	}
	return out, skipped
}
