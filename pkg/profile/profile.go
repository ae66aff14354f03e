// Package profile describes how each supplier's price list maps onto the
// canonical product fields, and detects which supplier a file belongs to.
package profile

import (
	"fmt"
	"os"
	"regexp"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Canonical fields a profile column can bind to.
const (
	FieldCode     = "code"
	FieldName     = "name"
	FieldCost     = "cost"
	FieldSale     = "sale"
	FieldCategory = "category"
)

// Fields lists the canonical fields in binding order.
var Fields = []string{FieldCode, FieldName, FieldCost, FieldSale, FieldCategory}

// Column describes where a canonical field lives in a supplier sheet.
// Index is the 0-based positional fallback for unnamed columns.
type Column struct {
	Header     string   `yaml:"header" json:"header"`
	Alternates []string `yaml:"alternates,omitempty" json:"alternates,omitempty"`
	Index      *int     `yaml:"index,omitempty" json:"index,omitempty"`
}

// Profile is the typed layout description of one supplier.
type Profile struct {
	ID            string            `yaml:"id" json:"id"`
	Description   string            `yaml:"description" json:"description,omitempty"`
	Detector      string            `yaml:"detector" json:"detector"`
	Columns       map[string]Column `yaml:"columns" json:"columns"`
	Required      []string          `yaml:"required" json:"required"`
	HeaderRow     int               `yaml:"header_row" json:"header_row"`
	CategoryIsRow bool              `yaml:"category_is_row" json:"category_is_row"`
	DefaultMargin float64           `yaml:"default_margin" json:"default_margin"`
	Sheet         string            `yaml:"sheet" json:"sheet,omitempty"`
	Delimiter     string            `yaml:"delimiter" json:"delimiter,omitempty"`
	Encoding      string            `yaml:"encoding" json:"encoding,omitempty"`

	re     *regexp.Regexp
	margin decimal.Decimal
}

// File is the on-disk shape of a profiles.yaml.
type File struct {
	Profiles []*Profile `yaml:"profiles"`
}

// Margin returns the default margin as a decimal fraction.
func (p *Profile) Margin() decimal.Decimal {
	return p.margin
}

// Matches reports whether the profile detector matches name.
func (p *Profile) Matches(name string) bool {
	return p.re != nil && p.re.MatchString(name)
}

// compile validates p, applies defaults and compiles its detector.
func (p *Profile) compile() error {
	if p.ID == "" {
		return fmt.Errorf("profile: missing id")
	}
	if p.Detector == "" {
		return fmt.Errorf("profile %s: missing detector", p.ID)
	}
	re, err := regexp.Compile("(?i)" + p.Detector)
	if err != nil {
		return fmt.Errorf("profile %s: detector: %w", p.ID, err)
	}
	p.re = re

	if len(p.Required) == 0 {
		p.Required = []string{FieldCode, FieldName}
	}
	for field, col := range p.Columns {
		if !isField(field) {
			return fmt.Errorf("profile %s: unknown column field %q", p.ID, field)
		}
		if col.Index != nil && *col.Index < 0 {
			return fmt.Errorf("profile %s: column %s: negative index", p.ID, field)
		}
	}
	for _, field := range p.Required {
		if !isField(field) {
			return fmt.Errorf("profile %s: unknown required field %q", p.ID, field)
		}
		if _, ok := p.Columns[field]; !ok {
			return fmt.Errorf("profile %s: required field %q has no column", p.ID, field)
		}
	}
	if p.HeaderRow < 0 {
		return fmt.Errorf("profile %s: negative header_row", p.ID)
	}
	if p.DefaultMargin < 0 {
		return fmt.Errorf("profile %s: negative default_margin", p.ID)
	}
	p.margin = decimal.NewFromFloat(p.DefaultMargin)
	return nil
}

// LoadFile reads a profiles.yaml file.
func LoadFile(path string) ([]*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles %s: %w", path, err)
	}
	profiles, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profiles %s: %w", path, err)
	}
	return profiles, nil
}

// Parse decodes a profiles document.
func Parse(data []byte) ([]*Profile, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if len(f.Profiles) == 0 {
		return nil, fmt.Errorf("no profiles defined")
	}
	return f.Profiles, nil
}

func isField(s string) bool {
	for _, f := range Fields {
		if f == s {
			return true
		}
	}
	return false
}
