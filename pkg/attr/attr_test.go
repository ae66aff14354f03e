package attr

import (
	"testing"

	"github.com/hazyhaar/supplier-ingest/pkg/catalog"
)

func TestApply_Example(t *testing.T) {
	p := &catalog.Product{Name: "Lavadora (BALAY) 60x55 9KG 1400RPM"}
	Default().Apply(p)

	want := map[string]string{
		catalog.AttrBrand:      "BALAY",
		catalog.AttrDimensions: "60x55",
		catalog.AttrCapacity:   "9KG",
		catalog.AttrRPM:        "1400RPM",
	}
	for k, v := range want {
		if p.Attributes[k] != v {
			t.Errorf("%s = %q, want %q", k, p.Attributes[k], v)
		}
	}
	if len(p.Attributes) != len(want) {
		t.Errorf("attributes = %v, want exactly %v", p.Attributes, want)
	}
	if p.NormalizedName != "Lavadora 60x55 9KG 1400RPM" {
		t.Errorf("NormalizedName = %q", p.NormalizedName)
	}
}

func TestApply_TrimsBrand(t *testing.T) {
	p := &catalog.Product{Name: "Lavadora ( BALAY ) 8KG"}
	Default().Apply(p)
	if got := p.Attributes[catalog.AttrBrand]; got != "BALAY" {
		t.Errorf("brand = %q, want %q", got, "BALAY")
	}
	if p.NormalizedName != "Lavadora 8KG" {
		t.Errorf("NormalizedName = %q", p.NormalizedName)
	}
}

func TestMatch(t *testing.T) {
	e := Default()
	tests := []struct {
		name string
		attr string
		want string
	}{
		{"Frigorífico combi 185x60x65 \"A\"", catalog.AttrDimensions, "185x60x65"},
		{"Frigorífico combi 185x60x65 \"A\"", catalog.AttrEnergyClass, "A"},
		{"Horno multifunción 71 L 3400W", catalog.AttrCapacity, "71 L"},
		{"Horno multifunción 71 L 3400W", catalog.AttrPower, "3400W"},
		{"Placa inducción 7,4 kW", catalog.AttrPower, "7,4 kW"},
		{"Secadora 8 kg \"A+++\"", catalog.AttrEnergyClass, "A+++"},
		{"Lavadora 1200 rpm", catalog.AttrRPM, "1200 rpm"},
		{"Campana 59.8 x 50", catalog.AttrDimensions, "59.8 x 50"},
	}
	for _, tt := range tests {
		var got string
		for _, m := range e.Match(tt.name) {
			if m.Name == tt.attr {
				got = m.Value
			}
		}
		if got != tt.want {
			t.Errorf("Match(%q)[%s] = %q, want %q", tt.name, tt.attr, got, tt.want)
		}
	}
}

func TestMatch_NoFalsePositives(t *testing.T) {
	e := Default()
	for _, name := range []string{"Lavadora LG F4WV5012S0W", "Robot aspirador Conga", "TV 55 pulgadas"} {
		for _, m := range e.Match(name) {
			t.Errorf("Match(%q) unexpected %s=%q", name, m.Name, m.Value)
		}
	}
}

func TestApply_NoBrandKeepsName(t *testing.T) {
	p := &catalog.Product{Name: "Microondas  20L  700W"}
	Default().Apply(p)
	if p.NormalizedName != "Microondas 20L 700W" {
		t.Errorf("NormalizedName = %q", p.NormalizedName)
	}
	if _, ok := p.Attributes[catalog.AttrBrand]; ok {
		t.Error("unexpected brand")
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		specs []PatternSpec
	}{
		{"empty", nil},
		{"no name", []PatternSpec{{Regex: `\d+`}}},
		{"bad regex", []PatternSpec{{Name: "x", Regex: `(`}}},
		{"bad group", []PatternSpec{{Name: "x", Regex: `\d+`, Group: 1}}},
	}
	for _, tt := range tests {
		if _, err := New(tt.specs); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestNew_Custom(t *testing.T) {
	e, err := New([]PatternSpec{{Name: "ean", Regex: `\b(\d{13})\b`, Group: 1}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := &catalog.Product{Name: "Horno 8421152131234"}
	e.Apply(p)
	if p.Attributes["ean"] != "8421152131234" {
		t.Errorf("ean = %q", p.Attributes["ean"])
	}
	if e.String() != "ean" {
		t.Errorf("String() = %q", e.String())
	}
}
