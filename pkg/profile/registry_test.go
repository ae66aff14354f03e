package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDefaultRegistry(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if reg.Count() != 10 {
		t.Errorf("Count = %d, want 10", reg.Count())
	}
	infos := reg.List()
	if infos[0].ID != "ALMCE" {
		t.Errorf("first profile = %q, want ALMCE", infos[0].ID)
	}
	p, ok := reg.Get("MIELECTRO")
	if !ok {
		t.Fatal("MIELECTRO not found")
	}
	if p.Columns[FieldCost].Header != "IMPORTE BRUTO" {
		t.Errorf("MIELECTRO cost header = %q", p.Columns[FieldCost].Header)
	}
	if !p.Margin().Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("margin = %s, want 0.3", p.Margin())
	}
	almce, _ := reg.Get("ALMCE")
	if almce.Columns[FieldName].Index == nil || *almce.Columns[FieldName].Index != 1 {
		t.Error("ALMCE name column should fall back to index 1")
	}
}

func TestDetect(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	tests := []struct {
		file string
		want string
	}{
		{"PVP ALMCE.xlsx", "ALMCE"},
		{"/data/inbox/pvp almce 2024.xlsx", "ALMCE"},
		{"PVP_BSH.csv", "BSH"},
		{"PVPBSH marzo.xlsx", "BSH"},
		{"PVP CECOTEC.xlsx", "CECOTEC"},
		{"PVP BECKEN - TEGALUXE.xlsx", "BECKEN"},
		{"PVP EAS-JOHNSON.xlsx", "EAS-JOHNSON"},
		{"pvp vitrokitchen.csv", "VITROKITCHEN"},
	}
	for _, tt := range tests {
		p, err := reg.Detect(tt.file)
		if err != nil {
			t.Errorf("Detect(%q): %v", tt.file, err)
			continue
		}
		if p.ID != tt.want {
			t.Errorf("Detect(%q) = %s, want %s", tt.file, p.ID, tt.want)
		}
	}
}

func TestDetect_Unknown(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	for _, file := range []string{"tarifa.xlsx", "ALMCE.xlsx", ""} {
		p, err := reg.Detect(file)
		if !errors.Is(err, ErrUnknownProvider) {
			t.Errorf("Detect(%q) error = %v, want ErrUnknownProvider", file, err)
		}
		if p != nil {
			t.Errorf("Detect(%q) = %s, want nil", file, p.ID)
		}
	}
}

func TestDetect_RegistryOrder(t *testing.T) {
	reg, err := NewRegistry([]*Profile{
		{ID: "first", Detector: `lista`, Columns: nameAndCode()},
		{ID: "second", Detector: `lista\s+bsh`, Columns: nameAndCode()},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	p, err := reg.Detect("LISTA BSH.csv")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if p.ID != "first" {
		t.Errorf("Detect = %s, want first (registry order)", p.ID)
	}
}

func TestNewRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		profile *Profile
	}{
		{"missing id", &Profile{Detector: "x", Columns: nameAndCode()}},
		{"missing detector", &Profile{ID: "x", Columns: nameAndCode()}},
		{"bad regex", &Profile{ID: "x", Detector: "(", Columns: nameAndCode()}},
		{"unknown field", &Profile{ID: "x", Detector: "x", Columns: map[string]Column{"ean": {Header: "EAN"}}}},
		{"required without column", &Profile{ID: "x", Detector: "x", Columns: map[string]Column{FieldCode: {Header: "COD"}}}},
		{"negative margin", &Profile{ID: "x", Detector: "x", Columns: nameAndCode(), DefaultMargin: -0.1}},
	}
	for _, tt := range tests {
		if _, err := NewRegistry([]*Profile{tt.profile}); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	_, err := NewRegistry([]*Profile{
		{ID: "dup", Detector: "a", Columns: nameAndCode()},
		{ID: "dup", Detector: "b", Columns: nameAndCode()},
	})
	if err == nil {
		t.Error("duplicate id: expected error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	os.WriteFile(path, []byte(`profiles:
  - id: ACME
    detector: 'acme'
    header_row: 2
    default_margin: 0.25
    delimiter: ";"
    encoding: windows-1252
    columns:
      code: {header: REF}
      name: {header: ARTICULO}
      cost: {header: NETO}
`), 0o644)

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, err := reg.Detect("ACME-2024.csv")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if p.HeaderRow != 2 || p.Delimiter != ";" || p.Encoding != "windows-1252" {
		t.Errorf("profile = %+v", p)
	}
	if len(p.Required) != 2 {
		t.Errorf("Required = %v, want default [code name]", p.Required)
	}
	if !p.Margin().Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("margin = %s", p.Margin())
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "empty.yaml")
	os.WriteFile(path, []byte("profiles: []\n"), 0o644)
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for empty profile list")
	}
}

func nameAndCode() map[string]Column {
	return map[string]Column{
		FieldCode: {Header: "CODIGO"},
		FieldName: {Header: "DESCRIPCION"},
	}
}
