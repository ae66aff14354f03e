package profile

import (
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
)

// ErrUnknownProvider is returned when no profile detector matches a file name.
var ErrUnknownProvider = errors.New("unknown provider")

//go:embed profiles.yaml
var defaultProfiles []byte

// Registry is an ordered, immutable set of compiled profiles.
// Detection walks profiles in registration order; the first match wins.
type Registry struct {
	profiles []*Profile
	byID     map[string]*Profile
}

// NewRegistry compiles profiles in order. IDs must be unique.
func NewRegistry(profiles []*Profile) (*Registry, error) {
	r := &Registry{
		profiles: make([]*Profile, 0, len(profiles)),
		byID:     make(map[string]*Profile, len(profiles)),
	}
	for _, p := range profiles {
		if err := p.compile(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("profile %s: duplicate id", p.ID)
		}
		r.profiles = append(r.profiles, p)
		r.byID[p.ID] = p
	}
	return r, nil
}

// Default returns the registry built from the embedded supplier table.
func Default() (*Registry, error) {
	profiles, err := Parse(defaultProfiles)
	if err != nil {
		return nil, fmt.Errorf("embedded profiles: %w", err)
	}
	return NewRegistry(profiles)
}

// Load builds a registry from path, or from the embedded table when path is
// empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	profiles, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewRegistry(profiles)
}

// Detect returns the first profile whose detector matches the base name of
// filename.
func (r *Registry) Detect(filename string) (*Profile, error) {
	base := filepath.Base(filename)
	for _, p := range r.profiles {
		if p.Matches(base) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, base)
}

// Get returns a profile by ID.
func (r *Registry) Get(id string) (*Profile, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Info is the public summary of a profile.
type Info struct {
	ID            string   `json:"id"`
	Description   string   `json:"description,omitempty"`
	Detector      string   `json:"detector"`
	CategoryIsRow bool     `json:"category_is_row"`
	DefaultMargin float64  `json:"default_margin"`
	Required      []string `json:"required"`
}

// List returns profile summaries in detection order.
func (r *Registry) List() []Info {
	infos := make([]Info, 0, len(r.profiles))
	for _, p := range r.profiles {
		infos = append(infos, Info{
			ID:            p.ID,
			Description:   p.Description,
			Detector:      p.Detector,
			CategoryIsRow: p.CategoryIsRow,
			DefaultMargin: p.DefaultMargin,
			Required:      append([]string(nil), p.Required...),
		})
	}
	return infos
}

// Count returns the number of profiles.
func (r *Registry) Count() int {
	return len(r.profiles)
}
