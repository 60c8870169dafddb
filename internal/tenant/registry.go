// Package tenant resolves the café a request or subscriber belongs to.
package tenant

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mistakeknot/tapcall/internal/core"
)

type Tenant struct {
	ID   string
	Name string
}

// File is the on-disk tenants list.
type File struct {
	Tenants map[string]Entry `yaml:"tenants"`
}

type Entry struct {
	Name string `yaml:"name"`
}

// Registry is read-only after construction and safe for concurrent use.
type Registry struct {
	enabled bool
	tenants map[string]Tenant
}

// Disabled returns the single-tenant registry: every tenant id resolves to "".
func Disabled() *Registry {
	return &Registry{tenants: make(map[string]Tenant)}
}

func NewRegistry(enabled bool, tenants ...Tenant) (*Registry, error) {
	r := &Registry{enabled: enabled, tenants: make(map[string]Tenant, len(tenants))}
	for _, t := range tenants {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return nil, fmt.Errorf("tenant with empty id")
		}
		if _, ok := r.tenants[id]; ok {
			return nil, fmt.Errorf("tenant %q listed twice", id)
		}
		t.ID = id
		if t.Name == "" {
			t.Name = id
		}
		r.tenants[id] = t
	}
	return r, nil
}

// LoadRegistry merges tenants from path (if set) with inline tenants.
// A missing file is treated as empty.
func LoadRegistry(enabled bool, path string, inline map[string]string) (*Registry, error) {
	var tenants []Tenant
	if strings.TrimSpace(path) != "" {
		f, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for id, e := range f.Tenants {
			tenants = append(tenants, Tenant{ID: id, Name: e.Name})
		}
	}
	for id, name := range inline {
		tenants = append(tenants, Tenant{ID: id, Name: name})
	}
	return NewRegistry(enabled, tenants...)
}

func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("read tenants file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse tenants file: %w", err)
	}
	return f, nil
}

func SaveFile(path string, f File) error {
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshal tenants file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write tenants file: %w", err)
	}
	return nil
}

func (r *Registry) Enabled() bool {
	return r != nil && r.enabled
}

func (r *Registry) Lookup(id string) (Tenant, bool) {
	if r == nil {
		return Tenant{}, false
	}
	t, ok := r.tenants[strings.TrimSpace(id)]
	return t, ok
}

// Resolve maps a caller-supplied tenant id to the scope used for storage and
// broadcast. With tenancy disabled the id is ignored.
func (r *Registry) Resolve(id string) (string, error) {
	if !r.Enabled() {
		return "", nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("tenant_id required: %w", core.ErrInvalidTenant)
	}
	if _, ok := r.tenants[id]; !ok {
		return "", fmt.Errorf("unknown tenant %q: %w", id, core.ErrInvalidTenant)
	}
	return id, nil
}

func (r *Registry) List() []Tenant {
	if r == nil {
		return nil
	}
	out := make([]Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
