package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mistakeknot/tapcall/internal/tenant"
)

// AddTenant appends a café to the tenants file, creating the file if needed.
// An empty id gets a generated one. Adding an id that already exists fails.
func AddTenant(path, id, name string) (tenant.Tenant, error) {
	path = strings.TrimSpace(path)
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if path == "" {
		return tenant.Tenant{}, fmt.Errorf("tenants file path required")
	}
	if name == "" {
		return tenant.Tenant{}, fmt.Errorf("tenant name required")
	}
	if id == "" {
		id = generateID()
	}

	f, err := tenant.LoadFile(path)
	if err != nil {
		return tenant.Tenant{}, err
	}
	if f.Tenants == nil {
		f.Tenants = make(map[string]tenant.Entry)
	}
	if _, ok := f.Tenants[id]; ok {
		return tenant.Tenant{}, fmt.Errorf("tenant %q already exists in %s", id, path)
	}
	f.Tenants[id] = tenant.Entry{Name: name}
	if err := tenant.SaveFile(path, f); err != nil {
		return tenant.Tenant{}, err
	}
	return tenant.Tenant{ID: id, Name: name}, nil
}

func generateID() string {
	return "cafe-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}
