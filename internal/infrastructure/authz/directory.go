package authz

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
	"github.com/garyjia/barangay-lifecycle/pkg/utils"
)

// Member is one staff or resident entry in the directory
type Member struct {
	Identity string          `yaml:"identity"`
	Barangay string          `yaml:"barangay"`
	Roles    []workflow.Role `yaml:"roles"`
}

// Directory maps identities to roles and barangay assignments
type Directory struct {
	// ResidentSelfService lets any identity not listed here act as RESIDENT
	ResidentSelfService bool     `yaml:"resident_self_service"`
	Members             []Member `yaml:"members"`
}

// LoadDirectory reads a YAML staff directory from disk
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read staff directory %s: %w", path, err)
	}
	return ParseDirectory(data)
}

// ParseDirectory decodes and validates a YAML staff directory
func ParseDirectory(data []byte) (*Directory, error) {
	var dir Directory
	if err := yaml.Unmarshal(data, &dir); err != nil {
		return nil, fmt.Errorf("failed to parse staff directory: %w", err)
	}
	if err := dir.Validate(); err != nil {
		return nil, err
	}
	return &dir, nil
}

// Validate checks identities are unique and every role is known
func (d *Directory) Validate() error {
	seen := make(map[string]bool, len(d.Members))
	for i, m := range d.Members {
		id := strings.TrimSpace(m.Identity)
		if id == "" {
			return fmt.Errorf("staff directory member %d: identity is required", i)
		}
		if err := utils.ValidateIdentifier("identity", id); err != nil {
			return fmt.Errorf("staff directory member %d: %w", i, err)
		}
		if workflow.Role(id).IsValid() {
			return fmt.Errorf("staff directory: identity %q collides with a role name", id)
		}
		if seen[id] {
			return fmt.Errorf("staff directory: duplicate identity %q", id)
		}
		seen[id] = true

		if b := strings.TrimSpace(m.Barangay); b != "" {
			if err := utils.ValidateIdentifier("barangay", b); err != nil {
				return fmt.Errorf("staff directory %q: %w", id, err)
			}
		}

		if len(m.Roles) == 0 {
			return fmt.Errorf("staff directory %q: at least one role is required", id)
		}
		for _, role := range m.Roles {
			if !role.IsValid() {
				return fmt.Errorf("staff directory %q: unknown role %q", id, role)
			}
			if role.IsStaff() && strings.TrimSpace(m.Barangay) == "" {
				return fmt.Errorf("staff directory %q: role %s requires a barangay", id, role)
			}
		}
	}
	return nil
}
