package permission

import (
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mhaswell/fabtrace/internal/models"
)

//go:embed groups.yaml
var defaultGroupsYAML []byte

// GroupSpec is one entry in the seed spec. Permissions may be wildcard
// patterns.
type GroupSpec struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type seedSpec struct {
	Groups []GroupSpec `yaml:"groups"`
}

// DefaultGroupSpecs returns the built-in seed spec.
func DefaultGroupSpecs() ([]GroupSpec, error) {
	var spec seedSpec
	if err := yaml.Unmarshal(defaultGroupsYAML, &spec); err != nil {
		return nil, fmt.Errorf("parse default group spec: %w", err)
	}
	return spec.Groups, nil
}

// DefaultGroups builds the default groups for a new tenant, with wildcard
// grants expanded to concrete permissions.
func DefaultGroups(tenantID uuid.UUID) ([]*models.Group, error) {
	specs, err := DefaultGroupSpecs()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	groups := make([]*models.Group, 0, len(specs))
	for _, spec := range specs {
		perms, err := ExpandAll(spec.Permissions)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", spec.Name, err)
		}
		groups = append(groups, &models.Group{
			GroupID:     uuid.Must(uuid.NewV7()),
			TenantID:    tenantID,
			Name:        spec.Name,
			Permissions: perms,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return groups, nil
}
