package rbac

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PrincipalsFile is the on-disk shape of the principals configuration
type PrincipalsFile struct {
	Principals []Principal `yaml:"principals"`
}

// LoadPrincipals reads a principals YAML file and registers every entry.
// A missing file is not an error; the registry simply starts empty.
func (r *Registry) LoadPrincipals(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Info("No principals file found, starting with empty registry", "path", path)
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read principals file %s: %w", path, err)
	}

	var pf PrincipalsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return 0, fmt.Errorf("failed to parse principals file %s: %w", path, err)
	}

	for i := range pf.Principals {
		p := pf.Principals[i]
		if p.ID == "" {
			r.logger.Warn("Skipping principal with empty id", "index", i)
			continue
		}
		r.Register(&p)
	}

	return len(pf.Principals), nil
}
