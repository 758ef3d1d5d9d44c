package registry

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/ipiton-systems/autodev-engine/internal/modules"
)

// LoadManifest reads, decodes, and validates a TOML manifest file at
// path against the required fields of §6: [module] name/version/
// description/authors/license/category, [capabilities] at least one
// provided capability, and [compatibility] auto_dev_version/platform.
func LoadManifest(path string) (modules.Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return modules.Manifest{}, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	var m modules.Manifest
	if err := toml.Unmarshal(raw, &m); err != nil {
		return modules.Manifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if err := validateManifest(m); err != nil {
		return modules.Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// validateManifest enforces the required-field contract of §6.
func validateManifest(m modules.Manifest) error {
	if m.Module.ID == "" {
		return fmt.Errorf("missing required module.id field")
	}
	if m.Module.Name == "" {
		return fmt.Errorf("missing required module.name field")
	}
	if _, err := m.ParsedVersion(); err != nil {
		return err
	}
	if m.Module.Description == "" {
		return fmt.Errorf("missing required module.description field")
	}
	if len(m.Module.Authors) == 0 {
		return fmt.Errorf("missing required module.authors field")
	}
	if m.Module.License == "" {
		return fmt.Errorf("missing required module.license field")
	}
	if !m.Module.Category.Valid() {
		return fmt.Errorf("invalid module.category %q", m.Module.Category)
	}
	if len(m.Capabilities.Provides) == 0 {
		return fmt.Errorf("capabilities.provides must list at least one capability")
	}
	for _, cap := range m.Capabilities.Provides {
		if _, err := modules.ParseCapability(cap); err != nil {
			return fmt.Errorf("capabilities.provides: %w", err)
		}
	}
	for _, cap := range m.Capabilities.Requests {
		if _, err := modules.ParseCapability(cap); err != nil {
			return fmt.Errorf("capabilities.requests: %w", err)
		}
	}
	if m.Compatibility.AutoDevVersion == "" {
		return fmt.Errorf("missing required compatibility.auto_dev_version field")
	}
	if m.Compatibility.Platform == "" {
		return fmt.Errorf("missing required compatibility.platform field")
	}
	for _, dep := range m.Dependencies {
		if dep.ID == "" {
			return fmt.Errorf("dependency entry missing required id field")
		}
		if dep.VersionReq != "" && dep.VersionReq != "*" {
			if _, err := modules.ParseVersion(dep.VersionReq); err != nil {
				return fmt.Errorf("dependency %s: %w", dep.ID, err)
			}
		}
	}
	return nil
}

// SaveManifest encodes m as TOML and writes it to path.
func SaveManifest(path string, m modules.Manifest) error {
	raw, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return nil
}
