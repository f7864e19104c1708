// CLAUDE:SUMMARY Loads the locator catalogue from YAML (embedded default or file), applies defaults and validates.
package catalogue

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed lau.yaml
var defaultYAML []byte

// Default returns the built-in LAU catalogue.
func Default() (*Catalogue, error) {
	return Parse(defaultYAML)
}

// LoadFile reads a YAML catalogue file.
func LoadFile(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalogue: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalogue, applies defaults and validates it.
func Parse(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalogue: decode yaml: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
