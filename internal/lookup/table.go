package lookup

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultLocatorPrefix is the article path prefix used by the bundled table
const DefaultLocatorPrefix = "/wiki/"

// LocatorSeparator replaces spaces when a proper name is turned into a locator
const LocatorSeparator = "_"

//go:embed mappings.yaml
var defaultTableYAML []byte

// NameMapping is one obsolete administrative entity and its modern successor
type NameMapping struct {
	ObsoleteNames []string `yaml:"obsolete_names" json:"obsolete_names"`
	ModernName    string   `yaml:"modern_name" json:"modern_name"`
	CanonicalPath string   `yaml:"canonical_path" json:"canonical_path"`
}

// Table is the configuration data the matcher is built from
type Table struct {
	LocatorPrefix    string        `yaml:"locator_prefix" json:"locator_prefix"`
	Mappings         []NameMapping `yaml:"mappings" json:"mappings"`
	TermsToRemove    []string      `yaml:"terms_to_remove" json:"terms_to_remove"`
	LocatorsToRemove []string      `yaml:"locators_to_remove" json:"locators_to_remove"`
}

// DefaultTable returns the bundled mapping table
func DefaultTable() (Table, error) {
	return ParseTable(defaultTableYAML)
}

// LoadTable reads a mapping table from a YAML file
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read mapping table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes a YAML mapping table
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("decode mapping table: %w", err)
	}
	if t.LocatorPrefix == "" {
		t.LocatorPrefix = DefaultLocatorPrefix
	}
	return t, nil
}

// Resolve returns the table at path, or the bundled table when path is empty
func Resolve(path string) (Table, error) {
	if path == "" {
		return DefaultTable()
	}
	return LoadTable(path)
}

// VariantCount returns the number of obsolete names across all mappings
func (t Table) VariantCount() int {
	n := 0
	for _, m := range t.Mappings {
		n += len(m.ObsoleteNames)
	}
	return n
}
