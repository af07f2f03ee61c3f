// Package fields turns client entities into the column/value lists the store
// persists.
//
// The grid sends fields the store has no column for (baselines, phantom ids,
// segment arrays) and dates in whatever form the browser produced. A Sanitizer
// strips the former and normalizes the latter according to a Rules table.
// The default table is embedded; a YAML file can replace it at runtime (see
// Watcher).
package fields

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rules lists the non-persisted fields and the date fields.
type Rules struct {
	Excluded []string `yaml:"excluded" mapstructure:"excluded"`
	Dates    []string `yaml:"dates" mapstructure:"dates"`
}

// DefaultRules returns the embedded rule table.
func DefaultRules() Rules {
	r, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rules.yaml is invalid: %v", err))
	}
	return r
}

// ParseRules decodes a YAML rule table.
func ParseRules(data []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("failed to parse rules: %w", err)
	}
	return r, nil
}

// LoadRules reads and decodes a YAML rule table from disk.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	return ParseRules(data)
}

// compiled is the lookup form of Rules.
type compiled struct {
	rules    Rules
	excluded map[string]struct{}
	dates    map[string]struct{}
}

func compile(r Rules) *compiled {
	c := &compiled{
		rules:    r,
		excluded: make(map[string]struct{}, len(r.Excluded)),
		dates:    make(map[string]struct{}, len(r.Dates)),
	}
	for _, name := range r.Excluded {
		c.excluded[name] = struct{}{}
	}
	for _, name := range r.Dates {
		c.dates[name] = struct{}{}
	}
	return c
}
