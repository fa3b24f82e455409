package lua

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestName is the file a rules directory must contain.
const ManifestName = "rules.yaml"

// Manifest describes a rule set.
type Manifest struct {
	Rules []RuleSpec `yaml:"rules"`

	// Internal: directory the manifest was loaded from.
	dir string
}

// RuleSpec describes one rule entry in the manifest.
type RuleSpec struct {
	// ID uniquely names the rule within the set.
	ID string `yaml:"id"`

	// File is the rule script, relative to the rules directory.
	File string `yaml:"file"`

	// Category is the finding category when the rule does not set one.
	// Defaults to the rule ID.
	Category string `yaml:"category"`

	// Severity is the finding severity when the rule does not set one:
	// hint, info, warning, or error. Defaults to warning.
	Severity string `yaml:"severity"`

	// Enabled controls whether the rule is loaded. Omitted means enabled.
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled reports whether the rule should be loaded.
func (r RuleSpec) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// knownSeverities are the severity names a manifest may use.
var knownSeverities = map[string]bool{
	"hint":    true,
	"info":    true,
	"warning": true,
	"error":   true,
}

// LoadManifest loads and validates the rules.yaml manifest in dir.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing rules manifest %s: %w", path, err)
	}

	m.dir = dir
	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Dir returns the directory the manifest was loaded from.
func (m *Manifest) Dir() string {
	return m.dir
}

// Enabled returns the rules that should be loaded, in manifest order.
func (m *Manifest) Enabled() []RuleSpec {
	var enabled []RuleSpec
	for _, r := range m.Rules {
		if r.IsEnabled() {
			enabled = append(enabled, r)
		}
	}
	return enabled
}

// applyDefaults fills optional fields.
func (m *Manifest) applyDefaults() {
	for i := range m.Rules {
		if m.Rules[i].Category == "" {
			m.Rules[i].Category = m.Rules[i].ID
		}
		if m.Rules[i].Severity == "" {
			m.Rules[i].Severity = "warning"
		}
	}
}

// Validate checks that the manifest is usable.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Rules))
	for i, r := range m.Rules {
		if r.ID == "" {
			return fmt.Errorf("%w at index %d", ErrMissingRuleID, i)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateRuleID, r.ID)
		}
		seen[r.ID] = true

		if r.File == "" {
			return fmt.Errorf("%w (id: %s)", ErrMissingRuleFile, r.ID)
		}
		if filepath.Ext(r.File) != ".lua" || !filepath.IsLocal(r.File) {
			return fmt.Errorf("%w: %s", ErrInvalidRuleFile, r.File)
		}

		if !knownSeverities[r.Severity] {
			return fmt.Errorf("%w: %s (id: %s)", ErrInvalidRuleSeverity, r.Severity, r.ID)
		}
	}
	return nil
}
