package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ngat/internal/rules"
	"github.com/roach88/ngat/internal/world"
)

// Scenario is one rule-engine contract test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// State is the initial world.
	State world.State `yaml:"state"`

	// Rules are inline rule specs, loaded before RulesFile.
	Rules []rules.RuleSpec `yaml:"rules,omitempty"`

	// RulesFile is an optional YAML or CUE rule file. Relative paths are
	// resolved against the scenario file's directory.
	RulesFile string `yaml:"rules_file,omitempty"`

	Ticks []TickStep `yaml:"ticks"`

	// Expect is checked against the world after the last tick.
	Expect *StateExpect `yaml:"expect,omitempty"`
}

// TickStep is one executed tick.
type TickStep struct {
	Tick   int64          `yaml:"tick"`
	Scene  string         `yaml:"scene,omitempty"`
	Vars   map[string]any `yaml:"vars,omitempty"`
	Expect *TickExpect    `yaml:"expect,omitempty"`
}

// TickExpect lists the rule ids a tick must apply and block, in order.
// A nil list is not checked; an empty list must match no rules.
type TickExpect struct {
	Applied []string `yaml:"applied"`
	Blocked []string `yaml:"blocked"`
}

// StateExpect is a subset match on the final world.
type StateExpect struct {
	Flags     map[string]map[string]bool    `yaml:"flags,omitempty"`
	Stats     map[string]map[string]float64 `yaml:"stats,omitempty"`
	Locations map[string]string             `yaml:"locations,omitempty"`
	Inventory map[string]map[string]int     `yaml:"inventory,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.RulesFile != "" && !filepath.IsAbs(s.RulesFile) {
		s.RulesFile = filepath.Join(filepath.Dir(path), s.RulesFile)
	}
	if s.RulesFile != "" {
		if _, err := os.Stat(s.RulesFile); err != nil {
			return nil, fmt.Errorf("invalid scenario: rules file: %w", err)
		}
	}
	return s, nil
}

// ParseScenario parses scenario YAML. rules_file is left unresolved.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Rules) == 0 && s.RulesFile == "" {
		return fmt.Errorf("rules or rules_file is required")
	}
	if len(s.Ticks) == 0 {
		return fmt.Errorf("ticks list is required and must be non-empty")
	}
	for i, spec := range s.Rules {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	var last int64
	for i, step := range s.Ticks {
		if step.Tick < 0 {
			return fmt.Errorf("ticks[%d]: tick must be non-negative", i)
		}
		if step.Tick != 0 && step.Tick <= last {
			return fmt.Errorf("ticks[%d]: tick %d does not follow tick %d", i, step.Tick, last)
		}
		if step.Tick != 0 {
			last = step.Tick
		} else {
			last++
		}
	}
	return nil
}
