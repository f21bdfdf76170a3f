package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a sequence of table operations run against one database.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Database overrides the store's default database name.
	Database string `yaml:"database,omitempty"`

	// SkipUpgrades makes every upgrade callback a no-op, so tables are
	// never created. Used to exercise the missing-table failure path.
	SkipUpgrades bool `yaml:"skip_upgrades,omitempty"`

	// Steps run sequentially, each in its own transaction.
	Steps []Step `yaml:"steps"`

	// Assertions validate the database after all steps ran.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one facade operation.
type Step struct {
	// Op is "set", "get" or "scan".
	Op string `yaml:"op"`

	Table string `yaml:"table"`

	// Key is required for set and get.
	Key any `yaml:"key,omitempty"`

	// Value is written by set. Omitted or null means an absent value.
	Value any `yaml:"value,omitempty"`

	// Expect validates the outcome. If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the expected outcome of a step.
type Expect struct {
	// Found is the expected hit/miss of a get.
	Found *bool `yaml:"found,omitempty"`

	// Value is the expected value of a get hit.
	Value any `yaml:"value,omitempty"`

	// Values are the expected scan results, in order.
	Values []any `yaml:"values,omitempty"`

	// Error is the expected error class (see ErrorClass). Empty means the
	// step must succeed.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final database.
type Assertion struct {
	// Type specifies the assertion type:
	// - "version": stored database version equals Version
	// - "tables": stored table names equal Tables (sorted)
	// - "trace_count": the trace holds exactly Count events of Op
	// - "final_state": the record under Table/Key equals Expect
	Type string `yaml:"type"`

	Version int64    `yaml:"version,omitempty"`
	Tables  []string `yaml:"tables,omitempty"`
	Op      string   `yaml:"op,omitempty"`
	Count   int      `yaml:"count,omitempty"`
	Table   string   `yaml:"table,omitempty"`
	Key     any      `yaml:"key,omitempty"`
	Expect  any      `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertVersion    = "version"
	AssertTables     = "tables"
	AssertTraceCount = "trace_count"
	AssertFinalState = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Table == "" {
			return fmt.Errorf("steps[%d]: table is required", i)
		}
		switch step.Op {
		case OpSet, OpGet:
			if step.Key == nil {
				return fmt.Errorf("steps[%d]: key is required for %s", i, step.Op)
			}
		case OpScan:
			if step.Key != nil {
				return fmt.Errorf("steps[%d]: scan takes no key", i)
			}
		case "":
			return fmt.Errorf("steps[%d]: op is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.Op != OpSet && step.Value != nil {
			return fmt.Errorf("steps[%d]: value is only valid for set", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertVersion:
		if a.Version < 0 {
			return fmt.Errorf("assertions[%d]: version must be non-negative", index)
		}
	case AssertTables:
		if a.Tables == nil {
			return fmt.Errorf("assertions[%d]: tables list is required for tables", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" || a.Key == nil {
			return fmt.Errorf("assertions[%d]: table and key are required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
