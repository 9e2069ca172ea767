package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dynq/internal/queryexpr"
)

// Provider names accepted in Scenario.Providers.
const (
	ProviderMemory = "memory"
	ProviderSQLite = "sqlite"
)

// DefaultProviders is used when a scenario lists none.
var DefaultProviders = []string{ProviderMemory, ProviderSQLite}

// Error kinds accepted in Step.Error and Check.Error.
const (
	ErrorPrecondition = "precondition"
	ErrorExecution    = "execution"
)

// Scenario defines a conformance scenario: a source, a pipeline of
// sequence operators composed through the bridge, and checks on the
// resulting handle. Every listed provider must produce the same trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is an optional CUE schema directory declaring row types.
	// Relative paths are resolved against the scenario file.
	Schema string `yaml:"schema,omitempty"`

	// Type is the element type ID: int, string, bool or a schema row type.
	Type string `yaml:"type"`

	// Source names the source table. Defaults to "items".
	Source string `yaml:"source,omitempty"`

	// Rows are the source elements in order. Row-type elements are maps;
	// missing fields are null.
	Rows []any `yaml:"rows"`

	// Providers lists the providers to run against. Defaults to
	// DefaultProviders.
	Providers []string `yaml:"providers,omitempty"`

	// Steps are the sequence operators applied to the source handle.
	Steps []Step `yaml:"steps,omitempty"`

	// Sequence is the expected materialized result. Nil skips the check;
	// an empty list expects no elements.
	Sequence []any `yaml:"sequence,omitempty"`

	// Checks run terminal operators on the final handle.
	Checks []Check `yaml:"checks,omitempty"`
}

// Step is one sequence operator.
type Step struct {
	// Op is take, skip or reverse.
	Op string `yaml:"op"`

	// N is the count argument of take and skip.
	N *int64 `yaml:"n,omitempty"`

	// Error, if set, expects composition to fail with this error kind.
	// Such a step must be the last one, with no sequence or checks.
	Error string `yaml:"error,omitempty"`
}

// Check runs one terminal operator.
type Check struct {
	// Terminal is any, count, single, singleOrDefault, first or
	// firstOrDefault.
	Terminal string `yaml:"terminal"`

	// Want is the expected result in its dynamic view. Kept as a node so
	// an explicit null is distinguishable from an absent want.
	Want yaml.Node `yaml:"want,omitempty"`

	// Error, if set, expects the terminal to fail with this error kind.
	Error string `yaml:"error,omitempty"`
}

// HasWant reports whether the check declares an expected result.
func (c Check) HasWant() bool {
	return c.Want.Kind != 0
}

// WantValue decodes the expected result.
func (c Check) WantValue() (any, error) {
	var v any
	if err := c.Want.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative Schema path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "check:" vs "checks:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Type == "" {
		return fmt.Errorf("type is required")
	}

	if s.Schema != "" {
		if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
			return fmt.Errorf("schema directory not found: %s", s.Schema)
		}
	}

	for i, p := range s.Providers {
		if p != ProviderMemory && p != ProviderSQLite {
			return fmt.Errorf("providers[%d]: unknown provider %q", i, p)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
		if step.Error != "" {
			if i != len(s.Steps)-1 {
				return fmt.Errorf("steps[%d]: a step expecting an error must be last", i)
			}
			if s.Sequence != nil || len(s.Checks) > 0 {
				return fmt.Errorf("steps[%d]: a step expecting an error cannot be followed by sequence or checks", i)
			}
		}
	}

	for i, c := range s.Checks {
		op := queryexpr.Op(c.Terminal)
		if !op.Known() || !op.Terminal() {
			return fmt.Errorf("checks[%d]: unknown terminal %q", i, c.Terminal)
		}
		if err := validateErrorKind(c.Error); err != nil {
			return fmt.Errorf("checks[%d]: %w", i, err)
		}
		if c.Error != "" && c.HasWant() {
			return fmt.Errorf("checks[%d]: want and error are mutually exclusive", i)
		}
	}

	return nil
}

func validateStep(i int, step Step) error {
	switch queryexpr.Op(step.Op) {
	case queryexpr.OpTake, queryexpr.OpSkip:
		if step.N == nil {
			return fmt.Errorf("steps[%d]: n is required for %s", i, step.Op)
		}
	case queryexpr.OpReverse:
		if step.N != nil {
			return fmt.Errorf("steps[%d]: reverse takes no n", i)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown operator %q", i, step.Op)
	}
	if err := validateErrorKind(step.Error); err != nil {
		return fmt.Errorf("steps[%d]: %w", i, err)
	}
	return nil
}

func validateErrorKind(kind string) error {
	switch kind {
	case "", ErrorPrecondition, ErrorExecution:
		return nil
	default:
		return fmt.Errorf("unknown error kind %q", kind)
	}
}
