package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/weft/internal/schema"
)

// Scenario defines a test scenario: a graph, a flow of engine calls, and
// assertions over the results the flow produced.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Graph is a path to a YAML or CUE graph description, relative to the
	// scenario file. Exactly one of Graph and Schema is set.
	Graph string `yaml:"graph,omitempty"`

	// Schema is an inline graph description.
	Schema *schema.Schema `yaml:"schema,omitempty"`

	// WavePrefix names wave tokens "<prefix>-1", "<prefix>-2", ...
	// Defaults to "wave".
	WavePrefix string `yaml:"wave_prefix,omitempty"`

	// Debug runs the engine in debug mode: the first node failure ends a run.
	Debug bool `yaml:"debug,omitempty"`

	// Flow is the list of engine calls, executed in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep sends one signal through the engine's Call surface.
type FlowStep struct {
	// Invoke is "<object>.<signal>", e.g. "engine.run" or "sort.execute".
	Invoke string `yaml:"invoke"`

	// Args are passed to the signal. Node-taking engine signals expect a
	// node name first.
	Args []any `yaml:"args,omitempty"`

	// Expect validates the call's outcome. If nil the call must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a flow step.
type ExpectClause struct {
	// Error is a substring the call's error must contain. Empty means the
	// call must succeed.
	Error string `yaml:"error,omitempty"`

	// Result is compared by canonical JSON against the call's result. For
	// execute the result is the produced value.
	Result any `yaml:"result,omitempty"`
}

// Target splits Invoke into object and signal.
func (s FlowStep) Target() (object, signal string, err error) {
	object, signal, ok := strings.Cut(s.Invoke, ".")
	if !ok || object == "" || signal == "" {
		return "", "", fmt.Errorf("invoke %q: want <object>.<signal>", s.Invoke)
	}
	return object, signal, nil
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Node names the node (trace_contains, trace_count).
	Node string `yaml:"node,omitempty"`

	// Nodes is the expected first-result order (trace_order).
	Nodes []string `yaml:"nodes,omitempty"`

	// Value is the expected value (trace_contains, optional).
	Value any `yaml:"value,omitempty"`

	// Values are the expected collected values (collected).
	Values []any `yaml:"values,omitempty"`

	// Count is the expected number of results (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table is the store table to query (final_state).
	Table string `yaml:"table,omitempty"`

	// Where filters rows; all fields must match exactly (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect holds expected field values, subset match
	// (final_state, engine_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCollected     = "collected"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertEngineState   = "engine_state"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. A relative Graph
// path is resolved against the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Graph != "" && !filepath.IsAbs(scenario.Graph) {
		scenario.Graph = filepath.Join(filepath.Dir(path), scenario.Graph)
	}
	if scenario.Graph != "" {
		if _, err := os.Stat(scenario.Graph); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: graph not found: %s", scenario.Graph)
		}
	}
	return scenario, nil
}

// ParseScenario decodes a scenario document without touching the
// filesystem.
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

	switch {
	case s.Graph == "" && s.Schema == nil:
		return fmt.Errorf("one of graph or schema is required")
	case s.Graph != "" && s.Schema != nil:
		return fmt.Errorf("graph and schema are mutually exclusive")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if _, _, err := step.Target(); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCollected:
		if a.Values == nil {
			return fmt.Errorf("assertions[%d]: values is required for collected (use [] for none)", index)
		}
	case AssertTraceContains:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Nodes) == 0 {
			return fmt.Errorf("assertions[%d]: nodes list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertEngineState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for engine_state", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
