package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one node"
schema:
  name: g
  nodes:
    - {name: a, kind: echo, inputs: [1]}
flow:
  - invoke: engine.run
assertions:
  - type: collected
    values: [1]
`

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	require.NotNil(t, scenario.Schema)
	assert.Equal(t, "echo", scenario.Schema.Nodes[0].Kind)
	assert.Equal(t, []any{1}, scenario.Schema.Nodes[0].Inputs)
	require.Len(t, scenario.Flow, 1)
	assert.Equal(t, "engine.run", scenario.Flow[0].Invoke)
	assert.Equal(t, []any{1}, scenario.Assertions[0].Values)
}

func TestLoadScenario_ResolvesGraphRelativeToFile(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "switch_parity.yaml"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("testdata", "scenarios", "graphs", "parity.yaml"), scenario.Graph)
	assert.Equal(t, "round", scenario.WavePrefix)
}

func TestLoadScenario_MissingGraph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	content := `
name: s
description: "d"
graph: nowhere.yaml
flow: [{invoke: engine.run}]
assertions: [{type: collected, values: []}]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph not found")
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nschema: {nodes: [{kind: echo}]}\nflow: [{invoke: engine.run}]\nassertions: [{type: collected, values: []}]",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\nschema: {nodes: [{kind: echo}]}\nflow: [{invoke: engine.run}]\nassertions: [{type: collected, values: []}]",
			wantErr: "description is required",
		},
		{
			name:    "no graph",
			content: "name: n\ndescription: d\nflow: [{invoke: engine.run}]\nassertions: [{type: collected, values: []}]",
			wantErr: "one of graph or schema is required",
		},
		{
			name:    "graph and schema",
			content: "name: n\ndescription: d\ngraph: g.yaml\nschema: {nodes: [{kind: echo}]}\nflow: [{invoke: engine.run}]\nassertions: [{type: collected, values: []}]",
			wantErr: "mutually exclusive",
		},
		{
			name:    "empty flow",
			content: "name: n\ndescription: d\nschema: {nodes: [{kind: echo}]}\nflow: []\nassertions: [{type: collected, values: []}]",
			wantErr: "flow list is required",
		},
		{
			name:    "empty assertions",
			content: "name: n\ndescription: d\nschema: {nodes: [{kind: echo}]}\nflow: [{invoke: engine.run}]\nassertions: []",
			wantErr: "assertions list is required",
		},
		{
			name:    "bad invoke",
			content: "name: n\ndescription: d\nschema: {nodes: [{kind: echo}]}\nflow: [{invoke: run}]\nassertions: [{type: collected, values: []}]",
			wantErr: "flow[0]: invoke \"run\"",
		},
		{
			name:    "collected without values",
			content: "name: n\ndescription: d\nschema: {nodes: [{kind: echo}]}\nflow: [{invoke: engine.run}]\nassertions: [{type: collected}]",
			wantErr: "values is required",
		},
		{
			name:    "trace_order without nodes",
			content: "name: n\ndescription: d\nschema: {nodes: [{kind: echo}]}\nflow: [{invoke: engine.run}]\nassertions: [{type: trace_order}]",
			wantErr: "nodes list is required",
		},
		{
			name:    "trace_count negative",
			content: "name: n\ndescription: d\nschema: {nodes: [{kind: echo}]}\nflow: [{invoke: engine.run}]\nassertions: [{type: trace_count, node: a, count: -1}]",
			wantErr: "count must be non-negative",
		},
		{
			name:    "final_state without table",
			content: "name: n\ndescription: d\nschema: {nodes: [{kind: echo}]}\nflow: [{invoke: engine.run}]\nassertions: [{type: final_state, expect: {a: 1}}]",
			wantErr: "table is required",
		},
		{
			name:    "engine_state without expect",
			content: "name: n\ndescription: d\nschema: {nodes: [{kind: echo}]}\nflow: [{invoke: engine.run}]\nassertions: [{type: engine_state}]",
			wantErr: "expect is required for engine_state",
		},
		{
			name:    "unknown assertion",
			content: "name: n\ndescription: d\nschema: {nodes: [{kind: echo}]}\nflow: [{invoke: engine.run}]\nassertions: [{type: eventually}]",
			wantErr: "unknown assertion type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFlowStep_Target(t *testing.T) {
	object, signal, err := FlowStep{Invoke: "sort.reset-dependencies"}.Target()
	require.NoError(t, err)
	assert.Equal(t, "sort", object)
	assert.Equal(t, "reset-dependencies", signal)

	for _, bad := range []string{"", "engine", ".run", "engine."} {
		_, _, err := FlowStep{Invoke: bad}.Target()
		assert.Error(t, err, bad)
	}
}
