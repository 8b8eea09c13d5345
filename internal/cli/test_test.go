package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/harness"
)

const upcaseScenario = `name: upcase_chain
description: "echo feeds upcase"
schema:
  name: shout
  nodes:
    - name: in
      kind: echo
      inputs: ["hi"]
    - name: up
      kind: upcase
  joins:
    - kind: sequence
      sources: [0]
      targets: [1]
flow:
  - invoke: engine.run
assertions:
  - type: collected
    values: ["HI"]
`

const failingScenario = `name: wrong_value
description: "asserts a value echo never produces"
schema:
  nodes:
    - kind: echo
      inputs: ["x"]
flow:
  - invoke: engine.run
assertions:
  - type: collected
    values: ["y"]
`

// scenarioDir writes scenario files into a fresh directory.
func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"upcase.yaml": upcaseScenario})

	out, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ upcase_chain (golden: missing)")

	out, err = execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden: updated)")
	assert.FileExists(t, filepath.Join(dir, "golden", "upcase.golden"))

	out, err = execute(t, "test", dir, "--format", "json")
	require.NoError(t, err)
	var suite harness.SuiteResult
	decodeData(t, out, &suite)
	assert.Equal(t, 1, suite.Passed)
	assert.Equal(t, harness.GoldenMatch, suite.Scenarios[0].Golden)
}

func TestTestCommand_FailureExitCode(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"upcase.yaml": upcaseScenario,
		"wrong.yaml":  failingScenario,
	})

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_value")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommand_Filter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"upcase.yaml": upcaseScenario,
		"wrong.yaml":  failingScenario,
	})

	out, err := execute(t, "test", dir, "--filter", "up*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_NoScenarios(t *testing.T) {
	_, err := execute(t, "test", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
