package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/builtin"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/schema"
	"github.com/roach88/weft/internal/testutil"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return scenario
}

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"sort_lines", "sync_merge", "switch_parity", "signals"} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(loadTestScenario(t, name), WithLogger(testutil.NewLogger(t)))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_TraceOrderedBySeq(t *testing.T) {
	result, err := Run(loadTestScenario(t, "sync_merge"))
	require.NoError(t, err)

	var seqs []int64
	var nodes []string
	for _, ev := range result.Trace {
		seqs = append(seqs, ev.Seq)
		nodes = append(nodes, ev.Node)
	}
	assert.Equal(t, []int64{2, 4, 5}, seqs)
	assert.Equal(t, []string{"a", "b", "j"}, nodes)
	assert.Equal(t, "READY", result.State["state"])
}

func TestRun_DirectCallsHaveNoWave(t *testing.T) {
	result, err := Run(loadTestScenario(t, "signals"))
	require.NoError(t, err)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, "", result.Trace[0].Wave)
	assert.Equal(t, "", result.Trace[1].Wave)
	assert.Equal(t, "wave-1", result.Trace[2].Wave)
}

func TestRun_ReportsFailures(t *testing.T) {
	scenario := &Scenario{
		Name:        "failing",
		Description: "every check is wrong",
		Schema: &schema.Schema{
			Name: "g",
			Nodes: []schema.NodeSpec{
				{Name: "a", Kind: "echo", Inputs: []any{"x"}},
				{Name: "f", Kind: "fail", Args: []any{"boom"}, Inputs: []any{1}},
			},
		},
		Flow: []FlowStep{
			{Invoke: "engine.run"},
			{Invoke: "a.execute", Args: []any{"y"}, Expect: &ExpectClause{Result: "z"}},
			{Invoke: "engine.stop", Expect: &ExpectClause{Error: "nope"}},
			{Invoke: "engine.enqueue", Args: []any{"ghost"}, Expect: &ExpectClause{Error: "UNKNOWN_SIGNAL"}},
		},
		Assertions: []Assertion{
			{Type: AssertCollected, Values: []any{"x"}},
			{Type: AssertTraceContains, Node: "f"},
			{Type: AssertTraceOrder, Nodes: []string{"f", "a"}},
			{Type: AssertTraceCount, Node: "a", Count: 5},
			{Type: AssertEngineState, Expect: map[string]any{"state": "RUN"}},
			{Type: AssertFinalState, Table: "results", Where: map[string]any{"node": "zzz"}, Expect: map[string]any{"seq": 1}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 10)
	assert.Contains(t, result.Errors[0], "flow[0] engine.run: node f: boom")
	assert.Contains(t, result.Errors[1], "flow[1] a.execute: result = y, expected z")
	assert.Contains(t, result.Errors[2], "expected error containing \"nope\", got success")
	assert.Contains(t, result.Errors[3], "got UNKNOWN_OBJECT")
	assert.Contains(t, result.Errors[4], "Assertion failed: collected")
	assert.Contains(t, result.Errors[5], "result from f")
	assert.Contains(t, result.Errors[6], "missing node: f")
	assert.Contains(t, result.Errors[7], "5 results from a")
	assert.Contains(t, result.Errors[8], "state = RUN")
	assert.Contains(t, result.Errors[9], "row not found")
}

func TestRun_DebugStopsAtFirstFailure(t *testing.T) {
	scenario := &Scenario{
		Name:        "debug",
		Description: "debug mode returns the first node failure",
		Debug:       true,
		Schema: &schema.Schema{
			Name: "g",
			Nodes: []schema.NodeSpec{
				{Name: "f", Kind: "fail", Inputs: []any{1}},
				{Name: "a", Kind: "echo", Inputs: []any{"x"}},
			},
		},
		Flow: []FlowStep{
			{Invoke: "engine.run", Expect: &ExpectClause{Error: "node f: failed"}},
		},
		Assertions: []Assertion{
			{Type: AssertEngineState, Expect: map[string]any{"queue_len": 1}},
			{Type: AssertTraceCount, Node: "a", Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_BuildError(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad",
		Description: "unknown kind",
		Schema:      &schema.Schema{Name: "g", Nodes: []schema.NodeSpec{{Kind: "teleport"}}},
		Flow:        []FlowStep{{Invoke: "engine.run"}},
		Assertions:  []Assertion{{Type: AssertCollected, Values: []any{}}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build graph")
	assert.Contains(t, err.Error(), `unknown node kind "teleport"`)
}

func TestRun_WithCatalog(t *testing.T) {
	cat := builtin.Empty()
	cat.Register("seven", func([]any) (engine.Func, error) {
		return func(context.Context, ...any) (any, error) { return 7, nil }, nil
	})

	scenario := &Scenario{
		Name:        "custom",
		Description: "custom catalog",
		Schema:      &schema.Schema{Name: "g", Nodes: []schema.NodeSpec{{Name: "s", Kind: "seven"}}},
		Flow:        []FlowStep{{Invoke: "engine.run"}},
		Assertions:  []Assertion{{Type: AssertCollected, Values: []any{7}}},
	}

	result, err := Run(scenario, WithCatalog(cat))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestAssertTraceContains_Value(t *testing.T) {
	trace := []TraceEvent{
		{Seq: 1, Node: "a", Value: []string{"x"}},
		{Seq: 2, Node: "a", Value: []string{"y"}},
	}

	assert.NoError(t, assertTraceContains(trace, Assertion{Node: "a", Value: []any{"y"}}))
	assert.Error(t, assertTraceContains(trace, Assertion{Node: "a", Value: []any{"z"}}))
	assert.Error(t, assertTraceContains(trace, Assertion{Node: "b"}))
}

func TestAssertTraceOrder_WrongOrder(t *testing.T) {
	trace := []TraceEvent{{Node: "a"}, {Node: "b"}, {Node: "a"}}

	assert.NoError(t, assertTraceOrder(trace, Assertion{Nodes: []string{"a", "b"}}))
	err := assertTraceOrder(trace, Assertion{Nodes: []string{"b", "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b (pos 2) should be before a (pos 1)")
}

func TestColumnEqual(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		want     bool
	}{
		{"string", "x", "x", true},
		{"bytes", "x", []byte("x"), true},
		{"int", 3, int64(3), true},
		{"int mismatch", 3, int64(4), false},
		{"bool", true, int64(1), true},
		{"json list", []any{"a", 1}, `["a",1]`, true},
		{"json map", map[string]any{"b": 1, "a": 2}, []byte(`{"a":2,"b":1}`), true},
		{"nil", nil, nil, true},
		{"nil vs value", nil, "x", false},
		{"type mismatch", "3", int64(3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, columnEqual(tt.expected, tt.actual))
		})
	}
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"wave": "w", "node": "n", "seq": 2})
	require.NoError(t, err)
	assert.Equal(t, "node = ? AND seq = ? AND wave = ?", sql)
	assert.Equal(t, []any{"n", 2, "w"}, args)

	_, _, err = buildWhereClause(map[string]any{"node; DROP TABLE results": "x"})
	assert.Error(t, err)
}

func TestAssertFinalState_RejectsBadTable(t *testing.T) {
	err := assertFinalState(context.Background(), nil, Assertion{Table: "results; --", Expect: map[string]any{"a": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestEvaluateAssertions_FinalStateNeedsStore(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertFinalState, Table: "results", Expect: map[string]any{"a": 1}},
	}, &AssertionContext{})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires database context")
}
