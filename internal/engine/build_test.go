package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/audit"
	"github.com/roach88/weft/internal/schema"
)

// testCatalog is a minimal Catalog over the helper callables.
type testCatalog struct{}

func (testCatalog) NodeFunc(kind string, args []any) (Func, error) {
	switch kind {
	case "echo":
		return identity, nil
	case "lines":
		return splitLines, nil
	case "sort":
		return sortStrings, nil
	case "join":
		return joinArgs, nil
	case "suffix":
		if len(args) != 1 {
			return nil, fmt.Errorf("suffix: want 1 arg, got %d", len(args))
		}
		return appendSuffix(fmt.Sprint(args[0])), nil
	case "upper":
		return func(_ context.Context, args ...any) (any, error) {
			return strings.ToUpper(args[0].(string)), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}

func (testCatalog) Selector(name string) (Selector, error) {
	switch name {
	case "nonempty":
		return func(a *audit.Audit) (int, bool) {
			if s, _ := a.Value.(string); s != "" {
				return 0, true
			}
			return 1, true
		}, nil
	default:
		return nil, fmt.Errorf("unknown selector %q", name)
	}
}

func TestBuild_WiresAndEnqueuesDefaultRound(t *testing.T) {
	e := newTestEngine(t)
	s := &schema.Schema{
		Name: "pipeline",
		Nodes: []schema.NodeSpec{
			{Name: "src", Kind: "lines", Inputs: []any{"c\na\nb"}},
			{Name: "sorted", Kind: "sort"},
		},
		Joins: []schema.JoinSpec{{Kind: schema.JoinSequence, Sources: []int{0}, Targets: []int{1}}},
	}

	nodes, err := e.Build(context.Background(), s, testCatalog{})
	require.NoError(t, err)

	require.Len(t, nodes, 2)
	assert.Equal(t, []string{"src", "sorted"}, e.Names())
	assert.Equal(t, "lines", nodes[0].Kind())
	entries := e.Queue().Entries()
	require.Len(t, entries, 1)
	assert.Same(t, nodes[0], entries[0].Node)
	assert.Equal(t, []any{"c\na\nb"}, entries[0].Inputs)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, []any{[]string{"a", "b", "c"}}, collectedValues(e))
}

func TestBuild_ExplicitRoundsInOrder(t *testing.T) {
	e := newTestEngine(t)
	s := &schema.Schema{
		Name: "rounds",
		Nodes: []schema.NodeSpec{
			{Name: "a", Kind: "echo", Inputs: []any{"a"}},
			{Name: "b", Kind: "echo", Inputs: []any{"b"}},
			{Name: "c", Kind: "echo", Inputs: []any{"c"}},
		},
		Rounds: [][]int{{2}, {0, 1}},
	}

	_, err := e.Build(context.Background(), s, testCatalog{})
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	assert.Equal(t, []any{"c", "a", "b"}, collectedValues(e))
}

func TestBuild_GeneratedNamesAndArgs(t *testing.T) {
	e := newTestEngine(t)
	s := &schema.Schema{
		Nodes: []schema.NodeSpec{
			{Kind: "suffix", Args: []any{"!"}, Inputs: []any{"hi"}},
		},
	}

	nodes, err := e.Build(context.Background(), s, testCatalog{})
	require.NoError(t, err)

	assert.Equal(t, "suffix-0", nodes[0].ID())
	assert.Equal(t, []any{"!"}, nodes[0].Args())
	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, []any{"hi!"}, collectedValues(e))
}

func TestBuild_DependenciesAreNotEnqueued(t *testing.T) {
	e := newTestEngine(t)
	s := &schema.Schema{
		Nodes: []schema.NodeSpec{
			{Name: "setup", Kind: "echo", Inputs: []any{"ignored"}},
			{Name: "main", Kind: "echo", Inputs: []any{"m"}, DependsOn: []int{0}},
		},
	}

	nodes, err := e.Build(context.Background(), s, testCatalog{})
	require.NoError(t, err)

	entries := e.Queue().Entries()
	require.Len(t, entries, 1)
	assert.Same(t, nodes[1], entries[0].Node)
	assert.Equal(t, []*Node{nodes[0]}, nodes[1].Dependencies())

	require.NoError(t, e.Run(context.Background()))
	_, resolved := nodes[0].Result()
	assert.True(t, resolved)
}

func TestBuild_SwitchUsesCatalogSelector(t *testing.T) {
	e := newTestEngine(t)
	s := &schema.Schema{
		Nodes: []schema.NodeSpec{
			{Name: "in", Kind: "echo", Inputs: []any{"word"}},
			{Name: "loud", Kind: "upper"},
			{Name: "blank", Kind: "suffix", Args: []any{"<empty>"}},
		},
		Joins: []schema.JoinSpec{{
			Kind:     schema.JoinSwitch,
			Sources:  []int{0},
			Targets:  []int{1, 2},
			Selector: "nonempty",
		}},
	}

	_, err := e.Build(context.Background(), s, testCatalog{})
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	assert.Equal(t, []any{"WORD"}, collectedValues(e))
	joins := e.Joins()
	require.Len(t, joins, 1)
	assert.Equal(t, KindSwitch, joins[0].Kind())
}

func TestBuild_SyncMergeWithFlags(t *testing.T) {
	e := newTestEngine(t)
	s := &schema.Schema{
		Nodes: []schema.NodeSpec{
			{Name: "x", Kind: "echo", Inputs: []any{"x"}},
			{Name: "y", Kind: "echo", Inputs: []any{"y"}},
			{Name: "both", Kind: "join"},
		},
		Joins: []schema.JoinSpec{{Kind: schema.JoinSync, Sources: []int{0, 1}, Targets: []int{2}}},
	}

	_, err := e.Build(context.Background(), s, testCatalog{})
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	assert.Equal(t, []any{"x+y"}, collectedValues(e))
}

func TestBuild_InvalidSchemaJoinsAllErrors(t *testing.T) {
	e := newTestEngine(t)
	s := &schema.Schema{
		Name: "broken",
		Nodes: []schema.NodeSpec{
			{Name: "engine", Kind: "echo"},
			{Name: "dup"},
		},
	}

	_, err := e.Build(context.Background(), s, testCatalog{})
	require.Error(t, err)

	assert.Contains(t, err.Error(), `invalid graph "broken"`)
	assert.Contains(t, err.Error(), schema.ErrCodeReservedName)
	assert.Contains(t, err.Error(), schema.ErrCodeMissingKind)
	assert.Empty(t, e.Names(), "nothing is registered on failure")
}

func TestBuild_CatalogErrors(t *testing.T) {
	tests := []struct {
		name   string
		schema *schema.Schema
		want   string
	}{
		{
			name:   "unknown kind",
			schema: &schema.Schema{Nodes: []schema.NodeSpec{{Name: "n", Kind: "teleport"}}},
			want:   `node n: unknown kind "teleport"`,
		},
		{
			name: "unknown selector",
			schema: &schema.Schema{
				Nodes: []schema.NodeSpec{{Kind: "echo"}, {Kind: "echo"}},
				Joins: []schema.JoinSpec{{Kind: schema.JoinSwitch, Sources: []int{0}, Targets: []int{1}, Selector: "coin"}},
			},
			want: `join 0: unknown selector "coin"`,
		},
		{
			name:   "bad args",
			schema: &schema.Schema{Nodes: []schema.NodeSpec{{Kind: "suffix"}}},
			want:   "suffix: want 1 arg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			_, err := e.Build(context.Background(), tt.schema, testCatalog{})
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestBuild_FailureLeavesEngineUntouched(t *testing.T) {
	e := newTestEngine(t)
	keep := mustNode(t, e, "up", appendSuffix("!"))

	_, err := e.Build(context.Background(), &schema.Schema{
		Nodes: []schema.NodeSpec{
			{Name: "up", Kind: "echo"},
			{Name: "src", Kind: "lines"},
			{Name: "tgt", Kind: "echo"},
		},
		Joins: []schema.JoinSpec{{Kind: schema.JoinSwitch, Sources: []int{1}, Targets: []int{2}, Selector: "coin"}},
	}, testCatalog{})
	require.ErrorContains(t, err, `unknown selector "coin"`)

	assert.Equal(t, []string{"up"}, e.Names())
	got, err := e.Node("up")
	require.NoError(t, err)
	assert.Same(t, keep, got, "a replaced object is put back")
	assert.Empty(t, e.Joins())
	assert.Equal(t, 0, e.Queue().Size())
}

func TestBuild_ThroughCall(t *testing.T) {
	e := newTestEngine(t)
	s := &schema.Schema{Nodes: []schema.NodeSpec{{Name: "only", Kind: "echo", Inputs: []any{1}}}}

	got, err := e.Call(context.Background(), EngineObject, "build", s, testCatalog{})
	require.NoError(t, err)

	nodes, ok := got.([]*Node)
	require.True(t, ok)
	assert.Len(t, nodes, 1)
	assert.Equal(t, 1, e.Queue().Size())

	_, err = e.Call(context.Background(), EngineObject, "build", s)
	assert.ErrorContains(t, err, "want schema and catalog")
}

func TestConnector_Spec(t *testing.T) {
	e := newTestEngine(t)
	a := mustNode(t, e, "a", identity)
	b := mustNode(t, e, "b", identity)
	c := mustNode(t, e, "c", identity)
	index := map[*Node]int{a: 0, b: 1}

	sync, err := e.SyncMerge([]*Node{a}, b, Splat())
	require.NoError(t, err)
	spec, err := sync.Spec(index)
	require.NoError(t, err)
	assert.Equal(t, schema.JoinSpec{Kind: "sync", Sources: []int{0}, Targets: []int{1}, Splat: true}, spec)

	fork, err := e.Fork(b, []*Node{c})
	require.NoError(t, err)
	_, err = fork.Spec(index)
	assert.ErrorContains(t, err, "node c is not registered")
}
