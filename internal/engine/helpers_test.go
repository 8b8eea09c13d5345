package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/testutil"
)

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	base := []EngineOption{
		WithLogger(testutil.NewLogger(t)),
		WithWaveGenerator(testutil.NewWaveCounter("")),
	}
	return New(append(base, opts...)...)
}

func mustNode(t *testing.T, e *Engine, id string, fn Func) *Node {
	t.Helper()
	n, err := e.NewNode(id, fn)
	require.NoError(t, err)
	return n
}

func identity(_ context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return args[0], nil
}

func appendSuffix(s string) Func {
	return func(_ context.Context, args ...any) (any, error) {
		return args[0].(string) + s, nil
	}
}

func splitLines(_ context.Context, args ...any) (any, error) {
	return strings.Split(args[0].(string), "\n"), nil
}

func sortStrings(_ context.Context, args ...any) (any, error) {
	out := slices.Clone(args[0].([]string))
	slices.Sort(out)
	return out, nil
}

func joinArgs(_ context.Context, args ...any) (any, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, "+"), nil
}

// recorder counts calls and remembers the arguments of each.
type recorder struct {
	calls [][]any
}

func (r *recorder) fn(result any) Func {
	return func(_ context.Context, args ...any) (any, error) {
		r.calls = append(r.calls, args)
		return result, nil
	}
}

// collectedValues returns the values in the default aggregator in
// completion order.
func collectedValues(e *Engine) []any {
	var out []any
	for _, a := range e.Collected() {
		out = append(out, a.Value)
	}
	return out
}
