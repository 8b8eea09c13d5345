package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/roach88/weft/internal/audit"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/ir"
	"github.com/roach88/weft/internal/testutil"
)

func TestWriteResult_FillsIDAndHash(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	r, err := s.WriteResult(ctx, Result{Wave: "w1", Node: "n", Seq: 3, Value: "v"})
	if err != nil {
		t.Fatalf("WriteResult() failed: %v", err)
	}

	if len(r.ID) != 36 {
		t.Errorf("ID = %q, want a UUID", r.ID)
	}
	want := ir.MustResultHash("n", "v", []any{})
	if r.Hash != want {
		t.Errorf("Hash = %s, want %s", r.Hash, want)
	}

	got, err := s.ReadResult(ctx, r.ID)
	if err != nil {
		t.Fatalf("ReadResult() failed: %v", err)
	}
	if !reflect.DeepEqual(got, r) {
		t.Errorf("ReadResult() = %+v, want %+v", got, r)
	}
}

func TestWriteResult_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	r := Result{ID: "fixed", Wave: "w", Node: "n", Seq: 1, Value: 1}
	for i := 0; i < 2; i++ {
		if _, err := s.WriteResult(ctx, r); err != nil {
			t.Fatalf("WriteResult() #%d failed: %v", i, err)
		}
	}

	results, err := s.ReadResults(ctx, "w")
	if err != nil {
		t.Fatalf("ReadResults() failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestWriteResult_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.WriteResult(ctx, Result{Node: "n"}); err == nil || !strings.Contains(err.Error(), "empty wave") {
		t.Errorf("empty wave: err = %v", err)
	}
	if _, err := s.WriteResult(ctx, Result{Wave: "w", Node: "n", Value: math.NaN()}); err == nil {
		t.Error("NaN value should fail to marshal")
	}
}

func TestReadResults_DeterministicOrder(t *testing.T) {
	s := createTestStore(t)
	useSequentialIDs(s)
	ctx := context.Background()

	writes := []Result{
		{Wave: "w", Node: "late", Seq: 9, Value: "c"},
		{Wave: "w", Node: "tie-b", Seq: 2, Value: "b"},
		{Wave: "other", Node: "x", Seq: 1, Value: "x"},
		{Wave: "w", Node: "tie-a", Seq: 2, Value: "a"},
	}
	for _, r := range writes {
		if _, err := s.WriteResult(ctx, r); err != nil {
			t.Fatalf("WriteResult() failed: %v", err)
		}
	}

	results, err := s.ReadResults(ctx, "w")
	if err != nil {
		t.Fatalf("ReadResults() failed: %v", err)
	}
	var nodes []string
	for _, r := range results {
		nodes = append(nodes, r.Node)
	}
	want := []string{"tie-b", "tie-a", "late"}
	if !reflect.DeepEqual(nodes, want) {
		t.Errorf("order = %v, want %v (seq, then id)", nodes, want)
	}
}

func TestReadResults_EmptyWave(t *testing.T) {
	s := createTestStore(t)

	results, err := s.ReadResults(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("ReadResults() failed: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("ReadResults() = %#v, want empty non-nil slice", results)
	}
}

func TestReadResult_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadResult(context.Background(), "nope")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadResult() error = %v, want sql.ErrNoRows", err)
	}
}

func TestWriteResults_FromEngineRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := engine.New(
		engine.WithLogger(testutil.NewLogger(t)),
		engine.WithWaveGenerator(testutil.NewWaveCounter("")),
	)
	split, err := e.NewNode("split", func(_ context.Context, args ...any) (any, error) {
		return strings.Fields(args[0].(string)), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	count, err := e.NewNode("count", func(_ context.Context, args ...any) (any, error) {
		return len(args[0].([]string)), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Sequence(split, count); err != nil {
		t.Fatal(err)
	}

	var wave string
	e.Use(engine.Intercept(func(_ context.Context, n *engine.Node, _ *audit.Audit) {
		wave = n.Engine().Wave()
	}))
	if err := split.Enqueue("a b c"); err != nil {
		t.Fatal(err)
	}
	if err := e.Run(ctx); err != nil {
		t.Fatal(err)
	}

	written, err := s.WriteResults(ctx, wave, e.Collected())
	if err != nil {
		t.Fatalf("WriteResults() failed: %v", err)
	}
	if len(written) != 1 {
		t.Fatalf("wrote %d results, want 1", len(written))
	}

	results, err := s.ReadResults(ctx, "wave-1")
	if err != nil {
		t.Fatalf("ReadResults() failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("read %d results, want 1", len(results))
	}
	got := results[0]
	if got.Node != "count" || got.Value != 3 {
		t.Errorf("result = %s=%v, want count=3", got.Node, got.Value)
	}
	wantTrail := []any{
		[]any{nil, "a b c"},
		[]any{"split", []any{"a", "b", "c"}},
		[]any{"count", 3},
	}
	if !reflect.DeepEqual(got.Trail, wantTrail) {
		t.Errorf("trail = %#v, want %#v", got.Trail, wantTrail)
	}
	if got.Hash != written[0].Hash {
		t.Errorf("hash changed across storage: %s vs %s", got.Hash, written[0].Hash)
	}
}

func TestReadWaves(t *testing.T) {
	s := createTestStore(t)
	useSequentialIDs(s)
	ctx := context.Background()

	for _, r := range []Result{
		{Wave: "first", Node: "a", Seq: 1, Value: 1},
		{Wave: "first", Node: "a", Seq: 2, Value: 2},
		{Wave: "second", Node: "a", Seq: 1, Value: 1},
		{Wave: "first", Node: "b", Seq: 3, Value: 3},
	} {
		if _, err := s.WriteResult(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	waves, err := s.ReadWaves(ctx)
	if err != nil {
		t.Fatalf("ReadWaves() failed: %v", err)
	}
	want := []WaveSummary{
		{Wave: "first", Results: 3, Nodes: 2},
		{Wave: "second", Results: 1, Nodes: 1},
	}
	if !reflect.DeepEqual(waves, want) {
		t.Errorf("ReadWaves() = %+v, want %+v", waves, want)
	}
}
