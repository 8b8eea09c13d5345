package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sortLines() *Schema {
	return &Schema{
		Name: "sort-lines",
		Nodes: []NodeSpec{
			{Name: "cat", Kind: "cat", Inputs: []any{"a\nc\nb"}},
			{Name: "sort", Kind: "sort"},
		},
		Joins: []JoinSpec{
			{Kind: JoinSequence, Sources: []int{0}, Targets: []int{1}},
		},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

// =============================================================================
// Validate
// =============================================================================

func TestValidateValid(t *testing.T) {
	assert.Empty(t, Validate(sortLines()))
}

func TestValidateNoNodes(t *testing.T) {
	errs := Validate(&Schema{Name: "empty"})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeNoNodes, errs[0].Code)
}

func TestValidateMissingKindAndDuplicateName(t *testing.T) {
	s := &Schema{Nodes: []NodeSpec{
		{Name: "a", Kind: "echo"},
		{Name: "a", Kind: " "},
	}}

	errs := Validate(s)
	assert.ElementsMatch(t, []string{ErrCodeMissingKind, ErrCodeDuplicateName}, codes(errs))
}

func TestValidateReservedName(t *testing.T) {
	s := &Schema{Nodes: []NodeSpec{{Name: ReservedName, Kind: "echo"}}}

	errs := Validate(s)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeReservedName, errs[0].Code)
}

func TestValidateBadReferences(t *testing.T) {
	s := sortLines()
	s.Nodes[1].DependsOn = []int{7}
	s.Joins[0].Targets = []int{2}
	s.Rounds = [][]int{{-1}}

	errs := Validate(s)
	assert.Equal(t, []string{ErrCodeBadReference, ErrCodeBadReference, ErrCodeBadReference}, codes(errs))
	assert.Equal(t, "nodes[1].depends_on", errs[0].Field)
	assert.Equal(t, "joins[0].targets", errs[1].Field)
	assert.Equal(t, "rounds[0]", errs[2].Field)
}

func TestValidateSelfDependency(t *testing.T) {
	s := sortLines()
	s.Nodes[0].DependsOn = []int{0}

	errs := Validate(s)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeSelfDependency, errs[0].Code)
}

func TestValidateJoinArity(t *testing.T) {
	tests := []struct {
		name string
		join JoinSpec
	}{
		{"sequence two targets", JoinSpec{Kind: JoinSequence, Sources: []int{0}, Targets: []int{1, 2}}},
		{"fork no targets", JoinSpec{Kind: JoinFork, Sources: []int{0}}},
		{"merge two targets", JoinSpec{Kind: JoinMerge, Sources: []int{0, 1}, Targets: []int{1, 2}}},
		{"sync no sources", JoinSpec{Kind: JoinSync, Targets: []int{2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Schema{
				Nodes: []NodeSpec{{Kind: "echo"}, {Kind: "echo"}, {Kind: "echo"}},
				Joins: []JoinSpec{tt.join},
			}
			errs := Validate(s)
			require.Len(t, errs, 1)
			assert.Equal(t, ErrCodeJoinArity, errs[0].Code)
		})
	}
}

func TestValidateSwitchSelector(t *testing.T) {
	s := &Schema{
		Nodes: []NodeSpec{{Kind: "echo"}, {Kind: "echo"}, {Kind: "echo"}},
		Joins: []JoinSpec{
			{Kind: JoinSwitch, Sources: []int{0}, Targets: []int{1, 2}},
			{Kind: JoinSequence, Sources: []int{1}, Targets: []int{2}, Selector: "nonempty"},
		},
	}

	errs := Validate(s)
	assert.Equal(t, []string{ErrCodeMissingSelector, ErrCodeSelectorNotValid}, codes(errs))
}

func TestValidateUnknownJoinKind(t *testing.T) {
	s := sortLines()
	s.Joins[0].Kind = "zip"

	errs := Validate(s)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeUnknownJoinKind, errs[0].Code)
	assert.Contains(t, errs[0].Message, "zip")
}

func TestValidateDuplicateSource(t *testing.T) {
	s := sortLines()
	s.Nodes = append(s.Nodes, NodeSpec{Name: "count", Kind: "count"})
	s.Joins = append(s.Joins, JoinSpec{Kind: JoinSequence, Sources: []int{0}, Targets: []int{2}})

	errs := Validate(s)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeDuplicateSource, errs[0].Code)
}

func TestValidateDependencyCycle(t *testing.T) {
	s := &Schema{Nodes: []NodeSpec{
		{Name: "a", Kind: "echo", DependsOn: []int{1}},
		{Name: "b", Kind: "echo", DependsOn: []int{0}},
		{Name: "c", Kind: "echo", DependsOn: []int{0}},
	}}

	errs := Validate(s)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeDependencyCycle, errs[0].Code)
	assert.Contains(t, errs[0].Message, "a -> b -> a")
}

// =============================================================================
// Join cycle analysis
// =============================================================================

func TestAnalyzeJoinCyclesDAG(t *testing.T) {
	assert.Empty(t, AnalyzeJoinCycles(sortLines()))
}

func TestAnalyzeJoinCyclesLoop(t *testing.T) {
	s := &Schema{
		Nodes: []NodeSpec{{Name: "a", Kind: "echo"}, {Name: "b", Kind: "echo"}},
		Joins: []JoinSpec{
			{Kind: JoinSequence, Sources: []int{0}, Targets: []int{1}},
			{Kind: JoinSwitch, Sources: []int{1}, Targets: []int{0}, Selector: "nonempty"},
		},
	}

	warnings := AnalyzeJoinCycles(s)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"a", "b", "a"}, warnings[0].Path)
}

func TestAnalyzeJoinCyclesSelfLoop(t *testing.T) {
	s := &Schema{
		Nodes: []NodeSpec{{Name: "a", Kind: "echo"}},
		Joins: []JoinSpec{{Kind: JoinSwitch, Sources: []int{0}, Targets: []int{0}, Selector: "nonempty"}},
	}

	warnings := AnalyzeJoinCycles(s)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"a", "a"}, warnings[0].Path)
}

// =============================================================================
// Names and rounds
// =============================================================================

func TestNodeNameDefaultsToKindAndIndex(t *testing.T) {
	s := &Schema{Nodes: []NodeSpec{{Name: "x", Kind: "echo"}, {Kind: "sort"}}}
	assert.Equal(t, "x", s.NodeName(0))
	assert.Equal(t, "sort-1", s.NodeName(1))
}

func TestInitialRoundsDefault(t *testing.T) {
	s := sortLines()
	s.Nodes = append(s.Nodes,
		NodeSpec{Name: "dep", Kind: "echo"},
		NodeSpec{Name: "other", Kind: "echo", DependsOn: []int{2}},
	)

	assert.Equal(t, [][]int{{0, 3}}, s.InitialRounds())
}

func TestInitialRoundsExplicit(t *testing.T) {
	s := sortLines()
	s.Rounds = [][]int{{1}, {0}}
	assert.Equal(t, [][]int{{1}, {0}}, s.InitialRounds())
}
