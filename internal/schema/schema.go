package schema

import "fmt"

// Join kinds accepted in a JoinSpec.
const (
	JoinSequence = "sequence"
	JoinFork     = "fork"
	JoinMerge    = "merge"
	JoinSync     = "sync"
	JoinSwitch   = "switch"
)

// Schema is a graph description.
type Schema struct {
	Name   string     `json:"name" yaml:"name"`
	Nodes  []NodeSpec `json:"nodes" yaml:"nodes"`
	Joins  []JoinSpec `json:"joins,omitempty" yaml:"joins,omitempty"`
	Rounds [][]int    `json:"rounds,omitempty" yaml:"rounds,omitempty"`
}

// NodeSpec describes one node: the catalog kind that builds its callable,
// the constructor arguments, and the inputs it is enqueued with.
type NodeSpec struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Kind      string `json:"kind" yaml:"kind"`
	Args      []any  `json:"args,omitempty" yaml:"args,omitempty"`
	Inputs    []any  `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	DependsOn []int  `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// JoinSpec connects source nodes to target nodes by index.
type JoinSpec struct {
	Kind      string `json:"kind" yaml:"kind"`
	Sources   []int  `json:"sources" yaml:"sources"`
	Targets   []int  `json:"targets" yaml:"targets"`
	Iterate   bool   `json:"iterate,omitempty" yaml:"iterate,omitempty"`
	Splat     bool   `json:"splat,omitempty" yaml:"splat,omitempty"`
	Stack     bool   `json:"stack,omitempty" yaml:"stack,omitempty"`
	Aggregate bool   `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`
	Selector  string `json:"selector,omitempty" yaml:"selector,omitempty"`
}

// NodeName returns the registry name of node i: its Name, or kind-i when
// unnamed.
func (s *Schema) NodeName(i int) string {
	n := s.Nodes[i]
	if n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("%s-%d", n.Kind, i)
}

// InitialRounds returns the rounds to enqueue at build time. Without
// explicit rounds, every node that is neither the target of a join nor
// another node's dependency forms a single round, in declaration order.
func (s *Schema) InitialRounds() [][]int {
	if len(s.Rounds) > 0 {
		return s.Rounds
	}
	targeted := make(map[int]bool)
	for _, j := range s.Joins {
		for _, t := range j.Targets {
			targeted[t] = true
		}
	}
	for _, n := range s.Nodes {
		for _, d := range n.DependsOn {
			targeted[d] = true
		}
	}
	var round []int
	for i := range s.Nodes {
		if !targeted[i] {
			round = append(round, i)
		}
	}
	if len(round) == 0 {
		return nil
	}
	return [][]int{round}
}
