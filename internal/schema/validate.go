package schema

import (
	"fmt"
	"slices"
	"strings"
)

// Error codes shared by the loaders and Validate.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build or decode failed
	ErrCodeParseFailed = "E007" // YAML parse failed

	// Graph validation errors (E201-E219)
	ErrCodeNoNodes          = "E201" // at least one node required
	ErrCodeDuplicateName    = "E202" // two nodes share a registry name
	ErrCodeMissingKind      = "E203" // node kind is required
	ErrCodeBadReference     = "E204" // node index out of range
	ErrCodeUnknownJoinKind  = "E205" // join kind not recognized
	ErrCodeJoinArity        = "E206" // wrong number of sources or targets
	ErrCodeDependencyCycle  = "E207" // depends_on forms a cycle
	ErrCodeMissingSelector  = "E208" // switch join without selector
	ErrCodeSelfDependency   = "E209" // node depends on itself
	ErrCodeReservedName     = "E210" // node uses a reserved registry name
	ErrCodeDuplicateSource  = "E211" // a node is a source of two joins
	ErrCodeSelectorNotValid = "E212" // selector set on a non-switch join
)

// ReservedName is the registry name the engine answers for itself.
const ReservedName = "engine"

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a schema for structural errors.
// Returns all errors found (does not fail-fast).
func Validate(s *Schema) []ValidationError {
	var errs []ValidationError

	// E201: at least one node
	if len(s.Nodes) == 0 {
		return []ValidationError{{
			Field:   "nodes",
			Message: "at least one node is required",
			Code:    ErrCodeNoNodes,
		}}
	}

	inRange := func(i int) bool { return i >= 0 && i < len(s.Nodes) }
	badRef := func(field string, i int) ValidationError {
		return ValidationError{
			Field:   field,
			Message: fmt.Sprintf("node index %d out of range [0,%d)", i, len(s.Nodes)),
			Code:    ErrCodeBadReference,
		}
	}

	seen := make(map[string]int)
	for i, n := range s.Nodes {
		field := fmt.Sprintf("nodes[%d]", i)

		if strings.TrimSpace(n.Kind) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: "kind is required",
				Code:    ErrCodeMissingKind,
			})
		}

		name := s.NodeName(i)
		if name == ReservedName {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("%q is reserved", ReservedName),
				Code:    ErrCodeReservedName,
			})
		}
		if prev, dup := seen[name]; dup {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("name %q already used by nodes[%d]", name, prev),
				Code:    ErrCodeDuplicateName,
			})
		} else {
			seen[name] = i
		}

		for _, d := range n.DependsOn {
			switch {
			case !inRange(d):
				errs = append(errs, badRef(field+".depends_on", d))
			case d == i:
				errs = append(errs, ValidationError{
					Field:   field + ".depends_on",
					Message: "node cannot depend on itself",
					Code:    ErrCodeSelfDependency,
				})
			}
		}
	}

	sourced := make(map[int]int)
	for j, js := range s.Joins {
		errs = append(errs, validateJoin(s, j, js, inRange, badRef)...)
		for _, src := range js.Sources {
			if !inRange(src) {
				continue
			}
			if prev, dup := sourced[src]; dup {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("joins[%d].sources", j),
					Message: fmt.Sprintf("node %s is already a source of joins[%d]", s.NodeName(src), prev),
					Code:    ErrCodeDuplicateSource,
				})
				continue
			}
			sourced[src] = j
		}
	}

	for r, round := range s.Rounds {
		for _, i := range round {
			if !inRange(i) {
				errs = append(errs, badRef(fmt.Sprintf("rounds[%d]", r), i))
			}
		}
	}

	// E207 only makes sense once every reference resolves.
	if len(errs) == 0 {
		for _, cycle := range dependencyCycles(s) {
			errs = append(errs, ValidationError{
				Field:   "depends_on",
				Message: fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")),
				Code:    ErrCodeDependencyCycle,
			})
		}
	}

	return errs
}

func validateJoin(s *Schema, j int, js JoinSpec, inRange func(int) bool, badRef func(string, int) ValidationError) []ValidationError {
	var errs []ValidationError
	field := fmt.Sprintf("joins[%d]", j)

	for _, i := range js.Sources {
		if !inRange(i) {
			errs = append(errs, badRef(field+".sources", i))
		}
	}
	for _, i := range js.Targets {
		if !inRange(i) {
			errs = append(errs, badRef(field+".targets", i))
		}
	}

	arity := func(msg string) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: msg,
			Code:    ErrCodeJoinArity,
		})
	}

	switch js.Kind {
	case JoinSequence:
		if len(js.Sources) != 1 || len(js.Targets) != 1 {
			arity("sequence needs exactly one source and one target")
		}
	case JoinFork:
		if len(js.Sources) != 1 || len(js.Targets) == 0 {
			arity("fork needs exactly one source and at least one target")
		}
	case JoinMerge, JoinSync:
		if len(js.Sources) == 0 || len(js.Targets) != 1 {
			arity(js.Kind + " needs at least one source and exactly one target")
		}
	case JoinSwitch:
		if len(js.Sources) != 1 || len(js.Targets) == 0 {
			arity("switch needs exactly one source and at least one target")
		}
		if js.Selector == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".selector",
				Message: "switch join requires a selector",
				Code:    ErrCodeMissingSelector,
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   field + ".kind",
			Message: fmt.Sprintf("unknown join kind %q", js.Kind),
			Code:    ErrCodeUnknownJoinKind,
		})
	}

	if js.Selector != "" && js.Kind != JoinSwitch {
		errs = append(errs, ValidationError{
			Field:   field + ".selector",
			Message: "selector is only valid on switch joins",
			Code:    ErrCodeSelectorNotValid,
		})
	}
	return errs
}

// dependencyCycles returns one path per strongly connected component of
// the depends_on graph that contains a cycle.
func dependencyCycles(s *Schema) [][]string {
	graph := make(dependencyGraph)
	for i, n := range s.Nodes {
		name := s.NodeName(i)
		graph[name] = []string{}
		for _, d := range n.DependsOn {
			graph[name] = append(graph[name], s.NodeName(d))
		}
	}

	var cycles [][]string
	for _, scc := range tarjanSCC(graph, nodeOrder(s)) {
		if len(scc) > 1 {
			cycles = append(cycles, reconstructCyclePath(scc, graph))
		}
	}
	return cycles
}

func nodeOrder(s *Schema) []string {
	names := make([]string, len(s.Nodes))
	for i := range s.Nodes {
		names[i] = s.NodeName(i)
	}
	return names
}

// CycleWarning reports a loop formed by joins. Join loops are legal, a
// switch can route back upstream until its selector stops, so they are
// warnings rather than errors.
type CycleWarning struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

// AnalyzeJoinCycles performs static cycle analysis on the join graph.
//
// The algorithm:
//  1. Build source -> target edges from every join
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop
//
// A DAG returns an empty warning list.
func AnalyzeJoinCycles(s *Schema) []CycleWarning {
	graph := make(dependencyGraph)
	for i := range s.Nodes {
		graph[s.NodeName(i)] = []string{}
	}
	for _, j := range s.Joins {
		for _, src := range j.Sources {
			for _, dst := range j.Targets {
				if src < 0 || src >= len(s.Nodes) || dst < 0 || dst >= len(s.Nodes) {
					continue
				}
				from := s.NodeName(src)
				graph[from] = append(graph[from], s.NodeName(dst))
			}
		}
	}

	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(graph, nodeOrder(s)) {
		switch {
		case len(scc) == 1 && slices.Contains(graph[scc[0]], scc[0]):
			warnings = append(warnings, CycleWarning{
				Path:    []string{scc[0], scc[0]},
				Message: fmt.Sprintf("node feeds itself: %s -> %s", scc[0], scc[0]),
			})
		case len(scc) > 1:
			path := reconstructCyclePath(scc, graph)
			warnings = append(warnings, CycleWarning{
				Path:    path,
				Message: fmt.Sprintf("join loop: %s", strings.Join(path, " -> ")),
			})
		}
	}
	return warnings
}

// dependencyGraph maps node name -> names it points at.
type dependencyGraph map[string][]string

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Roots are visited in the given order so results are deterministic.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root: pop its component
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath walks edges inside the SCC from its
// lexicographically first member until it returns there.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := slices.Min(scc)

	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, w := range graph[current] {
			if w == start && len(path) > 1 {
				return append(path, start)
			}
			if members[w] && !visited[w] && next == "" {
				next = w
			}
		}
		if next == "" {
			return append(path, start)
		}
		path = append(path, next)
		visited[next] = true
		current = next
	}
}
