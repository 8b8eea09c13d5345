package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/weft/internal/schema"
)

// ErrCodeBuildFailed reports a graph that validates but cannot be wired
// with the builtin catalog (unknown kind, bad constructor arguments).
const ErrCodeBuildFailed = "E301"

// GraphError is returned when a graph file loads but fails validation.
type GraphError struct {
	Path   string
	Errors []schema.ValidationError
}

func (e *GraphError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, verr := range e.Errors {
		msgs[i] = verr.Error()
	}
	return fmt.Sprintf("%s: %d validation error(s): %s", e.Path, len(e.Errors), strings.Join(msgs, "; "))
}

// loadGraph reads and validates the graph at path. Graphs without a name
// are named after the file (or directory) they came from.
//
// A missing or unparseable file is a command error; a graph that loads but
// does not validate is a failure.
func loadGraph(path string) (*schema.Schema, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "graph not found", err)
	}
	g, err := schema.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load graph", err)
	}
	if verrs := schema.Validate(g); len(verrs) > 0 {
		return nil, WrapExitError(ExitFailure, "invalid graph", &GraphError{Path: path, Errors: verrs})
	}
	if g.Name == "" {
		g.Name = graphName(path)
	}
	return g, nil
}

// graphName derives a name from a graph path: "graphs/sort.yaml" -> "sort".
func graphName(path string) string {
	base := filepath.Base(filepath.Clean(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// errorCode picks the code reported for err in a JSON error envelope.
func errorCode(err error) string {
	var loadErr *schema.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	var graphErr *GraphError
	if errors.As(err, &graphErr) && len(graphErr.Errors) > 0 {
		return graphErr.Errors[0].Code
	}
	return ""
}
