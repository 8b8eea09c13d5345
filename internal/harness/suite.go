package harness

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Golden comparison outcomes.
const (
	GoldenMatch    = "match"
	GoldenMismatch = "mismatch"
	GoldenMissing  = "missing"
	GoldenUpdated  = "updated"
)

// graphsDir holds graph files referenced by scenarios; it is not scanned
// for scenarios.
const graphsDir = "graphs"

// ScenarioOutcome is the result of one scenario file in a suite.
type ScenarioOutcome struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Total     int               `json:"total"`
}

// SuiteOptions configures RunSuite.
type SuiteOptions struct {
	Filter  string   // glob over scenario base names (without extension)
	Update  bool     // rewrite golden files instead of comparing
	Options []Option // passed to every Run
}

// FindScenarios lists the YAML scenario files under dir in lexical order,
// skipping any "graphs" directory.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == graphsDir {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

// RunSuite runs every scenario under dir. A scenario passes when its
// assertions hold and its golden file, if present, matches.
func RunSuite(ctx context.Context, dir string, opts SuiteOptions) (*SuiteResult, error) {
	files, err := FindScenarios(dir, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find scenarios: %w", err)
	}

	suite := &SuiteResult{Scenarios: make([]ScenarioOutcome, 0, len(files)), Total: len(files)}
	for _, file := range files {
		out := RunFile(ctx, file, opts.Update, opts.Options...)
		suite.Scenarios = append(suite.Scenarios, out)
		if out.Pass {
			suite.Passed++
		} else {
			suite.Failed++
		}
	}
	return suite, nil
}

// RunFile loads and runs one scenario file, then compares or updates its
// golden file.
func RunFile(ctx context.Context, file string, update bool, opts ...Option) ScenarioOutcome {
	out := ScenarioOutcome{Name: filepath.Base(file), File: file}

	scenario, err := LoadScenario(file)
	if err != nil {
		out.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return out
	}
	out.Name = scenario.Name

	result, err := RunContext(ctx, scenario, opts...)
	if err != nil {
		out.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return out
	}
	out.Errors = result.Errors

	if update {
		if err := UpdateGolden(file, scenario.Name, result); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return out
		}
		out.Golden = GoldenUpdated
		out.Pass = result.Pass
		return out
	}

	match, found, err := CompareGolden(file, scenario.Name, result)
	switch {
	case err != nil:
		out.Errors = append(out.Errors, fmt.Sprintf("golden comparison failed: %v", err))
		return out
	case !found:
		out.Golden = GoldenMissing
	case match:
		out.Golden = GoldenMatch
	default:
		out.Golden = GoldenMismatch
		out.Errors = append(out.Errors, "trace does not match golden file (run with --update to regenerate)")
		return out
	}

	out.Pass = result.Pass
	return out
}
