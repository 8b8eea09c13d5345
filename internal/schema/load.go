package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// LoadError represents an error that occurred while loading a schema.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads a schema from path. A directory is loaded as a CUE package,
// a .cue file as a single-file CUE package, and anything else as YAML.
func Load(path string) (*Schema, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("graph not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing graph: %v", err)}
	}
	if info.IsDir() || strings.EqualFold(filepath.Ext(path), ".cue") {
		return LoadCUE(path)
	}
	return LoadYAML(path)
}

// LoadYAML reads a YAML schema file.
func LoadYAML(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("graph not found: %s", path)}
		}
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	return ParseYAML(data)
}

// ParseYAML decodes a YAML schema document. Unknown fields are rejected.
func ParseYAML(data []byte) (*Schema, error) {
	var s Schema
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Code: ErrCodeParseFailed, Message: "empty document"}
		}
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: err.Error()}
	}
	return &s, nil
}

// LoadCUE loads a schema from a CUE package directory or a single .cue
// file. The package's top level must unify to a Schema:
//
//	name: "sort-lines"
//	nodes: [{name: "cat", kind: "cat", inputs: ["a\nc\nb"]}, {name: "sort", kind: "sort"}]
//	joins: [{kind: "sequence", sources: [0], targets: [1]}]
func LoadCUE(path string) (*Schema, error) {
	dir, args := path, []string{"."}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		dir, args = filepath.Dir(path), []string{filepath.Base(path)}
	} else if err == nil {
		files, scanErr := FindCUEFiles(path)
		if scanErr != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", scanErr)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
	} else {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("graph not found: %s", path)}
	}

	ctx := cuecontext.New()
	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, cueLoadError(err)
	}
	return DecodeCUE(value)
}

// ParseCUE compiles a CUE source string into a Schema.
func ParseCUE(src string) (*Schema, error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, cueLoadError(err)
	}
	return DecodeCUE(value)
}

// DecodeCUE converts a concrete CUE value into a Schema.
func DecodeCUE(v cue.Value) (*Schema, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(err)
	}
	var s Schema
	if err := v.Decode(&s); err != nil {
		return nil, cueLoadError(err)
	}
	return &s, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// cueLoadError keeps the position of the first CUE error, if any.
func cueLoadError(err error) *LoadError {
	le := &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Pos = errs[0].Position()
		le.Message = cueerrors.Details(errs[0], nil)
	}
	return le
}
