package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/stratumdb/stratum/internal/compiler"
	"github.com/stratumdb/stratum/internal/resource"
)

// LoadMode controls how errors are handled during definition loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading resource definitions from a
// directory.
type LoadResult struct {
	Resources []*resource.Resource
	CUEValue  cue.Value // the unified CUE value, for additional processing
	FileCount int       // number of CUE files found
}

// LoadError is an error that occurred during definition loading.
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

// LoadDefinitions loads and compiles CUE resource definitions from a
// directory. Every .cue file under dir (recursively) joins one build
// instance, so definitions may be split across files and packages may
// use imports. If mode is LoadModeFailFast, the first compile error
// returns; LoadModeCollectAll gathers one error per broken resource.
func LoadDefinitions(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definitions directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing definitions directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	// Name the files explicitly rather than loading the directory as a
	// package: definition files without a package clause still load.
	ctx := cuecontext.New()
	instances := load.Instances(cueFiles, nil)
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	root := value.LookupPath(cue.ParsePath("resource"))
	if !root.Exists() {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no resource definitions found (want a top-level \"resource\" struct)"})
		return result, errs
	}

	iter, iterErr := root.Fields()
	if iterErr != nil {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating resources: %v", iterErr)})
		return result, errs
	}
	for iter.Next() {
		res, compileErr := compiler.CompileResource(iter.Value(), iter.Label())
		if compileErr != nil {
			errs = append(errs, convertCompileError(compileErr, "resource."+iter.Label()))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Resources = append(result.Resources, res)
	}

	// CUE field iteration order is an implementation detail; sort by
	// name so command output is stable.
	sort.Slice(result.Resources, func(i, j int) bool {
		return result.Resources[i].Name < result.Resources[j].Name
	})

	if len(result.Resources) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no resource definitions found"})
	}

	return result, errs
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

// convertCompileError converts a compiler error to a LoadError with
// position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.Error
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    mapCompilePathToCode(compileErr.Path),
			Message: fmt.Sprintf("%s: %s", compileErr.Path, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	// Definition compile errors
	ErrCodeBadType      = "E101" // Unknown or non-storable attribute type
	ErrCodeBadAttribute = "E102" // Attribute block problems
	ErrCodeBadKey       = "E103" // Primary key problems
	ErrCodeBadResource  = "E104" // Resource-level schema problems
)

// mapCompilePathToCode maps a compile error's definition path to an error
// code.
func mapCompilePathToCode(path string) string {
	switch {
	case strings.HasSuffix(path, ".type"):
		return ErrCodeBadType
	case strings.Contains(path, ".primaryKey"):
		return ErrCodeBadKey
	case strings.Contains(path, ".attributes"):
		return ErrCodeBadAttribute
	case path == "resource" || path == "cue":
		return ErrCodeGeneric
	default:
		return ErrCodeBadResource
	}
}
