package harness

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarizes a run over a directory of scenarios.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Failures []SuiteFailure `json:"failures,omitempty"`
}

// SuiteFailure describes one scenario that failed to load, run, or pass.
type SuiteFailure struct {
	Scenario string `json:"scenario,omitempty"`
	Path     string `json:"path"`
	Error    string `json:"error"`
}

func (r *SuiteResult) fail(path, name, msg string) {
	r.Failed++
	r.Failures = append(r.Failures, SuiteFailure{
		Scenario: name,
		Path:     path,
		Error:    msg,
	})
}

// Pass reports whether every scenario in the suite passed.
func (r *SuiteResult) Pass() bool {
	return r.Failed == 0
}

// RunDir loads and runs every scenario file (*.yaml, *.yml) in dir, in
// lexical path order. Definition paths inside each scenario resolve
// relative to the scenario's own directory. A load or execution failure
// counts the scenario as failed rather than aborting the suite.
func RunDir(dir string) (*SuiteResult, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scan scenario directory: %w", err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files in %s", dir)
	}

	suite := &SuiteResult{}
	for _, path := range paths {
		suite.Total++

		scenario, err := LoadScenarioWithBasePath(path, filepath.Dir(path))
		if err != nil {
			suite.fail(path, "", fmt.Sprintf("load scenario: %v", err))
			continue
		}

		result, err := Run(scenario)
		if err != nil {
			suite.fail(path, scenario.Name, fmt.Sprintf("run scenario: %v", err))
			continue
		}
		if !result.Pass {
			suite.fail(path, scenario.Name, strings.Join(result.Errors, "; "))
			continue
		}
		suite.Passed++
	}
	return suite, nil
}
