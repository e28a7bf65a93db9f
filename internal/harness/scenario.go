package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario: resource definitions to load,
// records to seed, data-layer operations to run, and assertions on the
// outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the golden
	// file name for trace comparison.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description"`

	// Definitions lists CUE resource definition files to compile and
	// register. Paths are relative to the scenario file location.
	Definitions []string `yaml:"definitions"`

	// Seed contains records written before the steps run. Seeding is
	// assumed to succeed; a failing seed aborts the scenario.
	Seed []SeedRecord `yaml:"seed,omitempty"`

	// Steps are the operations under test, run in order. Each step can
	// declare the error kind it expects instead of success.
	Steps []Step `yaml:"steps"`

	// Expect contains assertions evaluated after all steps ran.
	Expect []Assertion `yaml:"expect"`
}

// SeedRecord is one record written during scenario setup.
type SeedRecord struct {
	// Resource is the resource name the record belongs to.
	Resource string `yaml:"resource"`

	// Attrs holds the record's attribute values. Values are coerced to
	// the declared attribute types during execution.
	Attrs map[string]any `yaml:"attrs"`
}

// Step is one data-layer operation in a scenario.
type Step struct {
	// Op names the operation: create, update, destroy, upsert, query,
	// or count.
	Op string `yaml:"op"`

	// Resource is the resource the operation targets.
	Resource string `yaml:"resource"`

	// Attrs holds the staged record for create and upsert.
	Attrs map[string]any `yaml:"attrs,omitempty"`

	// Key identifies the current record for update and destroy. Values
	// are positional against the resource's primary key attributes.
	Key []any `yaml:"key,omitempty"`

	// Changes holds the attribute changes for update.
	Changes map[string]any `yaml:"changes,omitempty"`

	// Keys names the upsert key attributes. Empty means the primary key.
	Keys []string `yaml:"keys,omitempty"`

	// Filter is a filter expression applied by query and count.
	Filter string `yaml:"filter,omitempty"`

	// Where is the count aggregate's sub-filter, evaluated per matched
	// record on top of Filter.
	Where string `yaml:"where,omitempty"`

	// Sort lists sort specs for query: "attr" ascending, "-attr"
	// descending, most significant first.
	Sort []string `yaml:"sort,omitempty"`

	// Limit bounds the query window. Omitted means unbounded; an
	// explicit zero returns no rows.
	Limit *int `yaml:"limit,omitempty"`

	// Offset skips leading rows before the limit applies.
	Offset int `yaml:"offset,omitempty"`

	// ExpectError is the error kind this step must fail with. Empty
	// means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operation names.
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDestroy = "destroy"
	OpUpsert  = "upsert"
	OpQuery   = "query"
	OpCount   = "count"
)

var knownOps = map[string]bool{
	OpCreate:  true,
	OpUpdate:  true,
	OpDestroy: true,
	OpUpsert:  true,
	OpQuery:   true,
	OpCount:   true,
}

// Error kinds recognized in expect_error and error assertions. Every
// step failure is classified into exactly one of these.
const (
	KindOK                   = "ok"
	KindNotFound             = "not_found"
	KindConflict             = "conflict"
	KindAbort                = "abort"
	KindCodec                = "codec"
	KindFilter               = "filter"
	KindUnknownResource      = "unknown_resource"
	KindUnsupportedAggregate = "unsupported_aggregate"
	KindInvalid              = "invalid"
)

var knownErrorKinds = map[string]bool{
	KindNotFound:             true,
	KindConflict:             true,
	KindAbort:                true,
	KindCodec:                true,
	KindFilter:               true,
	KindUnknownResource:      true,
	KindUnsupportedAggregate: true,
	KindInvalid:              true,
}

// Assertion validates final state or a step outcome. Exactly one of the
// fields must be set.
type Assertion struct {
	// Rows asserts the total row count of a resource.
	Rows *RowsAssertion `yaml:"rows,omitempty"`

	// Record asserts a stored record's attribute values.
	Record *RecordAssertion `yaml:"record,omitempty"`

	// ResultCount asserts the row or aggregate count a step produced.
	ResultCount *ResultCountAssertion `yaml:"result_count,omitempty"`

	// Error asserts the error kind a step failed with.
	Error *ErrorAssertion `yaml:"error,omitempty"`
}

// RowsAssertion checks how many records a resource's table holds.
type RowsAssertion struct {
	Resource string `yaml:"resource"`
	Count    int    `yaml:"count"`
}

// RecordAssertion checks a stored record identified by its primary key.
// Attrs is a subset match: only the named attributes are compared.
type RecordAssertion struct {
	Resource string         `yaml:"resource"`
	Key      []any          `yaml:"key"`
	Attrs    map[string]any `yaml:"attrs"`
}

// ResultCountAssertion checks the count recorded by a query or count
// step. Step references are 1-based over the scenario's steps.
type ResultCountAssertion struct {
	Step  int `yaml:"step"`
	Count int `yaml:"count"`
}

// ErrorAssertion checks the outcome kind of a step. Step references are
// 1-based over the scenario's steps.
type ErrorAssertion struct {
	Step int    `yaml:"step"`
	Kind string `yaml:"kind"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently skipping a step.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, "")
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving relative definition paths against basePath. Use this when
// scenario files reference definitions with paths relative to their own
// location.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	for i, defPath := range scenario.Definitions {
		if !filepath.IsAbs(defPath) && basePath != "" {
			scenario.Definitions[i] = filepath.Join(basePath, defPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that step
// references resolve.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Definitions) == 0 {
		return fmt.Errorf("definitions list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Expect) == 0 {
		return fmt.Errorf("expect list is required and must be non-empty")
	}

	for _, defPath := range s.Definitions {
		if _, err := os.Stat(defPath); os.IsNotExist(err) {
			return fmt.Errorf("definition file not found: %s", defPath)
		}
	}

	for i, seed := range s.Seed {
		if seed.Resource == "" {
			return fmt.Errorf("seed[%d]: resource is required", i)
		}
		if len(seed.Attrs) == 0 {
			return fmt.Errorf("seed[%d]: attrs is required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Expect {
		if err := validateAssertion(i, &assertion, len(s.Steps)); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	if step.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", index)
	}
	if !knownOps[step.Op] {
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}
	if step.Resource == "" {
		return fmt.Errorf("steps[%d]: resource is required", index)
	}

	switch step.Op {
	case OpCreate, OpUpsert:
		if len(step.Attrs) == 0 {
			return fmt.Errorf("steps[%d]: attrs is required for %s", index, step.Op)
		}
	case OpUpdate:
		if len(step.Key) == 0 {
			return fmt.Errorf("steps[%d]: key is required for update", index)
		}
		if len(step.Changes) == 0 {
			return fmt.Errorf("steps[%d]: changes is required for update", index)
		}
	case OpDestroy:
		if len(step.Key) == 0 {
			return fmt.Errorf("steps[%d]: key is required for destroy", index)
		}
	}

	if step.ExpectError != "" && !knownErrorKinds[step.ExpectError] {
		return fmt.Errorf("steps[%d]: unknown error kind %q", index, step.ExpectError)
	}
	return nil
}

func validateAssertion(index int, a *Assertion, stepCount int) error {
	set := 0
	for _, present := range []bool{a.Rows != nil, a.Record != nil, a.ResultCount != nil, a.Error != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("expect[%d]: exactly one of rows, record, result_count, error must be set", index)
	}

	switch {
	case a.Rows != nil:
		if a.Rows.Resource == "" {
			return fmt.Errorf("expect[%d]: rows.resource is required", index)
		}
		if a.Rows.Count < 0 {
			return fmt.Errorf("expect[%d]: rows.count must be non-negative", index)
		}
	case a.Record != nil:
		if a.Record.Resource == "" {
			return fmt.Errorf("expect[%d]: record.resource is required", index)
		}
		if len(a.Record.Key) == 0 {
			return fmt.Errorf("expect[%d]: record.key is required", index)
		}
		if len(a.Record.Attrs) == 0 {
			return fmt.Errorf("expect[%d]: record.attrs is required", index)
		}
	case a.ResultCount != nil:
		if a.ResultCount.Step < 1 || a.ResultCount.Step > stepCount {
			return fmt.Errorf("expect[%d]: result_count.step %d is out of range (scenario has %d steps)", index, a.ResultCount.Step, stepCount)
		}
		if a.ResultCount.Count < 0 {
			return fmt.Errorf("expect[%d]: result_count.count must be non-negative", index)
		}
	case a.Error != nil:
		if a.Error.Step < 1 || a.Error.Step > stepCount {
			return fmt.Errorf("expect[%d]: error.step %d is out of range (scenario has %d steps)", index, a.Error.Step, stepCount)
		}
		if a.Error.Kind == "" {
			return fmt.Errorf("expect[%d]: error.kind is required", index)
		}
		if !knownErrorKinds[a.Error.Kind] {
			return fmt.Errorf("expect[%d]: unknown error kind %q", index, a.Error.Kind)
		}
	}
	return nil
}
