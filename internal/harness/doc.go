// Package harness provides conformance testing for the stratum data
// layer.
//
// The harness compiles resource definitions, runs scenario-driven
// operation sequences against a fresh in-memory engine, and validates
// the resulting trace and final state.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario exercises"
//	definitions:
//	  - path/to/resources.cue
//	seed:
//	  - resource: Track
//	    attrs: { id: t1, title: First, plays: 10 }
//	steps:
//	  - op: create
//	    resource: Track
//	    attrs: { id: t2, title: Second, plays: 3 }
//	  - op: query
//	    resource: Track
//	    filter: "plays >= 4"
//	    sort: ["-plays", "id"]
//	    limit: 10
//	  - op: destroy
//	    resource: Track
//	    key: [t9]
//	expect:
//	  - rows: { resource: Track, count: 2 }
//	  - record: { resource: Track, key: [t1], attrs: { plays: 10 } }
//	  - result_count: { step: 2, count: 2 }
//
// Step operations are create, update, destroy, upsert, query, and
// count. A step that should fail declares the error kind it expects:
//
//	- op: update
//	  resource: Track
//	  key: [missing]
//	  changes: { plays: 1 }
//	  expect_error: not_found
//
// # Assertion Kinds
//
//   - rows: total record count of a resource
//   - record: attribute values of the record at a primary key (subset
//     match over the named attributes)
//   - result_count: row or aggregate count recorded by a step
//   - error: outcome kind recorded by a step
//
// # Deterministic Execution
//
// Every scenario runs against a fresh in-memory engine with fixed
// transaction tokens, so repeated runs produce identical traces. The
// trace serializes through canonical JSON for golden file comparison
// via RunWithGolden.
//
// # Usage
//
// Load and run a scenario:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/crud.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
//
// Run a whole directory, as the CLI test command does:
//
//	suite, err := harness.RunDir("scenarios")
package harness
