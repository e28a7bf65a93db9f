package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/stratumdb/stratum/internal/resource"
)

// TraceSnapshot captures the complete trace of a scenario execution for
// golden comparison. Serialization goes through canonical JSON so byte
// equality is meaningful.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// Canonical serializes the snapshot as canonical JSON. The goldie
// fixtures and the CLI's golden comparison both go through this method,
// so the two can never drift apart.
func (s *TraceSnapshot) Canonical() ([]byte, error) {
	return resource.MarshalCanonical(s.toCanonicalMap())
}

// toCanonicalMap converts the snapshot into the native shape canonical
// JSON accepts. Optional fields are omitted rather than serialized as
// zero values.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	events := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":      ev.Seq,
			"op":       ev.Op,
			"resource": ev.Resource,
			"outcome":  ev.Outcome,
		}
		if ev.Key != "" {
			m["key"] = ev.Key
		}
		if ev.Count != nil {
			m["count"] = *ev.Count
		}
		if ev.Rows != nil {
			rows := make([]any, len(ev.Rows))
			for j, row := range ev.Rows {
				native := make(map[string]any, len(row))
				for name, val := range row {
					native[name] = val
				}
				rows[j] = native
			}
			m["rows"] = rows
		}
		events[i] = m
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         events,
	}
}

// RunWithGolden executes a scenario and compares its trace against the
// golden file testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files are the source of truth for expected traces: any change
// to execution order, trace fields, or serialization shows up as a
// byte-level diff.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already-obtained result's trace against the
// golden file for scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}
	traceJSON, err := snapshot.Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
