package harness

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/internal/codec"
	"github.com/stratumdb/stratum/internal/datalayer"
	"github.com/stratumdb/stratum/internal/filter"
	"github.com/stratumdb/stratum/internal/resource"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()

	path := filepath.Join("testdata", "scenarios", name)
	scenario, err := LoadScenarioWithBasePath(path, filepath.Dir(path))
	require.NoError(t, err)
	return scenario
}

// inlineScenario builds a scenario in Go against the shared Track
// definitions. Inline scenarios skip LoadScenario validation, which the
// loader tests cover separately.
func inlineScenario(name string, seed []SeedRecord, steps []Step, expect []Assertion) *Scenario {
	return &Scenario{
		Name:        name,
		Description: "inline fixture",
		Definitions: []string{filepath.Join("testdata", "definitions", "library.cue")},
		Seed:        seed,
		Steps:       steps,
		Expect:      expect,
	}
}

func trackSchema(t *testing.T) *resource.Resource {
	t.Helper()

	res := &resource.Resource{
		Name: "Track",
		Attributes: []resource.Attribute{
			{Name: "id", Type: resource.TypeString},
			{Name: "title", Type: resource.TypeString, AllowNil: true},
			{Name: "plays", Type: resource.TypeInt},
			{Name: "rating", Type: resource.TypeFloat, AllowNil: true},
		},
		PrimaryKey: []string{"id"},
	}
	require.NoError(t, res.Validate())
	return res
}

func TestRun_CrudRoundtrip(t *testing.T) {
	scenario := loadTestScenario(t, "crud_roundtrip.yaml")

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 4)

	assert.Equal(t, "seed", result.Trace[0].Op)
	assert.Equal(t, `["t2"]`, result.Trace[1].Key)
	assert.Equal(t, KindOK, result.Trace[2].Outcome)
	require.NotNil(t, result.Trace[3].Count)
	assert.Equal(t, 2, *result.Trace[3].Count)
	require.Len(t, result.Trace[3].Rows, 2)
	assert.Equal(t, "t1", result.Trace[3].Rows[0]["id"], "updated track sorts first on plays")
}

func TestRun_UpsertConflictScenario(t *testing.T) {
	scenario := loadTestScenario(t, "upsert_conflict.yaml")

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 4)
	assert.Equal(t, KindConflict, result.Trace[2].Outcome)
	assert.Empty(t, result.Trace[2].Key, "failed upserts write nothing")
}

func TestRun_UnexpectedErrorFailsScenario(t *testing.T) {
	scenario := inlineScenario("unexpected_error", nil,
		[]Step{
			{Op: OpUpdate, Resource: "Track", Key: []any{"zz"}, Changes: map[string]any{"plays": 1}},
		},
		[]Assertion{
			{Rows: &RowsAssertion{Resource: "Track", Count: 0}},
		},
	)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "unexpected error")
	assert.Equal(t, KindNotFound, result.Trace[0].Outcome)
}

func TestRun_ExpectedErrorButStepSucceeds(t *testing.T) {
	// Destroy is idempotent, so destroying a missing record succeeds.
	scenario := inlineScenario("missing_error", nil,
		[]Step{
			{Op: OpDestroy, Resource: "Track", Key: []any{"zz"}, ExpectError: KindNotFound},
		},
		[]Assertion{
			{Rows: &RowsAssertion{Resource: "Track", Count: 0}},
		},
	)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "expected not_found error, step succeeded")
}

func TestRun_ErrorKindMismatch(t *testing.T) {
	scenario := inlineScenario("kind_mismatch", nil,
		[]Step{
			{Op: OpUpdate, Resource: "Track", Key: []any{"zz"}, Changes: map[string]any{"plays": 1}, ExpectError: KindConflict},
		},
		[]Assertion{
			{Error: &ErrorAssertion{Step: 1, Kind: KindNotFound}},
		},
	)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "expected conflict error, got not_found")
}

func TestRun_ContinuesPastFailedStep(t *testing.T) {
	scenario := inlineScenario("continues", nil,
		[]Step{
			{Op: OpUpdate, Resource: "Track", Key: []any{"zz"}, Changes: map[string]any{"plays": 1}, ExpectError: KindNotFound},
			{Op: OpCreate, Resource: "Track", Attrs: map[string]any{"id": "t1", "plays": 4}},
		},
		[]Assertion{
			{Rows: &RowsAssertion{Resource: "Track", Count: 1}},
			{Record: &RecordAssertion{Resource: "Track", Key: []any{"t1"}, Attrs: map[string]any{"plays": 4, "title": nil}}},
		},
	)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, KindNotFound, result.Trace[0].Outcome)
	assert.Equal(t, KindOK, result.Trace[1].Outcome)
}

func TestRun_UnknownResourceStep(t *testing.T) {
	scenario := inlineScenario("unknown_resource", nil,
		[]Step{
			{Op: OpCreate, Resource: "Ghost", Attrs: map[string]any{"id": "g1"}, ExpectError: KindUnknownResource},
		},
		[]Assertion{
			{Error: &ErrorAssertion{Step: 1, Kind: KindUnknownResource}},
		},
	)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_CountStep(t *testing.T) {
	scenario := inlineScenario("count", []SeedRecord{
		{Resource: "Track", Attrs: map[string]any{"id": "t1", "plays": 1}},
		{Resource: "Track", Attrs: map[string]any{"id": "t2", "plays": 5}},
	},
		[]Step{
			{Op: OpCount, Resource: "Track", Where: "plays >= 2"},
		},
		[]Assertion{
			{ResultCount: &ResultCountAssertion{Step: 1, Count: 1}},
		},
	)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.NotNil(t, result.Trace[2].Count)
	assert.Equal(t, 1, *result.Trace[2].Count)
	assert.Nil(t, result.Trace[2].Rows, "count steps carry no rows")
}

func TestRun_SeedFailureAborts(t *testing.T) {
	scenario := inlineScenario("bad_seed", []SeedRecord{
		{Resource: "Track", Attrs: map[string]any{"id": "s1", "bogus": 1}},
	},
		[]Step{
			{Op: OpQuery, Resource: "Track"},
		},
		[]Assertion{
			{Rows: &RowsAssertion{Resource: "Track", Count: 0}},
		},
	)

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed records")
	assert.Contains(t, err.Error(), `no attribute "bogus"`)
}

func TestRun_BadDefinitionFile(t *testing.T) {
	scenario := inlineScenario("bad_defs", nil,
		[]Step{{Op: OpQuery, Resource: "Track"}},
		[]Assertion{{Rows: &RowsAssertion{Resource: "Track", Count: 0}}},
	)
	scenario.Definitions = []string{filepath.Join(t.TempDir(), "absent.cue")}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load definitions")
}

func TestErrorKind_Taxonomy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, KindOK},
		{"not found", &datalayer.NotFoundError{Resource: "Track", Key: `["x"]`}, KindNotFound},
		{"conflict", &datalayer.ConflictError{Resource: "Track", Keys: []string{"title"}, Matches: 2}, KindConflict},
		{"abort", &datalayer.AbortError{Reason: "stale"}, KindAbort},
		{"unsupported aggregate", &datalayer.UnsupportedAggregateError{Kind: datalayer.Kind(7)}, KindUnsupportedAggregate},
		{"unknown resource", &datalayer.UnknownResourceError{Name: "Ghost"}, KindUnknownResource},
		{"codec", &codec.Error{Resource: "Track", Attr: "plays", Op: "dump", Reason: "x"}, KindCodec},
		{"filter", &filter.Error{Attr: "plays", Reason: "x"}, KindFilter},
		{"plain", errors.New("negative limit"), KindInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, errorKind(tc.err))
		})
	}
}

func TestCoerceValue_Conversions(t *testing.T) {
	res := trackSchema(t)
	idAttr, _ := res.Attr("id")
	playsAttr, _ := res.Attr("plays")
	ratingAttr, _ := res.Attr("rating")
	titleAttr, _ := res.Attr("title")

	v, err := coerceValue(idAttr, "t1")
	require.NoError(t, err)
	assert.Equal(t, resource.String("t1"), v)

	v, err = coerceValue(playsAttr, 7)
	require.NoError(t, err)
	assert.Equal(t, resource.Int(7), v)

	// YAML sometimes hands integral values over as floats.
	v, err = coerceValue(playsAttr, float64(7))
	require.NoError(t, err)
	assert.Equal(t, resource.Int(7), v)

	v, err = coerceValue(ratingAttr, 4.5)
	require.NoError(t, err)
	assert.Equal(t, resource.Float(4.5), v)

	v, err = coerceValue(titleAttr, nil)
	require.NoError(t, err)
	assert.Equal(t, resource.Null{}, v)

	_, err = coerceValue(idAttr, []any{"no"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported value type")
}

func TestCoerceValue_TimeAndUUID(t *testing.T) {
	timeAttr := resource.Attribute{Name: "at", Type: resource.TypeTime}
	uuidAttr := resource.Attribute{Name: "ref", Type: resource.TypeUUID}

	v, err := coerceValue(timeAttr, "2024-05-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, resource.KindTime, resource.KindOf(v))

	_, err = coerceValue(timeAttr, "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad time literal")

	v, err = coerceValue(uuidAttr, "0190b347-2e45-7c3e-9a3c-111111111111")
	require.NoError(t, err)
	assert.Equal(t, resource.KindUUID, resource.KindOf(v))

	_, err = coerceValue(uuidAttr, "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad uuid literal")
}

func TestKeyObject_Arity(t *testing.T) {
	res := trackSchema(t)

	obj, err := keyObject(res, []any{"t1"})
	require.NoError(t, err)
	assert.Equal(t, resource.Object{"id": resource.String("t1")}, obj)

	_, err = keyObject(res, []any{"t1", "extra"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wants 1 primary key values, got 2")
}
