package filter

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/internal/resource"
)

func parseResource() *resource.Resource {
	return &resource.Resource{
		Name: "Event",
		Attributes: []resource.Attribute{
			{Name: "id", Type: resource.TypeUUID},
			{Name: "name", Type: resource.TypeString},
			{Name: "seats", Type: resource.TypeInt, AllowNil: true},
			{Name: "price", Type: resource.TypeFloat},
			{Name: "open", Type: resource.TypeBool},
			{Name: "starts_at", Type: resource.TypeTime},
		},
		PrimaryKey: []string{"id"},
	}
}

func TestParseComparisons(t *testing.T) {
	res := parseResource()

	tests := []struct {
		input string
		want  Predicate
	}{
		{"name == 'gig'", Eq{Attr: "name", Value: resource.String("gig")}},
		{"name != 'gig'", NotEq{Attr: "name", Value: resource.String("gig")}},
		{"seats < 10", Lt{Attr: "seats", Value: resource.Int(10)}},
		{"seats <= 10", Lte{Attr: "seats", Value: resource.Int(10)}},
		{"seats > -1", Gt{Attr: "seats", Value: resource.Int(-1)}},
		{"seats >= 0", Gte{Attr: "seats", Value: resource.Int(0)}},
		{"price >= 9.5", Gte{Attr: "price", Value: resource.Float(9.5)}},
		{"price == 10", Eq{Attr: "price", Value: resource.Int(10)}},
		{"open == true", Eq{Attr: "open", Value: resource.Bool(true)}},
		{"open == FALSE", Eq{Attr: "open", Value: resource.Bool(false)}},
		{"seats == null", IsNil{Attr: "seats"}},
		{"seats != null", Not{Pred: IsNil{Attr: "seats"}}},
		{"name in ('a', 'b')", In{Attr: "name", Values: []resource.Value{resource.String("a"), resource.String("b")}}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(res, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTypedLiterals(t *testing.T) {
	res := parseResource()

	id := uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")
	got, err := Parse(res, "id == '123e4567-e89b-12d3-a456-426614174000'")
	require.NoError(t, err)
	assert.Equal(t, Eq{Attr: "id", Value: resource.NewUUID(id)}, got)

	when := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	got, err = Parse(res, "starts_at >= '2024-05-01T18:00:00Z'")
	require.NoError(t, err)
	assert.Equal(t, Gte{Attr: "starts_at", Value: resource.NewTime(when)}, got)
}

func TestParsePrecedence(t *testing.T) {
	res := parseResource()

	// AND binds tighter than OR.
	got, err := Parse(res, "open == true OR seats > 5 AND name == 'x'")
	require.NoError(t, err)
	want := Or{Preds: []Predicate{
		Eq{Attr: "open", Value: resource.Bool(true)},
		And{Preds: []Predicate{
			Gt{Attr: "seats", Value: resource.Int(5)},
			Eq{Attr: "name", Value: resource.String("x")},
		}},
	}}
	assert.Equal(t, want, got)

	// Parentheses override.
	got, err = Parse(res, "(open == true OR seats > 5) AND name == 'x'")
	require.NoError(t, err)
	want2 := And{Preds: []Predicate{
		Or{Preds: []Predicate{
			Eq{Attr: "open", Value: resource.Bool(true)},
			Gt{Attr: "seats", Value: resource.Int(5)},
		}},
		Eq{Attr: "name", Value: resource.String("x")},
	}}
	assert.Equal(t, want2, got)

	got, err = Parse(res, "NOT open == false")
	require.NoError(t, err)
	assert.Equal(t, Not{Pred: Eq{Attr: "open", Value: resource.Bool(false)}}, got)
}

func TestParseQuotedStringsKeepSpacesAndKeywords(t *testing.T) {
	res := parseResource()

	got, err := Parse(res, "name == 'rock and roll'")
	require.NoError(t, err)
	assert.Equal(t, Eq{Attr: "name", Value: resource.String("rock and roll")}, got)
}

func TestParseErrors(t *testing.T) {
	res := parseResource()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", "   "},
		{"unknown attribute", "ghost == 1"},
		{"unterminated string", "name == 'oops"},
		{"missing operator", "name 'x'"},
		{"trailing input", "seats > 1 name"},
		{"single equals", "name = 'x'"},
		{"float for int attr", "seats == 1.5"},
		{"string for int attr", "seats == 'ten'"},
		{"bool for string attr", "name == true"},
		{"bad uuid literal", "id == 'not-a-uuid'"},
		{"bad time literal", "starts_at > 'yesterday'"},
		{"ordering against null", "seats > null"},
		{"unbalanced paren", "(seats > 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(res, tt.input)
			require.Error(t, err)
		})
	}
}

func TestFormatRoundTripsThroughParse(t *testing.T) {
	res := parseResource()

	inputs := []string{
		"name == 'gig'",
		"seats >= 10 AND price < 99.5",
		"(open == true OR seats > 5) AND name != 'x'",
		"name in ('a', 'b') OR seats == null",
		"NOT open == true",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			first, err := Parse(res, input)
			require.NoError(t, err)

			again, err := Parse(res, Format(first))
			require.NoError(t, err)
			assert.Equal(t, first, again)
		})
	}
}
