package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/jsonvalue"
)

func course(id, name, state string) entity.Record {
	return entity.Record{
		Type: "course",
		ID:   id,
		Fields: jsonvalue.Object{
			"name":             jsonvalue.String(name),
			"enrollment_state": jsonvalue.String(state),
		},
	}
}

func ids(records []entity.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestMatch_Predicates(t *testing.T) {
	r := entity.Record{
		Type: "assignment",
		ID:   "a1",
		Fields: jsonvalue.Object{
			"name":     jsonvalue.String("Essay Draft"),
			"points":   jsonvalue.Int(10),
			"types":    jsonvalue.Array{jsonvalue.String("student"), jsonvalue.String("ta")},
			"due_at":   jsonvalue.Null{},
			"group":    jsonvalue.Object{"position": jsonvalue.Int(2)},
			"enrolled": jsonvalue.Bool(true),
		},
	}

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"nil is true", nil, true},
		{"equals string", EqString("name", "Essay Draft"), true},
		{"equals wrong", EqString("name", "Quiz"), false},
		{"equals missing is null", Eq("missing", jsonvalue.Null{}), true},
		{"in", In{Field: "points", Values: []jsonvalue.Value{jsonvalue.Int(5), jsonvalue.Int(10)}}, true},
		{"contains ignore case", Contains{Field: "name", Substring: "essay", IgnoreCase: true}, true},
		{"contains case sensitive", Contains{Field: "name", Substring: "essay"}, false},
		{"contains array element", Contains{Field: "types", Substring: "STUDENT", IgnoreCase: true}, true},
		{"contains missing field", Contains{Field: "nope", Substring: "x"}, false},
		{"is null explicit", IsNull{Field: "due_at"}, true},
		{"is null missing", IsNull{Field: "nope"}, true},
		{"is null present", IsNull{Field: "name"}, false},
		{"cmp gt", Cmp{Field: "points", Op: Gt, Value: jsonvalue.Int(5)}, true},
		{"cmp lte", Cmp{Field: "points", Op: Lte, Value: jsonvalue.Int(9)}, false},
		{"cmp null never matches", Cmp{Field: "due_at", Op: Lt, Value: jsonvalue.String("2030")}, false},
		{"cmp type mismatch", Cmp{Field: "points", Op: Lt, Value: jsonvalue.String("z")}, false},
		{"nested path", Eq("group.position", jsonvalue.Int(2)), true},
		{"and", AllOf(EqString("name", "Essay Draft"), Eq("enrolled", jsonvalue.Bool(true))), true},
		{"empty and", And{}, true},
		{"empty or", Or{}, false},
		{"or", Or{Predicates: []Predicate{EqString("name", "x"), Eq("points", jsonvalue.Int(10))}}, true},
		{"not", Not{Predicate: EqString("name", "x")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pred, r))
		})
	}
}

func TestAllOf_Simplifies(t *testing.T) {
	assert.Equal(t, True{}, AllOf())
	assert.Equal(t, True{}, AllOf(nil, True{}))

	single := EqString("a", "b")
	assert.Equal(t, single, AllOf(True{}, single))
}

func TestScope_ApplyFiltersAndSorts(t *testing.T) {
	sc := Where("course", "enrollment_state", jsonvalue.String("active"), Asc("name"))

	records := []entity.Record{
		course("2", "Biology", "active"),
		course("1", "Algebra", "active"),
		course("3", "Chemistry", "completed"),
		{Type: "assignment", ID: "9", Fields: jsonvalue.Object{"enrollment_state": jsonvalue.String("active")}},
	}

	got := sc.Apply(records)
	assert.Equal(t, []string{"1", "2"}, ids(got))
	assert.Equal(t, "2", records[0].ID, "input must not be reordered")
}

func TestScope_TiesBrokenByID(t *testing.T) {
	sc := All("course", Asc("enrollment_state"))
	got := sc.Apply([]entity.Record{
		course("b", "x", "active"),
		course("c", "y", "active"),
		course("a", "z", "active"),
	})
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
}

func TestScope_DescendingAndNatural(t *testing.T) {
	records := []entity.Record{
		course("1", "Week 10", "active"),
		course("2", "week 2", "active"),
		course("3", "Week 1", "active"),
	}

	natural := All("course", Naturally("name"))
	assert.Equal(t, []string{"3", "2", "1"}, ids(natural.Apply(records)))

	plain := All("course", Asc("name"))
	assert.Equal(t, []string{"3", "1", "2"}, ids(plain.Apply(records)))

	desc := All("course", Desc("name"))
	assert.Equal(t, []string{"2", "1", "3"}, ids(desc.Apply(records)))
}

func TestScope_MissingSortFieldSortsFirst(t *testing.T) {
	records := []entity.Record{
		course("1", "Algebra", "active"),
		{Type: "course", ID: "2", Fields: jsonvalue.Object{}},
	}
	got := All("course", Asc("name")).Apply(records)
	assert.Equal(t, []string{"2", "1"}, ids(got))
}

func TestScope_EqualityAndFingerprint(t *testing.T) {
	a := Where("course", "enrollment_state", jsonvalue.String("active"), Asc("name"))
	b := Where("course", "enrollment_state", jsonvalue.String("active"), Asc("name"))
	c := Where("course", "enrollment_state", jsonvalue.String("active"), Desc("name"))
	d := Where("course", "enrollment_state", jsonvalue.String("completed"), Asc("name"))

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
	assert.False(t, a.Equal(a.WithSection("term")))

	assert.True(t, Scope{Type: "x"}.Equal(All("x")), "nil predicate equals True")
}

func TestScope_Section(t *testing.T) {
	sc := All("assignment", Asc("position")).WithSection("group.position")
	r := entity.Record{Type: "assignment", ID: "1", Fields: jsonvalue.Object{"group": jsonvalue.Object{"position": jsonvalue.Int(3)}}}
	assert.Equal(t, "3", sc.Section(r))

	assert.Equal(t, "", All("assignment").Section(r))
	assert.Equal(t, "", sc.Section(entity.Record{Type: "assignment", ID: "2"}))
}
