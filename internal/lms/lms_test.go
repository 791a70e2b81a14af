package lms

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/fetch"
	"github.com/bassista/go_lmsync/internal/ledger"
	"github.com/bassista/go_lmsync/internal/localstore"
	"github.com/bassista/go_lmsync/internal/remote"
	"github.com/bassista/go_lmsync/internal/repository"
	"github.com/bassista/go_lmsync/internal/syncerr"
	"github.com/bassista/go_lmsync/internal/usecase"
)

type env struct {
	local *localstore.Store
	exec  *remote.FixtureExecutor
	coord *fetch.Coordinator
}

func newEnv(fixtures ...remote.Fixture) *env {
	e := &env{
		local: localstore.NewStore(repository.Document{}),
		exec:  remote.NewFixtureExecutor(fixtures...),
	}
	e.coord = fetch.New(e.exec, ledger.NewMemory(), e.local)
	return e
}

func (e *env) refresh(t *testing.T, uc usecase.Runnable, force bool) fetch.Result {
	t.Helper()
	return e.coord.Refresh(context.Background(), uc, force)
}

func query[M any](t *testing.T, e *env, uc usecase.Runnable, codec entity.Codec[M]) []M {
	t.Helper()
	out, err := entity.DecodeAll(codec, e.local.Query(uc.Scope()))
	require.NoError(t, err)
	return out
}

func courseNames(cs []Course) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Name)
	}
	return out
}

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ID
		wantErr bool
	}{
		{name: "number", input: `101`, want: "101"},
		{name: "string", input: `"abc"`, want: "abc"},
		{name: "large number", input: `12345678901234567890`, want: "12345678901234567890"},
		{name: "bool", input: `true`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestGetCourses(t *testing.T) {
	e := newEnv(remote.Fixture{Path: "courses", Body: `[
		{"id": 2, "name": "Biology", "enrollment_state": "active"},
		{"id": 1, "name": "algebra", "enrollment_state": "active", "is_favorite": true},
		{"id": 3, "name": "Chemistry", "enrollment_state": "completed"}
	]`})
	uc := GetCourses()

	assert.Equal(t, "courses", uc.CacheKey())
	assert.Equal(t, usecase.UpsertOnly, uc.Policy())

	res := e.refresh(t, uc, false)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"algebra", "Biology"}, courseNames(query(t, e, uc, CourseCodec)))

	// dropped courses stay cached
	e.exec.Add(remote.Fixture{Path: "courses", Body: `[{"id": 1, "name": "algebra", "enrollment_state": "active"}]`})
	res = e.refresh(t, uc, true)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"algebra", "Biology"}, courseNames(query(t, e, uc, CourseCodec)))
}

func TestGetCourse(t *testing.T) {
	e := newEnv(remote.Fixture{Path: "courses/7", Body: `{"id": 7, "name": "Art", "enrollment_state": "active", "course_code": "ART-1"}`})
	uc := GetCourse("7")
	assert.Equal(t, "course:7", uc.CacheKey())

	require.NoError(t, e.refresh(t, uc, false).Err)
	got := query(t, e, uc, CourseCodec)
	require.Len(t, got, 1)
	assert.Equal(t, Course{ID: "7", Name: "Art", CourseCode: "ART-1", EnrollmentState: "active"}, got[0])
}

func TestGetAssignments_MirrorsServer(t *testing.T) {
	e := newEnv(remote.Fixture{Path: "courses/7/assignments", Body: `[
		{"id": 11, "course_id": 7, "name": "Quiz 2", "assignment_group": "Quizzes", "position": 2},
		{"id": 10, "course_id": 7, "name": "Quiz 1", "assignment_group": "Quizzes", "position": 1},
		{"id": 12, "course_id": 7, "name": "Essay", "assignment_group": "Essays", "position": 1, "due_at": "2026-11-02T23:59:00Z"}
	]`})
	uc := GetAssignments("7")
	assert.Equal(t, usecase.ReplaceScope, uc.Policy())

	require.NoError(t, e.refresh(t, uc, false).Err)
	got := query(t, e, uc, AssignmentCodec)
	require.Len(t, got, 3)
	assert.Equal(t, "Essay", got[0].Name)
	require.NotNil(t, got[0].DueAt)
	assert.Equal(t, 2026, got[0].DueAt.Year())
	assert.Equal(t, "Quiz 1", got[1].Name)
	assert.Equal(t, "Quiz 2", got[2].Name)

	records := e.local.Query(uc.Scope())
	assert.Equal(t, "Essays", uc.Scope().Section(records[0]))
	assert.Equal(t, "Quizzes", uc.Scope().Section(records[2]))

	// Quiz 2 was deleted on the server
	e.exec.Add(remote.Fixture{Path: "courses/7/assignments", Body: `[
		{"id": 10, "course_id": 7, "name": "Quiz 1", "assignment_group": "Quizzes", "position": 1},
		{"id": 12, "course_id": 7, "name": "Essay", "assignment_group": "Essays", "position": 1}
	]`})
	require.NoError(t, e.refresh(t, uc, true).Err)
	assert.Len(t, query(t, e, uc, AssignmentCodec), 2)
}

func TestGetAssignments_OtherCourseUntouched(t *testing.T) {
	e := newEnv(
		remote.Fixture{Path: "courses/7/assignments", Body: `[{"id": 10, "course_id": 7, "name": "Quiz 1"}]`},
		remote.Fixture{Path: "courses/8/assignments", Body: `[{"id": 20, "course_id": 8, "name": "Lab"}]`},
	)
	require.NoError(t, e.refresh(t, GetAssignments("7"), false).Err)
	require.NoError(t, e.refresh(t, GetAssignments("8"), false).Err)

	e.exec.Add(remote.Fixture{Path: "courses/7/assignments", Body: `[]`})
	require.NoError(t, e.refresh(t, GetAssignments("7"), true).Err)

	assert.Empty(t, e.local.Query(AssignmentsScope("7")))
	assert.Len(t, e.local.Query(AssignmentsScope("8")), 1)
}

func TestGetSettings(t *testing.T) {
	e := newEnv(remote.Fixture{Path: "users/self/settings", Body: `{"manual_mark_as_read": true, "collapse_global_nav": false}`})
	uc := GetSettings()

	require.NoError(t, e.refresh(t, uc, false).Err)
	got := query(t, e, uc, SettingsCodec)
	require.Len(t, got, 1)
	assert.True(t, got[0].ManualMarkAsRead)
	assert.Equal(t, 1, e.local.Count(TypeSettings))
}

func TestMarkFavorite(t *testing.T) {
	e := newEnv(
		remote.Fixture{Path: "courses", Body: `[{"id": 1, "name": "Algebra", "enrollment_state": "active"}]`},
		remote.Fixture{Method: "POST", Path: "users/self/favorites/courses/1", Body: `{"context_id": 1, "context_type": "Course"}`},
		remote.Fixture{Method: "DELETE", Path: "users/self/favorites/courses/1", Body: `{"context_id": 1, "context_type": "Course"}`},
	)
	require.NoError(t, e.refresh(t, GetCourses(), false).Err)
	favorites := FavoriteCourses()
	assert.True(t, favorites.IsLocal())
	assert.Empty(t, e.local.Query(favorites.Scope()))

	mark := MarkFavorite("1", true)
	assert.Equal(t, "", mark.CacheKey())
	assert.Equal(t, "POST", mark.Request().Method)
	require.NoError(t, e.refresh(t, mark, false).Err)
	assert.Equal(t, []string{"Algebra"}, courseNames(query(t, e, favorites, CourseCodec)))

	// no cache key: a second run still reaches the server
	require.NoError(t, e.refresh(t, mark, false).Err)
	assert.Equal(t, 2, e.exec.Calls("users/self/favorites/courses/1"))

	require.NoError(t, e.refresh(t, MarkFavorite("1", false), false).Err)
	assert.Empty(t, e.local.Query(favorites.Scope()))
}

func TestMarkFavorite_WrongCourse(t *testing.T) {
	e := newEnv(remote.Fixture{Method: "POST", Path: "users/self/favorites/courses/1", Body: `{"context_id": 2}`})

	res := e.refresh(t, MarkFavorite("1", true), false)
	require.Error(t, res.Err)
	assert.Equal(t, syncerr.KindReconciliation, res.Kind())
}

func TestMarkFavorite_UncachedCourse(t *testing.T) {
	e := newEnv(remote.Fixture{Method: "POST", Path: "users/self/favorites/courses/5", Body: `{"context_id": 5}`})

	require.NoError(t, e.refresh(t, MarkFavorite("5", true), false).Err)
	assert.Equal(t, 0, e.local.Count(TypeCourse))
}

func TestDeleteAssignment(t *testing.T) {
	e := newEnv(
		remote.Fixture{Path: "courses/7/assignments", Body: `[
			{"id": 10, "course_id": 7, "name": "Quiz 1"},
			{"id": 11, "course_id": 7, "name": "Quiz 2"}
		]`},
		remote.Fixture{Method: "DELETE", Path: "courses/7/assignments/11", Body: `{"id": 11}`},
	)
	require.NoError(t, e.refresh(t, GetAssignments("7"), false).Err)

	require.NoError(t, e.refresh(t, DeleteAssignment("7", "11"), false).Err)
	got := query(t, e, GetAssignments("7"), AssignmentCodec)
	require.Len(t, got, 1)
	assert.Equal(t, ID("10"), got[0].ID)
}

func TestCatalog(t *testing.T) {
	c := NewCatalog()

	var names []string
	for _, e := range c.Entries() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"assignments", "course", "courses", "delete-assignment", "favorites", "mark-favorite", "settings"}, names)

	entry, ok := c.Lookup("mark-favorite")
	require.True(t, ok)
	assert.True(t, entry.Mutates)

	uc, err := c.Build("assignments", Params{"course_id": "7"})
	require.NoError(t, err)
	assert.Equal(t, "GetAssignments", uc.Name())
	assert.Equal(t, "assignments:7", uc.CacheKey())

	_, err = c.Build("assignments", nil)
	assert.ErrorContains(t, err, `missing parameter "course_id"`)

	_, err = c.Build("grades", nil)
	assert.ErrorIs(t, err, ErrUnknownUseCase)

	uc, err = c.Build("mark-favorite", Params{"course_id": "1", "favorite": "false"})
	require.NoError(t, err)
	assert.Equal(t, "DELETE", uc.Request().Method)

	_, err = c.Build("mark-favorite", Params{"course_id": "1", "favorite": "maybe"})
	assert.Error(t, err)
}

func TestCatalog_AppliesOptions(t *testing.T) {
	uc, err := NewCatalog().Build("courses", nil, usecase.WithTTL(0))
	require.NoError(t, err)
	assert.Equal(t, "courses", uc.CacheKey())
	assert.Zero(t, uc.TTL())
}
