package lms

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/bassista/go_lmsync/internal/jsonvalue"
	"github.com/bassista/go_lmsync/internal/localstore"
	"github.com/bassista/go_lmsync/internal/remote"
	"github.com/bassista/go_lmsync/internal/scope"
	"github.com/bassista/go_lmsync/internal/usecase"
)

// ActiveCourses are the courses the user is currently enrolled in, by name.
var ActiveCourses = scope.Where(TypeCourse, "enrollment_state", jsonvalue.String("active"), scope.Naturally("name"))

// FavoriteCoursesScope selects courses starred by the user.
var FavoriteCoursesScope = scope.Where(TypeCourse, "is_favorite", jsonvalue.Bool(true), scope.Naturally("name"))

// SettingsScope selects the single settings record.
var SettingsScope = scope.Where(TypeSettings, "id", jsonvalue.String(settingsID))

// CourseScope selects one course.
func CourseScope(courseID string) scope.Scope {
	return scope.Where(TypeCourse, "id", jsonvalue.String(courseID))
}

// AssignmentsScope selects a course's assignments, sectioned by group.
func AssignmentsScope(courseID string) scope.Scope {
	return scope.Where(TypeAssignment, "course_id", jsonvalue.String(courseID),
		scope.Asc("assignment_group"), scope.Asc("position"), scope.Naturally("name"),
	).WithSection("assignment_group")
}

func withKey(key string, opts []usecase.Option) []usecase.Option {
	return append([]usecase.Option{usecase.WithCacheKey(key)}, opts...)
}

// GetCourses lists active courses. Courses dropped by the server stay cached.
func GetCourses(opts ...usecase.Option) *usecase.UseCase[[]Course] {
	req := remote.Get("courses", url.Values{"include[]": {"favorites"}})
	return usecase.Collection("GetCourses", req, ActiveCourses, CourseCodec, withKey("courses", opts)...)
}

// GetCourse fetches one course.
func GetCourse(courseID string, opts ...usecase.Option) *usecase.UseCase[Course] {
	req := remote.Get("courses/"+url.PathEscape(courseID), url.Values{"include[]": {"favorites"}})
	return usecase.Single("GetCourse", req, CourseScope(courseID), CourseCodec, withKey("course:"+courseID, opts)...)
}

// GetAssignments lists a course's assignments. The local list mirrors the
// server after every first page, so deleted assignments disappear.
func GetAssignments(courseID string, opts ...usecase.Option) *usecase.UseCase[[]Assignment] {
	req := remote.Get("courses/"+url.PathEscape(courseID)+"/assignments", nil)
	opts = append([]usecase.Option{usecase.WithPolicy(usecase.ReplaceScope)}, opts...)
	return usecase.Collection("GetAssignments", req, AssignmentsScope(courseID), AssignmentCodec,
		withKey("assignments:"+courseID, opts)...)
}

// GetSettings fetches the user's settings.
func GetSettings(opts ...usecase.Option) *usecase.UseCase[Settings] {
	req := remote.Get("users/self/settings", nil)
	return usecase.Single("GetSettings", req, SettingsScope, SettingsCodec, withKey("settings", opts)...)
}

// FavoriteCourses serves starred courses from the local store only.
func FavoriteCourses() *usecase.UseCase[struct{}] {
	return usecase.Local("FavoriteCourses", FavoriteCoursesScope)
}

// FavoriteResponse is the body returned when a course is starred or unstarred.
type FavoriteResponse struct {
	ContextID   ID     `json:"context_id"`
	ContextType string `json:"context_type"`
}

// MarkFavorite stars or unstars a course and updates the cached course. It
// has no cache key, so every run reaches the server.
func MarkFavorite(courseID string, favorite bool, opts ...usecase.Option) *usecase.UseCase[FavoriteResponse] {
	method := http.MethodPost
	if !favorite {
		method = http.MethodDelete
	}
	req := remote.Request{Method: method, Path: "users/self/favorites/courses/" + url.PathEscape(courseID)}
	return usecase.New("MarkFavorite", req, CourseScope(courseID), func(tx *localstore.Tx, resp FavoriteResponse) error {
		if resp.ContextID != "" && resp.ContextID.String() != courseID {
			return fmt.Errorf("favorite response is for course %s, want %s", resp.ContextID, courseID)
		}
		rec, ok := tx.Get(TypeCourse, courseID)
		if !ok {
			return nil
		}
		rec = rec.Clone()
		if rec.Fields == nil {
			rec.Fields = jsonvalue.Object{}
		}
		rec.Fields["is_favorite"] = jsonvalue.Bool(favorite)
		return tx.Upsert(rec)
	}, opts...)
}

// DeleteAssignment deletes an assignment on the server and locally.
func DeleteAssignment(courseID, assignmentID string, opts ...usecase.Option) *usecase.UseCase[struct{}] {
	req := remote.Request{
		Method: http.MethodDelete,
		Path:   "courses/" + url.PathEscape(courseID) + "/assignments/" + url.PathEscape(assignmentID),
	}
	sc := scope.Where(TypeAssignment, "id", jsonvalue.String(assignmentID))
	return usecase.Delete("DeleteAssignment", req, sc, opts...)
}
