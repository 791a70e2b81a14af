// Package lms declares the learning-management entities the engine syncs and
// the use cases that fetch them.
package lms

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bassista/go_lmsync/internal/entity"
)

// Entity types.
const (
	TypeCourse     = "course"
	TypeAssignment = "assignment"
	TypeSettings   = "settings"
)

// ID is an identifier the API may send as a number or a string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type Course struct {
	ID              ID     `json:"id"`
	Name            string `json:"name"`
	CourseCode      string `json:"course_code,omitempty"`
	EnrollmentState string `json:"enrollment_state"`
	Term            string `json:"term,omitempty"`
	IsFavorite      bool   `json:"is_favorite"`
}

type Assignment struct {
	ID       ID     `json:"id"`
	CourseID ID     `json:"course_id"`
	Name     string `json:"name"`
	// Group is the assignment group name, used to section assignment lists.
	Group     string     `json:"assignment_group,omitempty"`
	Position  int        `json:"position"`
	DueAt     *time.Time `json:"due_at"`
	Points    float64    `json:"points_possible"`
	Published bool       `json:"published"`
}

// Settings are the signed-in user's preferences. There is exactly one record.
type Settings struct {
	ManualMarkAsRead          bool `json:"manual_mark_as_read"`
	CollapseGlobalNav         bool `json:"collapse_global_nav"`
	HideDashcardColorOverlays bool `json:"hide_dashcard_color_overlays"`
}

// settingsID is the identity of the single Settings record.
const settingsID = "self"

var (
	CourseCodec = entity.JSONCodec[Course]{
		Type: TypeCourse,
		IDOf: func(c Course) string { return c.ID.String() },
	}
	AssignmentCodec = entity.JSONCodec[Assignment]{
		Type: TypeAssignment,
		IDOf: func(a Assignment) string { return a.ID.String() },
	}
	SettingsCodec = entity.JSONCodec[Settings]{
		Type: TypeSettings,
		IDOf: func(Settings) string { return settingsID },
	}
)
