package lms

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/bassista/go_lmsync/internal/usecase"
)

// ErrUnknownUseCase is returned when a catalog name is not registered.
var ErrUnknownUseCase = errors.New("unknown use case")

// Params are the string arguments a catalog entry is built from.
type Params map[string]string

// Entry describes a use case that can be run by name from the CLI or the
// inspector.
type Entry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Params lists the required parameters.
	Params []string `json:"params,omitempty"`
	// Mutates is true for use cases that change server state. They are never
	// run implicitly, e.g. when a view is opened.
	Mutates bool `json:"mutates"`

	build func(p Params, opts []usecase.Option) (usecase.Runnable, error)
}

// Catalog is a registry of named use cases.
type Catalog struct {
	entries map[string]Entry
}

// NewCatalog returns the catalog of every LMS use case.
func NewCatalog() *Catalog {
	c := &Catalog{entries: make(map[string]Entry)}
	c.register(Entry{
		Name:        "courses",
		Description: "active courses",
		build: func(_ Params, opts []usecase.Option) (usecase.Runnable, error) {
			return GetCourses(opts...), nil
		},
	})
	c.register(Entry{
		Name:        "course",
		Description: "one course",
		Params:      []string{"course_id"},
		build: func(p Params, opts []usecase.Option) (usecase.Runnable, error) {
			return GetCourse(p["course_id"], opts...), nil
		},
	})
	c.register(Entry{
		Name:        "assignments",
		Description: "assignments of a course, grouped",
		Params:      []string{"course_id"},
		build: func(p Params, opts []usecase.Option) (usecase.Runnable, error) {
			return GetAssignments(p["course_id"], opts...), nil
		},
	})
	c.register(Entry{
		Name:        "settings",
		Description: "user settings",
		build: func(_ Params, opts []usecase.Option) (usecase.Runnable, error) {
			return GetSettings(opts...), nil
		},
	})
	c.register(Entry{
		Name:        "favorites",
		Description: "starred courses, local only",
		build: func(Params, []usecase.Option) (usecase.Runnable, error) {
			return FavoriteCourses(), nil
		},
	})
	c.register(Entry{
		Name:        "mark-favorite",
		Description: "star a course (favorite=false to unstar)",
		Params:      []string{"course_id"},
		Mutates:     true,
		build: func(p Params, opts []usecase.Option) (usecase.Runnable, error) {
			favorite := true
			if raw, ok := p["favorite"]; ok {
				v, err := strconv.ParseBool(raw)
				if err != nil {
					return nil, fmt.Errorf("invalid favorite value %q: %w", raw, err)
				}
				favorite = v
			}
			return MarkFavorite(p["course_id"], favorite, opts...), nil
		},
	})
	c.register(Entry{
		Name:        "delete-assignment",
		Description: "delete an assignment",
		Params:      []string{"course_id", "assignment_id"},
		Mutates:     true,
		build: func(p Params, opts []usecase.Option) (usecase.Runnable, error) {
			return DeleteAssignment(p["course_id"], p["assignment_id"], opts...), nil
		},
	})
	return c
}

func (c *Catalog) register(e Entry) {
	c.entries[e.Name] = e
}

// Entries returns every entry ordered by name.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Lookup returns the entry registered under name.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Build constructs the named use case. Every required parameter must be set.
func (c *Catalog) Build(name string, params Params, opts ...usecase.Option) (usecase.Runnable, error) {
	e, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUseCase, name)
	}
	for _, p := range e.Params {
		if params[p] == "" {
			return nil, fmt.Errorf("%s: missing parameter %q", name, p)
		}
	}
	return e.build(params, opts)
}
