package remote

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bassista/go_lmsync/internal/logger"
	"github.com/bassista/go_lmsync/internal/syncerr"
)

// Fixture is one canned response.
type Fixture struct {
	Method string            `yaml:"method,omitempty"`
	Path   string            `yaml:"path"`
	Query  map[string]string `yaml:"query,omitempty"`
	Status int               `yaml:"status,omitempty"`
	Next   string            `yaml:"next,omitempty"`
	Body   string            `yaml:"body,omitempty"`

	// Error forces a failure instead of a response: "network" or "unauthorized".
	Error string        `yaml:"error,omitempty"`
	Delay time.Duration `yaml:"delay,omitempty"`
}

// FixtureFile is the YAML layout read by LoadFixtures.
type FixtureFile struct {
	Responses []Fixture `yaml:"responses"`
}

// FixtureExecutor serves requests from canned fixtures. It backs offline
// demos and tests; unmatched requests fail with a 404 network error.
type FixtureExecutor struct {
	fixtures []Fixture

	mu    sync.Mutex
	calls map[string]int
	total int
}

// NewFixtureExecutor creates an executor over fixtures.
func NewFixtureExecutor(fixtures ...Fixture) *FixtureExecutor {
	return &FixtureExecutor{fixtures: fixtures, calls: make(map[string]int)}
}

// LoadFixtures reads a fixture file. Unknown fields are rejected.
func LoadFixtures(path string) (*FixtureExecutor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures file: %w", err)
	}
	var file FixtureFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	for i, f := range file.Responses {
		if f.Path == "" {
			return nil, fmt.Errorf("fixture %d: path is required", i)
		}
		switch f.Error {
		case "", "network", "unauthorized":
		default:
			return nil, fmt.Errorf("fixture %d: unknown error kind %q", i, f.Error)
		}
	}
	logger.WithComponent("remote").Infof("loaded %d fixtures from %s", len(file.Responses), path)
	return NewFixtureExecutor(file.Responses...), nil
}

func normalizePath(p string) string {
	if u, err := url.Parse(p); err == nil && u.IsAbs() {
		p = u.Path
	}
	return strings.Trim(p, "/")
}

// split separates a request path into a normalized path and its query.
func split(req Request) (string, url.Values) {
	q := url.Values{}
	path := req.Path
	if u, err := url.Parse(req.Path); err == nil {
		path = u.Path
		for k, vs := range u.Query() {
			q[k] = append(q[k], vs...)
		}
	}
	for k, vs := range req.Query {
		q[k] = append(q[k], vs...)
	}
	return normalizePath(path), q
}

func (f Fixture) method() string {
	if f.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(f.Method)
}

func (e *FixtureExecutor) match(req Request) (Fixture, bool) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	path, query := split(req)

	e.mu.Lock()
	defer e.mu.Unlock()
	best, bestScore := Fixture{}, -1
	for _, f := range e.fixtures {
		fpath, fquery := split(Request{Path: f.Path})
		if f.method() != method || fpath != path {
			continue
		}
		for k, v := range f.Query {
			fquery.Set(k, v)
		}
		ok := true
		for k := range fquery {
			if query.Get(k) != fquery.Get(k) {
				ok = false
				break
			}
		}
		if ok && len(fquery) >= bestScore {
			best, bestScore = f, len(fquery)
		}
	}
	return best, bestScore >= 0
}

// Execute implements Executor.
func (e *FixtureExecutor) Execute(ctx context.Context, req Request) (*Response, error) {
	op := req.String()
	path, _ := split(req)
	e.mu.Lock()
	e.calls[path]++
	e.total++
	e.mu.Unlock()

	f, ok := e.match(req)
	if !ok {
		return nil, syncerr.Network(op, &StatusError{StatusCode: http.StatusNotFound, Body: "no fixture"})
	}
	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, syncerr.Network(op, ctx.Err())
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, syncerr.Network(op, err)
	}

	switch f.Error {
	case "network":
		return nil, syncerr.Network(op, fmt.Errorf("connection refused"))
	case "unauthorized":
		return nil, syncerr.Unauthorized(op, nil)
	}
	status := f.Status
	if status == 0 {
		status = http.StatusOK
	}
	if status == http.StatusUnauthorized {
		return nil, syncerr.Unauthorized(op, nil)
	}
	if status < 200 || status > 299 {
		return nil, syncerr.Network(op, &StatusError{StatusCode: status, Body: snippet([]byte(f.Body))})
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if f.Next != "" {
		header.Add("Link", FormatLink(f.Next, "next"))
	}
	return &Response{StatusCode: status, Header: header, Body: []byte(f.Body)}, nil
}

// Calls returns how many requests hit path, or all requests when path is "".
func (e *FixtureExecutor) Calls(path string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if path == "" {
		return e.total
	}
	return e.calls[normalizePath(path)]
}

// Add appends fixtures; later fixtures win ties with earlier ones of equal specificity.
func (e *FixtureExecutor) Add(fixtures ...Fixture) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fixtures = append(e.fixtures, fixtures...)
}
