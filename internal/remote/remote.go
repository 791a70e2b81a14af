package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bassista/go_lmsync/internal/syncerr"
)

// Request describes one API call. Path is relative to the client's base URL
// unless it is already absolute, which is how pagination cursors are replayed.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// Get builds a GET request for path.
func Get(path string, query url.Values) Request {
	return Request{Method: http.MethodGet, Path: path, Query: query}
}

// WithCursor returns a copy of the request pointed at a pagination cursor.
// Cursors are complete URLs, so the original query is dropped.
func (r Request) WithCursor(cursor string) Request {
	if cursor == "" {
		return r
	}
	r.Path = cursor
	r.Query = nil
	return r
}

// IsAbsolute reports whether Path carries its own scheme and host.
func (r Request) IsAbsolute() bool {
	u, err := url.Parse(r.Path)
	return err == nil && u.IsAbs()
}

func (r Request) String() string {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	if len(r.Query) == 0 {
		return method + " " + r.Path
	}
	return method + " " + r.Path + "?" + r.Query.Encode()
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Next returns the URL of the following page from the Link header, or "".
func (r *Response) Next() string {
	if r == nil {
		return ""
	}
	return ParseLinks(r.Header.Values("Link"))["next"]
}

// Executor resolves a request into a response. Implementations must return
// syncerr-classified errors so callers can tell network failures from
// rejected credentials.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (*Response, error)

func (f ExecutorFunc) Execute(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// ParseLinks parses RFC 8288 Link header values into rel -> URL.
func ParseLinks(values []string) map[string]string {
	links := make(map[string]string)
	for _, value := range values {
		for _, part := range splitLinks(value) {
			segments := strings.Split(part, ";")
			target := strings.TrimSpace(segments[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			target = target[1 : len(target)-1]
			for _, param := range segments[1:] {
				name, val, ok := strings.Cut(strings.TrimSpace(param), "=")
				if !ok || !strings.EqualFold(strings.TrimSpace(name), "rel") {
					continue
				}
				for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(val), `"`)) {
					rel = strings.ToLower(rel)
					if _, seen := links[rel]; !seen {
						links[rel] = target
					}
				}
			}
		}
	}
	return links
}

// splitLinks splits on commas outside angle brackets, since URLs may contain commas.
func splitLinks(value string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i, c := range value {
		switch c {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, value[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, value[start:])
	return parts
}

// FormatLink renders a single Link header entry.
func FormatLink(target, rel string) string {
	return fmt.Sprintf(`<%s>; rel="%s"`, target, rel)
}

// DecodeJSON unmarshals a response body, classifying failures as decode errors.
func DecodeJSON[T any](resp *Response) (T, error) {
	var out T
	if resp == nil {
		return out, syncerr.Decode("decode response", fmt.Errorf("no response"))
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, syncerr.Decode("decode response", err)
	}
	return out, nil
}
