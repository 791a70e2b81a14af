package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bassista/go_lmsync/internal/syncerr"
)

func TestParseLinks(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   map[string]string
	}{
		{"empty", nil, map[string]string{}},
		{
			"canvas style",
			[]string{`<https://lms/api/v1/courses?page=1>; rel="current",<https://lms/api/v1/courses?page=2>; rel="next",<https://lms/api/v1/courses?page=5>; rel="last"`},
			map[string]string{
				"current": "https://lms/api/v1/courses?page=1",
				"next":    "https://lms/api/v1/courses?page=2",
				"last":    "https://lms/api/v1/courses?page=5",
			},
		},
		{
			"comma inside url",
			[]string{`<https://lms/api?include[]=a,b&page=3>; rel=next`},
			map[string]string{"next": "https://lms/api?include[]=a,b&page=3"},
		},
		{
			"multiple header values and multi rel",
			[]string{`</a>; rel="prev first"`, `</b>; REL="Next"`},
			map[string]string{"prev": "/a", "first": "/a", "next": "/b"},
		},
		{"malformed target skipped", []string{`https://lms; rel="next"`}, map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLinks(tt.values))
		})
	}
}

func TestResponseNext(t *testing.T) {
	var nilResp *Response
	assert.Equal(t, "", nilResp.Next())

	resp := &Response{Header: http.Header{}}
	assert.Equal(t, "", resp.Next())
	resp.Header.Add("Link", FormatLink("/courses?page=2", "next"))
	assert.Equal(t, "/courses?page=2", resp.Next())
}

func TestRequestWithCursor(t *testing.T) {
	req := Get("courses", url.Values{"include[]": {"term"}})
	assert.Equal(t, req, req.WithCursor(""))

	next := req.WithCursor("https://lms/api/v1/courses?page=2")
	assert.Equal(t, "https://lms/api/v1/courses?page=2", next.Path)
	assert.Nil(t, next.Query)
	assert.True(t, next.IsAbsolute())
	assert.False(t, req.IsAbsolute())
	assert.Equal(t, "GET courses?include%5B%5D=term", req.String())
}

func TestDecodeJSON(t *testing.T) {
	out, err := DecodeJSON[[]map[string]any](&Response{Body: []byte(`[{"id":1}]`)})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	_, err = DecodeJSON[[]map[string]any](&Response{Body: []byte(`{"id":`)})
	assert.True(t, syncerr.Is(err, syncerr.KindDecode))

	_, err = DecodeJSON[[]int](nil)
	assert.True(t, syncerr.Is(err, syncerr.KindDecode))
}

func TestNewClient_InvalidBase(t *testing.T) {
	_, err := NewClient("lms/api", time.Second)
	assert.Error(t, err)
	_, err = NewClient("://bad", time.Second)
	assert.Error(t, err)
}

func TestClient_Execute(t *testing.T) {
	var (
		mu                         sync.Mutex
		gotAuth, gotPath, gotQuery string
	)
	last := func() (string, string, string) {
		mu.Lock()
		defer mu.Unlock()
		return gotAuth, gotPath, gotQuery
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		mu.Unlock()
		switch r.URL.Path {
		case "/api/v1/courses":
			w.Header().Add("Link", FormatLink("http://"+r.Host+"/api/v1/courses?page=2", "next"))
			_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 1}})
		case "/api/v1/secret":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/api/v1", 5*time.Second, WithToken("t0k"), WithPerPage(50))
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("success with next link", func(t *testing.T) {
		resp, err := client.Execute(ctx, Get("/courses", url.Values{"include[]": {"term"}}))
		require.NoError(t, err)
		gotAuth, gotPath, gotQuery := last()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Bearer t0k", gotAuth)
		assert.Equal(t, "/api/v1/courses", gotPath)
		q, _ := url.ParseQuery(gotQuery)
		assert.Equal(t, "50", q.Get("per_page"))
		assert.Equal(t, "term", q.Get("include[]"))
		assert.Equal(t, srv.URL+"/api/v1/courses?page=2", resp.Next())
	})

	t.Run("absolute cursor keeps its query", func(t *testing.T) {
		_, err := client.Execute(ctx, Get(srv.URL+"/api/v1/courses?page=2&per_page=10", nil))
		require.NoError(t, err)
		_, _, gotQuery := last()
		q, _ := url.ParseQuery(gotQuery)
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "10", q.Get("per_page"))
	})

	t.Run("401 is unauthorized", func(t *testing.T) {
		_, err := client.Execute(ctx, Get("secret", nil))
		assert.True(t, syncerr.Is(err, syncerr.KindUnauthorized))
		assert.ErrorIs(t, err, syncerr.ErrUnauthorized)
	})

	t.Run("5xx is network", func(t *testing.T) {
		_, err := client.Execute(ctx, Get("broken", nil))
		assert.True(t, syncerr.Is(err, syncerr.KindNetwork))
		assert.Equal(t, http.StatusInternalServerError, StatusCodeOf(err))
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("post body", func(t *testing.T) {
		_, err := client.Execute(ctx, Request{Method: http.MethodPost, Path: "courses", Body: []byte(`{}`)})
		require.NoError(t, err)
		_, _, gotQuery := last()
		assert.NotContains(t, gotQuery, "per_page")
	})
}

func TestClient_ForeignCursor(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/api/v1", time.Second, WithToken("t0k"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		cursor string
	}{
		{name: "other host", cursor: "http://lms.attacker.example/api/v1/courses?page=2"},
		{name: "other scheme", cursor: "https" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/courses?page=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Execute(context.Background(), Get("courses", nil).WithCursor(tt.cursor))
			assert.ErrorIs(t, err, ErrForeignURL)
			assert.True(t, syncerr.Is(err, syncerr.KindNetwork))
		})
	}
	assert.Zero(t, hits.Load())

	_, err = client.Execute(context.Background(), Get("courses", nil).WithCursor(srv.URL+"/api/v1/courses?page=2"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_ResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["` + strings.Repeat("x", 64) + `"]`))
	}))
	defer srv.Close()

	small, err := NewClient(srv.URL, time.Second, WithMaxBodyBytes(16))
	require.NoError(t, err)
	_, err = small.Execute(context.Background(), Get("courses", nil))
	assert.True(t, syncerr.Is(err, syncerr.KindDecode))
	assert.ErrorContains(t, err, "response too large")

	exact, err := NewClient(srv.URL, time.Second, WithMaxBodyBytes(68))
	require.NoError(t, err)
	resp, err := exact.Execute(context.Background(), Get("courses", nil))
	require.NoError(t, err)
	assert.Len(t, resp.Body, 68)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client, err := NewClient(base, time.Second)
	require.NoError(t, err)
	_, err = client.Execute(context.Background(), Get("courses", nil))
	assert.True(t, syncerr.Is(err, syncerr.KindNetwork))
	assert.Equal(t, 0, StatusCodeOf(err))
}

const fixtureYAML = `
responses:
  - path: courses
    next: courses?page=2
    body: '[{"id":"1"}]'
  - path: courses?page=2
    body: '[{"id":"2"}]'
  - path: courses/9
    status: 404
  - path: profile
    error: unauthorized
  - method: post
    path: courses/1/favorite
    delay: 50ms
    body: '{}'
`

func writeFixtures(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFixtureExecutor(t *testing.T) {
	exec, err := LoadFixtures(writeFixtures(t, fixtureYAML))
	require.NoError(t, err)
	ctx := context.Background()

	resp, err := exec.Execute(ctx, Get("/courses", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1"}]`, string(resp.Body))
	assert.Equal(t, "courses?page=2", resp.Next())

	resp, err = exec.Execute(ctx, Get("courses", nil).WithCursor(resp.Next()))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"2"}]`, string(resp.Body))
	assert.Equal(t, "", resp.Next())

	resp, err = exec.Execute(ctx, Get("courses", url.Values{"page": {"2"}}))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"2"}]`, string(resp.Body))

	_, err = exec.Execute(ctx, Get("courses/9", nil))
	assert.Equal(t, http.StatusNotFound, StatusCodeOf(err))

	_, err = exec.Execute(ctx, Get("missing", nil))
	assert.True(t, syncerr.Is(err, syncerr.KindNetwork))

	_, err = exec.Execute(ctx, Get("profile", nil))
	assert.True(t, syncerr.Is(err, syncerr.KindUnauthorized))

	_, err = exec.Execute(ctx, Request{Method: http.MethodGet, Path: "courses/1/favorite"})
	assert.Error(t, err, "method must match")

	assert.Equal(t, 3, exec.Calls("courses"))
	assert.Equal(t, 7, exec.Calls(""))
}

func TestFixtureExecutor_DelayHonorsContext(t *testing.T) {
	exec := NewFixtureExecutor(Fixture{Path: "slow", Delay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := exec.Execute(ctx, Get("slow", nil))
	assert.True(t, syncerr.Is(err, syncerr.KindNetwork))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestFixtureExecutor_AddOverrides(t *testing.T) {
	exec := NewFixtureExecutor(Fixture{Path: "courses", Body: `["a"]`})
	exec.Add(Fixture{Path: "courses", Body: `["b"]`})

	resp, err := exec.Execute(context.Background(), Get("courses", nil))
	require.NoError(t, err)
	assert.Equal(t, `["b"]`, string(resp.Body))
}

func TestLoadFixtures_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown field": "responses:\n  - path: a\n    bogus: 1\n",
		"missing path":  "responses:\n  - body: '{}'\n",
		"bad error":     "responses:\n  - path: a\n    error: dns\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFixtures(writeFixtures(t, content))
			assert.Error(t, err)
		})
	}

	_, err := LoadFixtures(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestExecutorFunc(t *testing.T) {
	var got Request
	exec := ExecutorFunc(func(ctx context.Context, req Request) (*Response, error) {
		got = req
		return &Response{StatusCode: http.StatusNoContent}, nil
	})
	resp, err := exec.Execute(context.Background(), Get("x", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "x", got.Path)
}
