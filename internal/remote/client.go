package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bassista/go_lmsync/internal/logger"
	"github.com/bassista/go_lmsync/internal/syncerr"
)

// defaultMaxBodyBytes bounds how much of a response is buffered.
const defaultMaxBodyBytes = 32 << 20

// ErrForeignURL is returned for absolute request URLs, usually pagination
// cursors, whose scheme or host differ from the client's base URL. The bearer
// token is never sent to them.
var ErrForeignURL = errors.New("url outside the api base")

// StatusError is returned for non-2xx responses other than 401.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client executes requests against the LMS REST API.
type Client struct {
	base    *url.URL
	token   string
	perPage int
	maxBody int64
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithPerPage adds a per_page parameter to GET requests that do not set one.
func WithPerPage(n int) ClientOption {
	return func(c *Client) { c.perPage = n }
}

// WithMaxBodyBytes caps the size of a response body. Larger responses fail
// with a decode error.
func WithMaxBodyBytes(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// NewClient creates a client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base url must be absolute: %s", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	c := &Client{base: base, maxBody: defaultMaxBodyBytes, http: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolve(req Request) (*url.URL, error) {
	ref, err := url.Parse(req.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", req.Path, err)
	}
	var u *url.URL
	if ref.IsAbs() {
		if !strings.EqualFold(ref.Scheme, c.base.Scheme) || !strings.EqualFold(ref.Host, c.base.Host) {
			return nil, fmt.Errorf("%w: %s", ErrForeignURL, ref.Redacted())
		}
		u = ref
	} else {
		u = c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(ref.Path, "/"), RawQuery: ref.RawQuery})
	}
	q := u.Query()
	for k, vs := range req.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	method := req.Method
	if c.perPage > 0 && (method == "" || method == http.MethodGet) && q.Get("per_page") == "" {
		q.Set("per_page", strconv.Itoa(c.perPage))
	}
	u.RawQuery = q.Encode()
	return u, nil
}

// Execute performs the request and reads the whole body. 401 maps to an
// unauthorized error; transport failures and other non-2xx statuses map to
// network errors.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	log := logger.WithComponent("remote")
	op := req.String()

	u, err := c.resolve(req)
	if err != nil {
		return nil, syncerr.Network(op, err)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, syncerr.Network(op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		log.Debugf("%s failed: %v", op, err)
		return nil, syncerr.Network(op, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBody+1))
	if err != nil {
		return nil, syncerr.Network(op, fmt.Errorf("read body: %w", err))
	}
	if int64(len(data)) > c.maxBody {
		return nil, syncerr.Decode(op, fmt.Errorf("response too large: over %d bytes", c.maxBody))
	}
	log.Debugf("%s %s -> %d (%s)", method, u.Redacted(), httpResp.StatusCode, time.Since(start).Round(time.Millisecond))

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}
	switch {
	case httpResp.StatusCode == http.StatusUnauthorized:
		return nil, syncerr.Unauthorized(op, nil)
	case httpResp.StatusCode < 200 || httpResp.StatusCode > 299:
		return nil, syncerr.Network(op, &StatusError{StatusCode: httpResp.StatusCode, Body: snippet(data)})
	}
	return resp, nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// StatusCodeOf extracts the HTTP status from an error chain, or 0.
func StatusCodeOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
