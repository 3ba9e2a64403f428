// Package testutil provides request builders and response assertions for
// handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewJSONRequest creates a request whose body is body marshaled to JSON.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err, "failed to marshal request body")
		bodyReader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewRequest creates a request without a body.
func NewRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

// NewRequestWithBody creates a request with a raw string body.
func NewRequestWithBody(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// Response is a recorded handler response.
type Response struct {
	t      *testing.T
	Code   int
	Header http.Header
	Body   string
}

// Do serves req with h and records the result.
func Do(t *testing.T, h http.Handler, req *http.Request) *Response {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return &Response{t: t, Code: rr.Code, Header: rr.Header(), Body: rr.Body.String()}
}

// JSON decodes the body as a JSON object.
func (r *Response) JSON() map[string]any {
	r.t.Helper()
	var out map[string]any
	require.NoError(r.t, json.Unmarshal([]byte(r.Body), &out), "response is not a JSON object: %s", r.Body)
	return out
}

func (r *Response) AssertStatus(expected int) {
	r.t.Helper()
	assert.Equal(r.t, expected, r.Code, "unexpected status code, body: %s", r.Body)
}

// AssertStatusAndCode checks the status and the "code" field of the error envelope.
func (r *Response) AssertStatusAndCode(status int, code string) {
	r.t.Helper()
	r.AssertStatus(status)
	assert.Equal(r.t, code, r.JSON()["code"], "unexpected error code")
}
