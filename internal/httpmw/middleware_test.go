package httpmw

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLines(buf *bytes.Buffer) []map[string]any {
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(line), &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func TestWrap_KeepsIncomingRequestID(t *testing.T) {
	var seen string
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}), Options{Logger: log.New(&bytes.Buffer{}, "", 0)})

	req := httptest.NewRequest(http.MethodGet, "/api/today", nil)
	req.Header.Set(HeaderRequestID, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get(HeaderRequestID))
}

func TestWrap_ReplacesUnusableRequestID(t *testing.T) {
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}), Options{Logger: log.New(&bytes.Buffer{}, "", 0)})

	for _, in := range []string{"", "has space", strings.Repeat("x", 65)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, in)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		got := rec.Header().Get(HeaderRequestID)
		assert.True(t, strings.HasPrefix(got, "req_"), got)
		assert.Len(t, got, len("req_")+36)
	}
}

func TestWrap_LogsRouteAndTaskID(t *testing.T) {
	var buf bytes.Buffer
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/tasks/{id}/occurrences/{date}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Wrap(mux, Options{Logger: log.New(&buf, "", 0)})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/tasks/task_1/occurrences/2024-01-05", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	lines := logLines(&buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "api_request", lines[0]["msg"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "PUT /api/tasks/{id}/occurrences/{date}", lines[0]["route"])
	assert.Equal(t, "task_1", lines[0]["task_id"])
	assert.Equal(t, "2024-01-05", lines[0]["date"])
	assert.EqualValues(t, http.StatusNoContent, lines[0]["status"])
}

func TestWrap_RecoversPanicAsJSON(t *testing.T) {
	var buf bytes.Buffer
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), Options{Logger: log.New(&buf, "", 0)})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/today", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal error", body["error"])
	assert.Equal(t, rec.Header().Get(HeaderRequestID), body["request_id"])

	lines := logLines(&buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "api_panic", lines[0]["msg"])
	assert.Equal(t, "api_request", lines[1]["msg"])
	assert.Equal(t, "error", lines[1]["level"])
}

func TestWrap_Token(t *testing.T) {
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), Options{Logger: log.New(&bytes.Buffer{}, "", 0), Token: "s3cret"})

	cases := []struct {
		path, auth string
		want       int
	}{
		{"/api/tasks", "", http.StatusUnauthorized},
		{"/api/tasks", "Bearer wrong", http.StatusUnauthorized},
		{"/api/tasks", "s3cret", http.StatusUnauthorized},
		{"/api/tasks", "Bearer s3cret", http.StatusOK},
		{"/healthz", "", http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, c.path, nil)
		if c.auth != "" {
			req.Header.Set("Authorization", c.auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, c.want, rec.Code, "%s %q", c.path, c.auth)
	}
}
