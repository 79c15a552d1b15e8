// Package httpmw wraps the local routine API: request ids, an optional bearer
// token, panic recovery and one access-log line per call.
package httpmw

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ctxKey struct{}

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-Id"

// Options configures Wrap.
type Options struct {
	Logger *log.Logger
	// Token, when set, must arrive as "Authorization: Bearer <token>" on every
	// route except /healthz.
	Token string
	Now   func() time.Time
}

// RequestID returns the id Wrap assigned to the request, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Wrap returns next behind the API's middleware. Errors it produces itself use
// the same {"error": ...} body the handlers write.
func Wrap(next http.Handler, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := opts.Now()
		id := requestID(r.Header.Get(HeaderRequestID))
		w.Header().Set(HeaderRequestID, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))
		rec := &recorder{ResponseWriter: w}

		func() {
			defer func() {
				if p := recover(); p != nil {
					logJSON(opts.Logger, "error", "api_panic", map[string]any{
						"request_id": id,
						"path":       r.URL.Path,
						"panic":      fmt.Sprint(p),
						"stack":      string(debug.Stack()),
					})
					if rec.status == 0 {
						fail(rec, http.StatusInternalServerError, "internal error", id)
					}
				}
			}()
			if !authorized(r, opts.Token) {
				fail(rec, http.StatusUnauthorized, "missing or invalid api token", id)
				return
			}
			next.ServeHTTP(rec, r)
		}()

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		fields := map[string]any{
			"request_id":  id,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": opts.Now().Sub(start).Milliseconds(),
		}
		// ServeMux records the matched pattern and wildcards on r.
		if r.Pattern != "" {
			fields["route"] = r.Pattern
		}
		if v := r.PathValue("id"); v != "" && strings.Contains(r.Pattern, "/tasks/") {
			fields["task_id"] = v
		}
		if v := r.PathValue("date"); v != "" {
			fields["date"] = v
		}
		level := "info"
		if rec.status >= http.StatusInternalServerError {
			level = "error"
		}
		logJSON(opts.Logger, level, "api_request", fields)
	})
}

// requestID keeps a caller-supplied id when it is short printable ASCII.
func requestID(in string) string {
	in = strings.TrimSpace(in)
	if in != "" && len(in) <= 64 && strings.IndexFunc(in, func(r rune) bool { return r <= ' ' || r > '~' }) < 0 {
		return in
	}
	return "req_" + uuid.NewString()
}

func authorized(r *http.Request, token string) bool {
	if token == "" || r.URL.Path == "/healthz" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

func fail(w http.ResponseWriter, code int, msg, id string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg, "request_id": id})
}

type recorder struct {
	http.ResponseWriter
	status int
}

func (w *recorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func logJSON(logger *log.Logger, level, msg string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"msg":   msg,
	}
	for k, v := range fields {
		payload[k] = v
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logger.Printf(`{"level":"error","msg":"log_marshal_failed","error":%q}`, err.Error())
		return
	}
	logger.Print(string(b))
}
