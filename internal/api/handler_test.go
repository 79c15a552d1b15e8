package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reachravi55/myDailyRoutine/internal/alarm"
	"github.com/reachravi55/myDailyRoutine/internal/clock"
	"github.com/reachravi55/myDailyRoutine/internal/model"
	"github.com/reachravi55/myDailyRoutine/internal/routine"
	"github.com/reachravi55/myDailyRoutine/internal/store"
	"github.com/reachravi55/myDailyRoutine/internal/telemetry"
)

type countingTester struct{ n int }

func (c *countingTester) SendTest() { c.n++ }

type harness struct {
	h      http.Handler
	timers *alarm.MemoryTimers
	tester *countingTester
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithToken(t, "")
}

func newHarnessWithToken(t *testing.T, token string) *harness {
	t.Helper()
	st := store.NewMemoryStore()
	timers := alarm.NewMemoryTimers()
	clk := clock.NewFakeClock(time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC))
	logger := log.New(io.Discard, "", 0)
	events := telemetry.NewMemoryRepository()
	sched := alarm.NewScheduler(alarm.Options{
		Timers:   timers,
		Docs:     st,
		Clock:    clk,
		Logger:   logger,
		Events:   events,
		Location: time.UTC,
	})
	repo := routine.NewRepository(routine.Options{Store: st, Alarms: sched, Clock: clk, Logger: logger})
	tester := &countingTester{}
	h := NewHandler(Options{Repo: repo, Tester: tester, Events: events, Logger: logger, Now: clk.Now, Token: token})
	return &harness{h: h.Routes(), timers: timers, tester: tester}
}

func jsonReq(method, path string, body any) *http.Request {
	var b []byte
	if body != nil {
		b, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (hs *harness) do(t *testing.T, req *http.Request, wantCode int, out any) {
	t.Helper()
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	if rec.Code != wantCode {
		t.Fatalf("%s %s: status = %d, want %d; body=%s", req.Method, req.URL.Path, rec.Code, wantCode, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
}

func (hs *harness) createDaily(t *testing.T, title string) model.Task {
	t.Helper()
	var created model.Task
	hs.do(t, jsonReq(http.MethodPost, "/api/tasks", map[string]any{
		"title":     title,
		"startDate": "2024-01-01",
		"repeat":    map[string]any{"frequency": "DAILY"},
		"reminders": []any{map[string]any{"hour": 8, "minute": 0, "enabled": true}},
	}), http.StatusCreated, &created)
	return created
}

func TestHealthz(t *testing.T) {
	hs := newHarness(t)
	var body map[string]any
	hs.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil), http.StatusOK, &body)
	if body["ok"] != true {
		t.Fatalf("healthz body = %v", body)
	}
}

func TestAPIToken_GuardsEverythingButHealthz(t *testing.T) {
	hs := newHarnessWithToken(t, "s3cret")
	hs.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil), http.StatusOK, nil)

	var body map[string]any
	hs.do(t, httptest.NewRequest(http.MethodGet, "/api/tasks", nil), http.StatusUnauthorized, &body)
	if body["error"] == nil || body["request_id"] == nil {
		t.Fatalf("unauthorized body = %v", body)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	hs.do(t, req, http.StatusOK, nil)
}

func TestCreateTask_ArmsReminder(t *testing.T) {
	hs := newHarness(t)
	created := hs.createDaily(t, "Meditate")
	if created.ID == "" || created.ListID == "" {
		t.Fatalf("created task missing ids: %+v", created)
	}

	live := hs.timers.Live()
	if len(live) != 1 {
		t.Fatalf("live timers = %d, want 1", len(live))
	}
	want := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	if !live[0].At.Equal(want) || live[0].Key.TaskID != created.ID {
		t.Fatalf("armed %+v, want %s for %s", live[0], want, created.ID)
	}
}

func TestCreateTask_InvalidIsBadRequest(t *testing.T) {
	hs := newHarness(t)
	hs.do(t, jsonReq(http.MethodPost, "/api/tasks", map[string]any{"title": " ", "startDate": "2024-01-01"}), http.StatusBadRequest, nil)
	hs.do(t, jsonReq(http.MethodPost, "/api/tasks", map[string]any{"title": "x", "bogus": 1}), http.StatusBadRequest, nil)
}

func TestReplaceTask_UnknownIs404(t *testing.T) {
	hs := newHarness(t)
	hs.do(t, jsonReq(http.MethodPut, "/api/tasks/nope", map[string]any{"title": "x", "startDate": "2024-01-01"}), http.StatusNotFound, nil)
}

func TestSetOccurrence_CompletesAndUndoClearsNote(t *testing.T) {
	hs := newHarness(t)
	task := hs.createDaily(t, "Walk")
	path := "/api/tasks/" + task.ID + "/occurrences/2024-01-10"

	note := "5km"
	var st struct {
		Date      string `json:"date"`
		Completed bool   `json:"completed"`
		Note      string `json:"note"`
	}
	hs.do(t, jsonReq(http.MethodPut, path, map[string]any{"completed": true, "note": note}), http.StatusOK, &st)
	if !st.Completed || st.Note != note || st.Date != "2024-01-10" {
		t.Fatalf("state = %+v", st)
	}

	hs.do(t, jsonReq(http.MethodPut, path, map[string]any{"completed": false}), http.StatusOK, &st)
	if st.Completed || st.Note != "" {
		t.Fatalf("undo state = %+v", st)
	}
}

func TestSetOccurrence_RejectsDateBeforeStart(t *testing.T) {
	hs := newHarness(t)
	task := hs.createDaily(t, "Walk")
	hs.do(t, jsonReq(http.MethodPut, "/api/tasks/"+task.ID+"/occurrences/2023-12-31", map[string]any{"completed": true}),
		http.StatusUnprocessableEntity, nil)
}

func TestOccurrencesAndToday(t *testing.T) {
	hs := newHarness(t)
	task := hs.createDaily(t, "Stretch")
	hs.do(t, jsonReq(http.MethodPut, "/api/tasks/"+task.ID+"/occurrences/2024-01-11", map[string]any{"completed": true}), http.StatusOK, nil)

	var occ []struct {
		Date      string `json:"date"`
		Completed bool   `json:"completed"`
	}
	hs.do(t, httptest.NewRequest(http.MethodGet, "/api/tasks/"+task.ID+"/occurrences?from=2024-01-10&days=2", nil), http.StatusOK, &occ)
	if len(occ) != 3 || occ[1].Date != "2024-01-11" || !occ[1].Completed || occ[0].Completed {
		t.Fatalf("occurrences = %+v", occ)
	}

	var today struct {
		Date    string `json:"date"`
		Summary string `json:"summary"`
		Due     []struct {
			Task model.Task `json:"task"`
		} `json:"due"`
	}
	hs.do(t, httptest.NewRequest(http.MethodGet, "/api/today?date=2024-01-11", nil), http.StatusOK, &today)
	if len(today.Due) != 1 || !strings.Contains(today.Summary, "Stretch") {
		t.Fatalf("today = %+v", today)
	}

	var cleared map[string]int
	hs.do(t, httptest.NewRequest(http.MethodDelete, "/api/days/2024-01-11", nil), http.StatusOK, &cleared)
	if cleared["cleared"] != 1 {
		t.Fatalf("cleared = %v", cleared)
	}
}

func TestArchiveAndDelete_CancelAlarms(t *testing.T) {
	hs := newHarness(t)
	task := hs.createDaily(t, "Vitamins")

	hs.do(t, jsonReq(http.MethodPost, "/api/tasks/"+task.ID+"/archive", map[string]any{"archived": true}), http.StatusOK, nil)
	if n := len(hs.timers.Live()); n != 0 {
		t.Fatalf("archived task still has %d timers", n)
	}
	var tasks []model.Task
	hs.do(t, httptest.NewRequest(http.MethodGet, "/api/tasks", nil), http.StatusOK, &tasks)
	if len(tasks) != 0 {
		t.Fatalf("archived task listed by default: %+v", tasks)
	}

	hs.do(t, httptest.NewRequest(http.MethodDelete, "/api/tasks/"+task.ID, nil), http.StatusNoContent, nil)
	hs.do(t, httptest.NewRequest(http.MethodGet, "/api/tasks/"+task.ID, nil), http.StatusNotFound, nil)
}

func TestSettings_DisablingNotificationsCancelsTimers(t *testing.T) {
	hs := newHarness(t)
	hs.createDaily(t, "Journal")
	if len(hs.timers.Live()) != 1 {
		t.Fatalf("expected one armed timer")
	}
	hs.do(t, jsonReq(http.MethodPut, "/api/settings", map[string]any{"notificationsEnabled": false}), http.StatusOK, nil)
	if n := len(hs.timers.Live()); n != 0 {
		t.Fatalf("timers after disable = %d", n)
	}
}

func TestICS(t *testing.T) {
	hs := newHarness(t)
	task := hs.createDaily(t, "Floss")
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/"+task.ID+"/calendar.ics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "RRULE:FREQ=DAILY") {
		t.Fatalf("ics = %s", rec.Body.String())
	}
}

func TestNotificationTestAndStats(t *testing.T) {
	hs := newHarness(t)
	hs.createDaily(t, "Read")
	hs.do(t, httptest.NewRequest(http.MethodPost, "/api/notifications/test", nil), http.StatusAccepted, nil)
	if hs.tester.n != 1 {
		t.Fatalf("SendTest calls = %d", hs.tester.n)
	}

	var stats telemetry.Stats
	hs.do(t, httptest.NewRequest(http.MethodGet, "/api/stats", nil), http.StatusOK, &stats)
	if stats.Armed < 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestLists(t *testing.T) {
	hs := newHarness(t)
	var l model.RoutineList
	hs.do(t, jsonReq(http.MethodPost, "/api/lists", map[string]any{"name": "Evening", "active": true}), http.StatusCreated, &l)
	hs.do(t, jsonReq(http.MethodPatch, "/api/lists/"+l.ID, map[string]any{"name": "Night"}), http.StatusNoContent, nil)

	var got struct {
		Lists        []model.RoutineList `json:"lists"`
		ActiveListID string              `json:"activeListId"`
	}
	hs.do(t, httptest.NewRequest(http.MethodGet, "/api/lists", nil), http.StatusOK, &got)
	if got.ActiveListID != l.ID {
		t.Fatalf("active = %s, want %s", got.ActiveListID, l.ID)
	}
	hs.do(t, httptest.NewRequest(http.MethodDelete, "/api/lists/missing", nil), http.StatusNotFound, nil)
}
