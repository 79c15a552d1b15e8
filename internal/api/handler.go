// Package api exposes the routine repository as a small local JSON API.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/reachravi55/myDailyRoutine/internal/calendar"
	"github.com/reachravi55/myDailyRoutine/internal/httpmw"
	"github.com/reachravi55/myDailyRoutine/internal/model"
	"github.com/reachravi55/myDailyRoutine/internal/occurrence"
	"github.com/reachravi55/myDailyRoutine/internal/recurrence"
	"github.com/reachravi55/myDailyRoutine/internal/routine"
	"github.com/reachravi55/myDailyRoutine/internal/telemetry"
)

// Tester sends a test notification.
type Tester interface {
	SendTest()
}

type Options struct {
	Repo   *routine.Repository
	Tester Tester
	Events telemetry.Repository
	Logger *log.Logger
	Now    func() time.Time
	// Token guards every route but /healthz when set.
	Token string
}

type Handler struct {
	repo   *routine.Repository
	tester Tester
	events telemetry.Repository
	logger *log.Logger
	now    func() time.Time
	token  string
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		repo:   opts.Repo,
		tester: opts.Tester,
		events: opts.Events,
		logger: opts.Logger,
		now:    opts.Now,
		token:  opts.Token,
	}
}

// Routes returns the API mux behind httpmw.Wrap.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)

	mux.HandleFunc("GET /api/lists", h.listLists)
	mux.HandleFunc("POST /api/lists", h.createList)
	mux.HandleFunc("PATCH /api/lists/{id}", h.updateList)
	mux.HandleFunc("DELETE /api/lists/{id}", h.deleteList)

	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("PUT /api/tasks/{id}", h.replaceTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.deleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/archive", h.archiveTask)
	mux.HandleFunc("GET /api/tasks/{id}/occurrences", h.taskOccurrences)
	mux.HandleFunc("PUT /api/tasks/{id}/occurrences/{date}", h.setOccurrence)
	mux.HandleFunc("GET /api/tasks/{id}/calendar.ics", h.taskICS)

	mux.HandleFunc("GET /api/today", h.today)
	mux.HandleFunc("DELETE /api/days/{date}", h.clearDay)

	mux.HandleFunc("GET /api/settings", h.getSettings)
	mux.HandleFunc("PUT /api/settings", h.putSettings)
	mux.HandleFunc("POST /api/notifications/test", h.testNotification)
	mux.HandleFunc("GET /api/stats", h.stats)

	return httpmw.Wrap(mux, httpmw.Options{Logger: h.logger, Token: h.token, Now: h.now})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// writeRepoErr maps repository errors onto status codes.
func writeRepoErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, routine.ErrNotFound), errors.Is(err, routine.ErrListNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, routine.ErrInvalidTask), errors.Is(err, routine.ErrInvalidList):
		writeErr(w, http.StatusBadRequest, err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func (h *Handler) dateParam(s string) (calendar.Date, error) {
	if strings.TrimSpace(s) == "" {
		return h.repo.Today(), nil
	}
	return calendar.Parse(s)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "routined",
		"time":    h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) listLists(w http.ResponseWriter, r *http.Request) {
	doc, err := h.repo.EnsureInitialized(r.Context())
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lists":        doc.Lists,
		"activeListId": doc.ActiveListID,
	})
}

type listRequest struct {
	Name     string `json:"name"`
	ColorHex string `json:"colorHex"`
	Active   bool   `json:"active"`
}

func (h *Handler) createList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	l, err := h.repo.CreateList(r.Context(), req.Name, req.ColorHex, req.Active)
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *Handler) updateList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	id := r.PathValue("id")
	if req.Name != "" {
		if err := h.repo.RenameList(r.Context(), id, req.Name); err != nil {
			writeRepoErr(w, err)
			return
		}
	}
	if req.Active {
		if err := h.repo.SetActiveList(r.Context(), id); err != nil {
			writeRepoErr(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteList(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteList(r.Context(), r.PathValue("id")); err != nil {
		writeRepoErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.repo.Tasks(r.Context(), r.URL.Query().Get("list"))
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	if r.URL.Query().Get("archived") != "true" {
		kept := tasks[:0]
		for _, t := range tasks {
			if !t.Archived {
				kept = append(kept, t)
			}
		}
		tasks = kept
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var t model.Task
	if err := decodeJSON(r, &t); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	t.ID = ""
	saved, err := h.repo.UpsertTask(r.Context(), t)
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	t, ok, err := h.repo.Task(r.Context(), r.PathValue("id"))
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// replaceTask swaps the whole definition; the recurrence rule is never patched.
func (h *Handler) replaceTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_, ok, err := h.repo.Task(r.Context(), id)
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "task not found")
		return
	}
	var t model.Task
	if err := decodeJSON(r, &t); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	t.ID = id
	saved, err := h.repo.UpsertTask(r.Context(), t)
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		writeRepoErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) archiveTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Archived bool `json:"archived"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := h.repo.SetArchived(r.Context(), r.PathValue("id"), req.Archived)
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type occurrenceView struct {
	Date string `json:"date"`
	occurrence.State
}

func (h *Handler) taskOccurrences(w http.ResponseWriter, r *http.Request) {
	from, err := h.dateParam(r.URL.Query().Get("from"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid from date")
		return
	}
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 366 {
			writeErr(w, http.StatusBadRequest, "days must be 0..366")
			return
		}
		days = n
	}
	doc, err := h.repo.Read(r.Context())
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	t, ok := doc.Task(r.PathValue("id"))
	if !ok {
		writeErr(w, http.StatusNotFound, "task not found")
		return
	}
	out := []occurrenceView{}
	for _, d := range recurrence.Occurrences(t, from, from.AddDays(days)) {
		out = append(out, occurrenceView{Date: d.Key(), State: occurrence.Effective(doc, t.ID, d)})
	}
	writeJSON(w, http.StatusOK, out)
}

type completionRequest struct {
	Completed bool    `json:"completed"`
	Note      *string `json:"note,omitempty"`
	SubtaskID string  `json:"subtaskId,omitempty"`
}

func (h *Handler) setOccurrence(w http.ResponseWriter, r *http.Request) {
	date, err := calendar.Parse(r.PathValue("date"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid date")
		return
	}
	var req completionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	t, ok, err := h.repo.Task(r.Context(), r.PathValue("id"))
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "task not found")
		return
	}
	if !recurrence.Occurs(t, date) {
		writeErr(w, http.StatusUnprocessableEntity, "task is not due on "+date.Key())
		return
	}

	occ := h.repo.Occurrences()
	var st occurrence.State
	if req.SubtaskID != "" {
		if !t.HasSubtask(req.SubtaskID) {
			writeErr(w, http.StatusNotFound, "subtask not found")
			return
		}
		st, err = occ.SetSubtaskCompletion(r.Context(), t.ID, date, req.SubtaskID, req.Completed, req.Note)
	} else {
		if !req.Completed && req.Note == nil {
			empty := ""
			req.Note = &empty
		}
		st, err = occ.SetCompletion(r.Context(), t.ID, date, req.Completed, req.Note)
	}
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, occurrenceView{Date: date.Key(), State: st})
}

func (h *Handler) taskICS(w http.ResponseWriter, r *http.Request) {
	t, ok, err := h.repo.Task(r.Context(), r.PathValue("id"))
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "task not found")
		return
	}
	ics, err := recurrence.BuildTaskCalendarICS(t, h.now())
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+t.ID+`.ics"`)
	_, _ = w.Write([]byte(ics))
}

type dueView struct {
	Task  model.Task       `json:"task"`
	State occurrence.State `json:"state"`
}

func (h *Handler) today(w http.ResponseWriter, r *http.Request) {
	date, err := h.dateParam(r.URL.Query().Get("date"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid date")
		return
	}
	doc, err := h.repo.Read(r.Context())
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	due := []dueView{}
	for _, t := range occurrence.Due(doc, date) {
		due = append(due, dueView{Task: t, State: occurrence.Effective(doc, t.ID, date)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":    date.Key(),
		"due":     due,
		"summary": occurrence.DaySummary(doc, date),
	})
}

func (h *Handler) clearDay(w http.ResponseWriter, r *http.Request) {
	date, err := calendar.Parse(r.PathValue("date"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid date")
		return
	}
	n, err := h.repo.Occurrences().ClearDate(r.Context(), date)
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": n})
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.Settings(r.Context())
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var in model.Settings
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	s, err := h.repo.UpdateSettings(r.Context(), func(s *model.Settings) { *s = in })
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) testNotification(w http.ResponseWriter, _ *http.Request) {
	if h.tester == nil {
		writeErr(w, http.StatusServiceUnavailable, "notifications not configured")
		return
	}
	h.tester.SendTest()
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeErr(w, http.StatusServiceUnavailable, "telemetry not configured")
		return
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := calendar.Parse(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid since date")
			return
		}
		since = d.At(0, 0, time.Local)
	}
	events, err := h.events.GetEvents(since, nil)
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	stats, err := telemetry.CalculateStats(events, since)
	if err != nil {
		writeRepoErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
