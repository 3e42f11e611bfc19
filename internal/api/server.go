// Package api exposes the admin HTTP surface: schedule and task CRUD,
// enable/disable, run-now, results, and statistics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cronbeat/internal/admin"
	"cronbeat/internal/domain"
	"cronbeat/internal/store"
)

type Server struct {
	r     *chi.Mux
	admin *admin.Service
}

func NewServer(svc *admin.Service) http.Handler {
	return NewServerWithDebug(svc, false)
}

func NewServerWithDebug(svc *admin.Service, enableDebug bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, admin: svc}

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/schedules/intervals", s.listIntervals)
		r.Post("/schedules/intervals", s.createInterval)
		r.Delete("/schedules/intervals/{id}", s.deleteInterval)

		r.Get("/schedules/crontabs", s.listCrontabs)
		r.Post("/schedules/crontabs", s.createCrontab)
		r.Delete("/schedules/crontabs/{id}", s.deleteCrontab)

		r.Get("/tasks", s.listTasks)
		r.Post("/tasks", s.createTask)
		r.Get("/tasks/{id}", s.getTask)
		r.Put("/tasks/{id}", s.updateTask)
		r.Delete("/tasks/{id}", s.deleteTask)
		r.Post("/tasks/{id}/enable", s.enableTask)
		r.Post("/tasks/{id}/disable", s.disableTask)
		r.Post("/tasks/{id}/run", s.runTaskNow)

		r.Get("/results", s.listResults)
		r.Delete("/results/cleanup", s.cleanupResults)
		r.Get("/results/{id}", s.getResult)

		r.Get("/statistics", s.statistics)
		r.Get("/available-tasks", s.availableTasks)
	})

	if enableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// listEnvelope is the {total, items} shape list endpoints return.
type listEnvelope struct {
	Total int `json:"total"`
	Items any `json:"items"`
}

func (s *Server) listIntervals(w http.ResponseWriter, r *http.Request) {
	intervals, err := s.admin.ListIntervals(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, intervals)
}

type createIntervalReq struct {
	Every  int           `json:"every"`
	Period domain.Period `json:"period"`
}

func (s *Server) createInterval(w http.ResponseWriter, r *http.Request) {
	var req createIntervalReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	iv, err := s.admin.CreateInterval(r.Context(), domain.IntervalSchedule{
		Every: req.Every, Period: req.Period,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, iv)
}

func (s *Server) deleteInterval(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteInterval(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listCrontabs(w http.ResponseWriter, r *http.Request) {
	crontabs, err := s.admin.ListCrontabs(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, crontabs)
}

func (s *Server) createCrontab(w http.ResponseWriter, r *http.Request) {
	var req domain.CrontabSchedule
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	req.ID = ""
	ct, err := s.admin.CreateCrontab(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ct)
}

func (s *Server) deleteCrontab(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteCrontab(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	f := store.TaskFilter{
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
	}
	if v := r.URL.Query().Get("enabled"); v != "" {
		enabled := v == "true" || v == "1"
		f.Enabled = &enabled
	}
	tasks, total, err := s.admin.ListTasks(r.Context(), f)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, listEnvelope{Total: total, Items: tasks})
}

type createTaskReq struct {
	Name        string          `json:"name"`
	Task        string          `json:"task"`
	IntervalID  *string         `json:"interval_id"`
	CrontabID   *string         `json:"crontab_id"`
	Args        json.RawMessage `json:"args"`
	Kwargs      json.RawMessage `json:"kwargs"`
	Queue       string          `json:"queue"`
	Priority    *int            `json:"priority"`
	Expires     *time.Time      `json:"expires"`
	OneOff      bool            `json:"one_off"`
	StartTime   *time.Time      `json:"start_time"`
	Enabled     *bool           `json:"enabled"`
	Description string          `json:"description"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	task, err := s.admin.CreateTask(r.Context(), domain.PeriodicTask{
		Name:        req.Name,
		Task:        req.Task,
		IntervalID:  req.IntervalID,
		CrontabID:   req.CrontabID,
		Args:        req.Args,
		Kwargs:      req.Kwargs,
		Queue:       req.Queue,
		Priority:    req.Priority,
		Expires:     req.Expires,
		OneOff:      req.OneOff,
		StartTime:   req.StartTime,
		Enabled:     enabled,
		Description: req.Description,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.admin.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var req admin.TaskUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	task, err := s.admin.UpdateTask(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) enableTask(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.EnableTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, map[string]string{"message": "task enabled"})
}

func (s *Server) disableTask(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DisableTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, map[string]string{"message": "task disabled"})
}

func (s *Server) runTaskNow(w http.ResponseWriter, r *http.Request) {
	id, err := s.admin.RunTaskNow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"dispatch_id": id})
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	f := store.ResultFilter{
		TaskName: r.URL.Query().Get("task_name"),
		Status:   r.URL.Query().Get("status"),
		Limit:    queryInt(r, "limit", 20),
		Offset:   queryInt(r, "offset", 0),
	}
	if f.Status != "" && !domain.ResultStatus(f.Status).Valid() {
		http.Error(w, "unknown status "+f.Status, 400)
		return
	}
	results, total, err := s.admin.ListResults(r.Context(), f)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, listEnvelope{Total: total, Items: results})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.admin.GetResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, res)
}

func (s *Server) cleanupResults(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	if days < 1 {
		http.Error(w, "days must be positive", 400)
		return
	}
	n, err := s.admin.CleanupResults(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, map[string]int{"deleted": n})
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.admin.Statistics(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, stats)
}

func (s *Server) availableTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.admin.AvailableTasks())
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err) || errors.Is(err, domain.ErrNameTaken):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrScheduleInUse):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrDispatchUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
