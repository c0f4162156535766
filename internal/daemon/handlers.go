package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"shuttle/internal/queue"
)

// longPollWindow bounds how long a follow=1 log request waits for new
// entries before returning an empty page.
const longPollWindow = 25 * time.Second

type submitRequest struct {
	Type           string            `json:"type"`
	Input          []string          `json:"input"`
	TargetLanguage string            `json:"target_language,omitempty"`
	Destination    queue.Destination `json:"destination"`
}

type jobListResponse struct {
	Jobs []*queue.Job `json:"jobs"`
}

type logsResponse struct {
	Entries []queue.LogEntry `json:"entries"`
	Next    int64            `json:"next"`
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	jobType, ok := queue.ParseType(req.Type)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown job type %q", req.Type))
		return
	}
	inputs := make([]string, 0, len(req.Input))
	for _, value := range req.Input {
		if value = strings.TrimSpace(value); value != "" {
			inputs = append(inputs, value)
		}
	}
	if len(inputs) == 0 {
		s.writeError(w, http.StatusBadRequest, "input must not be empty")
		return
	}
	if target := strings.TrimSpace(req.Destination.Target); target != "" {
		if _, found := s.daemon.cfg.TargetByName(target); !found {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown storage target %q", target))
			return
		}
	}

	job, err := s.daemon.store.Create(r.Context(), jobType, inputs, req.TargetLanguage, req.Destination)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, job)
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var statuses []queue.Status
	for _, value := range query["status"] {
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	limit, _ := strconv.Atoi(query.Get("limit"))

	jobs, err := s.daemon.store.List(r.Context(), statuses, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, jobListResponse{Jobs: jobs})
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// handleLogs serves a job's log page. With follow=1 and no entries past
// the cursor it long-polls the hub, then re-reads the store so the
// client never misses entries that fell out of the in-memory buffer.
func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseInt(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")

	// The hub cursor is sampled before the store read so an entry
	// appended in between wakes the wait instead of riding out the
	// whole poll window.
	cursor := s.daemon.hub.LastSequence()
	entries, err := s.daemon.store.LogsSince(r.Context(), job.ID, since, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if len(entries) == 0 && follow && !job.Status.IsTerminal() {
		waitCtx, cancel := context.WithTimeout(r.Context(), longPollWindow)
		_, waitErr := s.daemon.hub.WaitForJob(waitCtx, job.ID, cursor)
		cancel()
		if waitErr == nil || errors.Is(waitErr, context.DeadlineExceeded) {
			entries, err = s.daemon.store.LogsSince(r.Context(), job.ID, since, limit)
			if err != nil {
				s.writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
	}

	next := since
	if len(entries) > 0 {
		next = entries[len(entries)-1].Sequence
	}
	s.writeJSON(w, http.StatusOK, logsResponse{Entries: entries, Next: next})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.daemon.store.Cancel(r.Context(), id)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
	case err != nil && !errors.Is(err, queue.ErrAlreadyTerminal):
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		// Repeated cancels are no-ops; report the job's current status.
		s.writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
	}
}

func (s *apiServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.daemon.store.Remove(r.Context(), id)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, queue.ErrNotTerminal):
		s.writeError(w, http.StatusConflict, "job is still active; cancel it first")
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeJSON(w, http.StatusNoContent, nil)
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) lookupJob(w http.ResponseWriter, r *http.Request) (*queue.Job, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	job, err := s.daemon.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	return job, true
}
