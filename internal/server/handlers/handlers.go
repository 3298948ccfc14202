package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/watzon/gensched/internal/scheduler"
	"github.com/watzon/gensched/internal/store"
	"github.com/watzon/gensched/internal/task"
	"github.com/watzon/gensched/internal/taskfile"
)

type HandlerFunc func(http.ResponseWriter, *http.Request)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Handlers serves the task and history API.
type Handlers struct {
	launcher *scheduler.Launcher
	store    *store.Store
}

func New(launcher *scheduler.Launcher, st *store.Store) *Handlers {
	return &Handlers{
		launcher: launcher,
		store:    st,
	}
}

type TaskList struct {
	Tasks  []*task.ScheduledTask `json:"tasks"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// ListTasks supports ?name=<glob>, ?status=, ?active=, ?limit= and ?offset=.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, offset, err := pagination(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	filter := store.TaskFilter{NamePattern: q.Get("name")}
	for _, s := range q["status"] {
		status, err := task.ParseStatus(s)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			BadRequest(w, "active must be true or false")
			return
		}
		filter.Active = &active
	}

	resp := TaskList{Limit: limit, Offset: offset}
	err = h.store.Do(r.Context(), func(s *store.Session) error {
		var err error
		if resp.Total, err = s.Tasks().Count(r.Context(), filter); err != nil {
			return err
		}
		filter.Limit = limit
		filter.Offset = offset
		resp.Tasks, err = s.Tasks().GetAll(r.Context(), filter)
		return err
	})
	if err != nil {
		StoreError(w, r, err)
		return
	}
	if resp.Tasks == nil {
		resp.Tasks = []*task.ScheduledTask{}
	}

	JSON(w, http.StatusOK, resp)
}

// ApplyTask accepts one task definition in the task file format, as JSON
// or YAML. An active task with the same name is updated in place.
func (h *Handlers) ApplyTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		BadRequest(w, "Failed to read request body")
		return
	}

	var def taskfile.Definition
	dec := yaml.NewDecoder(bytes.NewReader(body))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			BadRequest(w, "Request body is empty")
			return
		}
		BadRequest(w, fmt.Sprintf("Invalid task definition: %v", err))
		return
	}

	var parentID string
	if def.DependsOn != "" {
		parent, err := h.launcher.ResolveTask(r.Context(), def.DependsOn)
		if err != nil {
			if errors.Is(err, task.ErrNotFound) {
				BadRequest(w, fmt.Sprintf("depends_on task %q not found", def.DependsOn))
				return
			}
			StoreError(w, r, err)
			return
		}
		parentID = parent.ID
	}

	t, err := def.Build(parentID)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	created, err := h.launcher.ApplyTask(r.Context(), t)
	if err != nil {
		StoreError(w, r, err)
		return
	}

	stored, err := h.launcher.ResolveTask(r.Context(), t.ID)
	if err != nil {
		StoreError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	JSON(w, status, stored)
}

func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.launcher.ResolveTask(r.Context(), r.PathValue("id"))
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, t)
}

func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.launcher.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		StoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunTask requests an immediate run.
func (h *Handlers) RunTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.launcher.Trigger(r.Context(), r.PathValue("id"))
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusAccepted, t)
}

type patchTaskRequest struct {
	Active *bool `json:"active"`
}

// PatchTask toggles activation.
func (h *Handlers) PatchTask(w http.ResponseWriter, r *http.Request) {
	var req patchTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "Invalid JSON body")
		return
	}
	if req.Active == nil {
		BadRequest(w, "active is required")
		return
	}

	t, err := h.launcher.SetActive(r.Context(), r.PathValue("id"), *req.Active)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, t)
}

type HistoryList struct {
	History []*task.History `json:"history"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// TaskHistory lists a task's history, newest first. ?status= filters by
// outcome.
func (h *Handlers) TaskHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	filter := store.HistoryFilter{Limit: limit, Offset: offset}
	for _, s := range r.URL.Query()["status"] {
		status, err := task.ParseHistoryStatus(s)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	resp := HistoryList{Limit: limit, Offset: offset}
	err = h.store.Do(r.Context(), func(s *store.Session) error {
		t, err := s.Tasks().GetByID(r.Context(), r.PathValue("id"))
		if errors.Is(err, task.ErrNotFound) {
			t, err = s.Tasks().GetByName(r.Context(), r.PathValue("id"))
		}
		if err != nil {
			return err
		}
		filter.TaskIDs = []string{t.ID}
		resp.History, err = s.History().GetAll(r.Context(), filter)
		return err
	})
	if err != nil {
		StoreError(w, r, err)
		return
	}
	if resp.History == nil {
		resp.History = []*task.History{}
	}

	JSON(w, http.StatusOK, resp)
}

func pagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit = defaultPageSize
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
