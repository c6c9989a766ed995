// Task REST API.
//
// Routes:
//   GET    /tasks        — list tasks
//   POST   /tasks        — create task (201 + created event)
//   GET    /tasks/{id}   — get task (404 if absent)
//   PATCH  /tasks/{id}   — partial update (only supplied fields; updated event)
//   DELETE /tasks/{id}   — delete task (deleted event)
//   GET    /tasks/stats  — counts by completion
//
// Every successful mutation publishes exactly one event to the bus before
// the response is written. Delivery to listeners is asynchronous.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"taskpulse/pkg/events"
	"taskpulse/pkg/logger"
	"taskpulse/pkg/store"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.List(r.Context())
	if err != nil {
		logger.ErrorCF("api", "List tasks failed", map[string]interface{}{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	views := make([]*events.TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, events.ViewOf(t))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Completed   bool   `json:"completed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title required"})
		return
	}

	task, err := s.store.Create(r.Context(), store.TaskFields{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
	})
	if err != nil {
		logger.ErrorCF("api", "Create task failed", map[string]interface{}{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.bus.Publish(events.NewCreated(task))
	writeJSON(w, http.StatusCreated, events.ViewOf(task))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	task, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.taskError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, events.ViewOf(task))
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	var patch store.TaskPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if patch.Title != nil && *patch.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title must not be empty"})
		return
	}

	task, err := s.store.Update(r.Context(), id, patch)
	if err != nil {
		s.taskError(w, id, err)
		return
	}

	s.bus.Publish(events.NewUpdated(task))
	writeJSON(w, http.StatusOK, events.ViewOf(task))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.taskError(w, id, err)
		return
	}

	s.bus.Publish(events.NewDeleted(id))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// taskID parses the {id} path segment, writing the error response itself on
// failure.
func taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return 0, false
	}
	return id, true
}

func (s *Server) taskError(w http.ResponseWriter, id int64, err error) {
	if errors.Is(err, store.ErrTaskNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Task not found"})
		return
	}
	logger.ErrorCF("api", "Task operation failed", map[string]interface{}{
		"task_id": id,
		"error":   err.Error(),
	})
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
