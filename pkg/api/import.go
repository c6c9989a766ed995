package api

import (
	"net/http"

	"taskpulse/pkg/catalog"
	"taskpulse/pkg/events"
	"taskpulse/pkg/logger"
)

// handleImportRun runs one import cycle synchronously and returns its result.
// The periodic cycle's timing is untouched.
func (s *Server) handleImportRun(w http.ResponseWriter, r *http.Request) {
	task, err := s.scheduler.TriggerNow(r.Context())
	if err != nil {
		if catalog.IsUpstream(err) {
			logger.WarnCF("api", "Manual import failed upstream", map[string]interface{}{
				"error": err.Error(),
			})
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		logger.ErrorCF("api", "Manual import failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, events.ViewOf(task))
}

// handleImportStatus exposes the periodic cycle state for operability.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}
