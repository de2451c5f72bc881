package handlers

import (
	"net/http"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/scheduling"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
)

// JobHandler exposes the batch jobs to an external cron.  Every job is
// idempotent, so a retried trigger is harmless.
type JobHandler struct {
	processor  DailyProcessor
	builder    scheduling.QueueBuilder
	dispatcher scheduling.Dispatcher
	logger     logging.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(processor DailyProcessor, builder scheduling.QueueBuilder, dispatcher scheduling.Dispatcher, logger logging.Logger) *JobHandler {
	return &JobHandler{processor: processor, builder: builder, dispatcher: dispatcher, logger: logger}
}

// Process handles POST /api/v1/jobs/process.
func (h *JobHandler) Process(w http.ResponseWriter, r *http.Request) {
	res, err := h.processor.ProcessReminders(r.Context())
	if err != nil {
		h.logger.Error("daily process failed", logging.Err(err))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Rebuild handles POST /api/v1/jobs/rebuild[?client=ID].
func (h *JobHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if clientID := r.URL.Query().Get("client"); clientID != "" {
		res, err := h.builder.BuildClient(r.Context(), clientID)
		if err != nil {
			h.logger.Error("client rebuild failed", logging.ClientID(clientID), logging.Err(err))
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	res, err := h.builder.BuildAll(r.Context())
	if err != nil {
		h.logger.Error("queue rebuild failed", logging.Err(err))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SendDue handles POST /api/v1/jobs/send-due.
func (h *JobHandler) SendDue(w http.ResponseWriter, r *http.Request) {
	res, err := h.dispatcher.PromoteDue(r.Context())
	if err != nil {
		h.logger.Error("due promotion failed", logging.Err(err))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
