package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/rollover"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// RolloverHandler lists and executes filing rollovers.
type RolloverHandler struct {
	detector rollover.Detector
	executor rollover.Executor
	logger   logging.Logger
}

// NewRolloverHandler creates a new RolloverHandler.
func NewRolloverHandler(detector rollover.Detector, executor rollover.Executor, logger logging.Logger) *RolloverHandler {
	return &RolloverHandler{detector: detector, executor: executor, logger: logger}
}

// RegisterRoutes mounts the handler under /rollover.
func (h *RolloverHandler) RegisterRoutes(r chi.Router) {
	r.Route("/rollover", func(r chi.Router) {
		r.Get("/candidates", h.Candidates)
		r.Post("/execute", h.Execute)
	})
}

// Candidates handles GET /rollover/candidates[?client=ID].
func (h *RolloverHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	var (
		cs  []rollover.Candidate
		err error
	)
	if clientID := r.URL.Query().Get("client"); clientID != "" {
		cs, err = h.detector.ForClient(r.Context(), clientID)
	} else {
		cs, err = h.detector.Candidates(r.Context())
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	if cs == nil {
		cs = []rollover.Candidate{}
	}
	writeJSON(w, http.StatusOK, cs)
}

// RolloverTarget names one (client, filing type) to roll over.
type RolloverTarget struct {
	ClientID   string `json:"client_id" validate:"required"`
	FilingType string `json:"filing_type" validate:"required"`
}

// RolloverRequest is the body of POST /rollover/execute.  An empty Targets
// list with All set rolls over every current candidate.
type RolloverRequest struct {
	Targets []RolloverTarget `json:"targets" validate:"omitempty,dive"`
	All     bool             `json:"all"`
}

// Execute handles POST /rollover/execute.  Per-item failures are reported in
// the result; the response is 200 unless the request itself is invalid.
func (h *RolloverHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if len(req.Targets) == 0 && !req.All {
		writeError(w, http.StatusBadRequest, errors.NewValidationError("targets", "give at least one target or set all"))
		return
	}

	var cs []rollover.Candidate
	if req.All {
		var err error
		if cs, err = h.detector.Candidates(r.Context()); err != nil {
			writeAppError(w, err)
			return
		}
	}
	for _, t := range req.Targets {
		ft, err := filing.ParseFilingType(t.FilingType)
		if err != nil {
			writeAppError(w, err)
			return
		}
		cs = append(cs, rollover.Candidate{ClientID: t.ClientID, FilingType: ft})
	}

	res := h.executor.ExecuteBulk(r.Context(), cs)
	h.logger.Info("rollover requested",
		logging.Int("total", res.Total),
		logging.Int("succeeded", res.Succeeded),
		logging.Int("failed", res.Failed),
	)
	writeJSON(w, http.StatusOK, res)
}
