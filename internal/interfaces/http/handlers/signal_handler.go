package handlers

import (
	"net/http"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/intake"
)

// SignalRequest is the body of POST /signals.
type SignalRequest struct {
	ClientID string `json:"client_id" validate:"required"`
	Text     string `json:"text" validate:"max=100000"`
	DryRun   bool   `json:"dry_run"`
}

// SignalHandler scores inbound correspondence for records-received signals.
type SignalHandler struct {
	intake IntakeService
}

// NewSignalHandler creates a new SignalHandler.
func NewSignalHandler(svc IntakeService) *SignalHandler {
	return &SignalHandler{intake: svc}
}

// Score handles POST /signals.
func (h *SignalHandler) Score(w http.ResponseWriter, r *http.Request) {
	var req SignalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	var (
		res *intake.Result
		err error
	)
	if req.DryRun {
		res, err = h.intake.Preview(r.Context(), req.ClientID, req.Text)
	} else {
		res, err = h.intake.Apply(r.Context(), req.ClientID, req.Text)
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
