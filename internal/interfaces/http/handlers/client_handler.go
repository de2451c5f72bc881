package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/customization"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/scheduling"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/template"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

const defaultAuditLimit = 50

// ClientHandler serves the per-client endpoints.
type ClientHandler struct {
	deadlines DeadlineService
	custom    CustomizationService
	records   scheduling.RecordsService
	builder   scheduling.QueueBuilder
	store     reminder.Store
	logger    logging.Logger
}

// NewClientHandler creates a new ClientHandler.
func NewClientHandler(
	deadlines DeadlineService,
	custom CustomizationService,
	records scheduling.RecordsService,
	builder scheduling.QueueBuilder,
	store reminder.Store,
	logger logging.Logger,
) *ClientHandler {
	return &ClientHandler{
		deadlines: deadlines,
		custom:    custom,
		records:   records,
		builder:   builder,
		store:     store,
		logger:    logger,
	}
}

// RegisterRoutes mounts the handler under /clients/{clientID}.
func (h *ClientHandler) RegisterRoutes(r chi.Router) {
	r.Route("/clients/{clientID}", func(r chi.Router) {
		r.Get("/deadlines", h.Deadlines)
		r.Get("/deadlines.ics", h.DeadlinesICS)
		r.Post("/deadlines/export", h.ExportDeadlines)
		r.Get("/queue", h.Queue)
		r.Get("/audit", h.Audit)

		r.Put("/overrides/{filingType}", h.SetDeadlineOverride)
		r.Delete("/overrides/{filingType}", h.ClearDeadlineOverride)

		r.Get("/templates/{filingType}", h.Template)
		r.Put("/templates/{filingType}/steps/{index}", h.SetStepOverride)
		r.Delete("/templates/{filingType}/steps/{index}", h.ClearStepOverride)

		r.Post("/records/{filingType}", h.MarkReceived)
		r.Delete("/records/{filingType}", h.MarkNotReceived)
		r.Post("/completed/{filingType}", h.MarkCompleted)
		r.Delete("/completed/{filingType}", h.MarkNotCompleted)
	})
}

// ---------------------------------------------------------------------------
// Deadlines
// ---------------------------------------------------------------------------

// Deadlines handles GET /clients/{clientID}/deadlines.
func (h *ClientHandler) Deadlines(w http.ResponseWriter, r *http.Request) {
	l, err := h.deadlines.ForClient(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// DeadlinesICS handles GET /clients/{clientID}/deadlines.ics.
func (h *ClientHandler) DeadlinesICS(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	data, _, err := h.deadlines.ICS(r.Context(), clientID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+clientID+`-deadlines.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ExportDeadlines handles POST /clients/{clientID}/deadlines/export.
func (h *ClientHandler) ExportDeadlines(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	exp, err := h.deadlines.ExportICS(r.Context(), clientID)
	if err != nil {
		h.logger.Error("calendar export failed", logging.ClientID(clientID), logging.Err(err))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

// ---------------------------------------------------------------------------
// Queue and audit
// ---------------------------------------------------------------------------

// QueueResponse lists a client's queue entries.  Plan responses also carry
// the obligations the builder would skip.
type QueueResponse struct {
	ClientID string                         `json:"client_id"`
	Planned  bool                           `json:"planned"`
	Entries  []*reminder.Entry              `json:"entries"`
	Skipped  []scheduling.SkippedObligation `json:"skipped,omitempty"`
}

// Queue handles GET /clients/{clientID}/queue[?plan=true&status=...].
func (h *ClientHandler) Queue(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	q := r.URL.Query()

	if plan, _ := strconv.ParseBool(q.Get("plan")); plan {
		entries, skipped, err := h.builder.Plan(r.Context(), clientID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, QueueResponse{ClientID: clientID, Planned: true, Entries: entries, Skipped: skipped})
		return
	}

	filter := reminder.EntryFilter{ClientID: clientID, Limit: intQuery(r, "limit", 0)}
	for _, s := range q["status"] {
		st := reminder.Status(s)
		if !st.IsValid() {
			writeError(w, http.StatusBadRequest, errors.NewValidationError("status", "unknown status "+s))
			return
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	if v := q.Get("filing_type"); v != "" {
		ft, err := filing.ParseFilingType(v)
		if err != nil {
			writeAppError(w, err)
			return
		}
		filter.FilingType = ft
	}

	entries, err := h.store.Queue().List(r.Context(), filter)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if entries == nil {
		entries = []*reminder.Entry{}
	}
	writeJSON(w, http.StatusOK, QueueResponse{ClientID: clientID, Entries: entries})
}

// Audit handles GET /clients/{clientID}/audit[?limit=n].
func (h *ClientHandler) Audit(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.Audit().ListByClient(r.Context(), chi.URLParam(r, "clientID"), intQuery(r, "limit", defaultAuditLimit))
	if err != nil {
		writeAppError(w, err)
		return
	}
	if recs == nil {
		recs = []*reminder.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// ---------------------------------------------------------------------------
// Deadline overrides
// ---------------------------------------------------------------------------

// DeadlineOverrideRequest is the body of PUT /overrides/{filingType}.
type DeadlineOverrideRequest struct {
	Date   string `json:"date" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

// SetDeadlineOverride handles PUT /clients/{clientID}/overrides/{filingType}.
func (h *ClientHandler) SetDeadlineOverride(w http.ResponseWriter, r *http.Request) {
	ft, err := filingTypeParam(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	var req DeadlineOverrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	date, err := calendar.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.NewValidationError("date", "must be YYYY-MM-DD"))
		return
	}

	ch, err := h.custom.SetDeadlineOverride(r.Context(), filing.DeadlineOverride{
		ClientID:   chi.URLParam(r, "clientID"),
		FilingType: ft,
		Date:       date,
		Reason:     req.Reason,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// ClearDeadlineOverride handles DELETE /clients/{clientID}/overrides/{filingType}.
func (h *ClientHandler) ClearDeadlineOverride(w http.ResponseWriter, r *http.Request) {
	ft, err := filingTypeParam(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	ch, err := h.custom.ClearDeadlineOverride(r.Context(), chi.URLParam(r, "clientID"), ft)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// TemplateResponse is the resolved template of a client, optionally
// rendered against a deadline.
type TemplateResponse struct {
	Preview  *customization.Preview `json:"preview"`
	Rendered []template.Rendered    `json:"rendered,omitempty"`
}

// Template handles GET /clients/{clientID}/templates/{filingType}[?due=YYYY-MM-DD].
func (h *ClientHandler) Template(w http.ResponseWriter, r *http.Request) {
	ft, err := filingTypeParam(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	clientID := chi.URLParam(r, "clientID")

	p, err := h.custom.Preview(r.Context(), clientID, ft)
	if err != nil {
		writeAppError(w, err)
		return
	}
	resp := TemplateResponse{Preview: p}

	if v := r.URL.Query().Get("due"); v != "" {
		due, err := calendar.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.NewValidationError("due", "must be YYYY-MM-DD"))
			return
		}
		if resp.Rendered, err = h.custom.Render(r.Context(), clientID, ft, due); err != nil {
			writeAppError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// StepOverrideRequest is the body of PUT /templates/{filingType}/steps/{index}.
type StepOverrideRequest struct {
	Subject   *string `json:"subject"`
	Body      *string `json:"body"`
	DelayDays *int    `json:"delay_days"`
}

// SetStepOverride handles PUT /clients/{clientID}/templates/{filingType}/steps/{index}.
func (h *ClientHandler) SetStepOverride(w http.ResponseWriter, r *http.Request) {
	ft, idx, err := stepParams(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	var req StepOverrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	ch, err := h.custom.SetStepOverride(r.Context(), ft, template.StepOverride{
		ClientID:  chi.URLParam(r, "clientID"),
		StepIndex: idx,
		Subject:   req.Subject,
		Body:      req.Body,
		DelayDays: req.DelayDays,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// ClearStepOverride handles DELETE /clients/{clientID}/templates/{filingType}/steps/{index}.
func (h *ClientHandler) ClearStepOverride(w http.ResponseWriter, r *http.Request) {
	ft, idx, err := stepParams(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	ch, err := h.custom.ClearStepOverride(r.Context(), chi.URLParam(r, "clientID"), ft, idx)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func stepParams(r *http.Request) (filing.FilingType, int, error) {
	ft, err := filingTypeParam(r)
	if err != nil {
		return "", 0, err
	}
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || idx < 0 {
		return "", 0, errors.NewValidationError("step_index", "must be a non-negative integer")
	}
	return ft, idx, nil
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

type recordsFunc func(ctx context.Context, clientID string, ft filing.FilingType) (*scheduling.RecordsChange, error)

func (h *ClientHandler) recordsAction(action string, fn recordsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ft, err := filingTypeParam(r)
		if err != nil {
			writeAppError(w, err)
			return
		}
		clientID := chi.URLParam(r, "clientID")
		start := time.Now()
		ch, err := fn(r.Context(), clientID, ft)
		if err != nil {
			h.logger.Warn("records update failed",
				logging.String("action", action),
				logging.ClientID(clientID),
				logging.FilingType(string(ft)),
				logging.Err(err),
			)
			writeAppError(w, err)
			return
		}
		h.logger.Info("records updated",
			logging.String("action", action),
			logging.ClientID(clientID),
			logging.FilingType(string(ft)),
			logging.Bool("changed", ch.Changed),
			logging.Duration("elapsed", time.Since(start)),
		)
		writeJSON(w, http.StatusOK, ch)
	}
}

// MarkReceived handles POST /clients/{clientID}/records/{filingType}.
func (h *ClientHandler) MarkReceived(w http.ResponseWriter, r *http.Request) {
	h.recordsAction("received", h.records.MarkReceived)(w, r)
}

// MarkNotReceived handles DELETE /clients/{clientID}/records/{filingType}.
func (h *ClientHandler) MarkNotReceived(w http.ResponseWriter, r *http.Request) {
	h.recordsAction("not_received", h.records.MarkNotReceived)(w, r)
}

// MarkCompleted handles POST /clients/{clientID}/completed/{filingType}.
func (h *ClientHandler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	h.recordsAction("completed", h.records.MarkCompleted)(w, r)
}

// MarkNotCompleted handles DELETE /clients/{clientID}/completed/{filingType}.
func (h *ClientHandler) MarkNotCompleted(w http.ResponseWriter, r *http.Request) {
	h.recordsAction("not_completed", h.records.MarkNotCompleted)(w, r)
}
