// Package customization manages the per-client adjustments layered on top of
// calculated deadlines and practice-wide templates: deadline overrides and
// reminder step overrides.  Every write regenerates the client's queue.
package customization

import (
	"context"
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/scheduling"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/template"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// Preview is a client's effective template for one filing type.
type Preview struct {
	ClientID   string                  `json:"client_id"`
	TemplateID string                  `json:"template_id"`
	FilingType filing.FilingType       `json:"filing_type"`
	Steps      []template.Step         `json:"steps"`
	Overridden map[int][]string        `json:"overridden_fields"`
	Orphaned   []template.StepOverride `json:"orphaned_overrides,omitempty"`
}

// Change reports a write and the rebuild that followed it.
type Change struct {
	ClientID   string                   `json:"client_id"`
	FilingType filing.FilingType        `json:"filing_type"`
	Rebuild    *scheduling.ClientResult `json:"rebuild,omitempty"`
}

// Service applies client customizations.
type Service struct {
	store   reminder.Store
	builder scheduling.QueueBuilder
	clock   calendar.Clock
	logger  logging.Logger
}

// NewService constructs a Service.
func NewService(store reminder.Store, builder scheduling.QueueBuilder, clock calendar.Clock, logger logging.Logger) *Service {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &Service{store: store, builder: builder, clock: clock, logger: logger}
}

// ---------------------------------------------------------------------------
// Deadline overrides
// ---------------------------------------------------------------------------

// SetDeadlineOverride stores an explicit deadline for (client, filing type).
// The override wins over the calculated date from the next rebuild on.
func (s *Service) SetDeadlineOverride(ctx context.Context, o filing.DeadlineOverride) (*Change, error) {
	if !o.FilingType.IsValid() {
		return nil, errors.New(errors.ErrCodeInvalidFilingType, "unknown filing type").WithDetail(string(o.FilingType))
	}
	if o.Date.IsZero() {
		return nil, errors.NewValidationError("override_date", "is required")
	}
	o.Date = calendar.Normalize(o.Date)

	if _, err := s.store.Clients().Get(ctx, o.ClientID); err != nil {
		return nil, err
	}
	if err := s.store.DeadlineOverrides().Upsert(ctx, o); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "save deadline override")
	}
	s.logger.Info("deadline override set",
		logging.ClientID(o.ClientID),
		logging.FilingType(string(o.FilingType)),
		logging.Date("override_date", o.Date),
	)
	return s.rebuild(ctx, o.ClientID, o.FilingType)
}

// ClearDeadlineOverride removes the override so the calculated date applies
// again.  Clearing an absent override is not an error.
func (s *Service) ClearDeadlineOverride(ctx context.Context, clientID string, ft filing.FilingType) (*Change, error) {
	if !ft.IsValid() {
		return nil, errors.New(errors.ErrCodeInvalidFilingType, "unknown filing type").WithDetail(string(ft))
	}
	if _, err := s.store.Clients().Get(ctx, clientID); err != nil {
		return nil, err
	}
	if err := s.store.DeadlineOverrides().Delete(ctx, clientID, ft); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "delete deadline override")
	}
	return s.rebuild(ctx, clientID, ft)
}

// ---------------------------------------------------------------------------
// Step overrides
// ---------------------------------------------------------------------------

// SetStepOverride stores the fields of o for the client's template of ft.
// The step index must address a step of the live template.
func (s *Service) SetStepOverride(ctx context.Context, ft filing.FilingType, o template.StepOverride) (*Change, error) {
	base, err := s.templateFor(ctx, ft)
	if err != nil {
		return nil, err
	}
	o.TemplateID = base.ID
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if o.StepIndex >= len(base.Steps) {
		return nil, errors.NewValidationError("step_index", "template has no such step")
	}
	if _, err := s.store.Clients().Get(ctx, o.ClientID); err != nil {
		return nil, err
	}
	if err := s.store.Templates().UpsertStepOverride(ctx, o); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "save step override")
	}
	s.logger.Info("step override set",
		logging.ClientID(o.ClientID),
		logging.FilingType(string(ft)),
		logging.Int("step_index", o.StepIndex),
	)
	return s.rebuild(ctx, o.ClientID, ft)
}

// ClearStepOverride drops the override of one step.
func (s *Service) ClearStepOverride(ctx context.Context, clientID string, ft filing.FilingType, stepIndex int) (*Change, error) {
	base, err := s.templateFor(ctx, ft)
	if err != nil {
		return nil, err
	}
	if err := s.store.Templates().DeleteStepOverride(ctx, clientID, base.ID, stepIndex); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "delete step override")
	}
	return s.rebuild(ctx, clientID, ft)
}

// Preview resolves the client's effective steps for ft and reports which
// fields come from overrides.
func (s *Service) Preview(ctx context.Context, clientID string, ft filing.FilingType) (*Preview, error) {
	base, err := s.templateFor(ctx, ft)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Clients().Get(ctx, clientID); err != nil {
		return nil, err
	}
	overrides, err := s.store.Templates().ListStepOverrides(ctx, clientID, base.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list step overrides")
	}
	_, orphaned := template.PruneOverrides(base.Steps, overrides)
	return &Preview{
		ClientID:   clientID,
		TemplateID: base.ID,
		FilingType: ft,
		Steps:      template.Resolve(base.Steps, overrides),
		Overridden: template.OverriddenFields(base.Steps, overrides),
		Orphaned:   orphaned,
	}, nil
}

// Render renders the client's effective steps against a deadline, as they
// would be queued.
func (s *Service) Render(ctx context.Context, clientID string, ft filing.FilingType, due time.Time) ([]template.Rendered, error) {
	p, err := s.Preview(ctx, clientID, ft)
	if err != nil {
		return nil, err
	}
	c, err := s.store.Clients().Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	out := make([]template.Rendered, 0, len(p.Steps))
	for _, st := range p.Steps {
		out = append(out, template.Render(st, template.Vars{
			ClientName: c.CompanyName,
			FilingType: ft,
			Deadline:   due,
			SendDate:   calendar.AddDays(due, -st.DelayDays),
		}))
	}
	return out, nil
}

func (s *Service) templateFor(ctx context.Context, ft filing.FilingType) (*template.BaseTemplate, error) {
	if !ft.IsValid() {
		return nil, errors.New(errors.ErrCodeInvalidFilingType, "unknown filing type").WithDetail(string(ft))
	}
	return s.store.Templates().GetByFilingType(ctx, ft)
}

func (s *Service) rebuild(ctx context.Context, clientID string, ft filing.FilingType) (*Change, error) {
	ch := &Change{ClientID: clientID, FilingType: ft}
	res, err := s.builder.BuildClient(ctx, clientID)
	if err != nil {
		return ch, errors.Wrap(err, errors.ErrCodeQueueBuildFailed, "regenerate schedule").WithDetail(clientID)
	}
	ch.Rebuild = res
	return ch, nil
}
