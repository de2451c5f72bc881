package handlers

import (
	"context"
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/customization"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/deadlines"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/intake"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/rollover"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/template"
)

// The handlers depend on these narrow views of the application services.

// DailyProcessor runs the daily rollover-then-rebuild job.
type DailyProcessor interface {
	ProcessReminders(ctx context.Context) (*rollover.ProcessResult, error)
}

// DeadlineService lists and exports client deadlines.
type DeadlineService interface {
	ForClient(ctx context.Context, clientID string) (*deadlines.Listing, error)
	ICS(ctx context.Context, clientID string) ([]byte, *deadlines.Listing, error)
	ExportICS(ctx context.Context, clientID string) (*deadlines.Export, error)
}

// CustomizationService applies deadline and step overrides.
type CustomizationService interface {
	SetDeadlineOverride(ctx context.Context, o filing.DeadlineOverride) (*customization.Change, error)
	ClearDeadlineOverride(ctx context.Context, clientID string, ft filing.FilingType) (*customization.Change, error)
	SetStepOverride(ctx context.Context, ft filing.FilingType, o template.StepOverride) (*customization.Change, error)
	ClearStepOverride(ctx context.Context, clientID string, ft filing.FilingType, stepIndex int) (*customization.Change, error)
	Preview(ctx context.Context, clientID string, ft filing.FilingType) (*customization.Preview, error)
	Render(ctx context.Context, clientID string, ft filing.FilingType, due time.Time) ([]template.Rendered, error)
}

// IntakeService scores inbound text.
type IntakeService interface {
	Apply(ctx context.Context, clientID, text string) (*intake.Result, error)
	Preview(ctx context.Context, clientID, text string) (*intake.Result, error)
}
