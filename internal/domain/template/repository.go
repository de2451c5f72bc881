package template

import (
	"context"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
)

// Repository persists base templates and per-client step overrides.
// Step overrides are keyed by (client, template, step index).
type Repository interface {
	GetByFilingType(ctx context.Context, ft filing.FilingType) (*BaseTemplate, error)
	List(ctx context.Context) ([]*BaseTemplate, error)
	Save(ctx context.Context, t *BaseTemplate) error

	ListStepOverrides(ctx context.Context, clientID, templateID string) ([]StepOverride, error)
	UpsertStepOverride(ctx context.Context, o StepOverride) error
	DeleteStepOverride(ctx context.Context, clientID, templateID string, stepIndex int) error
}
