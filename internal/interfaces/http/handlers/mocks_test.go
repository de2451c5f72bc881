package handlers

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/customization"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/deadlines"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/intake"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/rollover"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/scheduling"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/template"
)

// --- Mock processor ---

type mockProcessor struct{ mock.Mock }

func (m *mockProcessor) ProcessReminders(ctx context.Context) (*rollover.ProcessResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rollover.ProcessResult), args.Error(1)
}

// --- Mock builder ---

type mockBuilder struct{ mock.Mock }

func (m *mockBuilder) BuildClient(ctx context.Context, clientID string) (*scheduling.ClientResult, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.ClientResult), args.Error(1)
}

func (m *mockBuilder) BuildAll(ctx context.Context) (*scheduling.BatchResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.BatchResult), args.Error(1)
}

func (m *mockBuilder) CurrentDeadline(ctx context.Context, st reminder.Store, c *filing.Client, ft filing.FilingType) (time.Time, bool, error) {
	args := m.Called(ctx, st, c, ft)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}

func (m *mockBuilder) Plan(ctx context.Context, clientID string) ([]*reminder.Entry, []scheduling.SkippedObligation, error) {
	args := m.Called(ctx, clientID)
	var entries []*reminder.Entry
	if v := args.Get(0); v != nil {
		entries = v.([]*reminder.Entry)
	}
	var skipped []scheduling.SkippedObligation
	if v := args.Get(1); v != nil {
		skipped = v.([]scheduling.SkippedObligation)
	}
	return entries, skipped, args.Error(2)
}

// --- Mock dispatcher ---

type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) PromoteDue(ctx context.Context) (*scheduling.PromoteResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.PromoteResult), args.Error(1)
}

func (m *mockDispatcher) RecordDelivery(ctx context.Context, o *reminder.DeliveryOutcome) error {
	return m.Called(ctx, o).Error(0)
}

// --- Mock deadline service ---

type mockDeadlines struct{ mock.Mock }

func (m *mockDeadlines) ForClient(ctx context.Context, clientID string) (*deadlines.Listing, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deadlines.Listing), args.Error(1)
}

func (m *mockDeadlines) ICS(ctx context.Context, clientID string) ([]byte, *deadlines.Listing, error) {
	args := m.Called(ctx, clientID)
	var data []byte
	if v := args.Get(0); v != nil {
		data = v.([]byte)
	}
	var l *deadlines.Listing
	if v := args.Get(1); v != nil {
		l = v.(*deadlines.Listing)
	}
	return data, l, args.Error(2)
}

func (m *mockDeadlines) ExportICS(ctx context.Context, clientID string) (*deadlines.Export, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deadlines.Export), args.Error(1)
}

// --- Mock customization service ---

type mockCustomization struct{ mock.Mock }

func (m *mockCustomization) change(args mock.Arguments) (*customization.Change, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customization.Change), args.Error(1)
}

func (m *mockCustomization) SetDeadlineOverride(ctx context.Context, o filing.DeadlineOverride) (*customization.Change, error) {
	return m.change(m.Called(ctx, o))
}

func (m *mockCustomization) ClearDeadlineOverride(ctx context.Context, clientID string, ft filing.FilingType) (*customization.Change, error) {
	return m.change(m.Called(ctx, clientID, ft))
}

func (m *mockCustomization) SetStepOverride(ctx context.Context, ft filing.FilingType, o template.StepOverride) (*customization.Change, error) {
	return m.change(m.Called(ctx, ft, o))
}

func (m *mockCustomization) ClearStepOverride(ctx context.Context, clientID string, ft filing.FilingType, idx int) (*customization.Change, error) {
	return m.change(m.Called(ctx, clientID, ft, idx))
}

func (m *mockCustomization) Preview(ctx context.Context, clientID string, ft filing.FilingType) (*customization.Preview, error) {
	args := m.Called(ctx, clientID, ft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customization.Preview), args.Error(1)
}

func (m *mockCustomization) Render(ctx context.Context, clientID string, ft filing.FilingType, due time.Time) ([]template.Rendered, error) {
	args := m.Called(ctx, clientID, ft, due)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]template.Rendered), args.Error(1)
}

// --- Mock records service ---

type mockRecords struct{ mock.Mock }

func (m *mockRecords) call(ctx context.Context, name string, clientID string, ft filing.FilingType) (*scheduling.RecordsChange, error) {
	args := m.MethodCalled(name, ctx, clientID, ft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.RecordsChange), args.Error(1)
}

func (m *mockRecords) MarkReceived(ctx context.Context, clientID string, ft filing.FilingType) (*scheduling.RecordsChange, error) {
	return m.call(ctx, "MarkReceived", clientID, ft)
}

func (m *mockRecords) MarkNotReceived(ctx context.Context, clientID string, ft filing.FilingType) (*scheduling.RecordsChange, error) {
	return m.call(ctx, "MarkNotReceived", clientID, ft)
}

func (m *mockRecords) MarkCompleted(ctx context.Context, clientID string, ft filing.FilingType) (*scheduling.RecordsChange, error) {
	return m.call(ctx, "MarkCompleted", clientID, ft)
}

func (m *mockRecords) MarkNotCompleted(ctx context.Context, clientID string, ft filing.FilingType) (*scheduling.RecordsChange, error) {
	return m.call(ctx, "MarkNotCompleted", clientID, ft)
}

// --- Mock rollover ---

type mockDetector struct{ mock.Mock }

func (m *mockDetector) Candidates(ctx context.Context) ([]rollover.Candidate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]rollover.Candidate), args.Error(1)
}

func (m *mockDetector) ForClient(ctx context.Context, clientID string) ([]rollover.Candidate, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]rollover.Candidate), args.Error(1)
}

type mockExecutor struct{ mock.Mock }

func (m *mockExecutor) Execute(ctx context.Context, c rollover.Candidate) (*rollover.Outcome, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rollover.Outcome), args.Error(1)
}

func (m *mockExecutor) ExecuteBulk(ctx context.Context, cs []rollover.Candidate) *rollover.BulkResult {
	return m.Called(ctx, cs).Get(0).(*rollover.BulkResult)
}

// --- Mock intake ---

type mockIntake struct{ mock.Mock }

func (m *mockIntake) Apply(ctx context.Context, clientID, text string) (*intake.Result, error) {
	args := m.Called(ctx, clientID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*intake.Result), args.Error(1)
}

func (m *mockIntake) Preview(ctx context.Context, clientID, text string) (*intake.Result, error) {
	args := m.Called(ctx, clientID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*intake.Result), args.Error(1)
}

var (
	_ scheduling.QueueBuilder   = (*mockBuilder)(nil)
	_ scheduling.Dispatcher     = (*mockDispatcher)(nil)
	_ scheduling.RecordsService = (*mockRecords)(nil)
	_ rollover.Detector         = (*mockDetector)(nil)
	_ rollover.Executor         = (*mockExecutor)(nil)
	_ DeadlineService           = (*mockDeadlines)(nil)
	_ CustomizationService      = (*mockCustomization)(nil)
	_ IntakeService             = (*mockIntake)(nil)
	_ DailyProcessor            = (*mockProcessor)(nil)
	_ DeadlineService           = (*deadlines.Service)(nil)
	_ CustomizationService      = (*customization.Service)(nil)
	_ IntakeService             = (*intake.Service)(nil)
	_ DailyProcessor            = (*rollover.Processor)(nil)
)
