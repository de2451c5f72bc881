package cli

import (
	"context"
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/customization"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/deadlines"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/rollover"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/scheduling"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/config"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/credential"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/template"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
)

// DailyProcessor runs the daily rollover-then-rebuild job.
type DailyProcessor interface {
	ProcessReminders(ctx context.Context) (*rollover.ProcessResult, error)
}

// DeadlineLister lists and exports a client's deadlines.
type DeadlineLister interface {
	ForClient(ctx context.Context, clientID string) (*deadlines.Listing, error)
	ICS(ctx context.Context, clientID string) ([]byte, *deadlines.Listing, error)
	ExportICS(ctx context.Context, clientID string) (*deadlines.Export, error)
}

// TemplateResolver previews a client's resolved template.
type TemplateResolver interface {
	Preview(ctx context.Context, clientID string, ft filing.FilingType) (*customization.Preview, error)
	Render(ctx context.Context, clientID string, ft filing.FilingType, due time.Time) ([]template.Rendered, error)
}

// HolidayLister returns the bank holidays of a region.
type HolidayLister interface {
	Holidays(ctx context.Context, region string) (calendar.HolidaySet, error)
}

// CredentialRefresher forces a token refresh for one connection.
type CredentialRefresher interface {
	ForceRefresh(ctx context.Context, connectionID string) (*credential.Credential, error)
}

// App is the set of services the commands drive.  Nil members make their
// commands fail with a configuration error.
type App struct {
	Processor   DailyProcessor
	Builder     scheduling.QueueBuilder
	Dispatcher  scheduling.Dispatcher
	Detector    rollover.Detector
	Executor    rollover.Executor
	Deadlines   DeadlineLister
	Templates   TemplateResolver
	Records     scheduling.RecordsService
	Holidays    HolidayLister
	Credentials CredentialRefresher
	Region      string

	// Close releases the connections behind the services.
	Close func() error
}

// Migrator applies schema migrations.
type Migrator interface {
	Up() error
	Down(steps int) error
	Status() (version uint, dirty bool, err error)
	Force(version int) error
}

// Factories build the dependencies of the commands once configuration is
// known.  Migrate commands only need a Migrator, so they do not open the
// rest of the stack.
type Factories struct {
	App      func(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error)
	Migrator func(cfg *config.Config, logger logging.Logger) (Migrator, error)
}
