// Package intake turns client correspondence into records-received markers.
package intake

import (
	"context"
	"strings"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/scheduling"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/signal"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// DefaultThreshold is the confidence at which records count as received.
const DefaultThreshold = 0.6

// Result reports what one piece of text did.
type Result struct {
	ClientID string                      `json:"client_id"`
	Scores   []signal.Score              `json:"scores"`
	Applied  []filing.FilingType         `json:"applied"`
	Changes  []*scheduling.RecordsChange `json:"changes,omitempty"`
	DryRun   bool                        `json:"dry_run,omitempty"`
}

// Service scores text and marks records received for confident matches.
type Service struct {
	scorer    *signal.Scorer
	store     reminder.Store
	records   scheduling.RecordsService
	threshold float64
	logger    logging.Logger
}

// NewService constructs a Service.  A threshold outside (0, 1] falls back to
// DefaultThreshold.
func NewService(scorer *signal.Scorer, store reminder.Store, records scheduling.RecordsService, threshold float64, logger logging.Logger) *Service {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Service{scorer: scorer, store: store, records: records, threshold: threshold, logger: logger}
}

// Threshold returns the configured confidence threshold.
func (s *Service) Threshold() float64 { return s.threshold }

// Apply marks records received for every actively assigned filing type whose
// confidence meets the threshold.  Empty text is not an error.
func (s *Service) Apply(ctx context.Context, clientID, text string) (*Result, error) {
	return s.run(ctx, clientID, text, false)
}

// Preview reports what Apply would mark without writing anything.
func (s *Service) Preview(ctx context.Context, clientID, text string) (*Result, error) {
	return s.run(ctx, clientID, text, true)
}

func (s *Service) run(ctx context.Context, clientID, text string, dryRun bool) (*Result, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.NewValidationError("client_id", "is required")
	}
	if _, err := s.store.Clients().Get(ctx, clientID); err != nil {
		return nil, err
	}
	res := &Result{ClientID: clientID, DryRun: dryRun}
	res.Scores = s.scorer.Score(text)
	if len(res.Scores) == 0 {
		return res, nil
	}

	assignments, err := s.store.Assignments().ListByClient(ctx, clientID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list assignments")
	}
	active := make(map[filing.FilingType]bool)
	for _, ft := range filing.ActiveTypes(assignments) {
		active[ft] = true
	}

	for _, sc := range res.Scores {
		if sc.Confidence < s.threshold || !active[sc.FilingType] {
			continue
		}
		res.Applied = append(res.Applied, sc.FilingType)
		if dryRun {
			continue
		}
		ch, err := s.records.MarkReceived(ctx, clientID, sc.FilingType)
		if err != nil {
			return res, err
		}
		res.Changes = append(res.Changes, ch)
	}

	if !dryRun && len(res.Applied) > 0 {
		s.logger.Info("records received from correspondence",
			logging.ClientID(clientID),
			logging.Any("filing_types", res.Applied),
			logging.Float64("threshold", s.threshold))
	}
	return res, nil
}
