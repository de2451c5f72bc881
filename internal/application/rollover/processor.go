package rollover

import (
	"context"
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/scheduling"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
)

// ProcessResult summarises one daily run.
type ProcessResult struct {
	Queued     int                     `json:"queued"`
	RolledOver int                     `json:"rolled_over"`
	Errors     int                     `json:"errors"`
	Skipped    int                     `json:"skipped"`
	Rollover   *BulkResult             `json:"rollover"`
	Build      *scheduling.BatchResult `json:"build"`
	Elapsed    time.Duration           `json:"elapsed"`
}

// Processor is the daily entry point: roll over what is due, then rebuild
// every client's queue.  Re-running it is safe.
type Processor struct {
	detector Detector
	executor Executor
	builder  scheduling.QueueBuilder
	logger   logging.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(detector Detector, executor Executor, builder scheduling.QueueBuilder, logger logging.Logger) *Processor {
	return &Processor{detector: detector, executor: executor, builder: builder, logger: logger}
}

// ProcessReminders runs detection, rollover and the full queue build.
// Detection failures are counted and the build still runs; only a failure to
// list clients for the build is returned.
func (p *Processor) ProcessReminders(ctx context.Context) (*ProcessResult, error) {
	start := time.Now()
	res := &ProcessResult{Rollover: &BulkResult{}}

	candidates, err := p.detector.Candidates(ctx)
	if err != nil {
		p.logger.Error("rollover detection failed", logging.Err(err))
		res.Errors++
	} else if len(candidates) > 0 {
		res.Rollover = p.executor.ExecuteBulk(ctx, candidates)
		res.RolledOver = res.Rollover.Succeeded
		res.Errors += res.Rollover.Failed + res.Rollover.RebuildErrors
		for _, o := range res.Rollover.Outcomes {
			if o.Rebuild != nil {
				res.Queued += o.Rebuild.Created
			}
		}
	}

	build, err := p.builder.BuildAll(ctx)
	if err != nil {
		return nil, err
	}
	res.Build = build
	res.Queued += build.Created
	res.Skipped = build.Skipped
	res.Errors += len(build.Errors)
	res.Elapsed = time.Since(start)

	p.logger.Info("daily reminder processing finished",
		logging.Int("queued", res.Queued),
		logging.Int("rolled_over", res.RolledOver),
		logging.Int("errors", res.Errors),
		logging.Int("skipped", res.Skipped),
		logging.Duration("elapsed", res.Elapsed))
	return res, nil
}
