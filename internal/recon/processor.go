package recon

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor drives the narrative annotation pass in the background. Runs
// queued for annotation are picked up on each tick and annotated one run
// at a time; per-break concurrency is the annotation runner's concern.
type Processor struct {
	service      *Service
	processDelay time.Duration
}

func NewProcessor(service *Service, processDelay time.Duration) *Processor {
	if processDelay <= 0 {
		processDelay = 30 * time.Second
	}
	return &Processor{
		service:      service,
		processDelay: processDelay,
	}
}

// Start begins the annotation processing loop
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "annotation_processor").Logger()
	logger.Info().Msg("starting annotation processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down annotation processor")
			return
		case <-ticker.C:
			if err := p.processQueuedRuns(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to process queued runs")
			}
		}
	}
}

func (p *Processor) processQueuedRuns(ctx context.Context) error {
	logger := log.With().Str("component", "annotation_processor").Logger()

	runs, err := p.service.GetDB().GetRunsByStatus(StatusPendingAnnotation)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		return nil
	}

	logger.Info().Int("queued_count", len(runs)).Msg("processing queued annotation runs")

	for _, run := range runs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.service.AnnotateRun(ctx, run.RunID); err != nil {
			logger.Error().
				Err(err).
				Str("run_id", run.RunID).
				Msg("annotation pass failed for run")
			continue
		}
	}

	return nil
}
