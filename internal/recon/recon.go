// Package recon is the service layer around the reconciliation engine:
// it ingests the two uploaded feeds, runs the engine, persists the run
// and its breaks, and manages the asynchronous narrative annotation
// pass.
package recon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/recondesk/recon-api/internal/annotation"
	"github.com/recondesk/recon-api/internal/ingest"
	"github.com/recondesk/recon-api/internal/reconcile"
	"github.com/recondesk/recon-api/internal/types"
	"github.com/recondesk/recon-api/pkg/response"
)

// Service runs reconciliations and coordinates break annotation. The
// annotation runner is injected by the caller; the service holds no
// global collaborator state.
type Service struct {
	db     *Database
	runner *annotation.Runner
}

func NewService(gormDB *gorm.DB, runner *annotation.Runner) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		runner: runner,
	}
}

// CreateReconciliation parses both feeds, runs the deterministic engine
// and persists the run with its breaks. The engine output is final at
// this point; annotation only ever adds narrative fields later.
func (s *Service) CreateReconciliation(clientID string, bookingFeed, custodyFeed io.Reader) (*RunResponse, error) {
	runID := "RUN_" + uuid.New().String()

	logger := log.With().
		Str("run_id", runID).
		Str("client_id", clientID).
		Str("service", "recon").
		Logger()

	logger.Info().Msg("starting reconciliation run")

	bookings, err := ingest.ParseBookingFile(bookingFeed)
	if err != nil {
		logger.Error().Err(err).Msg("failed to parse booking feed")
		return nil, fmt.Errorf("failed to parse booking feed: %w", err)
	}

	custodies, err := ingest.ParseCustodyFile(custodyFeed)
	if err != nil {
		logger.Error().Err(err).Msg("failed to parse custody feed")
		return nil, fmt.Errorf("failed to parse custody feed: %w", err)
	}

	breaks := reconcile.Reconcile(bookings, custodies)
	summary := reconcile.Summarize(breaks, bookings)

	run := &ReconciliationRun{
		RunID:              runID,
		ClientID:           clientID,
		Status:             StatusCompleted,
		BookingRecordCount: len(bookings),
		CustodyRecordCount: len(custodies),
		MatchedPairCount:   len(bookings) - bookingSideMissing(breaks),
		BreakCount:         len(breaks),
		TotalEvents:        summary.TotalEvents,
		EventsWithBreaks:   summary.EventsWithBreaks,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}

	for i := range breaks {
		breaks[i].BreakID = "BRK_" + uuid.New().String()
		breaks[i].RunID = runID
	}

	if err := s.db.CreateRunWithBreaks(run, breaks); err != nil {
		logger.Error().Err(err).Msg("failed to persist reconciliation run")
		return nil, fmt.Errorf("failed to persist reconciliation run: %w", err)
	}

	logger.Info().
		Int("booking_records", run.BookingRecordCount).
		Int("custody_records", run.CustodyRecordCount).
		Int("breaks", run.BreakCount).
		Int("events_with_breaks", run.EventsWithBreaks).
		Msg("reconciliation run completed")

	return &RunResponse{
		RunID:              run.RunID,
		Status:             run.Status,
		BookingRecordCount: run.BookingRecordCount,
		CustodyRecordCount: run.CustodyRecordCount,
		MatchedPairCount:   run.MatchedPairCount,
		BreakCount:         run.BreakCount,
		Summary:            summary,
		Timestamp:          time.Now(),
	}, nil
}

// bookingSideMissing counts MISSING_RECORD breaks where the booking side
// had the value, i.e. bookings that found no custody counterpart.
func bookingSideMissing(breaks []types.Break) int {
	n := 0
	for i := range breaks {
		if breaks[i].Kind == types.BreakMissingRecord && breaks[i].BookingValue.Valid {
			n++
		}
	}
	return n
}

// GetRun retrieves a run by ID.
func (s *Service) GetRun(runID string) (*ReconciliationRun, error) {
	return s.db.GetRun(runID)
}

// GetClientRuns retrieves all runs for a client.
func (s *Service) GetClientRuns(clientID string) ([]ReconciliationRun, error) {
	return s.db.GetClientRuns(clientID)
}

// GetBreaks retrieves a run's breaks in detection order.
func (s *Service) GetBreaks(runID string) ([]types.Break, error) {
	if _, err := s.db.GetRun(runID); err != nil {
		return nil, err
	}
	return s.db.GetBreaksByRunID(runID)
}

// GetSummary rebuilds the aggregate view from the persisted breaks, so
// severity counts reflect whatever annotation has happened so far.
func (s *Service) GetSummary(runID string) (*types.ReconciliationSummary, error) {
	run, err := s.db.GetRun(runID)
	if err != nil {
		return nil, err
	}
	breaks, err := s.db.GetBreaksByRunID(runID)
	if err != nil {
		return nil, err
	}
	summary := reconcile.TallyBreaks(breaks, run.TotalEvents)
	return &summary, nil
}

// QueueAnnotation marks a run for the background annotation processor.
func (s *Service) QueueAnnotation(runID string) error {
	run, err := s.db.GetRun(runID)
	if err != nil {
		return err
	}
	switch run.Status {
	case StatusPendingAnnotation, StatusAnnotating:
		return nil // already queued or in flight
	case StatusFailed:
		return errors.New("cannot annotate a failed run")
	}
	return s.db.UpdateRunStatus(runID, StatusPendingAnnotation)
}

// AnnotateRun runs the narrative pass over a run's breaks. Failures are
// per-break: every deterministic break survives, with or without
// narrative fields, and the run records how many annotations succeeded,
// failed, or were skipped by the budget ceiling.
func (s *Service) AnnotateRun(ctx context.Context, runID string) error {
	logger := log.With().
		Str("run_id", runID).
		Str("service", "recon").
		Logger()

	run, err := s.db.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to fetch run: %w", err)
	}

	if err := s.db.UpdateRunStatus(runID, StatusAnnotating); err != nil {
		return err
	}

	breaks, err := s.db.GetBreaksByRunID(runID)
	if err != nil {
		return fmt.Errorf("failed to fetch breaks: %w", err)
	}

	annotated, result := s.runner.Run(ctx, runID, breaks)

	run.Status = StatusAnnotated
	run.AnnotatedCount = result.Annotated
	run.AnnotationFailures = result.Failed
	run.AnnotationCostUSD = result.TotalCostUSD
	run.UpdatedAt = time.Now()

	if err := s.db.SaveAnnotatedBreaks(run, annotated); err != nil {
		logger.Error().Err(err).Msg("failed to persist annotations")
		return fmt.Errorf("failed to persist annotations: %w", err)
	}

	logger.Info().
		Int("annotated", result.Annotated).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Float64("cost_usd", result.TotalCostUSD).
		Msg("annotation completed for run")

	return nil
}

// GetDB exposes the database layer for the background processor.
func (s *Service) GetDB() *Database {
	return s.db
}

// GinHandlers contains HTTP handlers for reconciliation endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateReconciliationHandler handles multipart uploads of the two feeds
// (form fields booking_file and custody_file) and runs the engine
// synchronously.
func (h *GinHandlers) CreateReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")

		bookingHeader, err := c.FormFile("booking_file")
		if err != nil {
			response.BadRequest(c, "booking_file is required")
			return
		}
		custodyHeader, err := c.FormFile("custody_file")
		if err != nil {
			response.BadRequest(c, "custody_file is required")
			return
		}

		bookingFeed, err := bookingHeader.Open()
		if err != nil {
			response.InternalError(c, "failed to open booking file")
			return
		}
		defer bookingFeed.Close()

		custodyFeed, err := custodyHeader.Open()
		if err != nil {
			response.InternalError(c, "failed to open custody file")
			return
		}
		defer custodyFeed.Close()

		result, err := h.service.CreateReconciliation(clientID, bookingFeed, custodyFeed)
		if errors.Is(err, ingest.ErrEmptyInput) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, result, err)
	}
}

func (h *GinHandlers) GetRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("run_id")

		run, err := h.service.GetRun(runID)
		response.Handle(c, run, err)
	}
}

func (h *GinHandlers) GetBreaksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("run_id")

		breaks, err := h.service.GetBreaks(runID)
		response.Handle(c, breaks, err)
	}
}

func (h *GinHandlers) GetSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("run_id")

		summary, err := h.service.GetSummary(runID)
		response.Handle(c, summary, err)
	}
}

// QueueAnnotationHandler marks a run for narrative annotation; the
// background processor picks it up.
func (h *GinHandlers) QueueAnnotationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("run_id")

		if err := h.service.QueueAnnotation(runID); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"run_id": runID, "status": StatusPendingAnnotation})
	}
}
