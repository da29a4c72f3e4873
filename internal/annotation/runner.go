package annotation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/recondesk/recon-api/internal/types"
)

// Runner fans annotation calls out over a run's breaks with a hard cap
// on concurrent calls and a cost budget ceiling. Once the budget is
// reached, remaining calls are aborted; already-completed annotations
// are kept.
type Runner struct {
	annotator     Annotator
	maxConcurrent int
	budgetUSD     float64
}

// Result reports how an annotation pass went.
type Result struct {
	Annotated    int     `json:"annotated"`
	Failed       int     `json:"failed"`
	Skipped      int     `json:"skipped"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// NewRunner creates an annotation runner. A budget of zero means no
// ceiling.
func NewRunner(annotator Annotator, maxConcurrent int, budgetUSD float64) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Runner{
		annotator:     annotator,
		maxConcurrent: maxConcurrent,
		budgetUSD:     budgetUSD,
	}
}

// Run annotates every break in the slice, writing narrative fields onto
// a copy. The deterministic fields are never modified: a break whose
// annotation fails is returned unchanged, with the failure counted.
func (r *Runner) Run(ctx context.Context, runID string, breaks []types.Break) ([]types.Break, Result) {
	logger := log.With().
		Str("run_id", runID).
		Str("component", "annotation_runner").
		Logger()

	annotated := make([]types.Break, len(breaks))
	copy(annotated, breaks)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu     sync.Mutex
		result Result
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, r.maxConcurrent)

	for i := range annotated {
		if ctx.Err() != nil {
			result.Skipped++
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			result.Skipped++
			continue
		}

		mu.Lock()
		overBudget := r.budgetUSD > 0 && result.TotalCostUSD >= r.budgetUSD
		mu.Unlock()
		if overBudget {
			logger.Warn().
				Float64("budget_usd", r.budgetUSD).
				Int("remaining", len(annotated)-i).
				Msg("annotation budget reached, aborting remaining calls")
			cancel()
			<-sem
			result.Skipped++
			continue
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			annotation, err := r.annotator.Annotate(ctx, annotated[idx])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				logger.Warn().
					Err(err).
					Str("event_id", annotated[idx].EventID).
					Str("break_type", string(annotated[idx].Kind)).
					Msg("annotation failed, break kept without narrative fields")
				return
			}
			applyAnnotation(&annotated[idx], annotation)
			result.Annotated++
			result.TotalCostUSD += annotation.CostUSD
		}(i)
	}

	wg.Wait()

	logger.Info().
		Int("annotated", result.Annotated).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Float64("total_cost_usd", result.TotalCostUSD).
		Msg("annotation pass completed")

	return annotated, result
}

// applyAnnotation writes the narrative fields onto a break. Deterministic
// fields (kind, values, differences) are left untouched.
func applyAnnotation(brk *types.Break, annotation *types.Annotation) {
	now := time.Now()
	confidence := annotation.Confidence
	brk.Severity = annotation.Severity
	brk.RootCause = annotation.RootCause
	brk.Explanation = annotation.Explanation
	brk.Recommendation = annotation.Recommendation
	brk.Confidence = &confidence
	brk.RemediationClass = annotation.RemediationClass
	brk.AnnotatedAt = &now
}
