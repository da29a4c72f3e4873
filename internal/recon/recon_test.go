package recon

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/recondesk/recon-api/internal/annotation"
	"github.com/recondesk/recon-api/internal/types"
)

type cannedAnnotator struct{}

func (cannedAnnotator) Annotate(_ context.Context, _ types.Break) (*types.Annotation, error) {
	return &types.Annotation{
		Severity:         "HIGH",
		RootCause:        "Securities lending position not reflected in booking",
		Explanation:      "The custodian paid on the settled holding while the booking expected the full nominal.",
		Recommendation:   "Confirm the loan recall schedule with the lending desk.",
		Confidence:       0.9,
		RemediationClass: "INVESTIGATE",
		CostUSD:          0.02,
	}, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Break{}, &ReconciliationRun{}))

	runner := annotation.NewRunner(cannedAnnotator{}, 2, 0)
	return NewService(db, runner)
}

const testBookingFeed = `event_id,isin,instrument_name,accounts,nominal_quantity,rate_per_unit,gross_amount_quotation,net_amount_quotation,withholding_tax,local_tax,total_tax_rate,quotation_currency
EVT-1,US0378331005,Apple Inc,ACC-1,20000,1.5,30000,24000,6000,0,20,EUR
EVT-2,DE0005557508,Deutsche Telekom,ACC-1,25000,1.5,37500,30000,7500,0,20,EUR
`

const testCustodyFeed = `event_id,isin,instrument_name,accounts,nominal_basis,holding_quantity,loan_quantity,rate_per_unit,gross_amount,tax_amount,tax_rate,currency
EVT-1,US0378331005,Apple Inc,ACC-1,20000,20000,0,1.5,30000,6000,20,EUR
EVT-2,DE0005557508,Deutsche Telekom,ACC-1,25000,23000,2000,1.5,34500,6900,20,EUR
`

func TestService_CreateReconciliation(t *testing.T) {
	service := newTestService(t)

	result, err := service.CreateReconciliation("CLIENT1",
		strings.NewReader(testBookingFeed), strings.NewReader(testCustodyFeed))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.RunID, "RUN_"))
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 2, result.BookingRecordCount)
	assert.Equal(t, 2, result.CustodyRecordCount)
	assert.Equal(t, 2, result.MatchedPairCount)
	assert.Equal(t, 1, result.BreakCount)
	assert.Equal(t, 2, result.Summary.TotalEvents)
	assert.Equal(t, 1, result.Summary.EventsWithBreaks)

	run, err := service.GetRun(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "CLIENT1", run.ClientID)
	assert.Equal(t, 1, run.BreakCount)

	breaks, err := service.GetBreaks(result.RunID)
	require.NoError(t, err)
	require.Len(t, breaks, 1)
	assert.Equal(t, types.BreakQuantity, breaks[0].Kind)
	assert.Equal(t, "EVT-2", breaks[0].EventID)
	assert.True(t, strings.HasPrefix(breaks[0].BreakID, "BRK_"))
	assert.Equal(t, result.RunID, breaks[0].RunID)
}

func TestService_CreateReconciliation_EmptyFeed(t *testing.T) {
	service := newTestService(t)

	_, err := service.CreateReconciliation("CLIENT1",
		strings.NewReader("event_id\n"), strings.NewReader(testCustodyFeed))
	require.Error(t, err)

	runs, dbErr := service.GetClientRuns("CLIENT1")
	require.NoError(t, dbErr)
	assert.Empty(t, runs, "a failed parse must not leave a run behind")
}

func TestService_GetRun_Unknown(t *testing.T) {
	service := newTestService(t)

	_, err := service.GetRun("RUN_does-not-exist")
	assert.Error(t, err)
}

func TestService_AnnotationWorkflow(t *testing.T) {
	service := newTestService(t)

	result, err := service.CreateReconciliation("CLIENT1",
		strings.NewReader(testBookingFeed), strings.NewReader(testCustodyFeed))
	require.NoError(t, err)

	require.NoError(t, service.QueueAnnotation(result.RunID))
	run, err := service.GetRun(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingAnnotation, run.Status)

	// Queueing twice is a no-op.
	require.NoError(t, service.QueueAnnotation(result.RunID))

	require.NoError(t, service.AnnotateRun(context.Background(), result.RunID))

	run, err = service.GetRun(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusAnnotated, run.Status)
	assert.Equal(t, 1, run.AnnotatedCount)
	assert.Equal(t, 0, run.AnnotationFailures)
	assert.InDelta(t, 0.02, run.AnnotationCostUSD, 1e-9)

	breaks, err := service.GetBreaks(result.RunID)
	require.NoError(t, err)
	require.Len(t, breaks, 1)
	brk := breaks[0]
	assert.Equal(t, "HIGH", brk.Severity)
	assert.NotEmpty(t, brk.Explanation)
	assert.NotNil(t, brk.AnnotatedAt)
	assert.Equal(t, types.BreakQuantity, brk.Kind, "annotation never changes what was detected")

	summary, err := service.GetSummary(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.BreaksBySeverity["HIGH"])
	assert.Equal(t, 2, summary.TotalEvents)
}
