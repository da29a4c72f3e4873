package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/recondesk/recon-api/internal/annotation"
	"github.com/recondesk/recon-api/internal/auth"
	"github.com/recondesk/recon-api/internal/config"
	"github.com/recondesk/recon-api/internal/database"
	"github.com/recondesk/recon-api/internal/recon"
	"github.com/recondesk/recon-api/internal/types"
	"github.com/recondesk/recon-api/pkg/middleware"
)

const (
	minEvents        = 20
	maxEvents        = 120
	serverAddress    = "http://localhost:8080"
	narrativeAddress = ":9090"
)

var instruments = []struct {
	ISIN string
	Name string
}{
	{"US0378331005", "Apple Inc"},
	{"US5949181045", "Microsoft Corp"},
	{"DE0007164600", "SAP SE"},
	{"CH0038863350", "Nestle SA"},
	{"JP3633400001", "Toyota Motor Corp"},
}

var accounts = []string{"ACC-1001", "ACC-1002", "ACC-2001", "ACC-3001"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the reconciliation API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":     {name: "Authentication"},
			"upload":   {name: "Create Reconciliation"},
			"run":      {name: "Get Run"},
			"breaks":   {name: "Get Breaks"},
			"summary":  {name: "Get Summary"},
			"annotate": {name: "Queue Annotation"},
		},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// createReconciliation uploads the two generated feeds as a multipart
// request and returns the run ID
func (sc *simulationClient) createReconciliation(bookingCSV, custodyCSV string) (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["upload"].addDuration(time.Since(start))
	}()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	bookingPart, err := writer.CreateFormFile("booking_file", "booking.csv")
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(bookingPart, bookingCSV); err != nil {
		return "", err
	}

	custodyPart, err := writer.CreateFormFile("custody_file", "custody.csv")
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(custodyPart, custodyCSV); err != nil {
		return "", err
	}

	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/reconciliations", sc.baseURL),
		&buf,
	)
	if err != nil {
		return "", err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := sc.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Create reconciliation response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create reconciliation failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool              `json:"success"`
		Data    recon.RunResponse `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	if result.Data.RunID == "" {
		return "", fmt.Errorf("no run ID in response: %s", string(respBody))
	}

	log.Info().
		Str("run_id", result.Data.RunID).
		Int("breaks", result.Data.BreakCount).
		Int("matched_pairs", result.Data.MatchedPairCount).
		Msg("Reconciliation run created")

	return result.Data.RunID, nil
}

// getBreaks retrieves the break list for a run
func (sc *simulationClient) getBreaks(runID string) ([]types.Break, error) {
	start := time.Now()
	defer func() {
		sc.stats["breaks"].addDuration(time.Since(start))
	}()

	respBody, err := sc.get(fmt.Sprintf("%s/api/v1/reconciliations/%s/breaks", sc.baseURL, runID))
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool          `json:"success"`
		Data    []types.Break `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Data, nil
}

// getSummary retrieves the aggregate summary for a run
func (sc *simulationClient) getSummary(runID string) (*types.ReconciliationSummary, error) {
	start := time.Now()
	defer func() {
		sc.stats["summary"].addDuration(time.Since(start))
	}()

	respBody, err := sc.get(fmt.Sprintf("%s/api/v1/reconciliations/%s/summary", sc.baseURL, runID))
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool                        `json:"success"`
		Data    types.ReconciliationSummary `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result.Data, nil
}

// getRun retrieves the run record
func (sc *simulationClient) getRun(runID string) (*recon.ReconciliationRun, error) {
	start := time.Now()
	defer func() {
		sc.stats["run"].addDuration(time.Since(start))
	}()

	respBody, err := sc.get(fmt.Sprintf("%s/api/v1/reconciliations/%s", sc.baseURL, runID))
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool                    `json:"success"`
		Data    recon.ReconciliationRun `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result.Data, nil
}

// queueAnnotation asks the API to annotate a run's breaks
func (sc *simulationClient) queueAnnotation(runID string) error {
	start := time.Now()
	defer func() {
		sc.stats["annotate"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/internal/annotation/%s", sc.baseURL, runID),
		nil,
	)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("queue annotation failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

func (sc *simulationClient) get(url string) ([]byte, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\n📊 API Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-24s %8s %8s %8s %8s %8s %8s %8s %8s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-24s %8d %8d %8s %8s %8s %8s %8s %8s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// generateFeeds produces a booking CSV and a custody CSV describing the
// same income events, with a seeded mix of clean matches and
// discrepancies: securities-lending quantity gaps, tax treaty rate
// mismatches, dividend rate drifts, FX differences, and missing records
// on either side.
func generateFeeds(numEvents int) (bookingCSV, custodyCSV string, seeded map[string]int) {
	var booking, custody strings.Builder
	seeded = map[string]int{}

	booking.WriteString("event_id,isin,instrument_name,accounts,nominal_quantity,rate_per_unit,gross_amount_quotation,net_amount_quotation,withholding_tax,local_tax,total_tax_rate,quotation_currency,fx_rate,ex_date,payment_date,restitution_rate\n")
	custody.WriteString("event_id,isin,instrument_name,accounts,nominal_basis,holding_quantity,loan_quantity,rate_per_unit,gross_amount,net_amount_quotation,tax_amount,tax_rate,fx_rate,currency,ex_date,payment_date,restitution_amount\n")

	for i := 0; i < numEvents; i++ {
		inst := instruments[rand.Intn(len(instruments))]
		account := accounts[rand.Intn(len(accounts))]
		eventID := fmt.Sprintf("EVT-%05d", i+1)
		quantity := float64((rand.Intn(40) + 1) * 1000)
		rate := float64(rand.Intn(300)+25) / 100.0
		taxRate := []float64{15.0, 20.0, 22.0, 25.0}[rand.Intn(4)]

		gross := quantity * rate
		tax := gross * taxRate / 100.0
		payDate := "2026-09-15"

		custodyQty := quantity
		custodyRate := rate
		custodyTaxRate := taxRate
		loan := 0.0
		fxBooking := 1.0845
		fxCustody := 1.0845

		scenario := rand.Intn(10)
		switch scenario {
		case 0: // securities lending: part of the holding is out on loan
			loan = float64(rand.Intn(5)+1) * 500
			custodyQty = quantity - loan
			seeded["quantity"]++
		case 1: // tax treaty mismatch
			custodyTaxRate = taxRate - 2.0
			seeded["tax_rate"]++
		case 2: // dividend rate drift
			custodyRate = rate + 0.05
			seeded["rate"]++
		case 3: // FX difference
			fxCustody = fxBooking + 0.002
			seeded["fx"]++
		case 4: // booking without custody counterpart
			seeded["missing_custody"]++
		case 5: // custody without booking counterpart
			seeded["missing_booking"]++
		default:
			seeded["clean"]++
		}

		custodyGross := custodyQty * custodyRate
		custodyTax := custodyGross * custodyTaxRate / 100.0

		if scenario != 5 {
			booking.WriteString(fmt.Sprintf("%s,%s,%s,\"%s\",%.0f,%.4f,%.2f,%.2f,%.2f,0,%.1f,EUR,%.4f,2026-09-01,%s,0\n",
				eventID, inst.ISIN, inst.Name, account,
				quantity, rate, gross, gross-tax, tax, taxRate, fxBooking, payDate))
		}
		if scenario != 4 {
			custody.WriteString(fmt.Sprintf("%s,%s,%s,\"%s\",%.0f,%.0f,%.0f,%.4f,%.2f,%.2f,%.2f,%.1f,%.4f,EUR,2026-09-01,%s,0\n",
				eventID, inst.ISIN, inst.Name, account,
				quantity, custodyQty, loan, custodyRate, custodyGross, custodyGross-custodyTax, custodyTax, custodyTaxRate, fxCustody, payDate))
		}
	}

	return booking.String(), custody.String(), seeded
}

// startNarrativeStub runs a stand-in for the external narrative service
// so the annotation pass has something to call.
func startNarrativeStub() {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/annotations", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BreakType string `json:"break_type"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		severities := []string{"LOW", "MEDIUM", "HIGH"}
		annotation := types.Annotation{
			Severity:         severities[rand.Intn(len(severities))],
			RootCause:        fmt.Sprintf("Simulated root cause for %s break", req.BreakType),
			Explanation:      "Simulated narrative assessment.",
			Recommendation:   "Review with the custodian.",
			Confidence:       0.5 + rand.Float64()*0.5,
			RemediationClass: "OPERATIONAL",
			CostUSD:          0.002 + rand.Float64()*0.003,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(annotation)
	})

	if err := http.ListenAndServe(narrativeAddress, mux); err != nil {
		log.Fatal().Err(err).Msg("narrative stub failed")
	}
}

// startServer wires and runs the reconciliation API for the simulation
func startServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	annotator := annotation.NewClient(cfg.NarrativeURL, cfg.NarrativeAPIKey, cfg.NarrativeTimeout)
	runner := annotation.NewRunner(annotator, cfg.AnnotationMaxConcurrent, cfg.AnnotationBudgetUSD)

	reconService := recon.NewService(db, runner)
	reconHandlers := recon.NewGinHandlers(reconService)

	annotationProcessor := recon.NewProcessor(reconService, 2*time.Second)
	go annotationProcessor.Start(context.Background())

	router.Use(middleware.RateLimit())

	v1 := router.Group("/api/v1")
	v1.POST("/auth/token", authHandlers.GenerateTokenHandler())

	reconciliations := v1.Group("/reconciliations")
	reconciliations.Use(middleware.JWTAuth(cfg.JWTSecret))
	reconciliations.POST("", reconHandlers.CreateReconciliationHandler())
	reconciliations.GET("/:run_id", reconHandlers.GetRunHandler())
	reconciliations.GET("/:run_id/breaks", reconHandlers.GetBreaksHandler())
	reconciliations.GET("/:run_id/summary", reconHandlers.GetSummaryHandler())

	internal := v1.Group("/internal")
	internal.Use(middleware.InternalAuth(cfg.JWTSecret))
	internal.POST("/annotation/:run_id", reconHandlers.QueueAnnotationHandler())

	return router.Run(":" + cfg.Port)
}

// main runs the reconciliation simulation end to end: generate two
// feeds with seeded discrepancies, upload them, inspect the breaks, and
// drive the annotation pass against the narrative stub.
func main() {
	go startNarrativeStub()
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for servers to start
	time.Sleep(2 * time.Second)

	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	numEvents := rand.Intn(maxEvents-minEvents) + minEvents
	bookingCSV, custodyCSV, seeded := generateFeeds(numEvents)
	log.Info().
		Int("events", numEvents).
		Interface("seeded", seeded).
		Msg("Generated feeds")

	runID, err := simClient.createReconciliation(bookingCSV, custodyCSV)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create reconciliation")
	}

	breaks, err := simClient.getBreaks(runID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch breaks")
	}

	summary, err := simClient.getSummary(runID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch summary")
	}

	if err := simClient.queueAnnotation(runID); err != nil {
		log.Error().Err(err).Msg("Failed to queue annotation")
	}

	// Give the background processor time to annotate
	time.Sleep(5 * time.Second)

	run, err := simClient.getRun(runID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch run")
	}

	fmt.Println("\n🔍 Reconciliation Report")
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("Run:                %s\n", run.RunID)
	fmt.Printf("Status:             %s\n", run.Status)
	fmt.Printf("Events:             %d (%d with breaks)\n", summary.TotalEvents, summary.EventsWithBreaks)
	fmt.Printf("Breaks:             %d\n", summary.TotalBreaks)
	fmt.Printf("Annotated:          %d (failures: %d, cost: $%.4f)\n",
		run.AnnotatedCount, run.AnnotationFailures, run.AnnotationCostUSD)
	fmt.Println(strings.Repeat("-", 60))
	for kind, count := range summary.BreaksByKind {
		fmt.Printf("%-24s %d\n", kind, count)
	}
	if len(breaks) > 0 {
		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("First break: %s %s diff=%s\n",
			breaks[0].EventID, breaks[0].Kind, breaks[0].Difference.String())
	}

	simClient.printPerformanceStats()
}
