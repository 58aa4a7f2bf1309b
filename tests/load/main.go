// Command load runs a local benchmark against an in-process API built
// on the memory repositories and the channel queue, so the numbers
// reflect handler and service overhead rather than network or storage.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/cache"
	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	httpserver "github.com/Vinsen2024/lead-funnel-back/internal/http"
	"github.com/Vinsen2024/lead-funnel-back/internal/http/handlers"
	"github.com/Vinsen2024/lead-funnel-back/internal/llm"
	"github.com/Vinsen2024/lead-funnel-back/internal/queue"
	"github.com/Vinsen2024/lead-funnel-back/internal/report"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
	"github.com/Vinsen2024/lead-funnel-back/internal/service"
	"github.com/Vinsen2024/lead-funnel-back/internal/storage"
	"github.com/Vinsen2024/lead-funnel-back/internal/worker"
)

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server  *httptest.Server
	shareID string
	leadID  string
	cancel  context.CancelFunc
}

func main() {
	resolveTotal := flag.Int("resolve-total", 300, "total attribution resolve requests")
	resolveConcurrency := flag.Int("resolve-concurrency", 24, "concurrency for resolve requests")
	leadsTotal := flag.Int("leads-total", 200, "total lead creation requests")
	leadsConcurrency := flag.Int("leads-concurrency", 24, "concurrency for lead creation requests")
	exportsTotal := flag.Int("exports-total", 160, "total export enqueue requests")
	exportsConcurrency := flag.Int("exports-concurrency", 20, "concurrency for export enqueue requests")
	homeTotal := flag.Int("home-total", 200, "total teacher home requests")
	homeConcurrency := flag.Int("home-concurrency", 24, "concurrency for teacher home requests")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env, err := startBenchmarkEnvironment()
	if err != nil {
		log.Fatalf("failed to start local benchmark environment: %v", err)
	}
	defer env.cancel()
	defer env.server.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	var idCounter int64

	resolveScenario := runScenario("attribution_resolve", *resolveTotal, *resolveConcurrency, func(index int) error {
		payload := map[string]any{
			"visitor_id": fmt.Sprintf("visitor-%d", index%64),
			"teacher_id": "teacher-1",
			"scene":      "s=" + env.shareID,
		}
		return postJSON(client, env.server.URL+"/v1/attribution/resolve", payload, nil, http.StatusOK)
	})

	leadsScenario := runScenario("leads_create", *leadsTotal, *leadsConcurrency, func(index int) error {
		requestID := atomic.AddInt64(&idCounter, 1)
		payload := map[string]any{
			"visitor_id": fmt.Sprintf("visitor-%d", index%64),
			"teacher_id": "teacher-1",
			"intent":     fmt.Sprintf("领导力培训-%d", index%8),
		}
		headers := map[string]string{
			"Idempotency-Key": fmt.Sprintf("lead-%d-%d", requestID, time.Now().UnixNano()),
		}
		return postJSON(client, env.server.URL+"/v1/leads", payload, headers, http.StatusCreated)
	})

	exportsScenario := runScenario("exports_enqueue", *exportsTotal, *exportsConcurrency, func(int) error {
		payload := map[string]any{"lead_id": env.leadID}
		return postJSON(client, env.server.URL+"/v1/exports", payload, nil, http.StatusAccepted)
	})

	homeScenario := runScenario("teacher_home", *homeTotal, *homeConcurrency, func(index int) error {
		url := fmt.Sprintf(
			"%s/v1/teachers/teacher-1/home?visitor_id=visitor-%d",
			env.server.URL,
			index%64,
		)
		return getJSON(client, url, http.StatusOK)
	})

	results := []scenarioResult{
		resolveScenario,
		leadsScenario,
		exportsScenario,
		homeScenario,
	}

	slo := map[string]bool{
		"resolve_p95_le_200ms":       resolveScenario.P95MS <= 200,
		"lead_create_p95_le_2000ms":  leadsScenario.P95MS <= 2000,
		"export_accept_p95_le_500ms": exportsScenario.P95MS <= 500,
	}

	summary := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        results,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal benchmark report: %v", err)
	}

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			log.Fatalf("failed to write output file: %v", err)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

func startBenchmarkEnvironment() (*benchmarkEnv, error) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	shares := repository.NewMemorySharesRepository()
	bindings := repository.NewMemoryBindingsRepository()
	leads := repository.NewMemoryLeadsRepository()
	jobs := repository.NewMemoryExportJobsRepository()
	catalog := repository.NewMemoryCatalogRepository()

	catalog.PutTeacher(&domain.Teacher{
		ID:       "teacher-1",
		Name:     "王老师",
		IsActive: true,
	})
	catalog.PutModule(domain.TeacherModule{
		ID:        "module-1",
		TeacherID: "teacher-1",
		Title:     "团队领导力",
		SortOrder: 1,
		IsActive:  true,
	})
	catalog.PutModule(domain.TeacherModule{
		ID:        "module-2",
		TeacherID: "teacher-1",
		Title:     "高效沟通",
		SortOrder: 2,
		IsActive:  true,
	})
	catalog.PutBroker(&domain.Broker{
		ID:       "broker-1",
		Name:     "李经纪",
		IsActive: true,
	})

	localQueue := queue.NewLocalQueue(4096, 3, 10*time.Millisecond, logger)
	store := storage.NewMemoryStore("https://exports.bench")
	summaryCache := cache.NewSummaryCache(cache.Config{
		TTL:        10 * time.Minute,
		MaxEntries: 4000,
	})

	attributionService := service.NewAttributionService(shares, bindings, catalog, logger)
	sharesService := service.NewSharesService(shares, catalog, logger)
	leadsService := service.NewLeadsService(leads, catalog, llm.StaticGenerator{}, summaryCache, nil, logger)
	exportsService := service.NewExportsService(jobs, leads, localQueue, store, logger)
	teachersService := service.NewTeachersService(catalog)

	api := handlers.NewAPI(attributionService, sharesService, leadsService, exportsService, teachersService)
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      "",
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	processor := worker.NewProcessor(
		localQueue, jobs, leads, catalog, store, report.NewRenderer(),
		worker.Config{Concurrency: 2, JobTimeout: 5 * time.Second},
		logger,
	)
	go processor.Start(ctx)

	link, err := sharesService.CreateOrReuseShare(ctx, "broker-1", "teacher-1")
	if err != nil {
		cancel()
		return nil, fmt.Errorf("seed share: %w", err)
	}

	lead, err := leadsService.Create(ctx, "visitor-seed", service.LeadRequest{
		TeacherID: "teacher-1",
		Intent:    "领导力培训",
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("seed lead: %w", err)
	}

	server := httptest.NewServer(router)
	return &benchmarkEnv{
		server:  server,
		shareID: link.ShareID,
		leadID:  lead.ID,
		cancel:  cancel,
	}, nil
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func postJSON(
	client *http.Client,
	url string,
	payload any,
	headers map[string]string,
	expectedStatus int,
) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func getJSON(client *http.Client, url string, expectedStatus int) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
