// main.go - Synthetic visitor generator for leadpulse
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"leadpulse/pkg/tracker"
)

// PerfConfig holds the configuration for the performance test
type PerfConfig struct {
	BaseURL      string
	Concurrency  int
	Duration     time.Duration
	VisitsPerSec int
	LeadRatio    float64
	Timeout      time.Duration
	Output       string
	Verbose      bool
}

// PerfStats aggregates every HTTP exchange made by the simulated visitors.
type PerfStats struct {
	mu            sync.Mutex
	Visits        int64
	FailedVisits  int64
	Leads         int64
	Requests      int64
	Errors        int64
	StatusCodes   map[int]int64
	ByPath        map[string]int64
	ResponseTimes []time.Duration
	StartTime     time.Time
	EndTime       time.Time
}

func (s *PerfStats) observe(path string, status int, elapsed time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests++
	s.ByPath[path]++
	if err != nil {
		s.Errors++
		return
	}
	s.StatusCodes[status]++
	s.ResponseTimes = append(s.ResponseTimes, elapsed)
}

func (s *PerfStats) visit(failed, lead bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Visits++
	if failed {
		s.FailedVisits++
	}
	if lead {
		s.Leads++
	}
}

// measuringTransport records the status and latency of every request the tracker sends.
type measuringTransport struct {
	next  http.RoundTripper
	stats *PerfStats
}

func (t *measuringTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()
	resp, err := t.next.RoundTrip(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	t.stats.observe(req.Method+" "+req.URL.Path, status, time.Since(started), err)
	return resp, err
}

func main() {
	cfg := &PerfConfig{}
	pflag.StringVarP(&cfg.BaseURL, "url", "u", "http://localhost:3000", "base URL of the leadpulse server")
	pflag.IntVarP(&cfg.Concurrency, "concurrency", "c", 10, "number of concurrent visitors")
	pflag.DurationVarP(&cfg.Duration, "duration", "d", 30*time.Second, "duration of the test")
	pflag.IntVar(&cfg.VisitsPerSec, "rate", 0, "target visits per second (0 = unlimited)")
	pflag.Float64Var(&cfg.LeadRatio, "lead-ratio", 0.1, "share of visits that submit a lead")
	pflag.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "per-request timeout")
	pflag.StringVarP(&cfg.Output, "output", "o", "perf_results.json", "results file")
	pflag.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log dropped tracker requests")
	pflag.Parse()

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		fmt.Printf("Received signal %v, shutting down...\n", sig)
		cancel()
	}()

	fmt.Println("\n=== leadpulse visitor simulation ===")
	fmt.Printf("  URL:          %s\n", cfg.BaseURL)
	fmt.Printf("  Concurrency:  %d\n", cfg.Concurrency)
	fmt.Printf("  Duration:     %v\n", cfg.Duration)
	fmt.Printf("  Visits/sec:   %d\n", cfg.VisitsPerSec)
	fmt.Printf("  Lead ratio:   %.2f\n", cfg.LeadRatio)
	fmt.Println("====================================")

	stats := &PerfStats{
		StatusCodes: make(map[int]int64),
		ByPath:      make(map[string]int64),
		StartTime:   time.Now(),
	}

	testCtx, testCancel := context.WithTimeout(ctx, cfg.Duration)
	defer testCancel()

	run(testCtx, cfg, stats, logger)

	stats.EndTime = time.Now()
	printResults(stats)
	if err := exportResults(stats, cfg.Output); err != nil {
		fmt.Printf("Error writing results: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results saved to %q\n", cfg.Output)
}

func run(ctx context.Context, cfg *PerfConfig, stats *PerfStats, logger *slog.Logger) {
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &measuringTransport{next: http.DefaultTransport, stats: stats},
	}

	perWorker := 0.0
	if cfg.VisitsPerSec > 0 {
		perWorker = float64(cfg.VisitsPerSec) / float64(cfg.Concurrency)
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

			var ticker *time.Ticker
			if perWorker > 0 {
				ticker = time.NewTicker(time.Duration(float64(time.Second) / perWorker))
				defer ticker.Stop()
			}

			for {
				if ticker != nil {
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				}
				select {
				case <-ctx.Done():
					return
				default:
				}
				simulateVisit(ctx, cfg, httpClient, rng, stats, logger)
			}
		}(i)
	}
	wg.Wait()
}

var (
	pages     = []string{"/", "/planos", "/como-funciona", "/depoimentos", "/contato"}
	sources   = []struct{ source, medium string }{{"", ""}, {"google", "cpc"}, {"facebook", "social"}, {"instagram", "social"}, {"newsletter", "email"}}
	devices   = []string{"desktop", "mobile", "mobile", "tablet"}
	links     = []string{"tel:+5511999990000", "mailto:vendas@example.com", "https://wa.me/5511999990000", "/planos"}
	referrers = []string{"", "https://www.google.com/", "https://l.facebook.com/", "https://www.instagram.com/"}
)

// simulateVisit plays one visitor journey through the tracker client.
func simulateVisit(ctx context.Context, cfg *PerfConfig, httpClient *http.Client, rng *rand.Rand, stats *PerfStats, logger *slog.Logger) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	source := sources[rng.Intn(len(sources))]

	client := tracker.New(tracker.Options{
		BaseURL:           base,
		HTTPClient:        httpClient,
		Logger:            logger,
		HeartbeatInterval: time.Hour,
	})
	defer client.Wait()
	defer client.Close()

	err := client.Start(ctx, tracker.SessionInfo{
		LandingPage: "https://landing.example.com/",
		Referrer:    referrers[rng.Intn(len(referrers))],
		UTMSource:   source.source,
		UTMMedium:   source.medium,
		DeviceType:  devices[rng.Intn(len(devices))],
		Language:    "pt-BR",
		Timezone:    "America/Sao_Paulo",
	})
	if err != nil {
		logger.Debug("Visit failed to start", slog.Any("error", err))
		stats.visit(true, false)
		return
	}

	client.Scroll(rng.Intn(101))
	for extra := rng.Intn(3); extra > 0; extra-- {
		client.PageView("https://landing.example.com"+pages[rng.Intn(len(pages))], "")
		client.Scroll(rng.Intn(101))
	}
	if rng.Float64() < 0.3 {
		client.Link(links[rng.Intn(len(links))])
	}
	client.Heartbeat(ctx)

	submitted := false
	if rng.Float64() < cfg.LeadRatio {
		hasCNPJ := "sim"
		if rng.Intn(4) == 0 {
			hasCNPJ = "nao"
		}
		client.FieldChange("has_cnpj", hasCNPJ)
		_, err := client.SubmitLead(ctx, tracker.LeadForm{
			Name:      fmt.Sprintf("Visitante %d", rng.Intn(100000)),
			Phone:     fmt.Sprintf("11 9%04d-%04d", rng.Intn(10000), rng.Intn(10000)),
			HasCNPJ:   hasCNPJ,
			UTMSource: source.source,
			UTMMedium: source.medium,
		})
		if err != nil {
			logger.Debug("Lead submission failed", slog.Any("error", err))
		} else {
			submitted = true
		}
	}
	stats.visit(false, submitted)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func printResults(stats *PerfStats) {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	elapsed := stats.EndTime.Sub(stats.StartTime)
	sort.Slice(stats.ResponseTimes, func(i, j int) bool { return stats.ResponseTimes[i] < stats.ResponseTimes[j] })

	fmt.Println("\nResults:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "METRIC\tVALUE\n")
	fmt.Fprintf(w, "------\t-----\n")
	fmt.Fprintf(w, "Duration\t%v\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Visits\t%d (%d failed)\n", stats.Visits, stats.FailedVisits)
	fmt.Fprintf(w, "Leads\t%d\n", stats.Leads)
	fmt.Fprintf(w, "Requests\t%d (%d transport errors)\n", stats.Requests, stats.Errors)
	if elapsed > 0 {
		fmt.Fprintf(w, "Requests/sec\t%.2f\n", float64(stats.Requests)/elapsed.Seconds())
	}
	fmt.Fprintf(w, "p50\t%v\n", percentile(stats.ResponseTimes, 0.5))
	fmt.Fprintf(w, "p95\t%v\n", percentile(stats.ResponseTimes, 0.95))
	fmt.Fprintf(w, "p99\t%v\n", percentile(stats.ResponseTimes, 0.99))
	w.Flush()

	var codes []int
	for code := range stats.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	fmt.Println("\nStatus codes:")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, code := range codes {
		fmt.Fprintf(w, "%d\t%d\n", code, stats.StatusCodes[code])
	}
	w.Flush()

	var paths []string
	for path := range stats.ByPath {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	fmt.Println("\nRequests by endpoint:")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, path := range paths {
		fmt.Fprintf(w, "%s\t%d\n", path, stats.ByPath[path])
	}
	w.Flush()
}

func exportResults(stats *PerfStats, path string) error {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	result := map[string]interface{}{
		"summary": map[string]interface{}{
			"visits":       stats.Visits,
			"failedVisits": stats.FailedVisits,
			"leads":        stats.Leads,
			"requests":     stats.Requests,
			"errors":       stats.Errors,
			"p50LatencyMs": percentile(stats.ResponseTimes, 0.5).Milliseconds(),
			"p95LatencyMs": percentile(stats.ResponseTimes, 0.95).Milliseconds(),
			"p99LatencyMs": percentile(stats.ResponseTimes, 0.99).Milliseconds(),
			"startTime":    stats.StartTime.Format(time.RFC3339),
			"endTime":      stats.EndTime.Format(time.RFC3339),
		},
		"statusCodes": stats.StatusCodes,
		"byEndpoint":  stats.ByPath,
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
