// Benchmark tool for load testing Magpie event evaluation.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -events 10000
//
// This tool:
//   1. Generates synthetic purchase/visit/signup events for a pool of customers
//   2. Sends each event to Magpie for synchronous evaluation
//   3. Tracks match rate, reward plans issued, latency, and throughput
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// SyntheticEvent is one generated loyalty event with its customer snapshot.
type SyntheticEvent struct {
	CustomerID    string
	Type          string
	Amount        float64
	Channel       string
	StoreID       string
	PurchaseCount int
	LifetimeSpend float64
	Segment       string
}

// EvaluateRequest is the Magpie API request format.
type EvaluateRequest struct {
	Event    EventDoc     `json:"event"`
	Snapshot *SnapshotDoc `json:"snapshot,omitempty"`
}

type EventDoc struct {
	Type       string    `json:"type"`
	CustomerID string    `json:"customerId"`
	Amount     *MoneyDoc `json:"amount,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	StoreID    string    `json:"storeId,omitempty"`
}

type MoneyDoc struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type SnapshotDoc struct {
	CustomerID string     `json:"customerId"`
	Segment    string     `json:"segment,omitempty"`
	Metrics    MetricsDoc `json:"metrics"`
}

type MetricsDoc struct {
	PurchaseCount int    `json:"purchaseCount"`
	LifetimeSpend string `json:"lifetimeSpend"`
	Referrals     int    `json:"referrals"`
}

// EvaluateResponse is the Magpie API response format.
type EvaluateResponse struct {
	EvaluationID string `json:"evaluationId"`
	EventID      string `json:"eventId"`
	Status       string `json:"status"` // "MATCHED" or "NOMATCH"
	Plans        []any  `json:"plans"`
}

// Metrics tracks benchmark results
type Metrics struct {
	Matched     int64
	NoMatch     int64
	PlansIssued int64

	TotalProcessed int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

var eventTypes = []string{"purchase", "purchase", "purchase", "checkin", "referral"}
var channels = []string{"inStore", "online"}
var customerSegments = []string{"", "vip", "coffee-lovers", "new-members"}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8080", "Magpie base URL")
	programID := flag.String("program", "benchmark-test", "Program ID for requests")
	numEvents := flag.Int("events", 10000, "Number of events to send")
	numCustomers := flag.Int("customers", 500, "Size of the synthetic customer pool")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "Random seed for event generation")
	verbose := flag.Bool("verbose", false, "Print each event result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           MAGPIE BENCHMARK - Event Evaluation Load            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nMagpie URL:  %s\n", *baseURL)
	fmt.Printf("Program ID:  %s\n", *programID)
	fmt.Printf("Events:      %d\n", *numEvents)
	fmt.Printf("Customers:   %d\n", *numCustomers)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	// Check Magpie is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Magpie not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Magpie is running:")
		fmt.Println("  cd magpie && go run cmd/magpie/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Magpie is healthy")

	// Generate synthetic events
	fmt.Printf("\nGenerating %d events across %d customers...\n", *numEvents, *numCustomers)
	events := generateEvents(*numEvents, *numCustomers, *seed)
	fmt.Printf("✓ Generated %d events\n", len(events))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(events, *baseURL, *programID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func generateEvents(count, customers int, seed int64) []SyntheticEvent {
	rng := rand.New(rand.NewSource(seed))

	// Each customer carries history so milestone and segment rules can fire.
	history := make([]int, customers)
	spend := make([]float64, customers)
	segmentOf := make([]string, customers)
	for i := range segmentOf {
		segmentOf[i] = customerSegments[rng.Intn(len(customerSegments))]
	}

	events := make([]SyntheticEvent, 0, count)
	for i := 0; i < count; i++ {
		c := rng.Intn(customers)
		evType := eventTypes[rng.Intn(len(eventTypes))]
		amount := 0.0
		if evType == "purchase" {
			amount = 5 + rng.Float64()*195 // $5 to $200
		}

		events = append(events, SyntheticEvent{
			CustomerID:    fmt.Sprintf("cust-%04d", c),
			Type:          evType,
			Amount:        amount,
			Channel:       channels[rng.Intn(len(channels))],
			StoreID:       fmt.Sprintf("store-%02d", rng.Intn(20)),
			PurchaseCount: history[c],
			LifetimeSpend: spend[c],
			Segment:       segmentOf[c],
		})

		if evType == "purchase" {
			history[c]++
			spend[c] += amount
		}
	}
	return events
}

func runBenchmark(events []SyntheticEvent, baseURL, programID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan SyntheticEvent, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for ev := range work {
				start := time.Now()
				result, err := evaluateEvent(client, baseURL, programID, ev)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", ev.CustomerID, err)
					}
					continue
				}

				if result.Status == "MATCHED" {
					atomic.AddInt64(&metrics.Matched, 1)
					atomic.AddInt64(&metrics.PlansIssued, int64(len(result.Plans)))
				} else {
					atomic.AddInt64(&metrics.NoMatch, 1)
				}

				if verbose {
					fmt.Printf("%-10s | Type: %-8s | Amount: $%8.2f | Purchases: %3d | Magpie: %-7s | Plans: %d\n",
						ev.CustomerID,
						ev.Type,
						ev.Amount,
						ev.PurchaseCount,
						result.Status,
						len(result.Plans),
					)
				}
			}
		}()
	}

	// Send work
	for _, ev := range events {
		work <- ev
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func evaluateEvent(client *http.Client, baseURL, programID string, ev SyntheticEvent) (*EvaluateResponse, error) {
	// Build request matching Magpie's expected format
	req := EvaluateRequest{
		Event: EventDoc{
			Type:       ev.Type,
			CustomerID: ev.CustomerID,
			Channel:    ev.Channel,
			StoreID:    ev.StoreID,
		},
		Snapshot: &SnapshotDoc{
			CustomerID: ev.CustomerID,
			Segment:    ev.Segment,
			Metrics: MetricsDoc{
				PurchaseCount: ev.PurchaseCount,
				LifetimeSpend: fmt.Sprintf("%.2f", ev.LifetimeSpend),
			},
		},
	}
	if ev.Amount > 0 {
		req.Event.Amount = &MoneyDoc{
			Amount:   fmt.Sprintf("%.2f", ev.Amount),
			Currency: "USD",
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Program-ID", programID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 EVALUATION STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Matched:          %d\n", m.Matched)
	fmt.Printf("   No Match:         %d\n", m.NoMatch)
	fmt.Printf("   Plans Issued:     %d\n", m.PlansIssued)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	evaluated := m.Matched + m.NoMatch
	if evaluated > 0 {
		matchRate := float64(m.Matched) / float64(evaluated) * 100
		fmt.Printf("\n🎯 MATCH RATE\n")
		fmt.Printf("   %.2f%% of events earned at least one reward\n", matchRate)
		if m.Matched > 0 {
			fmt.Printf("   %.2f plans per matched event\n", float64(m.PlansIssued)/float64(m.Matched))
		}
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		eps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f events/sec\n", eps)
	}

	fmt.Println()
}
