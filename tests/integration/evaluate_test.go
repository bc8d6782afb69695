//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Magpie loyalty rule engine.
//
// These tests verify the COMPLETE evaluation pipeline:
//
//	Event → Rules → Conditions → Usage Limits → Reward Plans
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. EVENT: Something a customer did (purchase, checkin, referral, segment move)
//
// 2. RULE: A reward automation. Each rule has:
//   - Trigger: when the rule is eligible (milestone, birthday, segment move...)
//   - Conditions: audience / location / channel gates plus a per-customer
//     usage limit
//   - Reward and Actions: what the customer gets when the rule matches
//
// 3. LIFECYCLE: Rules are created as drafts and must be promoted to live
//    before they evaluate. Promotion is refused while blocking issues remain.
//
// 4. EVALUATION: Final verdict - "MATCHED" (at least one rule granted a
//    reward plan) or "NOMATCH".
//
// These tests seed their own rules through the API, so each test uses a
// fresh program ID and leaves other programs untouched.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL   string
	ProgramID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("MAGPIE_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:   baseURL,
		ProgramID: fmt.Sprintf("itest-%d", time.Now().UnixNano()),
	}
}

// ============================================================================
// API Request/Response Types (matching Magpie's API contract)
// ============================================================================

// EvaluateRequest is the payload sent to POST /events
type EvaluateRequest struct {
	Event    Event     `json:"event"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

type Event struct {
	Type       string `json:"type"`
	CustomerID string `json:"customerId"`
	Amount     *Money `json:"amount,omitempty"`
	Channel    string `json:"channel,omitempty"`
	StoreID    string `json:"storeId,omitempty"`
	ToSegment  string `json:"toSegment,omitempty"`
}

type Money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type Snapshot struct {
	CustomerID string  `json:"customerId"`
	Segment    string  `json:"segment,omitempty"`
	Metrics    Metrics `json:"metrics"`
}

type Metrics struct {
	PurchaseCount int    `json:"purchaseCount"`
	LifetimeSpend string `json:"lifetimeSpend"`
	Referrals     int    `json:"referrals"`
}

// EvaluateResponse is what POST /events returns in synchronous mode
type EvaluateResponse struct {
	EvaluationID string           `json:"evaluationId"`
	EventID      string           `json:"eventId"`
	Status       string           `json:"status"` // "MATCHED" or "NOMATCH"
	Results      []MatchResult    `json:"results"`
	Plans        []map[string]any `json:"plans"`
	Metadata     ResponseMetadata `json:"metadata"`
}

type MatchResult struct {
	RuleID  string `json:"ruleId"`
	Matched bool   `json:"matched"`
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
}

type ResponseMetadata struct {
	TraceID  string `json:"traceId"`
	IngestMs int64  `json:"ingestMs"`
	TotalMs  int64  `json:"totalMs"`
	Version  string `json:"version"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func postJSON(t *testing.T, config TestConfig, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+path, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Program-ID", config.ProgramID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp, respBody
}

// seedRule creates a rule document and promotes it to live.
func seedRule(t *testing.T, config TestConfig, doc map[string]any) string {
	t.Helper()

	resp, body := postJSON(t, config, "/rules", doc)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Failed to create rule: status %d: %s", resp.StatusCode, string(body))
	}

	var created struct {
		Rule struct {
			ID string `json:"id"`
		} `json:"rule"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("Failed to parse create response: %v", err)
	}

	resp, body = postJSON(t, config, "/rules/"+created.Rule.ID+"/promote", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Failed to promote rule: status %d: %s", resp.StatusCode, string(body))
	}
	return created.Rule.ID
}

func evaluate(t *testing.T, config TestConfig, req EvaluateRequest) EvaluateResponse {
	t.Helper()

	resp, body := postJSON(t, config, "/events", req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(body))
	}

	var result EvaluateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(body))
	}
	return result
}

func openConditions(usageLimit int) map[string]any {
	return map[string]any{
		"channel":               "all",
		"audience":              map[string]any{"mode": "allCustomers"},
		"location":              map[string]any{"mode": "allLocations"},
		"usageLimitPerCustomer": usageLimit,
	}
}

func firstPurchaseRule(name string) map[string]any {
	return map[string]any{
		"name": name,
		"trigger": map[string]any{
			"case":      "milestone",
			"metric":    "purchaseCount",
			"threshold": 1,
		},
		"conditions": openConditions(-1),
		"reward": map[string]any{
			"case":   "points",
			"amount": 100,
		},
		"actions": []any{},
	}
}

func purchase(customerID, amount string) EvaluateRequest {
	return EvaluateRequest{
		Event: Event{
			Type:       "purchase",
			CustomerID: customerID,
			Amount:     &Money{Amount: amount, Currency: "USD"},
			Channel:    "inStore",
			StoreID:    "store-01",
		},
		Snapshot: &Snapshot{
			CustomerID: customerID,
			Metrics:    Metrics{PurchaseCount: 0, LifetimeSpend: "0"},
		},
	}
}

// ============================================================================
// SCENARIO 1: First Purchase (Milestone Crossed)
// ============================================================================

func TestFirstPurchase_Matched(t *testing.T) {
	/*
	   SCENARIO: A brand-new customer makes their first purchase, and the
	   program runs a "first purchase bonus" milestone rule.

	   EXPECTED BEHAVIOR:
	   - Pre-event purchaseCount is 0, post-event is 1
	   - The milestone threshold (1) is crossed by this event → rule matches
	   - One reward plan with 100 points is issued

	   FINAL DECISION: "MATCHED"
	*/
	config := getTestConfig()
	seedRule(t, config, firstPurchaseRule("First purchase bonus"))

	result := evaluate(t, config, purchase("customer-first-001", "25.00"))

	if result.Status != "MATCHED" {
		t.Errorf("Expected status MATCHED, got %s", result.Status)
	}
	if len(result.Plans) != 1 {
		t.Errorf("Expected 1 reward plan, got %d", len(result.Plans))
	}

	t.Logf("✓ First purchase matched: status=%s, plans=%d", result.Status, len(result.Plans))
}

// ============================================================================
// SCENARIO 2: Veteran Customer (Milestone Already Passed)
// ============================================================================

func TestVeteranCustomer_NoMatch(t *testing.T) {
	/*
	   SCENARIO: A customer with 40 prior purchases buys again under a
	   first-purchase rule.

	   EXPECTED BEHAVIOR:
	   - Pre-event purchaseCount (40) is already past the threshold (1)
	   - Milestones fire only on the crossing event, never again

	   FINAL DECISION: "NOMATCH"
	*/
	config := getTestConfig()
	seedRule(t, config, firstPurchaseRule("First purchase bonus"))

	req := purchase("customer-veteran-001", "25.00")
	req.Snapshot.Metrics = Metrics{PurchaseCount: 40, LifetimeSpend: "820.00"}

	result := evaluate(t, config, req)

	if result.Status != "NOMATCH" {
		t.Errorf("Expected NOMATCH for veteran customer, got %s", result.Status)
	}
	if len(result.Plans) != 0 {
		t.Errorf("Expected no plans, got %d", len(result.Plans))
	}

	t.Logf("✓ Veteran customer skipped: status=%s", result.Status)
}

// ============================================================================
// SCENARIO 3: Threshold Boundary Testing
// ============================================================================

func TestMilestoneBoundary(t *testing.T) {
	/*
	   SCENARIO: A 5-purchase milestone. Milestones use crossing semantics:
	   pre-event value < threshold <= post-event value.

	   - Customer at 4 purchases buys → crosses to 5 → MATCHED
	   - Customer already at 5 buys → 5 is not < 5 → NOMATCH

	   WHY THIS TEST:
	   Boundary conditions catch off-by-one errors in threshold logic, and
	   "fires exactly once per customer" is the whole point of a milestone.
	*/
	config := getTestConfig()

	doc := firstPurchaseRule("Fifth purchase bonus")
	doc["trigger"] = map[string]any{
		"case":      "milestone",
		"metric":    "purchaseCount",
		"threshold": 5,
	}
	seedRule(t, config, doc)

	t.Run("CrossingEventMatches", func(t *testing.T) {
		req := purchase("customer-boundary-001", "10.00")
		req.Snapshot.Metrics = Metrics{PurchaseCount: 4, LifetimeSpend: "40.00"}

		result := evaluate(t, config, req)
		if result.Status != "MATCHED" {
			t.Errorf("Expected MATCHED when crossing 4→5, got %s", result.Status)
		}
	})

	t.Run("AlreadyAtThresholdDoesNotMatch", func(t *testing.T) {
		req := purchase("customer-boundary-002", "10.00")
		req.Snapshot.Metrics = Metrics{PurchaseCount: 5, LifetimeSpend: "50.00"}

		result := evaluate(t, config, req)
		if result.Status != "NOMATCH" {
			t.Errorf("Expected NOMATCH at 5→6 (already crossed), got %s", result.Status)
		}
	})
}

// ============================================================================
// SCENARIO 4: Per-Customer Usage Limit
// ============================================================================

func TestUsageLimit_SecondGrantRefused(t *testing.T) {
	/*
	   SCENARIO: A segment-move welcome rule limited to one grant per
	   customer. The same customer moves into the segment twice.

	   EXPECTED BEHAVIOR:
	   - First event: rule matches, usage counter commits to 1
	   - Second event: trigger matches again, but the counter store refuses
	     the grant, so the match is skipped with a reason

	   FINAL DECISION: first "MATCHED", second "NOMATCH"

	   WHY THIS MATTERS:
	   The usage counter is the authoritative guard against double granting;
	   snapshots can lag behind it.
	*/
	config := getTestConfig()

	doc := map[string]any{
		"name": "VIP welcome",
		"trigger": map[string]any{
			"case": "segmentTransition",
			"to":   "vip",
		},
		"conditions": openConditions(1),
		"reward": map[string]any{
			"case":   "points",
			"amount": 500,
		},
		"actions": []any{},
	}
	seedRule(t, config, doc)

	req := EvaluateRequest{
		Event: Event{
			Type:       "segment.changed",
			CustomerID: "customer-usage-001",
			ToSegment:  "vip",
		},
		Snapshot: &Snapshot{CustomerID: "customer-usage-001"},
	}

	first := evaluate(t, config, req)
	if first.Status != "MATCHED" {
		t.Fatalf("Expected first grant to be MATCHED, got %s", first.Status)
	}

	second := evaluate(t, config, req)
	if second.Status != "NOMATCH" {
		t.Errorf("Expected second grant to be refused (NOMATCH), got %s", second.Status)
	}

	skipped := false
	for _, r := range second.Results {
		if r.Skipped && r.Reason != "" {
			skipped = true
		}
	}
	if !skipped {
		t.Error("Expected a skipped result with a reason on the second grant")
	}

	t.Logf("✓ Usage limit held: first=%s, second=%s", first.Status, second.Status)
}

// ============================================================================
// SCENARIO 5: Input Validation
// ============================================================================

func TestMissingCustomerID_Error(t *testing.T) {
	/*
	   SCENARIO: Event missing the required customerId field

	   EXPECTED: HTTP 400 Bad Request
	*/
	config := getTestConfig()

	req := EvaluateRequest{
		Event: Event{
			Type:   "purchase",
			Amount: &Money{Amount: "10.00", Currency: "USD"},
		},
	}

	resp, _ := postJSON(t, config, "/events", req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing customerId, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: missing customerId → HTTP %d", resp.StatusCode)
}

func TestMissingProgramHeader_Error(t *testing.T) {
	/*
	   SCENARIO: Request without X-Program-ID header

	   EXPECTED: HTTP 400 Bad Request (program ID is a required field,
	   not auth)
	*/
	config := getTestConfig()

	body, _ := json.Marshal(purchase("customer-001", "10.00"))
	httpReq, _ := http.NewRequest("POST", config.BaseURL+"/events", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	// NO X-Program-ID header!

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing program header, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: missing program → HTTP %d", resp.StatusCode)
}

// ============================================================================
// SCENARIO 6: Response Metadata Verification
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	/*
	   SCENARIO: Verify response includes all required metadata

	   This ensures the API contract is stable for clients.
	*/
	config := getTestConfig()
	seedRule(t, config, firstPurchaseRule("First purchase bonus"))

	result := evaluate(t, config, purchase("customer-metadata-001", "12.50"))

	if result.EvaluationID == "" {
		t.Error("Missing evaluationId")
	}
	if result.EventID == "" {
		t.Error("Missing eventId")
	}
	if result.Status != "MATCHED" && result.Status != "NOMATCH" {
		t.Errorf("Invalid status: %s (expected MATCHED or NOMATCH)", result.Status)
	}
	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}
	// TotalMs can be 0 for sub-millisecond evaluations
	if result.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}

	t.Logf("✓ Metadata complete: evalId=%s, eventId=%s, traceId=%s, totalMs=%d",
		result.EvaluationID[:8], result.EventID[:8], result.Metadata.TraceID[:8], result.Metadata.TotalMs)
}
