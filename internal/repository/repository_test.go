package repository

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/loyaltylab/magpie/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "magpie-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	programID := "prog-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetRule", func(t *testing.T) {
		rule := domain.NewRule("Tenth purchase reward")
		if err := rule.SetTrigger(domain.MilestoneTrigger{Metric: domain.MetricPurchaseCount, Threshold: 10}); err != nil {
			t.Fatal(err)
		}
		rule.SetReward(domain.DiscountReward{
			Kind:      domain.PercentageDiscount{Percent: domain.PercentageFromInt(15)},
			AppliesTo: domain.EntirePurchase(),
		})
		if _, err := rule.AddAction(domain.EmailActionConfig{Provider: "sendgrid", TemplateRef: "tpl-1"}); err != nil {
			t.Fatal(err)
		}

		if err := repo.SaveRule(ctx, programID, rule); err != nil {
			t.Fatalf("SaveRule failed: %v", err)
		}

		retrieved, err := repo.GetRule(ctx, programID, rule.ID)
		if err != nil {
			t.Fatalf("GetRule failed: %v", err)
		}
		if retrieved.Name != rule.Name {
			t.Errorf("expected name %q, got %q", rule.Name, retrieved.Name)
		}
		if !reflect.DeepEqual(retrieved.Trigger, rule.Trigger) {
			t.Errorf("trigger did not survive storage: %#v vs %#v", retrieved.Trigger, rule.Trigger)
		}
		if len(retrieved.Actions) != 1 || retrieved.Actions[0].ID != rule.Actions[0].ID {
			t.Error("actions did not survive storage")
		}
	})

	t.Run("SaveRuleIsUpsert", func(t *testing.T) {
		rule := domain.NewRule("First name")
		rule.SetReward(domain.PointsReward{Amount: 10})
		if err := repo.SaveRule(ctx, programID, rule); err != nil {
			t.Fatal(err)
		}

		rule.Name = "Second name"
		if err := repo.SaveRule(ctx, programID, rule); err != nil {
			t.Fatalf("second save failed: %v", err)
		}

		retrieved, err := repo.GetRule(ctx, programID, rule.ID)
		if err != nil {
			t.Fatal(err)
		}
		if retrieved.Name != "Second name" {
			t.Errorf("expected updated name, got %q", retrieved.Name)
		}
	})

	t.Run("ListLiveRulesFiltersDrafts", func(t *testing.T) {
		live := domain.NewRule("Live rule")
		live.SetReward(domain.PointsReward{Amount: 5})
		live.Enabled = true
		draft := domain.NewRule("Draft rule")

		scope := "prog-live-filter"
		if err := repo.SaveRule(ctx, scope, live); err != nil {
			t.Fatal(err)
		}
		if err := repo.SaveRule(ctx, scope, draft); err != nil {
			t.Fatal(err)
		}

		all, err := repo.ListRules(ctx, scope)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 rules, got %d", len(all))
		}

		liveOnly, err := repo.ListLiveRules(ctx, scope)
		if err != nil {
			t.Fatal(err)
		}
		if len(liveOnly) != 1 || liveOnly[0].ID != live.ID {
			t.Errorf("expected only the live rule, got %d rules", len(liveOnly))
		}
	})

	t.Run("ProgramIsolation", func(t *testing.T) {
		rule := domain.NewRule("Scoped")
		if err := repo.SaveRule(ctx, programID, rule); err != nil {
			t.Fatal(err)
		}

		_, err := repo.GetRule(ctx, "prog-other", rule.ID)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for different program, got: %v", err)
		}
	})

	t.Run("RequiresProgramID", func(t *testing.T) {
		if err := repo.SaveRule(ctx, "", domain.NewRule("x")); err == nil {
			t.Error("expected error for empty programID")
		}
		if _, err := repo.GetRule(ctx, "", "any"); err == nil {
			t.Error("expected error for empty programID")
		}
	})

	t.Run("DeleteRule", func(t *testing.T) {
		rule := domain.NewRule("Doomed")
		if err := repo.SaveRule(ctx, programID, rule); err != nil {
			t.Fatal(err)
		}
		if err := repo.DeleteRule(ctx, programID, rule.ID); err != nil {
			t.Fatalf("DeleteRule failed: %v", err)
		}
		if _, err := repo.GetRule(ctx, programID, rule.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got: %v", err)
		}
		if err := repo.DeleteRule(ctx, programID, rule.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on double delete, got: %v", err)
		}
	})

	t.Run("SaveAndGetCampaign", func(t *testing.T) {
		c := domain.NewCampaign(programID, "Summer push")
		c.RuleIDs = []string{"rule-a", "rule-b"}
		if err := repo.SaveCampaign(ctx, programID, c); err != nil {
			t.Fatalf("SaveCampaign failed: %v", err)
		}

		retrieved, err := repo.GetCampaign(ctx, programID, c.ID)
		if err != nil {
			t.Fatalf("GetCampaign failed: %v", err)
		}
		if !reflect.DeepEqual(retrieved.RuleIDs, c.RuleIDs) {
			t.Errorf("rule refs did not survive storage: %v", retrieved.RuleIDs)
		}
	})

	t.Run("SaveAndGetEvent", func(t *testing.T) {
		amount := domain.MustMoney("42.50", "USD")
		ev := &domain.Event{
			ID:         "ev-001",
			ProgramID:  programID,
			CustomerID: "cust-001",
			Type:       domain.EventPurchase,
			Amount:     &amount,
			Channel:    domain.SalesInStore,
			Timestamp:  time.Now().UTC().Truncate(time.Second),
		}
		if err := repo.SaveEvent(ctx, programID, ev); err != nil {
			t.Fatalf("SaveEvent failed: %v", err)
		}

		retrieved, err := repo.GetEvent(ctx, programID, ev.ID)
		if err != nil {
			t.Fatalf("GetEvent failed: %v", err)
		}
		if retrieved.CustomerID != ev.CustomerID {
			t.Errorf("expected customer %s, got %s", ev.CustomerID, retrieved.CustomerID)
		}
		if retrieved.Amount == nil || !retrieved.Amount.Amount.Equal(amount.Amount) {
			t.Error("amount did not survive storage")
		}
	})

	t.Run("SaveAndGetEvaluation", func(t *testing.T) {
		eval := &domain.Evaluation{
			ID:         "eval-001",
			ProgramID:  programID,
			EventID:    "ev-001",
			CustomerID: "cust-001",
			Status:     domain.StatusMatched,
			Results: []domain.MatchResult{
				{RuleID: "rule-001", RuleName: "R", Matched: true},
			},
			Timestamp: time.Now().UTC().Truncate(time.Second),
			Metadata:  domain.EvaluationMetadata{TraceID: "trace-001", RulesEvaluated: 1, RulesMatched: 1},
		}
		if err := repo.SaveEvaluation(ctx, programID, eval); err != nil {
			t.Fatalf("SaveEvaluation failed: %v", err)
		}

		retrieved, err := repo.GetEvaluation(ctx, programID, eval.ID)
		if err != nil {
			t.Fatalf("GetEvaluation failed: %v", err)
		}
		if retrieved.Status != domain.StatusMatched {
			t.Errorf("expected status %s, got %s", domain.StatusMatched, retrieved.Status)
		}
		if len(retrieved.Results) != 1 || !retrieved.Results[0].Matched {
			t.Error("results did not survive storage")
		}
		if retrieved.Metadata.TraceID != "trace-001" {
			t.Errorf("metadata did not survive storage: %+v", retrieved.Metadata)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetRule(ctx, programID, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetEvaluation(ctx, programID, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUsageCounters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	programID := "prog-usage"

	t.Run("IncrementUpToLimit", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			ok, err := repo.IncrementUsage(ctx, programID, "rule-1", "cust-1", 2)
			if err != nil {
				t.Fatalf("increment %d failed: %v", i, err)
			}
			if !ok {
				t.Fatalf("increment %d should succeed below limit", i)
			}
		}

		ok, err := repo.IncrementUsage(ctx, programID, "rule-1", "cust-1", 2)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("increment at limit should be refused")
		}

		uses, err := repo.GetUsage(ctx, programID, "rule-1", "cust-1")
		if err != nil {
			t.Fatal(err)
		}
		if uses != 2 {
			t.Errorf("expected 2 uses, got %d", uses)
		}
	})

	t.Run("UnlimitedAlwaysIncrements", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			ok, err := repo.IncrementUsage(ctx, programID, "rule-2", "cust-1", -1)
			if err != nil || !ok {
				t.Fatalf("unlimited increment %d: ok=%v err=%v", i, ok, err)
			}
		}
		uses, _ := repo.GetUsage(ctx, programID, "rule-2", "cust-1")
		if uses != 5 {
			t.Errorf("expected 5 uses, got %d", uses)
		}
	})

	t.Run("CountersScopedPerCustomer", func(t *testing.T) {
		if ok, _ := repo.IncrementUsage(ctx, programID, "rule-3", "cust-a", 1); !ok {
			t.Fatal("first customer should get the grant")
		}
		if ok, _ := repo.IncrementUsage(ctx, programID, "rule-3", "cust-b", 1); !ok {
			t.Error("other customers have their own counter")
		}
		if ok, _ := repo.IncrementUsage(ctx, programID, "rule-3", "cust-a", 1); ok {
			t.Error("second grant for same customer should be refused")
		}
	})

	t.Run("ConcurrentIncrementsRespectLimit", func(t *testing.T) {
		const attempts = 10
		var wg sync.WaitGroup
		granted := make(chan bool, attempts)

		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.IncrementUsage(ctx, programID, "rule-race", "cust-1", 1)
				if err == nil && ok {
					granted <- true
				}
			}()
		}
		wg.Wait()
		close(granted)

		wins := 0
		for range granted {
			wins++
		}
		if wins != 1 {
			t.Errorf("limit 1 must grant exactly once, got %d grants", wins)
		}
	})

	t.Run("ZeroUsageForUnknownCustomer", func(t *testing.T) {
		uses, err := repo.GetUsage(ctx, programID, "rule-1", "cust-unknown")
		if err != nil {
			t.Fatal(err)
		}
		if uses != 0 {
			t.Errorf("expected 0 uses, got %d", uses)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "mysql"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
