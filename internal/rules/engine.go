package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/loyaltylab/magpie/internal/domain"
)

// Engine holds the live rules per loyalty program and evaluates events
// against them. Rules are loaded from the repository and kept in memory;
// reloads swap the whole program registry atomically.
type Engine struct {
	mu         sync.RWMutex
	evaluator  *Evaluator
	matcher    *CELMatcher
	loaded     map[string]map[string]*domain.Rule // programID -> ruleID -> rule
	maxWorkers int
}

// NewEngine creates an engine with its own CEL matcher.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	matcher, err := NewCELMatcher()
	if err != nil {
		return nil, err
	}

	return &Engine{
		evaluator:  NewEvaluator(matcher),
		matcher:    matcher,
		loaded:     make(map[string]map[string]*domain.Rule),
		maxWorkers: maxWorkers,
	}, nil
}

// Matcher exposes the expression matcher so the validation surface can
// compile-check audience expressions at save time.
func (e *Engine) Matcher() *CELMatcher {
	return e.matcher
}

// LoadRule loads one live rule into the program's registry. Draft rules
// are rejected; a rule with a broken audience expression fails to load
// rather than silently never matching.
func (e *Engine) LoadRule(programID string, rule *domain.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is required", domain.ErrInvalidInput)
	}
	if !rule.Enabled {
		return fmt.Errorf("%w: rule %s is not live", domain.ErrInvalidInput, rule.ID)
	}
	if err := e.checkExpression(rule); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded[programID] == nil {
		e.loaded[programID] = make(map[string]*domain.Rule)
	}
	e.loaded[programID][rule.ID] = rule
	return nil
}

// ReloadRules swaps the program's registry for the given rule set. Draft
// rules in the slice are skipped. This enables hot reload from the
// repository without a restart.
func (e *Engine) ReloadRules(programID string, rules []*domain.Rule) error {
	fresh := make(map[string]*domain.Rule)
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if err := e.checkExpression(r); err != nil {
			return err
		}
		fresh[r.ID] = r
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded[programID] = fresh
	return nil
}

// RemoveRule drops a rule from the program's registry.
func (e *Engine) RemoveRule(programID, ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.loaded[programID], ruleID)
}

// RulesCount returns the number of loaded rules for a program.
func (e *Engine) RulesCount(programID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.loaded[programID])
}

// LoadedRules returns the program's loaded rules ordered by creation time.
func (e *Engine) LoadedRules(programID string) []*domain.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked(programID)
}

func (e *Engine) snapshotLocked(programID string) []*domain.Rule {
	rules := make([]*domain.Rule, 0, len(e.loaded[programID]))
	for _, r := range e.loaded[programID] {
		rules = append(rules, r)
	}
	// Deterministic evaluation order: oldest rule first, id as tiebreak.
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules
}

// EvaluateAll evaluates every loaded rule of the program against the event
// in parallel and returns results in deterministic rule order.
func (e *Engine) EvaluateAll(ctx context.Context, programID string, ev *domain.Event, snap *domain.CustomerSnapshot) ([]domain.MatchResult, error) {
	if ev == nil || snap == nil {
		return nil, fmt.Errorf("%w: event and snapshot are required", domain.ErrInvalidInput)
	}

	e.mu.RLock()
	rules := e.snapshotLocked(programID)
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	results := make([]domain.MatchResult, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *domain.Rule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, ev, snap, now)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

func (e *Engine) evaluateRule(rule *domain.Rule, ev *domain.Event, snap *domain.CustomerSnapshot, now time.Time) domain.MatchResult {
	start := time.Now()

	plan, reason, matched := e.evaluator.Evaluate(rule, ev, snap, now)

	return domain.MatchResult{
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Matched:   matched,
		Reason:    reason,
		Plan:      plan,
		ProcessMs: time.Since(start).Milliseconds(),
	}
}

func (e *Engine) checkExpression(rule *domain.Rule) error {
	a := rule.Conditions.Audience
	if a.Mode != domain.AudienceCustomExpression {
		return nil
	}
	if err := e.matcher.CheckExpression(a.Expression); err != nil {
		return fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	return nil
}

// Close clears the registry.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = make(map[string]map[string]*domain.Rule)
	return nil
}
