// Package usage enforces per-customer grant limits for rules.
package usage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loyaltylab/magpie/internal/domain"
)

// Service commits rule grants against per-customer usage counters.
// The repository holds the durable count; the cache, when present, takes
// the same check-and-increment on its atomic counter first so hot
// customers are refused without a database round trip.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new usage service. Either dependency may be nil;
// at least one must be set for Commit to work.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Commit reserves one grant of a rule for a customer. It returns false
// when the customer has already exhausted the rule's limit. A limit of
// domain.UnlimitedUsage always succeeds but still counts the grant.
func (s *Service) Commit(ctx context.Context, programID, ruleID, customerID string, limit int) (bool, error) {
	if programID == "" || ruleID == "" || customerID == "" {
		return false, fmt.Errorf("programID, ruleID and customerID are required")
	}

	if s.cache != nil {
		_, ok, err := s.cache.CheckAndIncrement(ctx, programID, counterKey(ruleID, customerID), int64(limit))
		if err != nil {
			// Cache trouble must not drop grants; the repository check below
			// still enforces the limit.
			slog.Warn("usage cache increment failed",
				"program_id", programID,
				"rule_id", ruleID,
				"error", err,
			)
		} else if !ok {
			return false, nil
		}
	}

	if s.repo != nil {
		granted, err := s.repo.IncrementUsage(ctx, programID, ruleID, customerID, limit)
		if err != nil {
			return false, fmt.Errorf("failed to increment usage: %w", err)
		}
		return granted, nil
	}

	if s.cache != nil {
		return true, nil
	}

	return false, fmt.Errorf("no data source available")
}

// Count returns how many times a customer has been granted a rule.
func (s *Service) Count(ctx context.Context, programID, ruleID, customerID string) (int, error) {
	if programID == "" || ruleID == "" || customerID == "" {
		return 0, fmt.Errorf("programID, ruleID and customerID are required")
	}

	if s.repo != nil {
		return s.repo.GetUsage(ctx, programID, ruleID, customerID)
	}

	if s.cache != nil {
		count, err := s.cache.GetCounter(ctx, programID, counterKey(ruleID, customerID))
		return int(count), err
	}

	return 0, fmt.Errorf("no data source available")
}

// CommitMatches walks evaluation results and commits a grant for every
// matched rule. A result whose commit loses the race is marked Skipped so
// its plan is never dispatched. Limits maps rule ID to that rule's
// usageLimitPerCustomer; rules absent from the map are treated as
// unlimited.
func (s *Service) CommitMatches(ctx context.Context, programID, customerID string, limits map[string]int, results []domain.MatchResult) error {
	for i := range results {
		if !results[i].Matched || results[i].Skipped {
			continue
		}

		limit, ok := limits[results[i].RuleID]
		if !ok {
			limit = domain.UnlimitedUsage
		}

		granted, err := s.Commit(ctx, programID, results[i].RuleID, customerID, limit)
		if err != nil {
			return err
		}
		if !granted {
			results[i].Skipped = true
			results[i].Reason = "usage limit reached"
			results[i].Plan = nil
		}
	}
	return nil
}

func counterKey(ruleID, customerID string) string {
	return "usage:" + ruleID + ":" + customerID
}
