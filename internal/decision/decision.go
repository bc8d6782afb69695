// Package decision assembles the per-event evaluation record from
// individual rule match results.
package decision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/loyaltylab/magpie/internal/domain"
)

// EngineVersion is stamped into every evaluation's metadata.
const EngineVersion = "magpie-1.0"

// Processor folds rule match results into a final Evaluation.
type Processor struct{}

// NewProcessor creates a new decision processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Input contains all data needed to build an evaluation.
type Input struct {
	ProgramID  string
	EventID    string
	CustomerID string
	TraceID    string
	Results    []domain.MatchResult
	StartTime  time.Time
}

// Process builds the evaluation record. The status is MATCHED when at
// least one rule matched and survived its usage commit; skipped results
// still appear in Results but contribute no plan.
func (p *Processor) Process(ctx context.Context, input *Input) *domain.Evaluation {
	start := time.Now()

	eval := &domain.Evaluation{
		ID:         uuid.New().String(),
		ProgramID:  input.ProgramID,
		EventID:    input.EventID,
		CustomerID: input.CustomerID,
		Timestamp:  time.Now().UTC(),
		Results:    input.Results,
	}

	matched := 0
	for _, r := range input.Results {
		if r.Matched && !r.Skipped {
			matched++
		}
	}

	if matched > 0 {
		eval.Status = domain.StatusMatched
	} else {
		eval.Status = domain.StatusNoMatch
	}

	eval.Plans = eval.MatchedPlans()

	decisionMs := time.Since(start).Milliseconds()
	totalMs := time.Since(input.StartTime).Milliseconds()

	eval.Metadata = domain.EvaluationMetadata{
		TraceID:        input.TraceID,
		RulesEvaluated: len(input.Results),
		RulesMatched:   matched,
		DecisionMs:     decisionMs,
		TotalMs:        totalMs,
		EngineVersion:  EngineVersion,
	}

	return eval
}

// ShouldDispatch returns true if the evaluation produced plans to execute.
func ShouldDispatch(eval *domain.Evaluation) bool {
	return eval.Status == domain.StatusMatched && len(eval.Plans) > 0
}

// SkipReasons extracts the reasons of matched-but-skipped results.
func SkipReasons(eval *domain.Evaluation) []string {
	var reasons []string
	for _, r := range eval.Results {
		if r.Skipped && r.Reason != "" {
			reasons = append(reasons, r.Reason)
		}
	}
	return reasons
}
