package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResolvedReward is a reward made concrete against one event, e.g. a
// percentage discount resolved to an amount off the transaction total. All
// numeric resolution is decimal; binary floating point never touches money.
type ResolvedReward struct {
	Case        RewardCase       `json:"case"`
	Amount      *Money           `json:"amount,omitempty"`
	Points      int64            `json:"points,omitempty"`
	Multiplier  *decimal.Decimal `json:"multiplier,omitempty"`
	SKU         string           `json:"sku,omitempty"`
	Description string           `json:"description,omitempty"`
}

// PlannedAction is one resolved step of an action plan.
type PlannedAction struct {
	ActionID string            `json:"actionId"`
	Type     ActionType        `json:"type"`
	Provider string            `json:"provider,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

// ActionPlan is the ordered, parameter-resolved list of actions the
// evaluator decided should run for a match. Executing it is the dispatch
// collaborator's job; the plan itself has no side effects.
type ActionPlan struct {
	RuleID  string          `json:"ruleId"`
	EventID string          `json:"eventId"`
	Reward  *ResolvedReward `json:"reward,omitempty"`
	Steps   []PlannedAction `json:"steps"`
}

// MatchResult is the outcome of evaluating one rule against one event.
type MatchResult struct {
	RuleID    string      `json:"ruleId"`
	RuleName  string      `json:"ruleName"`
	Matched   bool        `json:"matched"`
	Skipped   bool        `json:"skipped,omitempty"` // matched but usage commit lost the race
	Reason    string      `json:"reason,omitempty"`
	Plan      *ActionPlan `json:"plan,omitempty"`
	ProcessMs int64       `json:"processMs"`
}

// Evaluation statuses.
const (
	StatusMatched = "MATCHED"
	StatusNoMatch = "NOMATCH"
)

// EvaluationMetadata carries processing information for one evaluation.
type EvaluationMetadata struct {
	TraceID        string `json:"traceId"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	RulesMatched   int    `json:"rulesMatched"`
	DecisionMs     int64  `json:"decisionMs"`
	TotalMs        int64  `json:"totalMs"`
	EngineVersion  string `json:"engineVersion"`
}

// Evaluation is the recorded outcome of running all live rules for one
// event.
type Evaluation struct {
	ID         string             `json:"id"`
	ProgramID  string             `json:"programId"`
	EventID    string             `json:"eventId"`
	CustomerID string             `json:"customerId"`
	Status     string             `json:"status"`
	Results    []MatchResult      `json:"results"`
	Plans      []ActionPlan       `json:"plans,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	Metadata   EvaluationMetadata `json:"metadata"`
}

// MatchedPlans returns the action plans of matched, non-skipped results in
// rule order.
func (e *Evaluation) MatchedPlans() []ActionPlan {
	var plans []ActionPlan
	for _, r := range e.Results {
		if r.Matched && !r.Skipped && r.Plan != nil {
			plans = append(plans, *r.Plan)
		}
	}
	return plans
}
