package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/loyaltylab/magpie/internal/domain"
)

// CELMatcher evaluates custom audience expressions with CEL. Compiled
// programs are cached by expression text so repeated evaluations of the
// same rule pay compilation once.
type CELMatcher struct {
	mu       sync.RWMutex
	env      *cel.Env
	programs map[string]cel.Program
}

// NewCELMatcher creates the matcher and its CEL environment with the
// customer and event variables audience expressions can reference.
func NewCELMatcher() (*CELMatcher, error) {
	env, err := cel.NewEnv(
		cel.Variable("customer", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("segment", cel.StringType),
		cel.Variable("tier", cel.StringType),
		cel.Variable("points_balance", cel.IntType),
		cel.Variable("purchase_count", cel.IntType),
		cel.Variable("lifetime_spend", cel.DoubleType),
		cel.Variable("referrals", cel.IntType),
		cel.Variable("marketing_opt_in", cel.BoolType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("store_id", cel.StringType),
		cel.Variable("region", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CELMatcher{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// CheckExpression compiles an expression without caching it. Used by the
// validator surface to reject broken expressions at save time.
func (m *CELMatcher) CheckExpression(expr string) error {
	_, err := m.compile(expr)
	return err
}

// Match evaluates an audience expression against the event and snapshot.
func (m *CELMatcher) Match(expr string, ev *domain.Event, snap *domain.CustomerSnapshot) (bool, error) {
	program, err := m.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := program.Eval(activation(ev, snap))
	if err != nil {
		return false, fmt.Errorf("expression evaluation failed: %w", err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("%w: expression returned %s, want bool", domain.ErrInvalidInput, out.Type())
	}
	return bool(b), nil
}

func (m *CELMatcher) program(expr string) (cel.Program, error) {
	m.mu.RLock()
	p, ok := m.programs[expr]
	m.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := m.compile(expr)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.programs[expr] = p
	m.mu.Unlock()
	return p, nil
}

func (m *CELMatcher) compile(expr string) (cel.Program, error) {
	ast, issues := m.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", domain.ErrInvalidInput, ast.OutputType())
	}
	program, err := m.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	return program, nil
}

// activation flattens the event and snapshot into CEL variables. Amounts
// cross into CEL as float64; that is acceptable for audience predicates,
// which only compare, and reward math stays on decimals outside CEL.
func activation(ev *domain.Event, snap *domain.CustomerSnapshot) map[string]any {
	amount := 0.0
	if ev.Amount != nil {
		amount, _ = ev.Amount.Amount.Float64()
	}
	spend, _ := snap.Metrics.LifetimeSpend.Float64()

	return map[string]any{
		"customer": map[string]any{
			"id":      snap.CustomerID,
			"segment": string(snap.Segment),
			"tier":    string(snap.Tier),
		},
		"event": map[string]any{
			"id":      ev.ID,
			"type":    string(ev.Type),
			"amount":  amount,
			"channel": string(ev.Channel),
		},
		"segment":          string(snap.Segment),
		"tier":             string(snap.Tier),
		"points_balance":   snap.PointsBalance,
		"purchase_count":   snap.Metrics.PurchaseCount,
		"lifetime_spend":   spend,
		"referrals":        snap.Metrics.Referrals,
		"marketing_opt_in": snap.MarketingOptIn,
		"amount":           amount,
		"channel":          string(ev.Channel),
		"store_id":         ev.StoreID,
		"region":           ev.Region,
	}
}
