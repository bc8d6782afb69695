package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApprovalSettings carries the rule's approval and budget metadata. Both
// limits are optional; requiring approval with neither set is legal but
// flagged as a warning by the validator.
type ApprovalSettings struct {
	RequiresApproval bool             `json:"requiresApproval"`
	BudgetCap        *Money           `json:"budgetCap,omitempty"`
	MinROI           *decimal.Decimal `json:"minRoi,omitempty"`
}

// Rule is the automation aggregate: one trigger, a condition set, an
// optional reward, and an ordered action list. A rule owns its parts by
// value; actions reference external collaborators only by opaque id.
//
// Lifecycle: rules are created as drafts (Enabled=false). Every mutation
// yields a complete rule value; the validator runs against the whole
// document on every write. Promotion to live requires zero blocking issues
// and is the only guarded transition; live to draft is always allowed.
type Rule struct {
	ID         string
	Name       string
	Enabled    bool
	Trigger    Trigger
	Conditions ConditionSet
	Reward     Reward // nil for pure-notification automations
	Actions    []ActionInstance
	Approval   ApprovalSettings
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewRule creates a draft rule with the default trigger and unrestricted
// conditions.
func NewRule(name string) *Rule {
	now := time.Now().UTC()
	return &Rule{
		ID:         uuid.New().String(),
		Name:       name,
		Enabled:    false,
		Trigger:    DefaultTrigger(),
		Conditions: DefaultConditions(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SetTrigger replaces the trigger wholesale. Parameters of the previous
// case never carry over.
func (r *Rule) SetTrigger(t Trigger) error {
	if t == nil {
		return fmt.Errorf("%w: trigger is required", ErrInvalidInput)
	}
	r.Trigger = t
	r.touch()
	return nil
}

// SetReward replaces the reward. Passing nil clears it.
func (r *Rule) SetReward(rw Reward) {
	r.Reward = rw
	r.touch()
}

// AddAction appends an action instance and returns its id.
func (r *Rule) AddAction(cfg ActionConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("%w: action config is required", ErrInvalidInput)
	}
	a := NewActionInstance(cfg)
	r.Actions = append(r.Actions, a)
	r.touch()
	return a.ID, nil
}

// RemoveAction deletes the action with the given id.
func (r *Rule) RemoveAction(id string) error {
	idx := r.actionIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: action %s", ErrNotFound, id)
	}
	r.Actions = append(r.Actions[:idx], r.Actions[idx+1:]...)
	r.touch()
	return nil
}

// MoveAction moves the action with the given id to position to. Order is
// significant: actions execute in list order.
func (r *Rule) MoveAction(id string, to int) error {
	idx := r.actionIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: action %s", ErrNotFound, id)
	}
	if to < 0 || to >= len(r.Actions) {
		return fmt.Errorf("%w: position %d out of range", ErrInvalidInput, to)
	}
	a := r.Actions[idx]
	rest := append(r.Actions[:idx], r.Actions[idx+1:]...)
	r.Actions = append(rest[:to], append([]ActionInstance{a}, rest[to:]...)...)
	r.touch()
	return nil
}

// SetActionEnabled toggles an action. Disabling retains its config so
// re-enabling restores prior values.
func (r *Rule) SetActionEnabled(id string, enabled bool) error {
	idx := r.actionIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: action %s", ErrNotFound, id)
	}
	r.Actions[idx].Enabled = enabled
	r.touch()
	return nil
}

// EnabledActions returns the enabled actions in declared order.
func (r *Rule) EnabledActions() []ActionInstance {
	out := make([]ActionInstance, 0, len(r.Actions))
	for _, a := range r.Actions {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// Demote transitions the rule back to draft. Always allowed.
func (r *Rule) Demote() {
	r.Enabled = false
	r.touch()
}

func (r *Rule) actionIndex(id string) int {
	for i, a := range r.Actions {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (r *Rule) touch() {
	r.UpdatedAt = time.Now().UTC()
}

type ruleDoc struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Enabled    bool             `json:"enabled"`
	Trigger    json.RawMessage  `json:"trigger"`
	Conditions ConditionSet     `json:"conditions"`
	Reward     json.RawMessage  `json:"reward,omitempty"`
	Actions    []ActionInstance `json:"actions"`
	Approval   ApprovalSettings `json:"approval"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// MarshalJSON serializes the rule as the persistence document: a JSON tree
// with tagged-union envelopes for trigger, reward, and action configs.
func (r Rule) MarshalJSON() ([]byte, error) {
	trigger, err := MarshalTrigger(r.Trigger)
	if err != nil {
		return nil, err
	}
	doc := ruleDoc{
		ID:         r.ID,
		Name:       r.Name,
		Enabled:    r.Enabled,
		Trigger:    trigger,
		Conditions: r.Conditions,
		Actions:    r.Actions,
		Approval:   r.Approval,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.Reward != nil {
		doc.Reward, err = MarshalReward(r.Reward)
		if err != nil {
			return nil, err
		}
	}
	if doc.Actions == nil {
		doc.Actions = []ActionInstance{}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON deserializes the persistence document. Round-trip is
// loss-less; unknown union cases fail rather than defaulting.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var doc ruleDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	trigger, err := UnmarshalTrigger(doc.Trigger)
	if err != nil {
		return err
	}
	var reward Reward
	if len(doc.Reward) > 0 {
		reward, err = UnmarshalReward(doc.Reward)
		if err != nil {
			return err
		}
	}
	r.ID = doc.ID
	r.Name = doc.Name
	r.Enabled = doc.Enabled
	r.Trigger = trigger
	r.Conditions = doc.Conditions
	r.Reward = reward
	r.Actions = doc.Actions
	if r.Actions == nil {
		r.Actions = []ActionInstance{}
	}
	r.Approval = doc.Approval
	r.CreatedAt = doc.CreatedAt
	r.UpdatedAt = doc.UpdatedAt
	return nil
}
