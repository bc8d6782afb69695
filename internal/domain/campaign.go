package domain

import (
	"time"

	"github.com/google/uuid"
)

// Campaign is a named grouping of rules produced by the template builder.
// It has no evaluation semantics of its own: the engine evaluates rules,
// and a campaign is bookkeeping around them. Rule references are held by
// id; deleting a rule referenced here removes the reference and nothing
// else.
type Campaign struct {
	ID          string    `json:"id"`
	ProgramID   string    `json:"programId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	RuleIDs     []string  `json:"ruleIds"`
	Schedule    Schedule  `json:"schedule,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewCampaign creates an empty campaign.
func NewCampaign(programID, name string) *Campaign {
	now := time.Now().UTC()
	return &Campaign{
		ID:        uuid.New().String(),
		ProgramID: programID,
		Name:      name,
		RuleIDs:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RemoveRuleRef drops a rule reference if present. A no-op removal, never a
// cascade.
func (c *Campaign) RemoveRuleRef(ruleID string) {
	out := c.RuleIDs[:0]
	for _, id := range c.RuleIDs {
		if id != ruleID {
			out = append(out, id)
		}
	}
	c.RuleIDs = out
	c.UpdatedAt = time.Now().UTC()
}
