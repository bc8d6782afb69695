package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType classifies an incoming customer event.
type EventType string

const (
	EventPurchase       EventType = "purchase"
	EventReferral       EventType = "referral"
	EventPointsEarned   EventType = "points.earned"
	EventTierChanged    EventType = "tier.changed"
	EventSegmentChanged EventType = "segment.changed"
	EventCheckIn        EventType = "checkin"
)

// Event is one customer event presented to the evaluator. The core defines
// only the shape it needs; sourcing is the event collaborator's job. Fields
// that do not apply to the event type stay at their zero value, and triggers
// that need a missing field simply do not match.
type Event struct {
	ID         string    `json:"id"`
	ProgramID  string    `json:"programId"`
	CustomerID string    `json:"customerId"`
	Type       EventType `json:"type"`

	// Purchase details
	Amount     *Money   `json:"amount,omitempty"`
	Skus       []string `json:"skus,omitempty"`
	Categories []string `json:"categories,omitempty"`

	// Points movement
	PointsEarned int64 `json:"pointsEarned,omitempty"`

	// Where the event happened
	StoreID string  `json:"storeId,omitempty"`
	Region  string  `json:"region,omitempty"`
	Channel Channel `json:"channel,omitempty"`

	// Segment / tier movement (segment.changed, tier.changed)
	FromSegment SegmentRef `json:"fromSegment,omitempty"`
	ToSegment   SegmentRef `json:"toSegment,omitempty"`
	FromTier    TierRef    `json:"fromTier,omitempty"`
	ToTier      TierRef    `json:"toTier,omitempty"`

	// TierDelta is the number of tier levels moved (positive = upgrade).
	// Tier refs are opaque to the core, so the event source supplies the
	// direction.
	TierDelta int `json:"tierDelta,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// MetricSnapshot holds a customer's lifetime metrics as of just before the
// current event. The evaluator derives the post-event value from the event
// itself to implement threshold crossing.
type MetricSnapshot struct {
	PurchaseCount int64           `json:"purchaseCount"`
	LifetimeSpend decimal.Decimal `json:"lifetimeSpend"`
	PointsEarned  int64           `json:"pointsEarned"`
	Referrals     int64           `json:"referrals"`
}

// Metric returns the pre-event value of the named milestone metric.
func (m MetricSnapshot) Metric(metric MilestoneMetric) (decimal.Decimal, bool) {
	switch metric {
	case MetricPurchaseCount:
		return decimal.NewFromInt(m.PurchaseCount), true
	case MetricLifetimeSpend:
		return m.LifetimeSpend, true
	case MetricPointsEarned:
		return decimal.NewFromInt(m.PointsEarned), true
	case MetricReferrals:
		return decimal.NewFromInt(m.Referrals), true
	}
	return decimal.Zero, false
}

// CustomerSnapshot is the customer state supplied alongside an event.
// Pointer fields are optional; a trigger that needs an absent field returns
// "no match" rather than assuming a default.
type CustomerSnapshot struct {
	CustomerID string     `json:"customerId"`
	Segment    SegmentRef `json:"segment,omitempty"`
	Tier       TierRef    `json:"tier,omitempty"`

	BirthDate      *time.Time `json:"birthDate,omitempty"`
	MarketingOptIn bool       `json:"marketingOptIn"`

	LastActivityAt  *time.Time `json:"lastActivityAt,omitempty"`
	LastContactedAt *time.Time `json:"lastContactedAt,omitempty"`

	PointsBalance  int64      `json:"pointsBalance"`
	ExpiringPoints int64      `json:"expiringPoints"`
	PointsExpireAt *time.Time `json:"pointsExpireAt,omitempty"`

	Metrics MetricSnapshot `json:"metrics"`

	// UsageCounts maps rule id to the number of times this customer has
	// already been granted that rule. The counter store owns the
	// authoritative value; this is a read snapshot.
	UsageCounts map[string]int `json:"usageCounts,omitempty"`
}

// Usage returns the snapshot usage count for a rule.
func (s CustomerSnapshot) Usage(ruleID string) int {
	if s.UsageCounts == nil {
		return 0
	}
	return s.UsageCounts[ruleID]
}
