package domain

import (
	"encoding/json"
	"fmt"
)

// SegmentRef names a customer segment by opaque id. The core never resolves
// whether the segment still exists; that is the segment collaborator's data.
type SegmentRef string

// TierRef names a loyalty tier by opaque id.
type TierRef string

// TriggerCase discriminates the trigger union.
type TriggerCase string

const (
	TriggerSegmentTransition TriggerCase = "segmentTransition"
	TriggerMilestone         TriggerCase = "milestone"
	TriggerInactivity        TriggerCase = "inactivity"
	TriggerBirthday          TriggerCase = "birthday"
	TriggerPointsExpiry      TriggerCase = "pointsExpiry"
	TriggerTierChange        TriggerCase = "tierChange"
)

// Trigger decides when a rule is eligible to be considered for an event.
// Exactly one case is representable at a time: setting a new trigger on a
// rule replaces the whole value, so stale parameters from a previously
// selected case cannot survive a case switch.
type Trigger interface {
	TriggerCase() TriggerCase
}

// SegmentTransitionTrigger fires when a customer moves into a segment.
// A nil From means "from any segment".
type SegmentTransitionTrigger struct {
	From *SegmentRef `json:"from,omitempty"`
	To   SegmentRef  `json:"to"`
}

func (SegmentTransitionTrigger) TriggerCase() TriggerCase { return TriggerSegmentTransition }

// MilestoneMetric selects which lifetime metric a milestone watches.
type MilestoneMetric string

const (
	MetricPurchaseCount MilestoneMetric = "purchaseCount"
	MetricLifetimeSpend MilestoneMetric = "lifetimeSpend"
	MetricPointsEarned  MilestoneMetric = "pointsEarned"
	MetricReferrals     MilestoneMetric = "referrals"
)

// KnownMetric reports whether m is one of the supported milestone metrics.
func KnownMetric(m MilestoneMetric) bool {
	switch m {
	case MetricPurchaseCount, MetricLifetimeSpend, MetricPointsEarned, MetricReferrals:
		return true
	}
	return false
}

// MilestoneTrigger fires when a lifetime metric crosses a threshold.
// For lifetimeSpend the threshold is in major currency units, the same
// units event amounts and snapshot metrics carry.
type MilestoneTrigger struct {
	Metric    MilestoneMetric `json:"metric"`
	Threshold int64           `json:"threshold"`
}

func (MilestoneTrigger) TriggerCase() TriggerCase { return TriggerMilestone }

// InactivityTrigger fires when a customer has been inactive for Days.
type InactivityTrigger struct {
	Days                     int  `json:"days"`
	ExcludeRecentlyContacted bool `json:"excludeRecentlyContacted"`
}

func (InactivityTrigger) TriggerCase() TriggerCase { return TriggerInactivity }

// BirthdayTimingMode selects how a birthday trigger relates to the date.
type BirthdayTimingMode string

const (
	BirthdayDaysBefore  BirthdayTimingMode = "daysBefore"
	BirthdayOnDay       BirthdayTimingMode = "onDay"
	BirthdayDuringWeek  BirthdayTimingMode = "duringWeek"
	BirthdayDuringMonth BirthdayTimingMode = "duringMonth"
)

// BirthdayTiming pairs a mode with its daysBefore parameter. Days is only
// meaningful when Mode is daysBefore.
type BirthdayTiming struct {
	Mode BirthdayTimingMode `json:"mode"`
	Days int                `json:"days,omitempty"`
}

// BirthdayTrigger fires around a customer's birthday.
type BirthdayTrigger struct {
	Timing       BirthdayTiming `json:"timing"`
	RequireOptIn bool           `json:"requireOptIn"`
}

func (BirthdayTrigger) TriggerCase() TriggerCase { return TriggerBirthday }

// PointsExpiryTrigger fires when at least MinPoints are due to expire
// within WarningDays.
type PointsExpiryTrigger struct {
	WarningDays int   `json:"warningDays"`
	MinPoints   int64 `json:"minPoints"`
}

func (PointsExpiryTrigger) TriggerCase() TriggerCase { return TriggerPointsExpiry }

// TierDirectionMode selects which tier movements a TierChangeTrigger matches.
type TierDirectionMode string

const (
	TierAny         TierDirectionMode = "any"
	TierUpgrade     TierDirectionMode = "upgrade"
	TierDowngrade   TierDirectionMode = "downgrade"
	TierReachesTier TierDirectionMode = "reachesTier"
)

// TierDirection pairs a mode with its reachesTier parameter. Tier is only
// meaningful when Mode is reachesTier.
type TierDirection struct {
	Mode TierDirectionMode `json:"mode"`
	Tier TierRef           `json:"tier,omitempty"`
}

// TierChangeTrigger fires on tier movement events.
type TierChangeTrigger struct {
	Direction TierDirection `json:"direction"`
}

func (TierChangeTrigger) TriggerCase() TriggerCase { return TriggerTierChange }

// DefaultTrigger is the variant a freshly created rule starts with.
func DefaultTrigger() Trigger {
	return MilestoneTrigger{Metric: MetricPurchaseCount, Threshold: 1}
}

// MarshalTrigger serializes a trigger as {"case": "...", ...caseFields}.
func MarshalTrigger(t Trigger) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: trigger is required", ErrInvalidInput)
	}
	return marshalTagged(string(t.TriggerCase()), t)
}

// UnmarshalTrigger deserializes a trigger envelope. Unknown case values are
// rejected, never defaulted.
func UnmarshalTrigger(data []byte) (Trigger, error) {
	c, err := taggedCase(data)
	if err != nil {
		return nil, err
	}
	switch TriggerCase(c) {
	case TriggerSegmentTransition:
		var t SegmentTransitionTrigger
		err = json.Unmarshal(data, &t)
		return t, err
	case TriggerMilestone:
		var t MilestoneTrigger
		err = json.Unmarshal(data, &t)
		return t, err
	case TriggerInactivity:
		var t InactivityTrigger
		err = json.Unmarshal(data, &t)
		return t, err
	case TriggerBirthday:
		var t BirthdayTrigger
		err = json.Unmarshal(data, &t)
		return t, err
	case TriggerPointsExpiry:
		var t PointsExpiryTrigger
		err = json.Unmarshal(data, &t)
		return t, err
	case TriggerTierChange:
		var t TierChangeTrigger
		err = json.Unmarshal(data, &t)
		return t, err
	default:
		return nil, fmt.Errorf("%w: unknown trigger case %q", ErrInvalidInput, c)
	}
}
