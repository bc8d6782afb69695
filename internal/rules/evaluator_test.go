package rules

import (
	"testing"
	"time"

	"github.com/loyaltylab/magpie/internal/domain"
	"github.com/shopspring/decimal"
)

var evalNow = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

func liveRule(t *testing.T, trigger domain.Trigger) *domain.Rule {
	t.Helper()
	r := domain.NewRule("Test rule")
	if trigger != nil {
		if err := r.SetTrigger(trigger); err != nil {
			t.Fatal(err)
		}
	}
	r.SetReward(domain.PointsReward{Amount: 50})
	r.Enabled = true
	return r
}

func purchase(amount string) *domain.Event {
	m := domain.MustMoney(amount, "USD")
	return &domain.Event{
		ID:         "ev-1",
		ProgramID:  "prog-1",
		CustomerID: "cust-1",
		Type:       domain.EventPurchase,
		Amount:     &m,
		Timestamp:  evalNow,
	}
}

func snapshot() *domain.CustomerSnapshot {
	return &domain.CustomerSnapshot{CustomerID: "cust-1"}
}

func TestDraftRuleNeverMatches(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, nil)
	r.Enabled = false

	_, _, matched := e.Evaluate(r, purchase("10.00"), snapshot(), evalNow)
	if matched {
		t.Error("draft rule must never match")
	}
}

func TestMilestoneCrossing(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricPurchaseCount, Threshold: 10})

	cases := []struct {
		name    string
		pre     int64
		matched bool
	}{
		{"ninth purchase does not cross", 8, false},
		{"tenth purchase crosses", 9, true},
		{"eleventh purchase already past", 10, false},
		{"well past the threshold", 25, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := snapshot()
			snap.Metrics.PurchaseCount = tc.pre
			_, reason, matched := e.Evaluate(r, purchase("10.00"), snap, evalNow)
			if matched != tc.matched {
				t.Errorf("pre=%d: matched=%v, want %v (%s)", tc.pre, matched, tc.matched, reason)
			}
		})
	}
}

func TestMilestoneSpendCrossing(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricLifetimeSpend, Threshold: 500})

	snap := snapshot()
	snap.Metrics.LifetimeSpend = decimal.RequireFromString("480.00")

	// 480 + 30 crosses 500.
	if _, reason, matched := e.Evaluate(r, purchase("30.00"), snap, evalNow); !matched {
		t.Errorf("expected crossing match, got %q", reason)
	}

	// 480 + 10 stays below.
	if _, _, matched := e.Evaluate(r, purchase("10.00"), snap, evalNow); matched {
		t.Error("expected no match below threshold")
	}
}

func TestMilestoneSpendNeedsAmount(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricLifetimeSpend, Threshold: 500})

	ev := purchase("30.00")
	ev.Amount = nil
	snap := snapshot()
	snap.Metrics.LifetimeSpend = decimal.RequireFromString("499.99")

	if _, _, matched := e.Evaluate(r, ev, snap, evalNow); matched {
		t.Error("purchase without amount must not advance lifetimeSpend")
	}
}

func TestSegmentTransitionTrigger(t *testing.T) {
	e := NewEvaluator(nil)
	from := domain.SegmentRef("bronze")
	r := liveRule(t, domain.SegmentTransitionTrigger{From: &from, To: "gold"})

	ev := &domain.Event{
		ID: "ev-1", CustomerID: "cust-1", Type: domain.EventSegmentChanged,
		FromSegment: "bronze", ToSegment: "gold", Timestamp: evalNow,
	}
	if _, reason, matched := e.Evaluate(r, ev, snapshot(), evalNow); !matched {
		t.Errorf("expected match, got %q", reason)
	}

	ev.FromSegment = "silver"
	if _, _, matched := e.Evaluate(r, ev, snapshot(), evalNow); matched {
		t.Error("wrong source segment must not match")
	}

	// From nil means from anywhere.
	r2 := liveRule(t, domain.SegmentTransitionTrigger{To: "gold"})
	if _, reason, matched := e.Evaluate(r2, ev, snapshot(), evalNow); !matched {
		t.Errorf("any-source transition should match, got %q", reason)
	}
}

func TestInactivityTrigger(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.InactivityTrigger{Days: 30})

	snap := snapshot()
	if _, _, matched := e.Evaluate(r, purchase("1.00"), snap, evalNow); matched {
		t.Error("missing activity history must not match")
	}

	recent := evalNow.AddDate(0, 0, -10)
	snap.LastActivityAt = &recent
	if _, _, matched := e.Evaluate(r, purchase("1.00"), snap, evalNow); matched {
		t.Error("active customer must not match")
	}

	stale := evalNow.AddDate(0, 0, -45)
	snap.LastActivityAt = &stale
	if _, reason, matched := e.Evaluate(r, purchase("1.00"), snap, evalNow); !matched {
		t.Errorf("inactive customer should match, got %q", reason)
	}
}

func TestInactivityContactCooldown(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.InactivityTrigger{Days: 30, ExcludeRecentlyContacted: true})

	stale := evalNow.AddDate(0, 0, -45)
	contacted := evalNow.AddDate(0, 0, -2)
	snap := snapshot()
	snap.LastActivityAt = &stale
	snap.LastContactedAt = &contacted

	if _, _, matched := e.Evaluate(r, purchase("1.00"), snap, evalNow); matched {
		t.Error("recently contacted customer must be skipped")
	}

	longAgo := evalNow.AddDate(0, 0, -20)
	snap.LastContactedAt = &longAgo
	if _, reason, matched := e.Evaluate(r, purchase("1.00"), snap, evalNow); !matched {
		t.Errorf("cooldown elapsed, should match, got %q", reason)
	}
}

func TestBirthdayTrigger(t *testing.T) {
	e := NewEvaluator(nil)

	birth := time.Date(1990, time.March, 14, 0, 0, 0, 0, time.UTC)
	snap := snapshot()
	snap.BirthDate = &birth
	snap.MarketingOptIn = true

	onDay := liveRule(t, domain.BirthdayTrigger{Timing: domain.BirthdayTiming{Mode: domain.BirthdayOnDay}})
	if _, reason, matched := e.Evaluate(onDay, purchase("1.00"), snap, evalNow); !matched {
		t.Errorf("birthday today should match onDay, got %q", reason)
	}

	before := time.Date(1990, time.March, 21, 0, 0, 0, 0, time.UTC)
	snap.BirthDate = &before
	daysBefore := liveRule(t, domain.BirthdayTrigger{
		Timing: domain.BirthdayTiming{Mode: domain.BirthdayDaysBefore, Days: 7},
	})
	if _, reason, matched := e.Evaluate(daysBefore, purchase("1.00"), snap, evalNow); !matched {
		t.Errorf("seven days before should match, got %q", reason)
	}

	snap.BirthDate = nil
	if _, _, matched := e.Evaluate(onDay, purchase("1.00"), snap, evalNow); matched {
		t.Error("unknown birth date must not match")
	}
}

func TestBirthdayOptInGate(t *testing.T) {
	e := NewEvaluator(nil)
	birth := time.Date(1990, time.March, 14, 0, 0, 0, 0, time.UTC)
	snap := snapshot()
	snap.BirthDate = &birth
	snap.MarketingOptIn = false

	r := liveRule(t, domain.BirthdayTrigger{
		Timing:       domain.BirthdayTiming{Mode: domain.BirthdayOnDay},
		RequireOptIn: true,
	})
	if _, _, matched := e.Evaluate(r, purchase("1.00"), snap, evalNow); matched {
		t.Error("opt-out customer must not match when opt-in is required")
	}
}

func TestPointsExpiryTrigger(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.PointsExpiryTrigger{WarningDays: 14, MinPoints: 100})

	expires := evalNow.AddDate(0, 0, 10)
	snap := snapshot()
	snap.PointsExpireAt = &expires
	snap.ExpiringPoints = 250

	if _, reason, matched := e.Evaluate(r, purchase("1.00"), snap, evalNow); !matched {
		t.Errorf("expiry inside window should match, got %q", reason)
	}

	snap.ExpiringPoints = 50
	if _, _, matched := e.Evaluate(r, purchase("1.00"), snap, evalNow); matched {
		t.Error("balance below minimum must not match")
	}

	snap.ExpiringPoints = 250
	far := evalNow.AddDate(0, 0, 60)
	snap.PointsExpireAt = &far
	if _, _, matched := e.Evaluate(r, purchase("1.00"), snap, evalNow); matched {
		t.Error("expiry outside window must not match")
	}
}

func TestTierChangeTrigger(t *testing.T) {
	e := NewEvaluator(nil)

	ev := &domain.Event{
		ID: "ev-1", CustomerID: "cust-1", Type: domain.EventTierChanged,
		FromTier: "silver", ToTier: "gold", TierDelta: 1, Timestamp: evalNow,
	}

	upgrade := liveRule(t, domain.TierChangeTrigger{Direction: domain.TierDirection{Mode: domain.TierUpgrade}})
	if _, reason, matched := e.Evaluate(upgrade, ev, snapshot(), evalNow); !matched {
		t.Errorf("upgrade should match, got %q", reason)
	}

	downgrade := liveRule(t, domain.TierChangeTrigger{Direction: domain.TierDirection{Mode: domain.TierDowngrade}})
	if _, _, matched := e.Evaluate(downgrade, ev, snapshot(), evalNow); matched {
		t.Error("upgrade must not match a downgrade trigger")
	}

	reaches := liveRule(t, domain.TierChangeTrigger{
		Direction: domain.TierDirection{Mode: domain.TierReachesTier, Tier: "gold"},
	})
	if _, reason, matched := e.Evaluate(reaches, ev, snapshot(), evalNow); !matched {
		t.Errorf("reaching gold should match, got %q", reason)
	}
}

func TestUsageLimitBlocksAtSnapshotCount(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricPurchaseCount, Threshold: 1})
	r.Conditions.UsageLimitPerCustomer = 2

	snap := snapshot()
	snap.UsageCounts = map[string]int{r.ID: 2}

	if _, reason, matched := e.Evaluate(r, purchase("10.00"), snap, evalNow); matched {
		t.Errorf("usage at limit must not match, got matched (%s)", reason)
	}

	snap.UsageCounts[r.ID] = 1
	if _, reason, matched := e.Evaluate(r, purchase("10.00"), snap, evalNow); !matched {
		t.Errorf("usage below limit should match, got %q", reason)
	}
}

func TestUnlimitedUsageNeverBlocks(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricPurchaseCount, Threshold: 1})
	r.Conditions.UsageLimitPerCustomer = domain.UnlimitedUsage

	snap := snapshot()
	snap.UsageCounts = map[string]int{r.ID: 9999}

	if _, reason, matched := e.Evaluate(r, purchase("10.00"), snap, evalNow); !matched {
		t.Errorf("unlimited usage should match, got %q", reason)
	}
}

func TestMinimumPurchaseCondition(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricPurchaseCount, Threshold: 1})
	minimum := domain.MustMoney("25.00", "USD")
	r.Conditions.MinimumPurchase = &minimum

	if _, _, matched := e.Evaluate(r, purchase("20.00"), snapshot(), evalNow); matched {
		t.Error("purchase below minimum must not match")
	}
	if _, reason, matched := e.Evaluate(r, purchase("25.00"), snapshot(), evalNow); !matched {
		t.Errorf("purchase at minimum should match, got %q", reason)
	}
}

func TestChannelRestriction(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricPurchaseCount, Threshold: 1})
	r.Conditions.Channel = domain.ChannelInStore

	ev := purchase("10.00")
	ev.Channel = domain.SalesOnline
	if _, _, matched := e.Evaluate(r, ev, snapshot(), evalNow); matched {
		t.Error("online purchase must not match an in-store only rule")
	}

	ev.Channel = domain.SalesInStore
	if _, reason, matched := e.Evaluate(r, ev, snapshot(), evalNow); !matched {
		t.Errorf("in-store purchase should match, got %q", reason)
	}
}

func TestAudienceSegmentList(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricPurchaseCount, Threshold: 1})
	r.Conditions.Audience = domain.SegmentAudience("vip", "gold")

	snap := snapshot()
	snap.Segment = "bronze"
	if _, _, matched := e.Evaluate(r, purchase("10.00"), snap, evalNow); matched {
		t.Error("customer outside audience segments must not match")
	}

	snap.Segment = "vip"
	if _, reason, matched := e.Evaluate(r, purchase("10.00"), snap, evalNow); !matched {
		t.Errorf("segment member should match, got %q", reason)
	}
}

func TestExplicitAudience(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricPurchaseCount, Threshold: 1})
	r.Conditions.Audience = domain.ExplicitAudience("cust-1, cust-2\ncust-3")

	if _, reason, matched := e.Evaluate(r, purchase("10.00"), snapshot(), evalNow); !matched {
		t.Errorf("listed customer should match, got %q", reason)
	}

	ev := purchase("10.00")
	ev.CustomerID = "cust-9"
	if _, _, matched := e.Evaluate(r, ev, snapshot(), evalNow); matched {
		t.Error("unlisted customer must not match")
	}
}

func TestExpressionAudienceWithoutMatcher(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricPurchaseCount, Threshold: 1})
	r.Conditions.Audience = domain.ExpressionAudience("points_balance > 100")

	if _, _, matched := e.Evaluate(r, purchase("10.00"), snapshot(), evalNow); matched {
		t.Error("expression audience with no matcher must not match")
	}
}

func TestScheduleWeekdayAndWindow(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricPurchaseCount, Threshold: 1})
	r.Conditions.Schedule = domain.Schedule{
		Weekdays: domain.Weekdays(time.Saturday),
		From:     &domain.TimeOfDay{Hour: 10},
		To:       &domain.TimeOfDay{Hour: 14},
	}

	// evalNow is a Saturday at noon.
	if _, reason, matched := e.Evaluate(r, purchase("10.00"), snapshot(), evalNow); !matched {
		t.Errorf("saturday noon should match, got %q", reason)
	}

	sunday := purchase("10.00")
	sunday.Timestamp = evalNow.AddDate(0, 0, 1)
	if _, _, matched := e.Evaluate(r, sunday, snapshot(), evalNow); matched {
		t.Error("sunday must not match a saturday-only schedule")
	}

	evening := purchase("10.00")
	evening.Timestamp = time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)
	if _, _, matched := e.Evaluate(r, evening, snapshot(), evalNow); matched {
		t.Error("outside the daily window must not match")
	}
}

func TestPercentageDiscountResolvesAgainstAmount(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricPurchaseCount, Threshold: 1})
	r.SetReward(domain.DiscountReward{
		Kind:      domain.PercentageDiscount{Percent: domain.PercentageFromInt(20)},
		AppliesTo: domain.EntirePurchase(),
	})

	plan, reason, matched := e.Evaluate(r, purchase("50.00"), snapshot(), evalNow)
	if !matched {
		t.Fatalf("expected match, got %q", reason)
	}
	if plan.Reward == nil || plan.Reward.Amount == nil {
		t.Fatal("expected a resolved discount amount")
	}
	if got := plan.Reward.Amount.Amount.StringFixed(2); got != "10.00" {
		t.Errorf("expected 10.00 off, got %s", got)
	}
}

func TestFixedDiscountCappedAtPurchase(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricPurchaseCount, Threshold: 1})
	r.SetReward(domain.DiscountReward{
		Kind:      domain.FixedAmountDiscount{Amount: domain.MustMoney("15.00", "USD")},
		AppliesTo: domain.EntirePurchase(),
	})

	plan, _, matched := e.Evaluate(r, purchase("10.00"), snapshot(), evalNow)
	if !matched {
		t.Fatal("expected match")
	}
	if got := plan.Reward.Amount.Amount.StringFixed(2); got != "10.00" {
		t.Errorf("discount should cap at the purchase amount, got %s", got)
	}
}

func TestPlanPreservesActionOrder(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricPurchaseCount, Threshold: 1})

	emailID, _ := r.AddAction(domain.EmailActionConfig{Provider: "sendgrid", TemplateRef: "tpl-1"})
	smsID, _ := r.AddAction(domain.SMSActionConfig{Provider: "twilio", MessageBody: "hi"})
	tagID, _ := r.AddAction(domain.TagActionConfig{TagName: "vip"})

	// Move the tag action to the front, then disable the sms step.
	if err := r.MoveAction(tagID, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.SetActionEnabled(smsID, false); err != nil {
		t.Fatal(err)
	}

	plan, reason, matched := e.Evaluate(r, purchase("10.00"), snapshot(), evalNow)
	if !matched {
		t.Fatalf("expected match, got %q", reason)
	}

	if len(plan.Steps) != 2 {
		t.Fatalf("expected 2 enabled steps, got %d", len(plan.Steps))
	}
	if plan.Steps[0].ActionID != tagID || plan.Steps[1].ActionID != emailID {
		t.Errorf("plan order wrong: got %s then %s", plan.Steps[0].ActionID, plan.Steps[1].ActionID)
	}
	if plan.Steps[1].Provider != "sendgrid" {
		t.Errorf("expected email provider on the step, got %q", plan.Steps[1].Provider)
	}
}

func TestNotificationOnlyRuleStillPlans(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricPurchaseCount, Threshold: 1})
	r.SetReward(nil)
	if _, err := r.AddAction(domain.PushActionConfig{MessageBody: "welcome"}); err != nil {
		t.Fatal(err)
	}

	plan, reason, matched := e.Evaluate(r, purchase("10.00"), snapshot(), evalNow)
	if !matched {
		t.Fatalf("expected match, got %q", reason)
	}
	if plan.Reward != nil {
		t.Error("notification-only rule should carry no resolved reward")
	}
	if len(plan.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(plan.Steps))
	}
}

func TestMultiplierResolvesExtraPoints(t *testing.T) {
	e := NewEvaluator(nil)
	r := liveRule(t, domain.MilestoneTrigger{Metric: domain.MetricPointsEarned, Threshold: 100})
	r.SetReward(domain.MultiplierReward{Factor: decimal.RequireFromString("2")})

	ev := purchase("10.00")
	ev.PointsEarned = 60
	snap := snapshot()
	snap.Metrics.PointsEarned = 50

	plan, reason, matched := e.Evaluate(r, ev, snap, evalNow)
	if !matched {
		t.Fatalf("expected match, got %q", reason)
	}
	if plan.Reward.Points != 60 {
		t.Errorf("2x on 60 earned points should add 60 extra, got %d", plan.Reward.Points)
	}
}
