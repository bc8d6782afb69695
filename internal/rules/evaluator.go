package rules

import (
	"fmt"
	"strconv"
	"time"

	"github.com/loyaltylab/magpie/internal/domain"
	"github.com/shopspring/decimal"
)

// ExpressionMatcher evaluates a custom audience expression against an event
// and customer snapshot. The core stores the expression text as-is and
// delegates evaluation here.
type ExpressionMatcher interface {
	Match(expr string, ev *domain.Event, snap *domain.CustomerSnapshot) (bool, error)
}

// DefaultContactCooldown is the window used by excludeRecentlyContacted on
// inactivity triggers. A customer contacted within this window is skipped.
const DefaultContactCooldown = 7 * 24 * time.Hour

// Evaluator decides whether one rule matches one event and, if so, builds
// the action plan. Evaluation is pure: it reads the rule, the event, and
// the customer snapshot, and never mutates any of them or touches I/O.
type Evaluator struct {
	matcher         ExpressionMatcher
	contactCooldown time.Duration
}

// NewEvaluator creates an evaluator. matcher may be nil, in which case
// custom-expression audiences never match.
func NewEvaluator(matcher ExpressionMatcher) *Evaluator {
	return &Evaluator{
		matcher:         matcher,
		contactCooldown: DefaultContactCooldown,
	}
}

// Evaluate runs one rule against one event. On a match it returns the
// resolved action plan; otherwise the reason explains the first failed
// check. Matching short-circuits: enabled, trigger, conditions, then plan.
func (e *Evaluator) Evaluate(rule *domain.Rule, ev *domain.Event, snap *domain.CustomerSnapshot, now time.Time) (*domain.ActionPlan, string, bool) {
	if !rule.Enabled {
		return nil, "rule is not live", false
	}

	if ok, reason := e.matchTrigger(rule.Trigger, ev, snap, now); !ok {
		return nil, reason, false
	}
	if ok, reason := e.matchConditions(rule, ev, snap, now); !ok {
		return nil, reason, false
	}

	plan := &domain.ActionPlan{
		RuleID:  rule.ID,
		EventID: ev.ID,
		Reward:  resolveReward(rule.Reward, ev),
		Steps:   planSteps(rule),
	}
	return plan, "", true
}

// matchTrigger checks the rule's trigger against the event. Missing data
// never matches: a trigger that needs an absent snapshot field returns
// false rather than assuming a default.
func (e *Evaluator) matchTrigger(t domain.Trigger, ev *domain.Event, snap *domain.CustomerSnapshot, now time.Time) (bool, string) {
	switch tr := t.(type) {
	case domain.SegmentTransitionTrigger:
		if ev.Type != domain.EventSegmentChanged {
			return false, "not a segment change event"
		}
		if ev.ToSegment != tr.To {
			return false, fmt.Sprintf("moved to segment %q, trigger wants %q", ev.ToSegment, tr.To)
		}
		if tr.From != nil && ev.FromSegment != *tr.From {
			return false, fmt.Sprintf("moved from segment %q, trigger wants %q", ev.FromSegment, *tr.From)
		}
		return true, ""

	case domain.MilestoneTrigger:
		pre, ok := snap.Metrics.Metric(tr.Metric)
		if !ok {
			return false, fmt.Sprintf("unknown metric %q", tr.Metric)
		}
		delta, ok := metricDelta(tr.Metric, ev)
		if !ok || delta.IsZero() {
			return false, "event does not advance the metric"
		}
		threshold := decimal.NewFromInt(tr.Threshold)
		// Fires exactly on the crossing event: already past the threshold
		// beforehand means no match, so a milestone grants at most once.
		if pre.GreaterThanOrEqual(threshold) {
			return false, "threshold already crossed"
		}
		if pre.Add(delta).LessThan(threshold) {
			return false, "threshold not yet reached"
		}
		return true, ""

	case domain.InactivityTrigger:
		if snap.LastActivityAt == nil {
			return false, "no activity history"
		}
		idle := now.Sub(*snap.LastActivityAt)
		if idle < time.Duration(tr.Days)*24*time.Hour {
			return false, "customer is still active"
		}
		if tr.ExcludeRecentlyContacted && snap.LastContactedAt != nil &&
			now.Sub(*snap.LastContactedAt) < e.contactCooldown {
			return false, "customer was contacted recently"
		}
		return true, ""

	case domain.BirthdayTrigger:
		if snap.BirthDate == nil {
			return false, "birth date unknown"
		}
		if tr.RequireOptIn && !snap.MarketingOptIn {
			return false, "customer has not opted in"
		}
		if !birthdayMatches(tr.Timing, *snap.BirthDate, now) {
			return false, "outside birthday window"
		}
		return true, ""

	case domain.PointsExpiryTrigger:
		if snap.PointsExpireAt == nil {
			return false, "no points expiry on record"
		}
		if snap.ExpiringPoints < tr.MinPoints {
			return false, "expiring balance below minimum"
		}
		until := snap.PointsExpireAt.Sub(now)
		if until < 0 {
			return false, "points already expired"
		}
		if until > time.Duration(tr.WarningDays)*24*time.Hour {
			return false, "expiry outside warning window"
		}
		return true, ""

	case domain.TierChangeTrigger:
		if ev.Type != domain.EventTierChanged {
			return false, "not a tier change event"
		}
		switch tr.Direction.Mode {
		case domain.TierAny:
			return true, ""
		case domain.TierUpgrade:
			if ev.TierDelta > 0 {
				return true, ""
			}
			return false, "tier change was not an upgrade"
		case domain.TierDowngrade:
			if ev.TierDelta < 0 {
				return true, ""
			}
			return false, "tier change was not a downgrade"
		case domain.TierReachesTier:
			if ev.ToTier == tr.Direction.Tier {
				return true, ""
			}
			return false, fmt.Sprintf("reached tier %q, trigger wants %q", ev.ToTier, tr.Direction.Tier)
		}
		return false, fmt.Sprintf("unknown tier direction %q", tr.Direction.Mode)

	case nil:
		return false, "rule has no trigger"
	}
	return false, fmt.Sprintf("unknown trigger case %q", t.TriggerCase())
}

// metricDelta derives how much the event advances a milestone metric.
// Returns false when the event carries no data for the metric.
func metricDelta(metric domain.MilestoneMetric, ev *domain.Event) (decimal.Decimal, bool) {
	switch metric {
	case domain.MetricPurchaseCount:
		if ev.Type == domain.EventPurchase {
			return decimal.NewFromInt(1), true
		}
	case domain.MetricLifetimeSpend:
		if ev.Type == domain.EventPurchase && ev.Amount != nil {
			return ev.Amount.Amount, true
		}
	case domain.MetricPointsEarned:
		if ev.PointsEarned > 0 {
			return decimal.NewFromInt(ev.PointsEarned), true
		}
	case domain.MetricReferrals:
		if ev.Type == domain.EventReferral {
			return decimal.NewFromInt(1), true
		}
	}
	return decimal.Zero, false
}

// birthdayMatches checks whether now falls inside the trigger's window
// around the customer's birthday anniversary this calendar year.
func birthdayMatches(timing domain.BirthdayTiming, birthDate, now time.Time) bool {
	anniv := time.Date(now.Year(), birthDate.Month(), birthDate.Day(), 0, 0, 0, 0, now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch timing.Mode {
	case domain.BirthdayOnDay:
		return today.Equal(anniv)
	case domain.BirthdayDaysBefore:
		diff := int(anniv.Sub(today).Hours() / 24)
		return diff == timing.Days
	case domain.BirthdayDuringWeek:
		diff := int(anniv.Sub(today).Hours() / 24)
		return diff > -7 && diff <= 0 || diff >= 0 && diff < 7
	case domain.BirthdayDuringMonth:
		return now.Month() == birthDate.Month()
	}
	return false
}

func (e *Evaluator) matchConditions(rule *domain.Rule, ev *domain.Event, snap *domain.CustomerSnapshot, now time.Time) (bool, string) {
	c := rule.Conditions

	if ok, reason := e.matchAudience(c.Audience, ev, snap); !ok {
		return false, reason
	}
	if ok, reason := matchLocation(c.Location, ev); !ok {
		return false, reason
	}
	if ok, reason := matchChannel(c.Channel, ev); !ok {
		return false, reason
	}
	if c.MinimumPurchase != nil {
		if ev.Amount == nil {
			return false, "event carries no purchase amount"
		}
		if !ev.Amount.GreaterOrEqual(*c.MinimumPurchase) {
			return false, fmt.Sprintf("purchase %s below minimum %s", ev.Amount, c.MinimumPurchase)
		}
	}
	if ok, reason := matchSchedule(c.Schedule, eventTime(ev, now)); !ok {
		return false, reason
	}
	if limit := c.UsageLimitPerCustomer; limit != domain.UnlimitedUsage && snap.Usage(rule.ID) >= limit {
		return false, "per-customer usage limit reached"
	}
	return true, ""
}

func (e *Evaluator) matchAudience(a domain.Audience, ev *domain.Event, snap *domain.CustomerSnapshot) (bool, string) {
	switch a.Mode {
	case domain.AudienceAllCustomers, "":
		return true, ""
	case domain.AudienceSegmentList:
		for _, s := range a.Segments {
			if snap.Segment == s {
				return true, ""
			}
		}
		return false, "customer not in audience segments"
	case domain.AudienceCustomExpression:
		if e.matcher == nil {
			return false, "no expression matcher configured"
		}
		ok, err := e.matcher.Match(a.Expression, ev, snap)
		if err != nil {
			return false, fmt.Sprintf("audience expression failed: %v", err)
		}
		if !ok {
			return false, "audience expression did not match"
		}
		return true, ""
	case domain.AudienceExplicitIDs:
		for _, id := range a.CustomerIDs {
			if id == ev.CustomerID {
				return true, ""
			}
		}
		return false, "customer not in explicit audience"
	}
	return false, fmt.Sprintf("unknown audience mode %q", a.Mode)
}

func matchLocation(l domain.Location, ev *domain.Event) (bool, string) {
	switch l.Mode {
	case domain.LocationAll, "":
		return true, ""
	case domain.LocationStoreList:
		for _, s := range l.Stores {
			if ev.StoreID == s {
				return true, ""
			}
		}
		return false, "event store not in location list"
	case domain.LocationRegion:
		if ev.Region == l.Region {
			return true, ""
		}
		return false, fmt.Sprintf("event region %q, rule wants %q", ev.Region, l.Region)
	}
	return false, fmt.Sprintf("unknown location mode %q", l.Mode)
}

func matchChannel(c domain.Channel, ev *domain.Event) (bool, string) {
	switch c {
	case domain.ChannelAll, "":
		return true, ""
	case domain.ChannelInStore:
		if ev.Channel == domain.SalesInStore {
			return true, ""
		}
		return false, "rule is in-store only"
	case domain.ChannelOnline:
		if ev.Channel == domain.SalesOnline {
			return true, ""
		}
		return false, "rule is online only"
	}
	return false, fmt.Sprintf("unknown channel restriction %q", c)
}

func matchSchedule(s domain.Schedule, at time.Time) (bool, string) {
	if s.IsZero() {
		return true, ""
	}
	if !s.Active.Contains(at) {
		return false, "outside active date range"
	}
	if !s.Weekdays.Has(at.Weekday()) {
		return false, "not an active weekday"
	}
	if s.From != nil || s.To != nil {
		minutes := at.Hour()*60 + at.Minute()
		from, to := 0, 24*60-1
		if s.From != nil {
			from = s.From.Minutes()
		}
		if s.To != nil {
			to = s.To.Minutes()
		}
		if from <= to {
			if minutes < from || minutes > to {
				return false, "outside daily time window"
			}
		} else {
			// Window wraps past midnight, e.g. 22:00 to 02:00.
			if minutes < from && minutes > to {
				return false, "outside daily time window"
			}
		}
	}
	return true, ""
}

// eventTime prefers the event's own timestamp for schedule checks and
// falls back to the evaluation clock.
func eventTime(ev *domain.Event, now time.Time) time.Time {
	if !ev.Timestamp.IsZero() {
		return ev.Timestamp
	}
	return now
}

// resolveReward makes the rule's reward concrete against the event. A nil
// reward resolves to nil; a pure-notification rule still produces a plan.
func resolveReward(r domain.Reward, ev *domain.Event) *domain.ResolvedReward {
	switch rw := r.(type) {
	case nil:
		return nil

	case domain.DiscountReward:
		return resolveDiscount(rw, ev)

	case domain.BundleReward:
		res := &domain.ResolvedReward{
			Case:        domain.RewardBundle,
			Description: fmt.Sprintf("%d-item bundle for %s", len(rw.Items), rw.Price),
		}
		if s := rw.Savings(); s.IsPositive() {
			res.Amount = &s
			res.Description = fmt.Sprintf("%d-item bundle for %s (save %d%%)",
				len(rw.Items), rw.Price, rw.SavingsPercent())
		}
		return res

	case domain.PointsReward:
		return &domain.ResolvedReward{
			Case:        domain.RewardPoints,
			Points:      rw.Amount,
			Description: fmt.Sprintf("%d bonus points", rw.Amount),
		}

	case domain.CreditReward:
		amount := rw.Amount
		return &domain.ResolvedReward{
			Case:        domain.RewardCredit,
			Amount:      &amount,
			Description: fmt.Sprintf("%s account credit", amount),
		}

	case domain.MultiplierReward:
		factor := rw.Factor
		res := &domain.ResolvedReward{
			Case:        domain.RewardMultiplier,
			Multiplier:  &factor,
			Description: fmt.Sprintf("%sx points", rw.Factor),
		}
		if ev.PointsEarned > 0 {
			// Extra points on top of what the event already earned.
			extra := decimal.NewFromInt(ev.PointsEarned).
				Mul(rw.Factor.Sub(decimal.NewFromInt(1)))
			res.Points = extra.Round(0).IntPart()
		}
		return res

	case domain.VoucherReward:
		return resolveVoucher(rw.Value)

	case domain.FreeItemReward:
		res := &domain.ResolvedReward{Case: domain.RewardFreeItem, SKU: rw.SKU}
		if rw.SKU != "" {
			res.Description = fmt.Sprintf("free item %s", rw.SKU)
		} else {
			res.Description = fmt.Sprintf("free item from %s", rw.Category)
		}
		return res
	}
	return nil
}

func resolveDiscount(rw domain.DiscountReward, ev *domain.Event) *domain.ResolvedReward {
	res := &domain.ResolvedReward{Case: domain.RewardDiscount}
	switch kind := rw.Kind.(type) {
	case domain.PercentageDiscount:
		res.Description = fmt.Sprintf("%s%% off", kind.Percent)
		if ev.Amount != nil {
			off := domain.Money{
				Amount:   ev.Amount.Amount.Mul(kind.Percent.Decimal).Div(decimal.NewFromInt(100)).Round(2),
				Currency: ev.Amount.Currency,
			}
			res.Amount = &off
		}
	case domain.FixedAmountDiscount:
		amount := kind.Amount
		// Never discount more than the purchase itself.
		if ev.Amount != nil && !ev.Amount.GreaterOrEqual(amount) {
			amount = *ev.Amount
		}
		res.Amount = &amount
		res.Description = fmt.Sprintf("%s off", amount)
	case domain.BogoDiscount:
		res.Description = fmt.Sprintf("buy %d %s get %d (%s)",
			kind.Buy.Qty, kind.Buy.Product, kind.Get.Qty, kind.Get.Mode)
	}
	return res
}

func resolveVoucher(v domain.VoucherValue) *domain.ResolvedReward {
	res := &domain.ResolvedReward{Case: domain.RewardVoucher}
	switch v.Mode {
	case domain.VoucherByValue:
		res.Amount = v.Amount
		if v.Amount != nil {
			res.Description = fmt.Sprintf("%s voucher", v.Amount)
		}
	case domain.VoucherBySKU:
		res.SKU = v.SKU
		res.Description = fmt.Sprintf("voucher for %s", v.SKU)
	}
	return res
}

// planSteps resolves the rule's enabled actions, in declared order, into
// dispatchable steps.
func planSteps(rule *domain.Rule) []domain.PlannedAction {
	enabled := rule.EnabledActions()
	steps := make([]domain.PlannedAction, 0, len(enabled))
	for _, a := range enabled {
		step := domain.PlannedAction{
			ActionID: a.ID,
			Type:     a.Type(),
			Params:   map[string]string{},
		}
		switch cfg := a.Config.(type) {
		case domain.EmailActionConfig:
			step.Provider = cfg.Provider
			step.Params["templateRef"] = cfg.TemplateRef
		case domain.SMSActionConfig:
			step.Provider = cfg.Provider
			step.Params["messageBody"] = cfg.MessageBody
		case domain.PushActionConfig:
			step.Params["messageBody"] = cfg.MessageBody
		case domain.VoucherActionConfig:
			step.Params["mode"] = string(cfg.Kind.Mode)
			if cfg.Kind.Amount != nil {
				step.Params["amount"] = cfg.Kind.Amount.String()
			}
			if cfg.Kind.SKU != "" {
				step.Params["sku"] = cfg.Kind.SKU
			}
		case domain.BonusPointsActionConfig:
			step.Params["amount"] = strconv.FormatInt(cfg.Amount, 10)
		case domain.ManagerAlertActionConfig:
			step.Params["recipientRole"] = cfg.RecipientRole
		case domain.CampaignEnrollActionConfig:
			step.Params["campaignRef"] = cfg.CampaignRef
		case domain.TierAdjustActionConfig:
			step.Params["mode"] = string(cfg.Mode)
		case domain.TagActionConfig:
			step.Params["tagName"] = cfg.TagName
		}
		steps = append(steps, step)
	}
	return steps
}
