// Package rules provides rule validation, evaluation, and the loaded-rule
// registry.
package rules

import (
	"fmt"

	"github.com/loyaltylab/magpie/internal/domain"
	"github.com/shopspring/decimal"
)

// Validator checks structural and cross-field invariants on a rule. Check
// never errors: every problem comes back as a ValidationIssue so the
// editing surface can show all of them at once.
type Validator struct{}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Check validates the rule in its current state. Liveness-dependent checks
// apply when the rule is enabled.
func (v *Validator) Check(r *domain.Rule) []domain.ValidationIssue {
	return v.check(r, r.Enabled)
}

// TransitionToLive re-validates the rule as if live and flips Enabled only
// if zero blocking issues remain. This is the sole guarded transition in
// the rule lifecycle; Demote is always allowed.
func (v *Validator) TransitionToLive(r *domain.Rule) ([]domain.ValidationIssue, error) {
	issues := v.check(r, true)
	if domain.HasBlocking(issues) {
		return issues, fmt.Errorf("%w: %d blocking issue(s)", domain.ErrRuleNotValid, countBlocking(issues))
	}
	r.Enabled = true
	return issues, nil
}

func countBlocking(issues []domain.ValidationIssue) int {
	n := 0
	for _, i := range issues {
		if i.Severity == domain.SeverityBlocking {
			n++
		}
	}
	return n
}

func (v *Validator) check(r *domain.Rule, live bool) []domain.ValidationIssue {
	var issues []domain.ValidationIssue

	add := func(sev domain.Severity, field, msg string) {
		issues = append(issues, domain.ValidationIssue{Severity: sev, Field: field, Message: msg})
	}

	if live && r.Name == "" {
		add(domain.SeverityBlocking, "name", "a live rule must have a name")
	}

	issues = append(issues, checkTrigger(r.Trigger)...)
	issues = append(issues, checkConditions(r.Conditions)...)
	if r.Reward != nil {
		issues = append(issues, checkReward(r.Reward)...)
	}

	// A rule with nothing to do is a no-op: blocking when live, a warning
	// in draft.
	if r.Reward == nil && len(r.Actions) == 0 {
		sev := domain.SeverityWarning
		if live {
			sev = domain.SeverityBlocking
		}
		add(sev, "actions", "rule has no reward and no actions")
	}

	for i, a := range r.Actions {
		issues = append(issues, checkAction(i, a)...)
	}

	if r.Approval.RequiresApproval && r.Approval.BudgetCap == nil && r.Approval.MinROI == nil {
		add(domain.SeverityWarning, "approval", "approval required but neither budget cap nor min ROI is set")
	}
	if r.Approval.BudgetCap != nil && !r.Approval.BudgetCap.IsPositive() {
		add(domain.SeverityBlocking, "approval.budgetCap", "budget cap must be positive")
	}

	return issues
}

func checkTrigger(t domain.Trigger) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	add := func(field, msg string) {
		issues = append(issues, domain.ValidationIssue{Severity: domain.SeverityBlocking, Field: field, Message: msg})
	}

	switch tr := t.(type) {
	case nil:
		add("trigger", "trigger is required")
	case domain.SegmentTransitionTrigger:
		if tr.To == "" {
			add("trigger.to", "target segment is required")
		}
	case domain.MilestoneTrigger:
		if !domain.KnownMetric(tr.Metric) {
			add("trigger.metric", fmt.Sprintf("unknown metric %q", tr.Metric))
		}
		if tr.Threshold <= 0 {
			add("trigger.threshold", "threshold must be a positive integer")
		}
	case domain.InactivityTrigger:
		if tr.Days < 1 {
			add("trigger.days", "inactivity window must be at least 1 day")
		}
	case domain.BirthdayTrigger:
		switch tr.Timing.Mode {
		case domain.BirthdayDaysBefore:
			if tr.Timing.Days < 0 {
				add("trigger.timing.days", "daysBefore must be >= 0")
			}
		case domain.BirthdayOnDay, domain.BirthdayDuringWeek, domain.BirthdayDuringMonth:
		default:
			add("trigger.timing.mode", fmt.Sprintf("unknown birthday timing %q", tr.Timing.Mode))
		}
	case domain.PointsExpiryTrigger:
		if tr.WarningDays <= 0 {
			add("trigger.warningDays", "warning window must be positive")
		}
		if tr.MinPoints < 0 {
			add("trigger.minPoints", "minimum points must be >= 0")
		}
	case domain.TierChangeTrigger:
		switch tr.Direction.Mode {
		case domain.TierReachesTier:
			if tr.Direction.Tier == "" {
				add("trigger.direction.tier", "reachesTier requires a concrete tier")
			}
		case domain.TierAny, domain.TierUpgrade, domain.TierDowngrade:
		default:
			add("trigger.direction.mode", fmt.Sprintf("unknown tier direction %q", tr.Direction.Mode))
		}
	default:
		add("trigger", fmt.Sprintf("unknown trigger case %q", t.TriggerCase()))
	}
	return issues
}

func checkConditions(c domain.ConditionSet) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	add := func(field, msg string) {
		issues = append(issues, domain.ValidationIssue{Severity: domain.SeverityBlocking, Field: field, Message: msg})
	}

	switch c.Audience.Mode {
	case domain.AudienceAllCustomers, "":
	case domain.AudienceSegmentList:
		if len(c.Audience.Segments) == 0 {
			add("conditions.audience.segments", "segment list is empty")
		}
	case domain.AudienceCustomExpression:
		if c.Audience.Expression == "" {
			add("conditions.audience.expression", "expression is empty")
		}
	case domain.AudienceExplicitIDs:
		if len(c.Audience.CustomerIDs) == 0 {
			add("conditions.audience.customerIds", "customer id list is empty")
		}
	default:
		add("conditions.audience.mode", fmt.Sprintf("unknown audience mode %q", c.Audience.Mode))
	}

	switch c.Location.Mode {
	case domain.LocationAll, "":
	case domain.LocationStoreList:
		if len(c.Location.Stores) == 0 {
			add("conditions.location.stores", "store list is empty")
		}
	case domain.LocationRegion:
		if c.Location.Region == "" {
			add("conditions.location.region", "region is empty")
		}
	default:
		add("conditions.location.mode", fmt.Sprintf("unknown location mode %q", c.Location.Mode))
	}

	if c.UsageLimitPerCustomer != domain.UnlimitedUsage && c.UsageLimitPerCustomer < 1 {
		add("conditions.usageLimitPerCustomer", "usage limit must be -1 (unlimited) or >= 1")
	}
	if c.MinimumPurchase != nil && !c.MinimumPurchase.IsPositive() {
		add("conditions.minimumPurchase", "minimum purchase must be positive")
	}
	if c.Schedule.From != nil && !c.Schedule.From.Valid() {
		add("conditions.schedule.from", "invalid time of day")
	}
	if c.Schedule.To != nil && !c.Schedule.To.Valid() {
		add("conditions.schedule.to", "invalid time of day")
	}

	return issues
}

func checkReward(r domain.Reward) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	add := func(field, msg string) {
		issues = append(issues, domain.ValidationIssue{Severity: domain.SeverityBlocking, Field: field, Message: msg})
	}

	switch rw := r.(type) {
	case domain.DiscountReward:
		issues = append(issues, checkDiscountKind(rw.Kind)...)
		issues = append(issues, checkAppliesTo("reward.appliesTo", rw.AppliesTo)...)
	case domain.BundleReward:
		if len(rw.Items) == 0 {
			add("reward.items", "bundle needs at least one item")
		}
		for i, item := range rw.Items {
			if item.SKU == "" {
				add(fmt.Sprintf("reward.items[%d].sku", i), "bundle item sku is empty")
			}
		}
		if rw.Price.Amount.IsNegative() {
			add("reward.price", "bundle price must be >= 0")
		}
		if rw.OriginalPrice != nil && !rw.OriginalPrice.GreaterOrEqual(rw.Price) {
			add("reward.originalPrice", "original price must be >= bundle price")
		}
	case domain.PointsReward:
		if rw.Amount <= 0 {
			add("reward.amount", "points amount must be positive")
		}
	case domain.CreditReward:
		if !rw.Amount.IsPositive() {
			add("reward.amount", "credit amount must be positive")
		}
	case domain.MultiplierReward:
		if !rw.Factor.GreaterThan(decimal.NewFromInt(1)) {
			add("reward.factor", "multiplier factor must be > 1")
		}
	case domain.VoucherReward:
		issues = append(issues, checkVoucherValue("reward.value", rw.Value)...)
	case domain.FreeItemReward:
		if (rw.SKU == "") == (rw.Category == "") {
			add("reward", "free item needs exactly one of sku or category")
		}
		issues = append(issues, checkAppliesTo("reward.appliesTo", rw.AppliesTo)...)
	default:
		add("reward", fmt.Sprintf("unknown reward case %q", r.RewardCase()))
	}
	return issues
}

func checkDiscountKind(k domain.DiscountKind) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	add := func(field, msg string) {
		issues = append(issues, domain.ValidationIssue{Severity: domain.SeverityBlocking, Field: field, Message: msg})
	}

	switch kind := k.(type) {
	case nil:
		add("reward.kind", "discount kind is required")
	case domain.PercentageDiscount:
		// Out-of-range percentages are an error, never clamped: clamping
		// hides operator mistakes.
		if !kind.Percent.InDiscountRange() {
			add("reward.kind.percent", "percentage must be in (0, 100]")
		}
	case domain.FixedAmountDiscount:
		if !kind.Amount.IsPositive() {
			add("reward.kind.amount", "discount amount must be positive")
		}
	case domain.BogoDiscount:
		if kind.Buy.Qty < 1 {
			add("reward.kind.buy.qty", "buy quantity must be >= 1")
		}
		if kind.Get.Qty < 1 {
			add("reward.kind.get.qty", "get quantity must be >= 1")
		}
		switch kind.Get.Mode {
		case domain.BogoDifferent:
			// Mode-specific: the sku list only matters in different mode.
			if len(kind.Get.Skus) == 0 {
				add("reward.kind.get.skus", "different mode needs at least one sku")
			}
		case domain.BogoSame, domain.BogoEqualOrLower:
		default:
			add("reward.kind.get.mode", fmt.Sprintf("unknown bogo mode %q", kind.Get.Mode))
		}
	default:
		add("reward.kind", fmt.Sprintf("unknown discount mode %q", k.DiscountMode()))
	}
	return issues
}

func checkAppliesTo(path string, a domain.AppliesTo) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	add := func(field, msg string) {
		issues = append(issues, domain.ValidationIssue{Severity: domain.SeverityBlocking, Field: field, Message: msg})
	}

	switch a.Scope {
	case domain.AppliesEntirePurchase, "":
	case domain.AppliesCategories:
		if len(a.Categories) == 0 {
			add(path+".categories", "category list is empty")
		}
	case domain.AppliesSkus:
		if len(a.Skus) == 0 {
			add(path+".skus", "sku list is empty")
		}
	default:
		add(path+".scope", fmt.Sprintf("unknown scope %q", a.Scope))
	}
	return issues
}

func checkVoucherValue(path string, v domain.VoucherValue) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	add := func(field, msg string) {
		issues = append(issues, domain.ValidationIssue{Severity: domain.SeverityBlocking, Field: field, Message: msg})
	}

	switch v.Mode {
	case domain.VoucherByValue:
		if v.Amount == nil || !v.Amount.IsPositive() {
			add(path+".amount", "voucher value must be positive")
		}
	case domain.VoucherBySKU:
		if v.SKU == "" {
			add(path+".sku", "voucher sku is empty")
		}
	default:
		add(path+".mode", fmt.Sprintf("unknown voucher mode %q", v.Mode))
	}
	return issues
}

// checkAction validates an action instance. Required sub-fields are only
// blocking while the action is enabled: a disabled action is a soft remove
// and keeps whatever config it has.
func checkAction(idx int, a domain.ActionInstance) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	path := fmt.Sprintf("actions[%d].config", idx)
	add := func(field, msg string) {
		issues = append(issues, domain.ValidationIssue{Severity: domain.SeverityBlocking, Field: field, Message: msg})
	}

	if a.Config == nil {
		add(path, "action config is required")
		return issues
	}
	if !a.Enabled {
		return issues
	}

	switch cfg := a.Config.(type) {
	case domain.EmailActionConfig:
		if cfg.Provider == "" {
			add(path+".provider", "email provider is required")
		}
		if cfg.TemplateRef == "" {
			add(path+".templateRef", "email template is required")
		}
	case domain.SMSActionConfig:
		if cfg.Provider == "" {
			add(path+".provider", "sms provider is required")
		}
		if cfg.MessageBody == "" {
			add(path+".messageBody", "sms message body is required")
		}
	case domain.PushActionConfig:
		if cfg.MessageBody == "" {
			add(path+".messageBody", "push message body is required")
		}
	case domain.VoucherActionConfig:
		issues = append(issues, checkVoucherValue(path+".kind", cfg.Kind)...)
	case domain.BonusPointsActionConfig:
		if cfg.Amount <= 0 {
			add(path+".amount", "bonus points amount must be positive")
		}
	case domain.ManagerAlertActionConfig:
		if cfg.RecipientRole == "" {
			add(path+".recipientRole", "recipient role is required")
		}
	case domain.CampaignEnrollActionConfig:
		if cfg.CampaignRef == "" {
			add(path+".campaignRef", "campaign reference is required")
		}
	case domain.TierAdjustActionConfig:
		switch cfg.Mode {
		case domain.TierAdjustUpgradeOne, domain.TierAdjustDowngradeOne,
			domain.TierAdjustMaintain, domain.TierAdjustResetToBase:
		default:
			add(path+".mode", fmt.Sprintf("unknown tier adjust mode %q", cfg.Mode))
		}
	case domain.TagActionConfig:
		if cfg.TagName == "" {
			add(path+".tagName", "tag name is required")
		}
	}
	return issues
}
