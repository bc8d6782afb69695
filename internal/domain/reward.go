package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// RewardCase discriminates the reward union.
type RewardCase string

const (
	RewardDiscount   RewardCase = "discount"
	RewardBundle     RewardCase = "bundle"
	RewardPoints     RewardCase = "points"
	RewardCredit     RewardCase = "credit"
	RewardMultiplier RewardCase = "multiplier"
	RewardVoucher    RewardCase = "voucher"
	RewardFreeItem   RewardCase = "freeItem"
)

// Reward is the value granted to a customer when a rule matches. Exactly
// one case is representable at a time.
type Reward interface {
	RewardCase() RewardCase
}

// AppliesScope selects what part of a purchase a discount or free item
// applies to.
type AppliesScope string

const (
	AppliesEntirePurchase AppliesScope = "entirePurchase"
	AppliesCategories     AppliesScope = "categories"
	AppliesSkus           AppliesScope = "skus"
)

// AppliesTo scopes a Discount or FreeItem reward. Bundles and points/credit
// rewards are not scoped this way.
type AppliesTo struct {
	Scope      AppliesScope `json:"scope"`
	Categories []string     `json:"categories,omitempty"`
	Skus       []string     `json:"skus,omitempty"`
}

// EntirePurchase is the default, unscoped AppliesTo.
func EntirePurchase() AppliesTo { return AppliesTo{Scope: AppliesEntirePurchase} }

// DiscountMode discriminates the discount-kind union.
type DiscountMode string

const (
	DiscountPercentage  DiscountMode = "percentage"
	DiscountFixedAmount DiscountMode = "fixedAmount"
	DiscountBogo        DiscountMode = "bogo"
)

// DiscountKind is the nested union inside a Discount reward.
type DiscountKind interface {
	DiscountMode() DiscountMode
}

// PercentageDiscount takes a percentage in (0, 100] off. Out-of-range values
// are a validation error, not silently clamped.
type PercentageDiscount struct {
	Percent Percentage `json:"percent"`
}

func (PercentageDiscount) DiscountMode() DiscountMode { return DiscountPercentage }

// FixedAmountDiscount takes a fixed money amount off.
type FixedAmountDiscount struct {
	Amount Money `json:"amount"`
}

func (FixedAmountDiscount) DiscountMode() DiscountMode { return DiscountFixedAmount }

// BogoGetMode selects what the customer gets in a BOGO offer.
type BogoGetMode string

const (
	BogoSame         BogoGetMode = "same"
	BogoDifferent    BogoGetMode = "different"
	BogoEqualOrLower BogoGetMode = "equalOrLesser"
)

// BogoBuy is the purchase side of a BOGO offer.
type BogoBuy struct {
	Product string `json:"product"`
	Qty     int    `json:"qty"`
}

// BogoGet is the reward side of a BOGO offer. Skus is only meaningful when
// Mode is different.
type BogoGet struct {
	Mode BogoGetMode `json:"mode"`
	Skus []string    `json:"skus,omitempty"`
	Qty  int         `json:"qty"`
}

// BogoDiscount is a buy-X-get-Y offer.
type BogoDiscount struct {
	Buy BogoBuy `json:"buy"`
	Get BogoGet `json:"get"`
}

func (BogoDiscount) DiscountMode() DiscountMode { return DiscountBogo }

// MarshalDiscountKind serializes a discount kind as a tagged envelope.
func MarshalDiscountKind(k DiscountKind) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("%w: discount kind is required", ErrInvalidInput)
	}
	return marshalTagged(string(k.DiscountMode()), k)
}

// UnmarshalDiscountKind deserializes a discount-kind envelope.
func UnmarshalDiscountKind(data []byte) (DiscountKind, error) {
	c, err := taggedCase(data)
	if err != nil {
		return nil, err
	}
	switch DiscountMode(c) {
	case DiscountPercentage:
		var k PercentageDiscount
		err = json.Unmarshal(data, &k)
		return k, err
	case DiscountFixedAmount:
		var k FixedAmountDiscount
		err = json.Unmarshal(data, &k)
		return k, err
	case DiscountBogo:
		var k BogoDiscount
		err = json.Unmarshal(data, &k)
		return k, err
	default:
		return nil, fmt.Errorf("%w: unknown discount mode %q", ErrInvalidInput, c)
	}
}

// DiscountReward grants a discount on a purchase.
type DiscountReward struct {
	Kind      DiscountKind
	AppliesTo AppliesTo
}

func (DiscountReward) RewardCase() RewardCase { return RewardDiscount }

type discountRewardDoc struct {
	Kind      json.RawMessage `json:"kind"`
	AppliesTo AppliesTo       `json:"appliesTo"`
}

// MarshalJSON serializes the nested kind union as its own tagged envelope.
func (r DiscountReward) MarshalJSON() ([]byte, error) {
	kind, err := MarshalDiscountKind(r.Kind)
	if err != nil {
		return nil, err
	}
	return json.Marshal(discountRewardDoc{Kind: kind, AppliesTo: r.AppliesTo})
}

// UnmarshalJSON deserializes the nested kind union.
func (r *DiscountReward) UnmarshalJSON(data []byte) error {
	var doc discountRewardDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	kind, err := UnmarshalDiscountKind(doc.Kind)
	if err != nil {
		return err
	}
	r.Kind = kind
	r.AppliesTo = doc.AppliesTo
	return nil
}

// BundleItem is one product inside a bundle.
type BundleItem struct {
	SKU         string `json:"sku"`
	DisplayName string `json:"displayName"`
}

// BundleReward sells a set of items at a bundle price. OriginalPrice, when
// present, must be >= Price.
type BundleReward struct {
	Items         []BundleItem `json:"items"`
	Price         Money        `json:"price"`
	OriginalPrice *Money       `json:"originalPrice,omitempty"`
}

func (BundleReward) RewardCase() RewardCase { return RewardBundle }

// Savings returns max(0, originalPrice - price). An absent original price
// yields zero savings, not an error.
func (b BundleReward) Savings() Money {
	if b.OriginalPrice == nil {
		return Money{Amount: decimal.Zero, Currency: b.Price.Currency}
	}
	s := b.OriginalPrice.Sub(b.Price)
	if s.Amount.IsNegative() {
		s.Amount = decimal.Zero
	}
	return s
}

// SavingsPercent returns round(savings / originalPrice * 100), or 0 when the
// original price is absent or not positive. Never divides by zero.
func (b BundleReward) SavingsPercent() int64 {
	if b.OriginalPrice == nil || !b.OriginalPrice.IsPositive() {
		return 0
	}
	pct := b.Savings().Amount.Div(b.OriginalPrice.Amount).Mul(decimal.NewFromInt(100))
	return pct.Round(0).IntPart()
}

// PointsReward grants loyalty points.
type PointsReward struct {
	Amount int64 `json:"amount"`
}

func (PointsReward) RewardCase() RewardCase { return RewardPoints }

// CreditReward grants account credit.
type CreditReward struct {
	Amount Money `json:"amount"`
}

func (CreditReward) RewardCase() RewardCase { return RewardCredit }

// MultiplierReward multiplies points earned. Factor must be > 1.
type MultiplierReward struct {
	Factor decimal.Decimal `json:"factor"`
}

func (MultiplierReward) RewardCase() RewardCase { return RewardMultiplier }

// VoucherValueMode selects whether a voucher carries a money value or a SKU.
type VoucherValueMode string

const (
	VoucherByValue VoucherValueMode = "value"
	VoucherBySKU   VoucherValueMode = "sku"
)

// VoucherValue is the payload of a voucher. Amount is required in value
// mode, SKU in sku mode.
type VoucherValue struct {
	Mode   VoucherValueMode `json:"mode"`
	Amount *Money           `json:"amount,omitempty"`
	SKU    string           `json:"sku,omitempty"`
}

// VoucherReward grants a voucher.
type VoucherReward struct {
	Value VoucherValue `json:"value"`
}

func (VoucherReward) RewardCase() RewardCase { return RewardVoucher }

// FreeItemReward grants a free item, identified by exactly one of SKU or
// Category.
type FreeItemReward struct {
	SKU       string    `json:"sku,omitempty"`
	Category  string    `json:"category,omitempty"`
	AppliesTo AppliesTo `json:"appliesTo"`
}

func (FreeItemReward) RewardCase() RewardCase { return RewardFreeItem }

// MarshalReward serializes a reward as {"case": "...", ...caseFields}.
func MarshalReward(r Reward) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: reward is required", ErrInvalidInput)
	}
	return marshalTagged(string(r.RewardCase()), r)
}

// UnmarshalReward deserializes a reward envelope. Unknown case values are
// rejected, never defaulted.
func UnmarshalReward(data []byte) (Reward, error) {
	c, err := taggedCase(data)
	if err != nil {
		return nil, err
	}
	switch RewardCase(c) {
	case RewardDiscount:
		var r DiscountReward
		err = json.Unmarshal(data, &r)
		return r, err
	case RewardBundle:
		var r BundleReward
		err = json.Unmarshal(data, &r)
		return r, err
	case RewardPoints:
		var r PointsReward
		err = json.Unmarshal(data, &r)
		return r, err
	case RewardCredit:
		var r CreditReward
		err = json.Unmarshal(data, &r)
		return r, err
	case RewardMultiplier:
		var r MultiplierReward
		err = json.Unmarshal(data, &r)
		return r, err
	case RewardVoucher:
		var r VoucherReward
		err = json.Unmarshal(data, &r)
		return r, err
	case RewardFreeItem:
		var r FreeItemReward
		err = json.Unmarshal(data, &r)
		return r, err
	default:
		return nil, fmt.Errorf("%w: unknown reward case %q", ErrInvalidInput, c)
	}
}
