package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point monetary value. All reward arithmetic goes through
// decimal to keep amounts exact; float64 never touches money.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney parses an amount string like "19.99".
func NewMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("%w: bad money amount %q", ErrInvalidInput, amount)
	}
	return Money{Amount: d, Currency: currency}, nil
}

// MustMoney is a test/config helper that panics on a bad amount string.
func MustMoney(amount, currency string) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// IsZero reports whether the value is the zero Money.
func (m Money) IsZero() bool { return m.Currency == "" && m.Amount.IsZero() }

// Sub returns m - other. Currencies are the caller's concern; the model
// never mixes currencies inside one rule.
func (m Money) Sub(other Money) Money {
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}
}

// GreaterOrEqual reports m >= other.
func (m Money) GreaterOrEqual(other Money) bool {
	return m.Amount.GreaterThanOrEqual(other.Amount)
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

// Percentage is a percentage value. Valid discount percentages are in
// (0, 100]; out-of-range values are a validation error, never clamped.
type Percentage struct {
	decimal.Decimal
}

// NewPercentage builds a Percentage from a string like "12.5".
func NewPercentage(s string) (Percentage, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Percentage{}, fmt.Errorf("%w: bad percentage %q", ErrInvalidInput, s)
	}
	return Percentage{d}, nil
}

// PercentageFromInt builds a whole-number percentage.
func PercentageFromInt(n int64) Percentage {
	return Percentage{decimal.NewFromInt(n)}
}

// InDiscountRange reports whether the value lies in (0, 100].
func (p Percentage) InDiscountRange() bool {
	return p.IsPositive() && p.LessThanOrEqual(decimal.NewFromInt(100))
}

// DayCount is a number of whole days.
type DayCount int

// DateRange is an inclusive calendar range. A nil pointer on either end
// means unbounded on that side.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

// IsZero reports whether the range is unbounded on both sides.
func (r DateRange) IsZero() bool { return r.Start == nil && r.End == nil }

// TimeOfDay is a wall-clock time, minute resolution.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Minutes returns the offset from midnight in minutes.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// Valid reports whether the value is a real wall-clock time.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// WeekdaySet is a set of weekdays, stored as a bitmask and serialized as a
// list of lowercase day names. The empty set means "every day".
type WeekdaySet uint8

var weekdayNames = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// Weekdays builds a set from the given days.
func Weekdays(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

// Has reports whether the set contains d. The empty set contains every day.
func (s WeekdaySet) Has(d time.Weekday) bool {
	if s == 0 {
		return true
	}
	return s&(1<<uint(d)) != 0
}

// IsZero reports whether the set is empty (unrestricted).
func (s WeekdaySet) IsZero() bool { return s == 0 }

// MarshalJSON serializes the set as ["monday", ...].
func (s WeekdaySet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s&(1<<uint(d)) != 0 {
			names = append(names, weekdayNames[d])
		}
	}
	return json.Marshal(names)
}

// UnmarshalJSON parses a list of lowercase day names.
func (s *WeekdaySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var out WeekdaySet
	for _, name := range names {
		found := false
		for d, n := range weekdayNames {
			if strings.EqualFold(name, n) {
				out |= 1 << uint(d)
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unknown weekday %q", ErrInvalidInput, name)
		}
	}
	*s = out
	return nil
}
