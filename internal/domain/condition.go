package domain

import "strings"

// Channel restricts where a rule applies.
type Channel string

const (
	ChannelAll     Channel = "all"
	ChannelInStore Channel = "inStoreOnly"
	ChannelOnline  Channel = "onlineOnly"
)

// Sales-channel values carried on events. Condition restrictions above are
// matched against these.
const (
	SalesInStore Channel = "inStore"
	SalesOnline  Channel = "online"
)

// AudienceMode discriminates the audience restriction.
type AudienceMode string

const (
	AudienceAllCustomers     AudienceMode = "allCustomers"
	AudienceSegmentList      AudienceMode = "segmentList"
	AudienceCustomExpression AudienceMode = "customExpression"
	AudienceExplicitIDs      AudienceMode = "explicitCustomerIds"
)

// Audience narrows which customers a rule applies to. Values are built via
// the constructors below so that switching mode never carries over the
// previous mode's parameters.
type Audience struct {
	Mode        AudienceMode `json:"mode"`
	Segments    []SegmentRef `json:"segments,omitempty"`
	Expression  string       `json:"expression,omitempty"`
	CustomerIDs []string     `json:"customerIds,omitempty"`
}

// AllCustomers is the unrestricted audience.
func AllCustomers() Audience {
	return Audience{Mode: AudienceAllCustomers}
}

// SegmentAudience restricts to customers in any of the given segments.
func SegmentAudience(segments ...SegmentRef) Audience {
	return Audience{Mode: AudienceSegmentList, Segments: segments}
}

// ExpressionAudience restricts via an opaque expression. The text is stored
// as-is; evaluation is delegated to the expression-matcher collaborator.
func ExpressionAudience(expr string) Audience {
	return Audience{Mode: AudienceCustomExpression, Expression: expr}
}

// ExplicitAudience restricts to an explicit customer-id list. The raw input
// may be a comma/whitespace/newline delimited string; tokens are trimmed,
// empties dropped, and duplicates removed while preserving first-seen order.
func ExplicitAudience(raw string) Audience {
	return Audience{Mode: AudienceExplicitIDs, CustomerIDs: NormalizeCustomerIDs(raw)}
}

// NormalizeCustomerIDs turns free-form delimited input into a de-duplicated
// ordered list of trimmed, non-empty tokens.
func NormalizeCustomerIDs(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r' || r == '\t' || r == ' '
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		id := strings.TrimSpace(f)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// LocationMode discriminates the location restriction.
type LocationMode string

const (
	LocationAll       LocationMode = "allLocations"
	LocationStoreList LocationMode = "storeList"
	LocationRegion    LocationMode = "region"
)

// Location narrows where a rule applies.
type Location struct {
	Mode   LocationMode `json:"mode"`
	Stores []string     `json:"stores,omitempty"`
	Region string       `json:"region,omitempty"`
}

// AllLocations is the unrestricted location.
func AllLocations() Location { return Location{Mode: LocationAll} }

// StoreLocations restricts to the given store ids.
func StoreLocations(stores ...string) Location {
	return Location{Mode: LocationStoreList, Stores: stores}
}

// RegionLocation restricts to a named region.
func RegionLocation(name string) Location {
	return Location{Mode: LocationRegion, Region: name}
}

// UnlimitedUsage marks usageLimitPerCustomer as unrestricted.
const UnlimitedUsage = -1

// Schedule restricts when a rule is active. The zero value is unrestricted.
type Schedule struct {
	Active   DateRange  `json:"active,omitempty"`
	From     *TimeOfDay `json:"from,omitempty"`
	To       *TimeOfDay `json:"to,omitempty"`
	Weekdays WeekdaySet `json:"weekdays,omitempty"`
}

// IsZero reports whether the schedule places no restriction.
func (s Schedule) IsZero() bool {
	return s.Active.IsZero() && s.From == nil && s.To == nil && s.Weekdays.IsZero()
}

// ConditionSet holds the secondary filters that narrow rule eligibility
// independent of the trigger. Every axis defaults to "no restriction".
type ConditionSet struct {
	Audience              Audience `json:"audience"`
	Location              Location `json:"location"`
	Channel               Channel  `json:"channel"`
	UsageLimitPerCustomer int      `json:"usageLimitPerCustomer"`
	MinimumPurchase       *Money   `json:"minimumPurchase,omitempty"`
	Schedule              Schedule `json:"schedule,omitempty"`
}

// DefaultConditions returns the unrestricted condition set.
func DefaultConditions() ConditionSet {
	return ConditionSet{
		Audience:              AllCustomers(),
		Location:              AllLocations(),
		Channel:               ChannelAll,
		UsageLimitPerCustomer: UnlimitedUsage,
	}
}
