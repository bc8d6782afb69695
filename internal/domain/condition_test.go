package domain

import (
	"reflect"
	"testing"
	"time"
)

func TestNormalizeCustomerIDs(t *testing.T) {
	t.Run("MixedDelimiters", func(t *testing.T) {
		got := NormalizeCustomerIDs("c1, c2;c3\nc4\tc5")
		want := []string{"c1", "c2", "c3", "c4", "c5"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("DuplicatesKeepFirstSeenOrder", func(t *testing.T) {
		got := NormalizeCustomerIDs("c2, c1, c2, c3, c1")
		want := []string{"c2", "c1", "c3"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("EmptyTokensDropped", func(t *testing.T) {
		got := NormalizeCustomerIDs(" , ,, \n ")
		if len(got) != 0 {
			t.Errorf("expected empty list, got %v", got)
		}
	})
}

func TestAudienceConstructors(t *testing.T) {
	// Switching mode builds a fresh value, so parameters of the previous
	// mode never leak across.
	a := SegmentAudience("vip", "gold")
	if a.Mode != AudienceSegmentList || len(a.Segments) != 2 {
		t.Errorf("unexpected segment audience: %+v", a)
	}

	a = ExplicitAudience("c1, c2")
	if a.Mode != AudienceExplicitIDs {
		t.Errorf("expected explicit mode, got %s", a.Mode)
	}
	if len(a.Segments) != 0 || a.Expression != "" {
		t.Errorf("explicit audience carries stale parameters: %+v", a)
	}
}

func TestDefaultConditionsAreUnrestricted(t *testing.T) {
	c := DefaultConditions()
	if c.Audience.Mode != AudienceAllCustomers {
		t.Errorf("expected allCustomers, got %s", c.Audience.Mode)
	}
	if c.Location.Mode != LocationAll {
		t.Errorf("expected allLocations, got %s", c.Location.Mode)
	}
	if c.Channel != ChannelAll {
		t.Errorf("expected all channels, got %s", c.Channel)
	}
	if c.UsageLimitPerCustomer != UnlimitedUsage {
		t.Errorf("expected unlimited usage, got %d", c.UsageLimitPerCustomer)
	}
	if !c.Schedule.IsZero() {
		t.Error("default schedule should be unrestricted")
	}
}

func TestScheduleIsZero(t *testing.T) {
	var s Schedule
	if !s.IsZero() {
		t.Error("zero schedule should report IsZero")
	}

	from := TimeOfDay{Hour: 9}
	s = Schedule{From: &from}
	if s.IsZero() {
		t.Error("schedule with a from time is restricted")
	}

	s = Schedule{Weekdays: Weekdays(time.Saturday)}
	if s.IsZero() {
		t.Error("schedule with weekdays is restricted")
	}
}
