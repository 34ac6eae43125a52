package model

import "testing"

func TestWeeklyLimit(t *testing.T) {
	tests := []struct {
		membership string
		limit      int
		limited    bool
	}{
		{"weekly_1", 1, true},
		{"weekly_3", 3, true},
		{"unlimited", 0, false},
		{"weekly_", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		u := User{Membership: tt.membership}
		limit, limited := u.WeeklyLimit()
		if limit != tt.limit || limited != tt.limited {
			t.Errorf("WeeklyLimit(%q) = (%d, %v), want (%d, %v)",
				tt.membership, limit, limited, tt.limit, tt.limited)
		}
	}
}

func TestParseRole(t *testing.T) {
	for _, role := range []string{"staff", "participant", "volunteer"} {
		if _, ok := ParseRole(role); !ok {
			t.Errorf("ParseRole(%q) must succeed", role)
		}
	}
	if _, ok := ParseRole("admin"); ok {
		t.Error("ParseRole must reject unknown roles")
	}
}

func TestVolunteerFull(t *testing.T) {
	var v *Volunteer
	if v.Full() {
		t.Error("nil volunteer record is never full")
	}
	if (&Volunteer{Required: 2, Registered: 1}).Full() {
		t.Error("1 of 2 is not full")
	}
	if !(&Volunteer{Required: 2, Registered: 2}).Full() {
		t.Error("2 of 2 is full")
	}
}
