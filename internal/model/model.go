package model

import (
	"strconv"
	"strings"
	"time"
)

type Role string

const (
	RoleStaff       Role = "staff"
	RoleParticipant Role = "participant"
	RoleVolunteer   Role = "volunteer"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleStaff, RoleParticipant, RoleVolunteer:
		return Role(s), true
	}
	return "", false
}

const (
	StatusRegistered = "registered"
	StatusConfirmed  = "confirmed"
	StatusWaitlisted = "waitlisted"
)

const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
)

const (
	MeetingPoint   = "meeting-point"
	DirectLocation = "direct-location"
)

// MembershipUnlimited marks plans without a weekly activity cap.
const MembershipUnlimited = "unlimited"

type Event struct {
	ID                   string     `db:"id" json:"id"`
	Title                string     `db:"title" json:"title"`
	Description          string     `db:"description,omitempty" json:"description,omitempty"`
	Start                time.Time  `db:"start_time" json:"start"`
	End                  time.Time  `db:"end_time" json:"end"`
	IsSeries             bool       `db:"is_series" json:"is_series"`
	SeriesID             *string    `db:"series_id" json:"series_id,omitempty"`
	MinDaysRequired      int        `db:"min_days_required" json:"min_days_required"`
	WheelchairAccessible bool       `db:"wheelchair_accessible" json:"wheelchair_accessible"`
	Cost                 *float64   `db:"cost" json:"cost,omitempty"`
	Location             string     `db:"location,omitempty" json:"location,omitempty"`
	MeetingPoint         string     `db:"meeting_point,omitempty" json:"meeting_point,omitempty"`
	ImageURL             string     `db:"image_url,omitempty" json:"image_url,omitempty"`
	ContactName          string     `db:"contact_name,omitempty" json:"contact_name,omitempty"`
	ContactPhone         string     `db:"contact_phone,omitempty" json:"contact_phone,omitempty"`
	Volunteer            *Volunteer `json:"volunteer,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Volunteer is the optional volunteer sub-record of an event.
type Volunteer struct {
	TasksDescription string `db:"tasks_description" json:"tasks_description"`
	Required         int    `db:"n_volunteers_required" json:"n_volunteers_required"`
	Registered       int    `db:"n_volunteers_registered" json:"n_volunteers_registered"`
}

func (v *Volunteer) Full() bool {
	return v != nil && v.Registered >= v.Required
}

type Registration struct {
	ID                 string    `db:"id" json:"id"`
	UserID             string    `db:"user_id" json:"user_id"`
	EventID            string    `db:"event_id" json:"event_id"`
	SeriesID           *string   `db:"series_id" json:"series_id,omitempty"`
	RoleAtRegistration Role      `db:"role_at_registration" json:"role_at_registration"`
	Status             string    `db:"status" json:"status"`
	Attendance         *string   `db:"attendance" json:"attendance,omitempty"`
	MeetingPreference  *string   `db:"meeting_preference" json:"meeting_preference,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

type User struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Email      string `db:"email" json:"email"`
	Role       Role   `db:"role" json:"role"`
	Membership string `db:"membership" json:"membership"`
}

// WeeklyLimit resolves a membership tier to its weekly activity cap.
// Tiers of the form weekly_<N> are capped at N; everything else is unlimited,
// reported as limited == false.
func (u *User) WeeklyLimit() (limit int, limited bool) {
	const prefix = "weekly_"
	if !strings.HasPrefix(u.Membership, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(u.Membership, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// BasketItem is a session-local projection of a selected event plus the
// user-chosen meeting preference. It never touches the store.
type BasketItem struct {
	Event             Event   `json:"event"`
	MeetingPreference *string `json:"meeting_preference,omitempty"`
}

func (b *BasketItem) Cost() float64 {
	if b.Event.Cost == nil {
		return 0
	}
	return *b.Event.Cost
}
