package service

import (
	"testing"
	"time"

	"activityhub/internal/dto"
)

func TestBuildEventsSingleDay(t *testing.T) {
	req := &dto.CreateEventRequest{
		Title:     "Art Jam",
		StartDate: "2026-03-04", // a Wednesday
		StartTime: "09:00",
		EndTime:   "10:30",
	}

	events, err := buildEvents(req)
	if err != nil {
		t.Fatalf("buildEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	e := events[0]
	if e.IsSeries || e.SeriesID != nil {
		t.Error("single-day events must not form a series")
	}
	if e.MinDaysRequired != 1 {
		t.Errorf("MinDaysRequired = %d, want 1", e.MinDaysRequired)
	}
	if e.Start.Weekday() != time.Wednesday || e.Start.Hour() != 9 {
		t.Errorf("start = %v, want Wednesday 09:00", e.Start)
	}
	if e.End.Sub(e.Start) != 90*time.Minute {
		t.Errorf("duration = %v, want 90m", e.End.Sub(e.Start))
	}
}

func TestBuildEventsSeries(t *testing.T) {
	req := &dto.CreateEventRequest{
		Title:      "Music Therapy",
		StartDate:  "2026-03-04", // Wednesday
		StartTime:  "14:00",
		EndTime:    "15:00",
		RepeatDays: []int{1, 3, 5}, // Mon, Wed, Fri
		Commitment: 2,
	}

	events, err := buildEvents(req)
	if err != nil {
		t.Fatalf("buildEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 occurrences, got %d", len(events))
	}

	seriesID := events[0].SeriesID
	if seriesID == nil {
		t.Fatal("series occurrences must share a series id")
	}
	for _, e := range events {
		if !e.IsSeries || e.SeriesID == nil || *e.SeriesID != *seriesID {
			t.Errorf("occurrence %s does not share the series id", e.ID)
		}
		if e.MinDaysRequired != 2 {
			t.Errorf("MinDaysRequired = %d, want 2", e.MinDaysRequired)
		}
		// Occurrences never land before the start date.
		if e.Start.Before(events[0].Start.AddDate(0, 0, -7)) {
			t.Errorf("occurrence %s landed before the start week", e.ID)
		}
	}

	// Monday is before the Wednesday start, so it wraps to the following week.
	byDay := map[time.Weekday]time.Time{}
	for _, e := range events {
		byDay[e.Start.Weekday()] = e.Start
	}
	if byDay[time.Monday].Before(byDay[time.Wednesday]) {
		t.Error("Monday occurrence must wrap past the Wednesday start date")
	}
}

func TestBuildEventsCommitmentBounds(t *testing.T) {
	base := dto.CreateEventRequest{
		Title:      "Music Therapy",
		StartDate:  "2026-03-02",
		StartTime:  "09:00",
		EndTime:    "10:00",
		RepeatDays: []int{1, 3},
	}

	for _, commitment := range []int{0, 3} {
		req := base
		req.Commitment = commitment
		if _, err := buildEvents(&req); err == nil {
			t.Errorf("commitment %d outside 1..2 must fail", commitment)
		}
	}
}

func TestBuildEventsRejectsInvertedTimes(t *testing.T) {
	req := &dto.CreateEventRequest{
		Title:     "Art Jam",
		StartDate: "2026-03-04",
		StartTime: "10:00",
		EndTime:   "09:00",
	}
	if _, err := buildEvents(req); err == nil {
		t.Fatal("end before start must fail")
	}
}

func TestBuildEventsVolunteerRecord(t *testing.T) {
	req := &dto.CreateEventRequest{
		Title:            "Bowling Night",
		StartDate:        "2026-03-04",
		StartTime:        "18:00",
		EndTime:          "20:00",
		VolunteerTasks:   "Help with transport",
		VolunteersNeeded: 2,
	}

	events, err := buildEvents(req)
	if err != nil {
		t.Fatalf("buildEvents: %v", err)
	}
	v := events[0].Volunteer
	if v == nil || v.Required != 2 || v.Registered != 0 {
		t.Fatalf("unexpected volunteer record: %+v", v)
	}
}
