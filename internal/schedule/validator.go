package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"activityhub/internal/model"
	"activityhub/internal/repo"
)

// Result is the outcome of a selection check. An invalid Result carries the
// user-facing reason; infrastructure failures are returned as errors instead,
// so callers never mistake a flaky store for a business-rule violation.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

func rejected(format string, args ...any) Result {
	return Result{Valid: false, Reason: fmt.Sprintf(format, args...)}
}

type EventReader interface {
	GetAllEvents(ctx context.Context) ([]model.Event, error)
}

type RegistrationReader interface {
	GetRegistrationsByUserID(ctx context.Context, userID string) ([]model.Registration, error)
}

type ProfileReader interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

type Validator struct {
	events   EventReader
	regs     RegistrationReader
	profiles ProfileReader
	log      *zerolog.Logger
}

func NewValidator(events EventReader, regs RegistrationReader, profiles ProfileReader, log *zerolog.Logger) *Validator {
	return &Validator{
		events:   events,
		regs:     regs,
		profiles: profiles,
		log:      log,
	}
}

// Validate decides whether candidate may be added to the user's basket.
// Checks run in order and stop at the first failure: duplicate selection,
// profile resolution, weekly membership quota (participants only), overlap
// with the basket, overlap with persisted registrations.
func (v *Validator) Validate(ctx context.Context, candidate *model.Event, basket []model.BasketItem, userID string) (Result, error) {
	for _, item := range basket {
		if item.Event.ID == candidate.ID {
			return rejected("This event is already in your selected activities."), nil
		}
	}

	user, err := v.profiles.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return rejected("User profile not found."), nil
		}
		return Result{}, fmt.Errorf("fetch user profile: %w", err)
	}

	// Persisted registrations feed both the quota count and the global
	// overlap check, so resolve them to events once.
	registered, err := v.registeredEvents(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	if user.Role == model.RoleParticipant {
		if res := v.checkQuota(user, candidate, basket, registered); !res.Valid {
			return res, nil
		}
	}

	for _, item := range basket {
		if overlaps(candidate.Start, candidate.End, item.Event.Start, item.Event.End) {
			return rejected("This overlaps with %q already in your selection.", item.Event.Title), nil
		}
	}

	for _, e := range registered {
		if overlaps(candidate.Start, candidate.End, e.Start, e.End) {
			return rejected("You are already registered for %q at the same time.", e.Title), nil
		}
	}

	return Result{Valid: true}, nil
}

func (v *Validator) checkQuota(user *model.User, candidate *model.Event, basket []model.BasketItem, registered []model.Event) Result {
	limit, limited := user.WeeklyLimit()
	if !limited {
		return Result{Valid: true}
	}

	if candidate.IsSeries && candidate.MinDaysRequired > limit {
		return rejected("This program requires %d days, but your plan only allows %d activities per week.",
			candidate.MinDaysRequired, limit)
	}

	target := weekOf(candidate.Start)
	count := 0
	for _, item := range basket {
		if weekOf(item.Event.Start) == target {
			count++
		}
	}
	for _, e := range registered {
		if weekOf(e.Start) == target {
			count++
		}
	}

	if count >= limit {
		return rejected("Your %q plan only allows %d activities per week. You already have %d scheduled.",
			user.Membership, limit, count)
	}
	return Result{Valid: true}
}

// registeredEvents resolves the user's persisted registrations to their
// events. Registrations whose event has since been deleted are skipped.
func (v *Validator) registeredEvents(ctx context.Context, userID string) ([]model.Event, error) {
	regs, err := v.regs.GetRegistrationsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch registrations: %w", err)
	}
	if len(regs) == 0 {
		return nil, nil
	}

	all, err := v.events.GetAllEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	byID := make(map[string]model.Event, len(all))
	for _, e := range all {
		byID[e.ID] = e
	}

	events := make([]model.Event, 0, len(regs))
	for _, reg := range regs {
		if e, ok := byID[reg.EventID]; ok {
			events = append(events, e)
		}
	}
	return events, nil
}

// overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// week identifies an ISO 8601 week. Carrying the ISO year keeps the same
// numbered week of different years from colliding around new year.
type week struct {
	year int
	num  int
}

func weekOf(t time.Time) week {
	y, w := t.ISOWeek()
	return week{year: y, num: w}
}
