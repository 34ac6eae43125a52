package basket

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"activityhub/internal/model"
	"activityhub/internal/schedule"
)

var (
	ErrInvalidState = errors.New("operation not allowed in current basket state")
	ErrItemNotFound = errors.New("event is not in the basket")
	// ErrSubmitFailed wraps any failure of the confirm batch. Some writes may
	// have landed; the basket is retained so the user can retry, and the
	// retry skips items that already persisted.
	ErrSubmitFailed = errors.New("registration submission failed")
)

type State string

const (
	StateEmpty      State = "empty"
	StateOpen       State = "open"
	StateReviewing  State = "reviewing"
	StateSubmitting State = "submitting"
)

type RegistrationStore interface {
	CreateRegistration(ctx context.Context, reg *model.Registration) error
	GetRegistrationsByUserID(ctx context.Context, userID string) ([]model.Registration, error)
}

type VolunteerSlots interface {
	ClaimVolunteerSlotTx(ctx context.Context, eventID string) error
}

type session struct {
	mu    sync.Mutex
	state State
	items []model.BasketItem
}

// Reconciler manages per-user baskets and turns a validated basket into
// persisted registrations.
type Reconciler struct {
	validator *schedule.Validator
	regs      RegistrationStore
	slots     VolunteerSlots
	log       *zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewReconciler(validator *schedule.Validator, regs RegistrationStore, slots VolunteerSlots, log *zerolog.Logger) *Reconciler {
	return &Reconciler{
		validator: validator,
		regs:      regs,
		slots:     slots,
		log:       log,
		sessions:  make(map[string]*session),
	}
}

func (r *Reconciler) session(userID string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		s = &session{state: StateEmpty}
		r.sessions[userID] = s
	}
	return s
}

// Add validates the candidate against the current basket and, if accepted,
// appends it with no meeting preference chosen yet.
func (r *Reconciler) Add(ctx context.Context, userID string, event *model.Event) (schedule.Result, error) {
	s := r.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSubmitting {
		return schedule.Result{}, ErrInvalidState
	}

	res, err := r.validator.Validate(ctx, event, s.items, userID)
	if err != nil {
		return schedule.Result{}, err
	}
	if !res.Valid {
		return res, nil
	}

	s.items = append(s.items, model.BasketItem{Event: *event})
	s.state = StateOpen
	return res, nil
}

func (r *Reconciler) Remove(userID, eventID string) error {
	s := r.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSubmitting {
		return ErrInvalidState
	}

	kept := s.items[:0]
	found := false
	for _, item := range s.items {
		if item.Event.ID == eventID {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		return ErrItemNotFound
	}
	s.items = kept

	// Losing the last item collapses the whole basket, including an open
	// checkout review.
	if len(s.items) == 0 {
		s.items = nil
		s.state = StateEmpty
	} else if s.state == StateReviewing {
		s.state = StateOpen
	}
	return nil
}

func (r *Reconciler) SetMeetingPreference(userID, eventID, preference string) error {
	if preference != model.MeetingPoint && preference != model.DirectLocation {
		return fmt.Errorf("unknown meeting preference %q", preference)
	}

	s := r.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSubmitting {
		return ErrInvalidState
	}

	for i := range s.items {
		if s.items[i].Event.ID == eventID {
			p := preference
			s.items[i].MeetingPreference = &p
			return nil
		}
	}
	return ErrItemNotFound
}

// Items returns a copy of the basket together with the running total.
// Missing costs count as zero.
func (r *Reconciler) Items(userID string) ([]model.BasketItem, float64, State) {
	s := r.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]model.BasketItem, len(s.items))
	copy(items, s.items)
	var total float64
	for i := range s.items {
		total += s.items[i].Cost()
	}
	return items, total, s.state
}

// CheckCommitments verifies the basket is submittable: participants must have
// picked a meeting preference for every item, and every series in the basket
// must be selected at exactly its required day count, no more and no fewer.
func (r *Reconciler) CheckCommitments(userID string, role model.Role) schedule.Result {
	s := r.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return checkCommitments(s.items, role)
}

func checkCommitments(items []model.BasketItem, role model.Role) schedule.Result {
	if role == model.RoleParticipant {
		for _, item := range items {
			if item.MeetingPreference == nil {
				return schedule.Result{Valid: false, Reason: "Please select meeting point for all activities."}
			}
		}
	}

	counts := make(map[string]int)
	for _, item := range items {
		if item.Event.IsSeries && item.Event.SeriesID != nil {
			counts[*item.Event.SeriesID]++
		}
	}
	for _, item := range items {
		if !item.Event.IsSeries || item.Event.SeriesID == nil {
			continue
		}
		if count := counts[*item.Event.SeriesID]; count != item.Event.MinDaysRequired {
			return schedule.Result{
				Valid: false,
				Reason: fmt.Sprintf("You must select exactly %d days for %q. You have selected %d.",
					item.Event.MinDaysRequired, item.Event.Title, count),
			}
		}
	}
	return schedule.Result{Valid: true}
}

// Checkout moves an open basket into review, provided commitments are complete.
func (r *Reconciler) Checkout(userID string, role model.Role) (schedule.Result, error) {
	s := r.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOpen && s.state != StateReviewing {
		return schedule.Result{}, ErrInvalidState
	}

	res := checkCommitments(s.items, role)
	if !res.Valid {
		return res, nil
	}
	s.state = StateReviewing
	return res, nil
}

// Confirm writes one registration per basket item as a single logical batch.
// Writes are issued concurrently; there is no multi-row transaction, so a
// failed batch may have persisted some rows. The basket stays intact and the
// state returns to reviewing so the user can retry; the retry skips items
// that already have a stored (user, event) registration.
func (r *Reconciler) Confirm(ctx context.Context, userID string, role model.Role) ([]model.Registration, error) {
	s := r.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReviewing {
		return nil, ErrInvalidState
	}
	s.state = StateSubmitting

	existing, err := r.regs.GetRegistrationsByUserID(ctx, userID)
	if err != nil {
		s.state = StateReviewing
		return nil, fmt.Errorf("fetch existing registrations: %w", err)
	}
	persisted := make(map[string]bool, len(existing))
	for _, reg := range existing {
		persisted[reg.EventID] = true
	}

	var pending []*model.Registration
	for _, item := range s.items {
		if persisted[item.Event.ID] {
			continue
		}
		reg := &model.Registration{
			ID:                 uuid.NewString(),
			UserID:             userID,
			EventID:            item.Event.ID,
			SeriesID:           item.Event.SeriesID,
			RoleAtRegistration: role,
			Status:             model.StatusRegistered,
		}
		if role == model.RoleParticipant {
			reg.MeetingPreference = item.MeetingPreference
		}
		pending = append(pending, reg)
	}

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	for _, reg := range pending {
		wg.Add(1)
		go func(reg *model.Registration) {
			defer wg.Done()
			if err := r.writeOne(ctx, reg); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}(reg)
	}
	wg.Wait()

	if firstErr != nil {
		s.state = StateReviewing
		r.log.Error().Err(firstErr).Str("user_id", userID).Msg("registration batch failed")
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, firstErr)
	}

	created := make([]model.Registration, len(pending))
	for i, reg := range pending {
		created[i] = *reg
	}
	s.items = nil
	s.state = StateEmpty
	return created, nil
}

func (r *Reconciler) writeOne(ctx context.Context, reg *model.Registration) error {
	if reg.RoleAtRegistration == model.RoleVolunteer {
		if err := r.slots.ClaimVolunteerSlotTx(ctx, reg.EventID); err != nil {
			return fmt.Errorf("claim volunteer slot for %s: %w", reg.EventID, err)
		}
	}
	return r.regs.CreateRegistration(ctx, reg)
}
