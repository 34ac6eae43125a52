package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/retry"

	"activityhub/internal/basket"
	"activityhub/internal/dto"
	"activityhub/internal/model"
	"activityhub/internal/rabbit"
	"activityhub/internal/repo"
	"activityhub/internal/watch"
	"activityhub/pkg/validator"
)

type Service interface {
	CreateEvent(ctx *ginext.Context)
	GetAllEvents(ctx *ginext.Context)
	WatchEvents(ctx *ginext.Context)
	UpdateEvent(ctx *ginext.Context)
	DeleteEvent(ctx *ginext.Context)
	UpdateSeries(ctx *ginext.Context)
	DeleteSeries(ctx *ginext.Context)
	GetRoster(ctx *ginext.Context)

	GetMyRegistrations(ctx *ginext.Context)
	UpdateRegistrationStatus(ctx *ginext.Context)
	SetAttendance(ctx *ginext.Context)

	GetBasket(ctx *ginext.Context)
	AddBasketItem(ctx *ginext.Context)
	RemoveBasketItem(ctx *ginext.Context)
	SetMeetingPreference(ctx *ginext.Context)
	CheckoutBasket(ctx *ginext.Context)
	ConfirmBasket(ctx *ginext.Context)
}

type service struct {
	repo       repo.Repository
	reconciler *basket.Reconciler
	hub        *watch.Hub
	log        *zerolog.Logger
	rbt        *rabbit.Client
}

var publishStrategy = retry.Strategy{Attempts: 3, Delay: 500 * time.Millisecond, Backoff: 2}

func NewService(repository repo.Repository, reconciler *basket.Reconciler, hub *watch.Hub, logger *zerolog.Logger, rbt *rabbit.Client) Service {
	return &service{
		repo:       repository,
		reconciler: reconciler,
		hub:        hub,
		log:        logger,
		rbt:        rbt,
	}
}

// currentUser resolves the caller's profile from the X-User-ID header. The
// profile is the explicit auth context handed to every validator and
// reconciler call; nothing reads ambient globals.
func (s *service) currentUser(ctx *ginext.Context) (*model.User, bool) {
	userID := ctx.GetHeader("X-User-ID")
	if userID == "" {
		dto.ForbiddenError(ctx, "Missing X-User-ID header")
		return nil, false
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			dto.UserNotFoundError(ctx)
			return nil, false
		}
		s.log.Error().Err(err).Str("user_id", userID).Msg("failed to resolve user profile")
		dto.InternalServerError(ctx)
		return nil, false
	}
	return user, true
}

func (s *service) requireStaff(ctx *ginext.Context) (*model.User, bool) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return nil, false
	}
	if user.Role != model.RoleStaff {
		dto.ForbiddenError(ctx, "Staff access required")
		return nil, false
	}
	return user, true
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	if _, ok := s.requireStaff(ctx); !ok {
		return
	}

	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	events, err := buildEvents(&req)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, err.Error())
		return
	}

	if err := s.repo.CreateEvents(ctx, events); err != nil {
		s.log.Error().Err(err).Msg("failed to create events in DB")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Int("count", len(events)).Str("title", req.Title).Msg("events created successfully")
	s.hub.Broadcast(ctx)

	created := make([]model.Event, len(events))
	for i, e := range events {
		created[i] = *e
	}
	dto.SuccessCreatedResponse(ctx, created)
}

// buildEvents expands a create request into one event per selected weekday of
// the start week. A single-day request yields one standalone event; picking
// more than one day yields a series sharing a fresh series id and the staff
// commitment count.
func buildEvents(req *dto.CreateEventRequest) ([]*model.Event, error) {
	base, err := time.ParseInLocation("2006-01-02", req.StartDate, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid start_date: %v", err)
	}
	startClock, err := time.Parse("15:04", req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("invalid start_time: %v", err)
	}
	endClock, err := time.Parse("15:04", req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("invalid end_time: %v", err)
	}
	if !endClock.After(startClock) {
		return nil, fmt.Errorf("end_time must be after start_time")
	}

	days := req.RepeatDays
	if len(days) == 0 {
		days = []int{int(base.Weekday())}
	}
	isSeries := len(days) > 1

	commitment := 1
	if isSeries {
		commitment = req.Commitment
		if commitment < 1 || commitment > len(days) {
			return nil, fmt.Errorf("commitment must be between 1 and %d", len(days))
		}
	}

	var seriesID *string
	if isSeries {
		id := uuid.NewString()
		seriesID = &id
	}

	var volunteer *model.Volunteer
	if req.VolunteersNeeded > 0 {
		volunteer = &model.Volunteer{
			TasksDescription: req.VolunteerTasks,
			Required:         req.VolunteersNeeded,
		}
	}

	events := make([]*model.Event, 0, len(days))
	for _, day := range days {
		// Weekdays land on or after the start date within its week.
		distance := (day + 7 - int(base.Weekday())) % 7
		date := base.AddDate(0, 0, distance)

		start := time.Date(date.Year(), date.Month(), date.Day(),
			startClock.Hour(), startClock.Minute(), 0, 0, time.Local)
		end := time.Date(date.Year(), date.Month(), date.Day(),
			endClock.Hour(), endClock.Minute(), 0, 0, time.Local)

		events = append(events, &model.Event{
			ID:                   uuid.NewString(),
			Title:                req.Title,
			Description:          req.Description,
			Start:                start,
			End:                  end,
			IsSeries:             isSeries,
			SeriesID:             seriesID,
			MinDaysRequired:      commitment,
			WheelchairAccessible: req.WheelchairAccessible,
			Cost:                 req.Cost,
			Location:             req.Location,
			MeetingPoint:         req.MeetingPoint,
			ImageURL:             req.ImageURL,
			ContactName:          req.ContactName,
			ContactPhone:         req.ContactPhone,
			Volunteer:            volunteer,
		})
	}
	return events, nil
}

func (s *service) GetAllEvents(ctx *ginext.Context) {
	events, err := s.repo.GetAllEvents(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get events")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, events)
}

// WatchEvents streams full event-list snapshots over SSE. The subscription
// lives until the client disconnects.
func (s *service) WatchEvents(ctx *ginext.Context) {
	ch, cancel := s.hub.Subscribe()
	defer cancel()

	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")

	events, err := s.repo.GetAllEvents(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get events for watch")
		dto.InternalServerError(ctx)
		return
	}
	ctx.SSEvent("events", events)
	ctx.Writer.Flush()

	ctx.Stream(func(w io.Writer) bool {
		select {
		case snapshot, ok := <-ch:
			if !ok {
				return false
			}
			ctx.SSEvent("events", snapshot)
			return true
		case <-ctx.Request.Context().Done():
			return false
		}
	})
}

func (s *service) UpdateEvent(ctx *ginext.Context) {
	if _, ok := s.requireStaff(ctx); !ok {
		return
	}
	eventID := ctx.Param("id")

	var req dto.UpdateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	upd := &repo.OccurrenceUpdate{WheelchairAccessible: req.WheelchairAccessible}
	if req.Start != nil {
		upd.Start.Time, upd.Start.Valid = *req.Start, true
	}
	if req.End != nil {
		upd.End.Time, upd.End.Valid = *req.End, true
	}

	if err := s.repo.UpdateEvent(ctx, eventID, upd); err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to update event")
		dto.InternalServerError(ctx)
		return
	}

	s.hub.Broadcast(ctx)
	dto.SuccessResponse(ctx, nil)
}

func (s *service) DeleteEvent(ctx *ginext.Context) {
	if _, ok := s.requireStaff(ctx); !ok {
		return
	}
	eventID := ctx.Param("id")

	if err := s.repo.DeleteEvent(ctx, eventID); err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to delete event")
		dto.InternalServerError(ctx)
		return
	}

	s.hub.Broadcast(ctx)
	dto.SuccessResponse(ctx, nil)
}

func (s *service) UpdateSeries(ctx *ginext.Context) {
	if _, ok := s.requireStaff(ctx); !ok {
		return
	}
	seriesID := ctx.Param("id")

	var req dto.UpdateSeriesRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	upd := &repo.SeriesUpdate{
		Title:        req.Title,
		Description:  req.Description,
		ImageURL:     req.ImageURL,
		ContactName:  req.ContactName,
		ContactPhone: req.ContactPhone,
		Location:     req.Location,
		MeetingPoint: req.MeetingPoint,
		Cost:         req.Cost,
	}

	if err := s.repo.UpdateSeries(ctx, seriesID, upd); err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("series_id", seriesID).Msg("failed to update series")
		dto.InternalServerError(ctx)
		return
	}

	s.hub.Broadcast(ctx)
	dto.SuccessResponse(ctx, nil)
}

func (s *service) DeleteSeries(ctx *ginext.Context) {
	if _, ok := s.requireStaff(ctx); !ok {
		return
	}
	seriesID := ctx.Param("id")

	if err := s.repo.DeleteSeries(ctx, seriesID); err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("series_id", seriesID).Msg("failed to delete series")
		dto.InternalServerError(ctx)
		return
	}

	s.hub.Broadcast(ctx)
	dto.SuccessResponse(ctx, nil)
}

// GetRoster joins an event's registrations with user profiles and splits them
// by the role captured at registration time.
func (s *service) GetRoster(ctx *ginext.Context) {
	if _, ok := s.requireStaff(ctx); !ok {
		return
	}
	eventID := ctx.Param("id")

	if _, err := s.repo.GetEventByID(ctx, eventID); err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to get event for roster")
		dto.InternalServerError(ctx)
		return
	}

	regs, err := s.repo.GetRegistrationsByEventID(ctx, eventID)
	if err != nil {
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to get registrations for roster")
		dto.InternalServerError(ctx)
		return
	}

	var resp dto.RosterResponse
	for _, reg := range regs {
		user, err := s.repo.GetUserByID(ctx, reg.UserID)
		if err != nil {
			// Orphaned registrations are skipped rather than failing
			// the whole roster.
			s.log.Warn().Err(err).Str("user_id", reg.UserID).Msg("skipping registration without profile")
			continue
		}
		entry := dto.RosterEntry{Registration: reg, Name: user.Name, Email: user.Email}
		switch reg.RoleAtRegistration {
		case model.RoleParticipant:
			resp.Participants = append(resp.Participants, entry)
		case model.RoleVolunteer:
			resp.Volunteers = append(resp.Volunteers, entry)
		case model.RoleStaff:
			// Staff do not register for events.
		}
	}

	dto.SuccessResponse(ctx, resp)
}

func (s *service) GetMyRegistrations(ctx *ginext.Context) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return
	}

	regs, err := s.repo.GetRegistrationsByUserID(ctx, user.ID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to get registrations")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, regs)
}

func (s *service) UpdateRegistrationStatus(ctx *ginext.Context) {
	if _, ok := s.requireStaff(ctx); !ok {
		return
	}
	regID := ctx.Param("id")

	var req dto.UpdateStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	reg, err := s.repo.GetRegistrationByID(ctx, regID)
	if err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			dto.RegistrationNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("registration_id", regID).Msg("failed to get registration")
		dto.InternalServerError(ctx)
		return
	}

	if reg.Status != model.StatusRegistered {
		dto.BadResponseError(ctx, dto.RegistrationIncorrect,
			fmt.Sprintf("Registration is already %s", reg.Status))
		return
	}

	if err := s.repo.UpdateRegistrationStatusTx(ctx, regID, req.Status); err != nil {
		s.log.Error().Err(err).Str("registration_id", regID).Msg("failed to update registration status")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("registration_id", regID).
		Str("status", req.Status).
		Msg("registration status updated")

	s.notify(ctx, dto.RegistrationNotifyMessage{
		UserID:         reg.UserID,
		EventIDs:       []string{reg.EventID},
		Role:           string(reg.RoleAtRegistration),
		Kind:           "status_" + req.Status,
		RegistrationID: reg.ID,
		CreatedAt:      time.Now(),
	}, 0)

	if req.Status == model.StatusConfirmed {
		s.scheduleReminder(ctx, reg)
	}

	dto.SuccessResponse(ctx, nil)
}

// scheduleReminder queues a reminder mail a day before the activity starts,
// using the delayed exchange. Short-notice confirmations get no reminder.
func (s *service) scheduleReminder(ctx *ginext.Context, reg *model.Registration) {
	event, err := s.repo.GetEventByID(ctx, reg.EventID)
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", reg.EventID).Msg("skipping reminder for missing event")
		return
	}

	delay := time.Until(event.Start.Add(-24 * time.Hour))
	if delay <= 0 {
		return
	}

	s.notify(ctx, dto.RegistrationNotifyMessage{
		UserID:         reg.UserID,
		EventIDs:       []string{reg.EventID},
		Role:           string(reg.RoleAtRegistration),
		Kind:           "reminder",
		RegistrationID: reg.ID,
		CreatedAt:      time.Now(),
	}, int(delay.Seconds()))
}

func (s *service) notify(ctx *ginext.Context, msg dto.RegistrationNotifyMessage, delaySeconds int) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal notification message")
		return
	}
	err = retry.Do(func() error {
		return s.rbt.Publish(payload, delaySeconds)
	}, publishStrategy)
	if err != nil {
		// Notifications are best effort; the registration itself stands.
		s.log.Error().Err(err).Str("kind", msg.Kind).Msg("failed to publish notification")
	}
}

func (s *service) SetAttendance(ctx *ginext.Context) {
	if _, ok := s.requireStaff(ctx); !ok {
		return
	}
	regID := ctx.Param("id")

	var req dto.AttendanceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	if err := s.repo.SetAttendanceTx(ctx, regID, req.Attendance); err != nil {
		switch {
		case errors.Is(err, repo.ErrRegistrationNotFound):
			dto.RegistrationNotFoundError(ctx)
		case errors.Is(err, repo.ErrNotConfirmed):
			dto.BadResponseError(ctx, dto.AttendanceNotAllowed,
				"Attendance can only be recorded for confirmed registrations")
		default:
			s.log.Error().Err(err).Str("registration_id", regID).Msg("failed to set attendance")
			dto.InternalServerError(ctx)
		}
		return
	}

	dto.SuccessResponse(ctx, nil)
}

func (s *service) GetBasket(ctx *ginext.Context) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return
	}

	items, total, state := s.reconciler.Items(user.ID)
	dto.SuccessResponse(ctx, dto.BasketResponse{
		State: string(state),
		Items: items,
		Total: total,
	})
}

func (s *service) AddBasketItem(ctx *ginext.Context) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return
	}
	if user.Role == model.RoleStaff {
		dto.ForbiddenError(ctx, "Staff cannot register for activities")
		return
	}

	var req dto.AddBasketItemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	event, err := s.repo.GetEventByID(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("event_id", req.EventID).Msg("failed to get event for selection")
		dto.InternalServerError(ctx)
		return
	}

	if user.Role == model.RoleVolunteer && event.Volunteer.Full() {
		dto.RejectionResponse(ctx, dto.VolunteersFull,
			"Volunteer quota reached. Thank you for your interest!")
		return
	}

	res, err := s.reconciler.Add(ctx, user.ID, event)
	if err != nil {
		if errors.Is(err, basket.ErrInvalidState) {
			dto.BadResponseError(ctx, dto.BasketStateConflict, "A submission is already in progress")
			return
		}
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("selection validation failed on store read")
		dto.InternalServerError(ctx)
		return
	}
	if !res.Valid {
		dto.RejectionResponse(ctx, dto.SelectionRejected, res.Reason)
		return
	}

	items, total, state := s.reconciler.Items(user.ID)
	dto.SuccessResponse(ctx, dto.BasketResponse{State: string(state), Items: items, Total: total})
}

func (s *service) RemoveBasketItem(ctx *ginext.Context) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return
	}
	eventID := ctx.Param("eventId")

	if err := s.reconciler.Remove(user.ID, eventID); err != nil {
		switch {
		case errors.Is(err, basket.ErrItemNotFound):
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Event is not in the basket")
		case errors.Is(err, basket.ErrInvalidState):
			dto.BadResponseError(ctx, dto.BasketStateConflict, "A submission is already in progress")
		default:
			dto.InternalServerError(ctx)
		}
		return
	}

	items, total, state := s.reconciler.Items(user.ID)
	dto.SuccessResponse(ctx, dto.BasketResponse{State: string(state), Items: items, Total: total})
}

func (s *service) SetMeetingPreference(ctx *ginext.Context) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return
	}
	eventID := ctx.Param("eventId")

	var req dto.MeetingPreferenceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if err := s.reconciler.SetMeetingPreference(user.ID, eventID, req.Preference); err != nil {
		switch {
		case errors.Is(err, basket.ErrItemNotFound):
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Event is not in the basket")
		case errors.Is(err, basket.ErrInvalidState):
			dto.BadResponseError(ctx, dto.BasketStateConflict, "A submission is already in progress")
		default:
			dto.BadResponseError(ctx, dto.FieldIncorrect, err.Error())
		}
		return
	}

	dto.SuccessResponse(ctx, nil)
}

func (s *service) CheckoutBasket(ctx *ginext.Context) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return
	}

	res, err := s.reconciler.Checkout(user.ID, user.Role)
	if err != nil {
		dto.BadResponseError(ctx, dto.BasketStateConflict, "Basket is not open for checkout")
		return
	}
	if !res.Valid {
		dto.RejectionResponse(ctx, dto.CommitmentIncomplete, res.Reason)
		return
	}

	items, total, state := s.reconciler.Items(user.ID)
	dto.SuccessResponse(ctx, dto.BasketResponse{State: string(state), Items: items, Total: total})
}

func (s *service) ConfirmBasket(ctx *ginext.Context) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return
	}

	created, err := s.reconciler.Confirm(ctx, user.ID, user.Role)
	if err != nil {
		if errors.Is(err, basket.ErrInvalidState) {
			dto.BadResponseError(ctx, dto.BasketStateConflict, "Basket has not been checked out")
			return
		}
		// Partial success is possible; the basket is retained and the
		// retry will skip anything already written.
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to confirm basket")
		dto.InternalServerError(ctx)
		return
	}

	eventIDs := make([]string, len(created))
	for i, reg := range created {
		eventIDs[i] = reg.EventID
	}
	s.notify(ctx, dto.RegistrationNotifyMessage{
		UserID:    user.ID,
		EventIDs:  eventIDs,
		Role:      string(user.Role),
		Kind:      "batch_registered",
		CreatedAt: time.Now(),
	}, 0)

	s.log.Info().
		Str("user_id", user.ID).
		Int("count", len(created)).
		Msg("registration batch confirmed")

	dto.SuccessCreatedResponse(ctx, created)
}
