package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"

	"activityhub/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	EventNotFound         = "EVENT_NOT_FOUND"
	UserNotFound          = "USER_NOT_FOUND"
	RegistrationNotFound  = "REGISTRATION_NOT_FOUND"
	SelectionRejected     = "SELECTION_REJECTED"
	CommitmentIncomplete  = "COMMITMENT_INCOMPLETE"
	VolunteersFull        = "VOLUNTEERS_FULL"
	Forbidden             = "FORBIDDEN"
	AttendanceNotAllowed  = "ATTENDANCE_NOT_ALLOWED"
	BasketStateConflict   = "BASKET_STATE_CONFLICT"
	RegistrationIncorrect = "REGISTRATION_INCORRECT"
)

type CreateEventRequest struct {
	Title                string   `json:"title" validate:"required"`
	Description          string   `json:"description"`
	StartDate            string   `json:"start_date" validate:"required"`
	StartTime            string   `json:"start_time" validate:"required"`
	EndTime              string   `json:"end_time" validate:"required"`
	RepeatDays           []int    `json:"repeat_days" validate:"max=7,dive,gte=0,lte=6"`
	Commitment           int      `json:"commitment" validate:"omitempty,positive"`
	WheelchairAccessible bool     `json:"wheelchair_accessible"`
	Cost                 *float64 `json:"cost" validate:"omitempty,gte=0"`
	Location             string   `json:"location"`
	MeetingPoint         string   `json:"meeting_point"`
	ImageURL             string   `json:"image_url"`
	ContactName          string   `json:"contact_name"`
	ContactPhone         string   `json:"contact_phone"`

	VolunteerTasks   string `json:"volunteer_tasks"`
	VolunteersNeeded int    `json:"volunteers_needed" validate:"omitempty,positive"`
}

type UpdateEventRequest struct {
	Start                *time.Time `json:"start" validate:"omitempty,future"`
	End                  *time.Time `json:"end" validate:"omitempty,future"`
	WheelchairAccessible bool       `json:"wheelchair_accessible"`
}

type UpdateSeriesRequest struct {
	Title        string   `json:"title" validate:"required"`
	Description  string   `json:"description"`
	ImageURL     string   `json:"image_url"`
	ContactName  string   `json:"contact_name"`
	ContactPhone string   `json:"contact_phone"`
	Location     string   `json:"location"`
	MeetingPoint string   `json:"meeting_point"`
	Cost         *float64 `json:"cost" validate:"omitempty,gte=0"`
}

type AddBasketItemRequest struct {
	EventID string `json:"event_id" validate:"required"`
}

type MeetingPreferenceRequest struct {
	Preference string `json:"preference" validate:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed waitlisted"`
}

type AttendanceRequest struct {
	Attendance string `json:"attendance" validate:"required,oneof=present absent"`
}

type BasketResponse struct {
	State string             `json:"state"`
	Items []model.BasketItem `json:"items"`
	Total float64            `json:"total"`
}

type RosterEntry struct {
	Registration model.Registration `json:"registration"`
	Name         string             `json:"name"`
	Email        string             `json:"email"`
}

type RosterResponse struct {
	Participants []RosterEntry `json:"participants"`
	Volunteers   []RosterEntry `json:"volunteers"`
}

type RegistrationNotifyMessage struct {
	UserID         string    `json:"user_id"`
	EventIDs       []string  `json:"event_ids"`
	Role           string    `json:"role"`
	Kind           string    `json:"kind"`
	RegistrationID string    `json:"registration_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

// RejectionResponse carries a business-rule rejection. It is not an error
// condition: the reason is meant to be shown to the user as a notice.
func RejectionResponse(c *ginext.Context, code, reason string) {
	c.JSON(422, Response{
		Status: "rejected",
		Error: &Error{
			Code: code,
			Desc: reason,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(503, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func ForbiddenError(c *ginext.Context, desc string) {
	c.JSON(403, Response{
		Status: "error",
		Error: &Error{
			Code: Forbidden,
			Desc: desc,
		},
	})
}

func EventNotFoundError(c *ginext.Context) {
	BadResponseError(c, EventNotFound, "Event not found")
}

func UserNotFoundError(c *ginext.Context) {
	BadResponseError(c, UserNotFound, "User profile not found")
}

func RegistrationNotFoundError(c *ginext.Context) {
	BadResponseError(c, RegistrationNotFound, "Registration not found")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
