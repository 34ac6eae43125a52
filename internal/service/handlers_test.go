package service_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"activityhub/internal/api/api"
	"activityhub/internal/dto"
	"activityhub/internal/model"
	"activityhub/internal/repo"
	"activityhub/internal/service"
)

type fakeRepo struct {
	users map[string]*model.User
	regs  map[string]*model.Registration

	attendanceErr error
	statusUpdates []string
}

func (f *fakeRepo) CreateEvents(_ context.Context, _ []*model.Event) error { return nil }
func (f *fakeRepo) GetEventByID(_ context.Context, _ string) (*model.Event, error) {
	return nil, repo.ErrEventNotFound
}
func (f *fakeRepo) GetAllEvents(_ context.Context) ([]model.Event, error) { return nil, nil }
func (f *fakeRepo) GetEventsBySeriesID(_ context.Context, _ string) ([]model.Event, error) {
	return nil, repo.ErrEventNotFound
}
func (f *fakeRepo) UpdateEvent(_ context.Context, _ string, _ *repo.OccurrenceUpdate) error {
	return nil
}
func (f *fakeRepo) UpdateSeries(_ context.Context, _ string, _ *repo.SeriesUpdate) error { return nil }
func (f *fakeRepo) DeleteEvent(_ context.Context, _ string) error                        { return nil }
func (f *fakeRepo) DeleteSeries(_ context.Context, _ string) error                       { return nil }

func (f *fakeRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeRepo) CreateRegistration(_ context.Context, _ *model.Registration) error { return nil }
func (f *fakeRepo) GetRegistrationByID(_ context.Context, id string) (*model.Registration, error) {
	reg, ok := f.regs[id]
	if !ok {
		return nil, repo.ErrRegistrationNotFound
	}
	return reg, nil
}
func (f *fakeRepo) GetRegistrationsByUserID(_ context.Context, _ string) ([]model.Registration, error) {
	return nil, nil
}
func (f *fakeRepo) GetRegistrationsByEventID(_ context.Context, _ string) ([]model.Registration, error) {
	return nil, nil
}
func (f *fakeRepo) UpdateRegistrationStatusTx(_ context.Context, id, newStatus string) error {
	f.statusUpdates = append(f.statusUpdates, id+":"+newStatus)
	return nil
}
func (f *fakeRepo) SetAttendanceTx(_ context.Context, _, _ string) error   { return f.attendanceErr }
func (f *fakeRepo) ClaimVolunteerSlotTx(_ context.Context, _ string) error { return nil }
func (f *fakeRepo) MigrateUp(_ string) error                               { return nil }
func (f *fakeRepo) MigrateDown(_ string) error                             { return nil }

func newTestRouter(store *fakeRepo) http.Handler {
	log := zerolog.Nop()
	svc := service.NewService(store, nil, nil, &log, nil)
	return api.NewRouters(&api.Routers{Service: svc})
}

func doRequest(t *testing.T, h http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body %q: %v", w.Body.String(), err)
	}
	if resp.Error == nil {
		t.Fatalf("expected an error payload, got %q", w.Body.String())
	}
	return resp.Error.Code
}

func staffUsers() map[string]*model.User {
	return map[string]*model.User{
		"s1": {ID: "s1", Name: "Sam", Role: model.RoleStaff, Membership: model.MembershipUnlimited},
	}
}

func TestSetAttendanceRequiresConfirmed(t *testing.T) {
	store := &fakeRepo{
		users:         staffUsers(),
		attendanceErr: repo.ErrNotConfirmed,
	}

	w := doRequest(t, newTestRouter(store), http.MethodPut,
		"/v1/registrations/r1/attendance", "s1", `{"attendance":"present"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, w); code != dto.AttendanceNotAllowed {
		t.Errorf("error code = %s, want %s", code, dto.AttendanceNotAllowed)
	}
}

func TestSetAttendanceStaffOnly(t *testing.T) {
	store := &fakeRepo{
		users: map[string]*model.User{
			"u1": {ID: "u1", Role: model.RoleParticipant, Membership: model.MembershipUnlimited},
		},
	}

	w := doRequest(t, newTestRouter(store), http.MethodPut,
		"/v1/registrations/r1/attendance", "u1", `{"attendance":"present"}`)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestUpdateRegistrationStatusOnlyFromRegistered(t *testing.T) {
	store := &fakeRepo{
		users: staffUsers(),
		regs: map[string]*model.Registration{
			"r1": {ID: "r1", UserID: "u1", EventID: "e1",
				RoleAtRegistration: model.RoleParticipant, Status: model.StatusConfirmed},
		},
	}

	w := doRequest(t, newTestRouter(store), http.MethodPut,
		"/v1/registrations/r1/status", "s1", `{"status":"waitlisted"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, w); code != dto.RegistrationIncorrect {
		t.Errorf("error code = %s, want %s", code, dto.RegistrationIncorrect)
	}
	if len(store.statusUpdates) != 0 {
		t.Errorf("already-decided registration must not be written, got %v", store.statusUpdates)
	}
}

func TestUpdateRegistrationStatusUnknownRegistration(t *testing.T) {
	store := &fakeRepo{users: staffUsers()}

	w := doRequest(t, newTestRouter(store), http.MethodPut,
		"/v1/registrations/nope/status", "s1", `{"status":"confirmed"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, w); code != dto.RegistrationNotFound {
		t.Errorf("error code = %s, want %s", code, dto.RegistrationNotFound)
	}
}
