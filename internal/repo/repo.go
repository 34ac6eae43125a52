package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"activityhub/internal/model"
)

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrVolunteersFull       = errors.New("volunteer quota reached")
	ErrNotConfirmed         = errors.New("registration is not confirmed")
)

type Repository interface {
	CreateEvents(ctx context.Context, events []*model.Event) error
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	GetAllEvents(ctx context.Context) ([]model.Event, error)
	GetEventsBySeriesID(ctx context.Context, seriesID string) ([]model.Event, error)
	UpdateEvent(ctx context.Context, id string, upd *OccurrenceUpdate) error
	UpdateSeries(ctx context.Context, seriesID string, upd *SeriesUpdate) error
	DeleteEvent(ctx context.Context, id string) error
	DeleteSeries(ctx context.Context, seriesID string) error

	GetUserByID(ctx context.Context, id string) (*model.User, error)

	CreateRegistration(ctx context.Context, reg *model.Registration) error
	GetRegistrationByID(ctx context.Context, id string) (*model.Registration, error)
	GetRegistrationsByUserID(ctx context.Context, userID string) ([]model.Registration, error)
	GetRegistrationsByEventID(ctx context.Context, eventID string) ([]model.Registration, error)
	UpdateRegistrationStatusTx(ctx context.Context, id, newStatus string) error
	SetAttendanceTx(ctx context.Context, id, attendance string) error
	ClaimVolunteerSlotTx(ctx context.Context, eventID string) error

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

// OccurrenceUpdate covers the fields staff may edit on a single occurrence
// without touching the rest of its series.
type OccurrenceUpdate struct {
	Start                sql.NullTime
	End                  sql.NullTime
	WheelchairAccessible bool
}

// SeriesUpdate covers the series-wide fields shared by every occurrence.
type SeriesUpdate struct {
	Title        string
	Description  string
	ImageURL     string
	ContactName  string
	ContactPhone string
	Location     string
	MeetingPoint string
	Cost         *float64
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

const insertEventQuery = `
	INSERT INTO events (id, title, description, start_time, end_time, is_series, series_id,
	                    min_days_required, wheelchair_accessible, cost, location, meeting_point,
	                    image_url, contact_name, contact_phone,
	                    tasks_description, n_volunteers_required, n_volunteers_registered)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
`

// CreateEvents inserts a one-off event or a whole series batch in one
// transaction, so a half-created program never shows up on the calendar.
func (r *repository) CreateEvents(ctx context.Context, events []*model.Event) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	for _, e := range events {
		var tasks sql.NullString
		var required, registered sql.NullInt64
		if e.Volunteer != nil {
			tasks = sql.NullString{String: e.Volunteer.TasksDescription, Valid: true}
			required = sql.NullInt64{Int64: int64(e.Volunteer.Required), Valid: true}
			registered = sql.NullInt64{Int64: int64(e.Volunteer.Registered), Valid: true}
		}

		if _, err := tx.ExecContext(ctx, insertEventQuery,
			e.ID, e.Title, e.Description, e.Start, e.End, e.IsSeries, e.SeriesID,
			e.MinDaysRequired, e.WheelchairAccessible, e.Cost, e.Location, e.MeetingPoint,
			e.ImageURL, e.ContactName, e.ContactPhone,
			tasks, required, registered,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert event %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const selectEventColumns = `
	SELECT id, title, description, start_time, end_time, is_series, series_id,
	       min_days_required, wheelchair_accessible, cost, location, meeting_point,
	       image_url, contact_name, contact_phone,
	       tasks_description, n_volunteers_required, n_volunteers_registered,
	       created_at, updated_at
	FROM events
`

func scanEvent(row interface{ Scan(dest ...any) error }) (*model.Event, error) {
	var e model.Event
	var tasks sql.NullString
	var required, registered sql.NullInt64
	if err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Start, &e.End, &e.IsSeries, &e.SeriesID,
		&e.MinDaysRequired, &e.WheelchairAccessible, &e.Cost, &e.Location, &e.MeetingPoint,
		&e.ImageURL, &e.ContactName, &e.ContactPhone,
		&tasks, &required, &registered,
		&e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if required.Valid {
		e.Volunteer = &model.Volunteer{
			TasksDescription: tasks.String,
			Required:         int(required.Int64),
			Registered:       int(registered.Int64),
		}
	}
	return &e, nil
}

func (r *repository) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx, selectEventColumns+` WHERE id = $1`, id)

	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

func (r *repository) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, selectEventColumns+` ORDER BY start_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}

	return events, rows.Err()
}

func (r *repository) GetEventsBySeriesID(ctx context.Context, seriesID string) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, selectEventColumns+` WHERE series_id = $1 ORDER BY start_time ASC`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to get series events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read series events: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrEventNotFound
	}

	return events, nil
}

func (r *repository) UpdateEvent(ctx context.Context, id string, upd *OccurrenceUpdate) error {
	query := `
		UPDATE events
		SET start_time = COALESCE($1, start_time),
		    end_time = COALESCE($2, end_time),
		    wheelchair_accessible = $3,
		    updated_at = NOW()
		WHERE id = $4
		RETURNING id
	`
	var got string
	if err := r.db.QueryRowContext(ctx, query,
		upd.Start, upd.End, upd.WheelchairAccessible, id,
	).Scan(&got); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEventNotFound
		}
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

func (r *repository) UpdateSeries(ctx context.Context, seriesID string, upd *SeriesUpdate) error {
	query := `
		UPDATE events
		SET title = $1, description = $2, image_url = $3, contact_name = $4,
		    contact_phone = $5, location = $6, meeting_point = $7, cost = $8,
		    updated_at = NOW()
		WHERE series_id = $9
	`
	res, err := r.db.ExecContext(ctx, query,
		upd.Title, upd.Description, upd.ImageURL, upd.ContactName,
		upd.ContactPhone, upd.Location, upd.MeetingPoint, upd.Cost,
		seriesID,
	)
	if err != nil {
		return fmt.Errorf("failed to update series: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *repository) DeleteEvent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *repository) DeleteSeries(ctx context.Context, seriesID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE series_id = $1`, seriesID)
	if err != nil {
		return fmt.Errorf("failed to delete series: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `
		SELECT id, name, email, role, membership
		FROM users WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var u model.User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.Membership); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	parsed, ok := model.ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("user %s has unknown role %q", id, role)
	}
	u.Role = parsed
	return &u, nil
}

func (r *repository) CreateRegistration(ctx context.Context, reg *model.Registration) error {
	query := `
		INSERT INTO registrations (id, user_id, event_id, series_id, role_at_registration,
		                           status, attendance, meeting_preference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	if _, err := r.db.ExecContext(ctx, query,
		reg.ID, reg.UserID, reg.EventID, reg.SeriesID, reg.RoleAtRegistration,
		reg.Status, reg.Attendance, reg.MeetingPreference,
	); err != nil {
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

const selectRegistrationColumns = `
	SELECT id, user_id, event_id, series_id, role_at_registration,
	       status, attendance, meeting_preference, created_at
	FROM registrations
`

func scanRegistration(row interface{ Scan(dest ...any) error }) (*model.Registration, error) {
	var reg model.Registration
	if err := row.Scan(
		&reg.ID, &reg.UserID, &reg.EventID, &reg.SeriesID, &reg.RoleAtRegistration,
		&reg.Status, &reg.Attendance, &reg.MeetingPreference, &reg.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *repository) GetRegistrationByID(ctx context.Context, id string) (*model.Registration, error) {
	row := r.db.QueryRowContext(ctx, selectRegistrationColumns+` WHERE id = $1`, id)

	reg, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

func (r *repository) GetRegistrationsByUserID(ctx context.Context, userID string) ([]model.Registration, error) {
	rows, err := r.db.QueryContext(ctx, selectRegistrationColumns+` WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}

	return regs, rows.Err()
}

func (r *repository) GetRegistrationsByEventID(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.db.QueryContext(ctx, selectRegistrationColumns+` WHERE event_id = $1 ORDER BY created_at ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}

	return regs, rows.Err()
}

func (r *repository) UpdateRegistrationStatusTx(ctx context.Context, id, newStatus string) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	query := `
		UPDATE registrations
		SET status = $1
		WHERE id = $2
		RETURNING id
	`

	var got string
	if err := tx.QueryRowContext(ctx, query, newStatus, id).Scan(&got); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRegistrationNotFound
		}
		return fmt.Errorf("failed to update registration status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SetAttendanceTx records attendance for a registration, but only once staff
// have confirmed it. The status check and the write share one transaction.
func (r *repository) SetAttendanceTx(ctx context.Context, id, attendance string) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status
		FROM registrations
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRegistrationNotFound
		}
		return fmt.Errorf("failed to select registration for attendance: %w", err)
	}

	if status != model.StatusConfirmed {
		_ = tx.Rollback()
		return ErrNotConfirmed
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE registrations
		SET attendance = $1
		WHERE id = $2
	`, attendance, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to set attendance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attendance transaction: %w", err)
	}

	return nil
}

// ClaimVolunteerSlotTx bumps the registered-volunteer counter unless the
// quota is already reached. Locks the event row for the check.
func (r *repository) ClaimVolunteerSlotTx(ctx context.Context, eventID string) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var required, registered sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT n_volunteers_required, n_volunteers_registered
		FROM events
		WHERE id = $1
		FOR UPDATE
	`, eventID).Scan(&required, &registered)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEventNotFound
		}
		return fmt.Errorf("failed to select event for volunteer slot: %w", err)
	}

	if !required.Valid || registered.Int64 >= required.Int64 {
		_ = tx.Rollback()
		return ErrVolunteersFull
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE events
		SET n_volunteers_registered = n_volunteers_registered + 1, updated_at = NOW()
		WHERE id = $1
	`, eventID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to claim volunteer slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit volunteer slot transaction: %w", err)
	}

	return nil
}
