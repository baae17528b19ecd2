package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// appointmentsDB is the slice of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type appointmentsDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// activeStatuses are the states that hold a calendar slot. Cancelled,
// superseded, and completed appointments release it.
var activeStatuses = []string{
	string(StatusProgramada),
	string(StatusConfirmada),
	string(StatusPresente),
}

const appointmentColumns = `id, patient_id, doctor_id, scheduled_at, reasons, status, is_first_visit, notes, created_at, updated_at`

// Repository persists appointments in Postgres.
type Repository struct {
	db appointmentsDB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting a mock database for testing.
func NewRepositoryWithDB(db appointmentsDB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new appointment. The caller decides the initial status;
// the store-level partial unique index on (doctor_id, scheduled_at) is the
// authoritative guard against double booking.
func (r *Repository) Create(ctx context.Context, appt *Appointment) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, scheduled_at, reasons, status, is_first_visit, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		appt.ID, appt.PatientID, appt.DoctorID, appt.ScheduledAt,
		appt.Reasons, appt.Status, appt.IsFirstVisit, appt.Notes)
	if err := row.Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// Get loads a single appointment. Returns ErrNotFound when absent.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var a Appointment
	err := r.db.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id).
		Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduledAt, &a.Reasons,
			&a.Status, &a.IsFirstVisit, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: load %s: %w", id, err)
	}
	if a.Reasons == nil {
		a.Reasons = []string{}
	}
	return &a, nil
}

// ApplyTransition commits an accepted status change, optionally moving the
// slot and appending a note. Returns the row as persisted.
func (r *Repository) ApplyTransition(ctx context.Context, id uuid.UUID, newStatus Status, newScheduledAt *time.Time) (*Appointment, error) {
	var a Appointment
	err := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    scheduled_at = COALESCE($3, scheduled_at),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, newStatus, newScheduledAt).
		Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduledAt, &a.Reasons,
			&a.Status, &a.IsFirstVisit, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: apply transition on %s: %w", id, err)
	}
	if a.Reasons == nil {
		a.Reasons = []string{}
	}
	return &a, nil
}

// UpdateFields applies a partial non-status edit. Absent fields keep their
// stored values.
func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	set := "updated_at = now()"
	args := []any{id}
	argIdx := 2

	add := func(column string, value any) {
		set += fmt.Sprintf(", %s = $%d", column, argIdx)
		args = append(args, value)
		argIdx++
	}

	if req.DoctorID != nil {
		add("doctor_id", *req.DoctorID)
	}
	if req.ScheduledAt != nil {
		add("scheduled_at", *req.ScheduledAt)
	}
	if req.Reasons != nil {
		add("reasons", req.Reasons)
	}
	if req.IsFirstVisit != nil {
		add("is_first_visit", *req.IsFirstVisit)
	}
	if req.Notes != nil {
		add("notes", *req.Notes)
	}

	var a Appointment
	err := r.db.QueryRow(ctx,
		`UPDATE appointments SET `+set+` WHERE id = $1 RETURNING `+appointmentColumns, args...).
		Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduledAt, &a.Reasons,
			&a.Status, &a.IsFirstVisit, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: update %s: %w", id, err)
	}
	if a.Reasons == nil {
		a.Reasons = []string{}
	}
	return &a, nil
}

// CountActiveAt counts active appointments occupying the exact doctor/instant
// slot, excluding the appointment being mutated so rescheduling onto one's
// own slot is never a false conflict.
func (r *Repository) CountActiveAt(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE doctor_id = $1 AND scheduled_at = $2 AND id <> $3 AND status = ANY($4)`,
		doctorID, at, excludeID, activeStatuses).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("appointments: count active at slot: %w", err)
	}
	return count, nil
}

// IsSlotUniqueViolation reports whether err is the store-level unique
// constraint rejecting a double-booked slot. That constraint is the last
// line of defense when two writers race past the in-process check.
func IsSlotUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
