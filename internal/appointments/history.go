package appointments

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder appends accepted transitions to the immutable history.
type Recorder interface {
	Record(ctx context.Context, entry HistoryEntry) error
}

// HistoryStore persists appointment history rows. Rows are append-only:
// nothing here updates or deletes them, and consumers order by changed_at
// rather than arrival order, since a racing second transition may land its
// entry first.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates a new history store.
func NewHistoryStore(db *sql.DB) *HistoryStore {
	if db == nil {
		panic("appointments: history db required")
	}
	return &HistoryStore{db: db}
}

// Record inserts one history entry. Called after the primary status commit;
// the caller treats failure as a warning, never as grounds for rollback.
func (s *HistoryStore) Record(ctx context.Context, entry HistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO appointment_history (
			id, appointment_id, previous_status, new_status,
			changed_at, changed_by, note, previous_scheduled_at, new_scheduled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.AppointmentID,
		entry.PreviousStatus,
		entry.NewStatus,
		entry.ChangedAt,
		nullString(entry.ChangedBy),
		nullString(entry.Note),
		nullTime(entry.PreviousScheduledAt),
		nullTime(entry.NewScheduledAt),
	)
	if err != nil {
		return fmt.Errorf("appointments: record history entry: %w", err)
	}
	return nil
}

// ListByAppointment returns the full history for an appointment ordered by
// changed_at ascending.
func (s *HistoryStore) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	query := `
		SELECT id, appointment_id, previous_status, new_status,
		       changed_at, changed_by, note, previous_scheduled_at, new_scheduled_at
		FROM appointment_history
		WHERE appointment_id = $1
		ORDER BY changed_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var changedBy, note sql.NullString
		var prevAt, newAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.PreviousStatus, &e.NewStatus,
			&e.ChangedAt, &changedBy, &note, &prevAt, &newAt); err != nil {
			return nil, fmt.Errorf("appointments: scan history entry: %w", err)
		}
		e.ChangedBy = changedBy.String
		e.Note = note.String
		if prevAt.Valid {
			t := prevAt.Time
			e.PreviousScheduledAt = &t
		}
		if newAt.Valid {
			t := newAt.Time
			e.NewScheduledAt = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
