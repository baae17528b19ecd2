// Package patients provides read access to patient records. The patient
// subsystem owns the data; this is a weak-reference lookup only.
package patients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrNotFound is returned when the patient does not exist.
var ErrNotFound = errors.New("patient not found")

// Patient is the subset of the patient record this service reads.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Allergies []string  `json:"allergies"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns the patient's name for dashboards and summaries.
func (p *Patient) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Store reads patient rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a patient store.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		panic("patients: db required")
	}
	return &Store{db: db}
}

// Get loads a single patient. Returns ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, phone, email, allergies, created_at
		FROM patients WHERE id = $1`, id).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.Phone, &p.Email,
			pq.Array(&p.Allergies), &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patients: load %s: %w", id, err)
	}
	if p.Allergies == nil {
		p.Allergies = []string{}
	}
	return &p, nil
}
