package patients

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	id := uuid.New()
	created := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, first_name, last_name, phone, email, allergies, created_at`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "first_name", "last_name", "phone", "email", "allergies", "created_at"}).
			AddRow(id, "Ana", "Reyes", "+525512345678", "ana@example.com",
				pq.Array([]string{"penicillin"}), created))

	p, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Ana Reyes", p.DisplayName())
	assert.Equal(t, []string{"penicillin"}, p.Allergies)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	id := uuid.New()

	mock.ExpectQuery(`SELECT id, first_name, last_name, phone, email, allergies, created_at`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "first_name", "last_name", "phone", "email", "allergies", "created_at"}))

	_, err = store.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDisplayNameTrims(t *testing.T) {
	p := &Patient{FirstName: "Luis", LastName: ""}
	assert.Equal(t, "Luis", p.DisplayName())
}
