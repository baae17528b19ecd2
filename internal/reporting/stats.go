// Package reporting reads pre-aggregated appointment metrics through the
// store's reporting functions. Aggregation itself lives in the database.
package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solmedica/clinic-ops/pkg/logging"
)

// StatusCount is one row of the per-status breakdown.
type StatusCount struct {
	Status string `json:"status"`
	Total  int64  `json:"total"`
}

// DailyStats is the pre-aggregated dashboard payload for one clinic day.
type DailyStats struct {
	Day         string        `json:"day"`
	ByStatus    []StatusCount `json:"by_status"`
	Total       int64         `json:"total"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// statsDB defines the database interface needed by Repository.
type statsDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository invokes the reporting functions in the store.
type Repository struct {
	db statsDB
}

// NewRepository creates a reporting repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("reporting: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting a mock database for testing.
func NewRepositoryWithDB(db statsDB) *Repository {
	return &Repository{db: db}
}

// DailyStatusCounts calls the appointment_status_counts reporting function
// for the day containing [start, end).
func (r *Repository) DailyStatusCounts(ctx context.Context, start, end time.Time) (*DailyStats, error) {
	rows, err := r.db.Query(ctx,
		`SELECT status, total FROM appointment_status_counts($1, $2)`, start, end)
	if err != nil {
		return nil, fmt.Errorf("reporting: status counts: %w", err)
	}
	defer rows.Close()

	stats := &DailyStats{
		Day:         start.Format("2006-01-02"),
		ByStatus:    []StatusCount{},
		GeneratedAt: time.Now().UTC(),
	}
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Total); err != nil {
			return nil, fmt.Errorf("reporting: scan status count: %w", err)
		}
		stats.ByStatus = append(stats.ByStatus, c)
		stats.Total += c.Total
	}
	return stats, rows.Err()
}

// dayBounder yields the clinic-day boundaries for "today".
type dayBounder interface {
	Now() time.Time
	DayBounds(t time.Time) (time.Time, time.Time)
}

// Handler serves the dashboard stats endpoint.
type Handler struct {
	repo   *Repository
	zone   dayBounder
	logger *logging.Logger
}

// NewHandler creates a reporting handler.
func NewHandler(repo *Repository, zone dayBounder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, zone: zone, logger: logger}
}

// Today handles GET /api/reports/appointments/today.
func (h *Handler) Today(w http.ResponseWriter, r *http.Request) {
	start, end := h.zone.DayBounds(h.zone.Now())

	stats, err := h.repo.DailyStatusCounts(r.Context(), start, end)
	if err != nil {
		h.logger.Error("failed to load daily stats", "error", err)
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
