// Package meetinglog persists meeting lifecycle events when a database is
// configured. Live relay state never depends on it.
package meetinglog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types recorded in meeting_events.
const (
	EventCreated    = "created"
	EventEnded      = "ended"
	EventHostChange = "host_change"
)

// EventRow is one row for GET /meeting-history.
type EventRow struct {
	MeetingID  string    `json:"meeting_id"`
	EventType  string    `json:"event_type"`
	Actor      string    `json:"actor"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Repository handles meeting_events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a meeting log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LogCreated records a meeting being created with its first host.
func (r *Repository) LogCreated(ctx context.Context, meetingID, host string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO meeting_events (meeting_id, event_type, actor) VALUES ($1, $2, $3)`,
		meetingID, EventCreated, host)
	return err
}

// LogEnded records a meeting ending, with why (host ended, last participant left).
func (r *Repository) LogEnded(ctx context.Context, meetingID, actor, reason string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO meeting_events (meeting_id, event_type, actor, detail) VALUES ($1, $2, $3, $4)`,
		meetingID, EventEnded, actor, reason)
	return err
}

// LogHostChange records host failover to a new participant.
func (r *Repository) LogHostChange(ctx context.Context, meetingID, newHost string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO meeting_events (meeting_id, event_type, actor) VALUES ($1, $2, $3)`,
		meetingID, EventHostChange, newHost)
	return err
}

// ListRecent returns the most recent events, newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]EventRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT meeting_id, event_type, actor, detail, occurred_at
		 FROM meeting_events ORDER BY occurred_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []EventRow
	for rows.Next() {
		var row EventRow
		if err := rows.Scan(&row.MeetingID, &row.EventType, &row.Actor, &row.Detail, &row.OccurredAt); err != nil {
			return nil, err
		}
		list = append(list, row)
	}
	return list, rows.Err()
}
