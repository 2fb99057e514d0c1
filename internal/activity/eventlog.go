package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TypeDraftSaved      = "DraftSaved"
	TypeScoresSubmitted = "ScoresSubmitted"
)

// Event is one accepted write to the Admin API, kept locally so an
// evaluator can see what they have worked on.
type Event struct {
	ID            string  `json:"id"`
	Owner         string  `json:"-"`
	Type          string  `json:"type"`
	ApplicationID string  `json:"application_id"`
	RoundID       string  `json:"round_id,omitempty"`
	EditionID     string  `json:"edition_id,omitempty"`
	Total         float64 `json:"total"`
	TotalMax      float64 `json:"total_max"`
	CreatedAt     int64   `json:"created_at"`
}

type Log struct {
	db  *sql.DB
	now func() time.Time
}

func NewLog(db *sql.DB) *Log { return &Log{db: db, now: time.Now} }

func (l *Log) Append(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = l.now().Unix()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO review_events (id, owner, typ, application_id, round_id, edition_id, total, total_max, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.Owner, e.Type, e.ApplicationID, e.RoundID, e.EditionID, e.Total, e.TotalMax, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append review event: %w", err)
	}
	return nil
}

// List returns the newest events for owner first.
func (l *Log) List(ctx context.Context, owner string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, typ, application_id, round_id, edition_id, total, total_max, created_at
		 FROM review_events WHERE owner=$1
		 ORDER BY created_at DESC, id DESC LIMIT $2`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list review events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		e := Event{Owner: owner}
		if err := rows.Scan(&e.ID, &e.Type, &e.ApplicationID, &e.RoundID, &e.EditionID, &e.Total, &e.TotalMax, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
