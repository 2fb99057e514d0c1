package draft

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLKV stores drafts in the portal database (table draft_kv, created by
// db.Open). Works on sqlite and postgres.
type SQLKV struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLKV returns a KV over db. A zero ttl keeps values until removed.
func NewSQLKV(db *sql.DB, ttl time.Duration) *SQLKV {
	return &SQLKV{db: db, ttl: ttl, now: time.Now}
}

func (s *SQLKV) Get(ctx context.Context, key string) (string, error) {
	var v string
	var expires sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT v, expires_at FROM draft_kv WHERE k=$1`, key,
	).Scan(&v, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if expires.Valid && expires.Int64 <= s.now().Unix() {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *SQLKV) Set(ctx context.Context, key, value string) error {
	now := s.now()
	var expires sql.NullInt64
	if s.ttl > 0 {
		expires = sql.NullInt64{Int64: now.Add(s.ttl).Unix(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO draft_kv (k, v, updated_at, expires_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (k) DO UPDATE SET v=EXCLUDED.v, updated_at=EXCLUDED.updated_at, expires_at=EXCLUDED.expires_at`,
		key, value, now.Unix(), expires)
	return err
}

func (s *SQLKV) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM draft_kv WHERE k=$1`, key)
	return err
}
