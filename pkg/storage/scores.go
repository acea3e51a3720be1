package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ScoreRequest is a registration with the emulated scoring service.
type ScoreRequest struct {
	SysID        string
	Email        string
	Score        string // empty until scored
	RegisteredAt time.Time
}

// RegisterScore records a scoring request for email. Re-registering clears
// any previous score and issues a new sys_id.
func (d *DB) RegisterScore(ctx context.Context, email string, now time.Time) (string, error) {
	sysID := uuid.NewString()
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO score_requests(sys_id, email, score, registered_at) VALUES(?, ?, NULL, ?)
ON CONFLICT(email) DO UPDATE SET sys_id = excluded.sys_id, score = NULL, registered_at = excluded.registered_at`,
		sysID, email, formatTime(now))
	if err != nil {
		return "", err
	}
	return sysID, nil
}

// GetScore returns the request for email; found is false when none exists.
func (d *DB) GetScore(ctx context.Context, email string) (req ScoreRequest, found bool, err error) {
	var score sql.NullString
	var registeredAt string
	err = d.sql.QueryRowContext(ctx, "SELECT sys_id, email, score, registered_at FROM score_requests WHERE email = ?", email).
		Scan(&req.SysID, &req.Email, &score, &registeredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ScoreRequest{}, false, nil
	}
	if err != nil {
		return ScoreRequest{}, false, err
	}
	req.Score = score.String
	req.RegisteredAt = parseTime(registeredAt)
	return req, true, nil
}

// SetScore stores the finished score for a registered email.
func (d *DB) SetScore(ctx context.Context, email, score string) error {
	res, err := d.sql.ExecContext(ctx, "UPDATE score_requests SET score = ? WHERE email = ?", nullIfEmpty(score), email)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotRegistered
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
