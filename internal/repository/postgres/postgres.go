package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lawvriksh/referral-engine/internal/models"
	"github.com/lawvriksh/referral-engine/internal/repository"

	"github.com/lib/pq"
)

// Repository implements ShareRepository backed by PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE users (
//	    id         TEXT PRIMARY KEY,
//	    name       TEXT NOT NULL,
//	    joined_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE share_events (
//	    id             TEXT PRIMARY KEY,
//	    user_id        TEXT NOT NULL,
//	    platform       TEXT NOT NULL,
//	    shared_at      TIMESTAMPTZ NOT NULL,
//	    rewarded       BOOLEAN NOT NULL,
//	    points_awarded INTEGER NOT NULL
//	);
//	CREATE UNIQUE INDEX share_events_rewarded_once
//	    ON share_events (user_id, platform) WHERE rewarded;
//
// The partial unique index is what makes first-share-per-platform hold
// across concurrent writers and restarts.
type Repository struct {
	db *sql.DB
}

func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateShareEvent(ctx context.Context, evt models.ShareEvent) error {
	const query = `
		INSERT INTO share_events
		(id, user_id, platform, shared_at, rewarded, points_awarded)
		VALUES ($1,$2,$3,$4,$5,$6)
	`
	_, err := r.db.ExecContext(ctx, query,
		evt.ID, evt.UserID, string(evt.Platform), evt.SharedAt, evt.Rewarded, evt.PointsAwarded)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateShare
		}
		return err
	}
	return nil
}

func (r *Repository) HasRewardedShare(ctx context.Context, userID string, platform models.Platform) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM share_events
			WHERE user_id = $1 AND platform = $2 AND rewarded
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, string(platform)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *Repository) CountRewardedShares(ctx context.Context, userID string) (int, error) {
	const query = `
		SELECT COUNT(*) FROM share_events
		WHERE user_id = $1 AND rewarded
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) SumAwardedPoints(ctx context.Context, userID string) (int, error) {
	const query = `
		SELECT COALESCE(SUM(points_awarded), 0) FROM share_events
		WHERE user_id = $1
	`
	var sum int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

func (r *Repository) ListShareEvents(ctx context.Context) ([]models.ShareEvent, error) {
	const query = `
		SELECT id, user_id, platform, shared_at, rewarded, points_awarded
		FROM share_events
		ORDER BY shared_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanShareEvents(rows)
}

func (r *Repository) ListShareEventsSince(ctx context.Context, since time.Time) ([]models.ShareEvent, error) {
	const query = `
		SELECT id, user_id, platform, shared_at, rewarded, points_awarded
		FROM share_events
		WHERE shared_at >= $1
		ORDER BY shared_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanShareEvents(rows)
}

func (r *Repository) UpsertUser(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (id, name, joined_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Name, user.JoinedAt)
	return err
}

func (r *Repository) GetUser(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, name, joined_at FROM users WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	var user models.User
	if err := row.Scan(&user.ID, &user.Name, &user.JoinedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	const query = `SELECT id, name, joined_at FROM users ORDER BY joined_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Name, &user.JoinedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanShareEvents(rows *sql.Rows) ([]models.ShareEvent, error) {
	out := []models.ShareEvent{}
	for rows.Next() {
		var evt models.ShareEvent
		var platform string
		if err := rows.Scan(&evt.ID, &evt.UserID, &platform, &evt.SharedAt, &evt.Rewarded, &evt.PointsAwarded); err != nil {
			return nil, err
		}
		evt.Platform = models.Platform(platform)
		out = append(out, evt)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
