package store

import (
	"context"
	"fmt"

	"github.com/cassino-games/cassino-services/internal/gamesvc/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

// Upsert records a session by its (player, room) slot so a superseding
// token replaces the stale row rather than adding a duplicate.
func (s *SessionStore) Upsert(ctx context.Context, sess *models.Session) error {
	query := `
		INSERT INTO sessions (token, player_id, room_id, last_heartbeat, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (player_id, room_id) DO UPDATE
		SET token = $1, last_heartbeat = $4, expires_at = $5
	`

	_, err := s.db.Exec(ctx, query,
		sess.Token, sess.PlayerId, sess.RoomId, sess.LastHeartbeat, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// DeleteExpired clears rows past their expiry and returns how many went.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
