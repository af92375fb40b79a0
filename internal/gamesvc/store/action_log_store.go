package store

import (
	"context"
	"fmt"

	"github.com/cassino-games/cassino-services/internal/gamesvc/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ActionLogStore struct {
	db *pgxpool.Pool
}

func NewActionLogStore(db *pgxpool.Pool) *ActionLogStore {
	return &ActionLogStore{db: db}
}

// Insert appends one committed action. Sequence numbers are assigned by
// the room's serialized path, so a conflicting row means a duplicate
// delivery and is ignored.
func (s *ActionLogStore) Insert(ctx context.Context, e *models.ActionLogEntry) error {
	query := `
		INSERT INTO action_log (room_id, sequence, action_type, payload, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_id, sequence) DO NOTHING
	`

	_, err := s.db.Exec(ctx, query,
		e.RoomId, e.Sequence, e.ActionType, e.Payload, e.Version, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert action log entry: %w", err)
	}
	return nil
}

// GetSince loads the entries of a room after a sequence number, in order.
func (s *ActionLogStore) GetSince(ctx context.Context, roomId string, lastSeen uint64) ([]*models.ActionLogEntry, error) {
	query := `
		SELECT room_id, sequence, action_type, payload, version, created_at
		FROM action_log
		WHERE room_id = $1 AND sequence > $2
		ORDER BY sequence
	`

	rows, err := s.db.Query(ctx, query, roomId, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("failed to query action log: %w", err)
	}
	defer rows.Close()

	var entries []*models.ActionLogEntry
	for rows.Next() {
		e := &models.ActionLogEntry{}
		if err := rows.Scan(&e.RoomId, &e.Sequence, &e.ActionType, &e.Payload, &e.Version, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteForRoom truncates a room's log after archival.
func (s *ActionLogStore) DeleteForRoom(ctx context.Context, roomId string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM action_log WHERE room_id = $1`, roomId)
	if err != nil {
		return fmt.Errorf("failed to delete action log for room: %w", err)
	}
	return nil
}
