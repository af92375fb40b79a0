package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassino-games/cassino-services/internal/gamesvc/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomStore struct {
	db *pgxpool.Pool
}

func NewRoomStore(db *pgxpool.Pool) *RoomStore {
	return &RoomStore{db: db}
}

// Upsert writes the room row after an in-memory commit, replacing any
// previous version of the blob.
func (s *RoomStore) Upsert(ctx context.Context, room *models.Room) error {
	query := `
		INSERT INTO rooms (id, phase, version, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET phase = $2, version = $3, state = $4, updated_at = NOW()
	`

	_, err := s.db.Exec(ctx, query, room.Id, room.Phase, room.Version, room.State)
	if err != nil {
		return fmt.Errorf("failed to upsert room: %w", err)
	}
	return nil
}

func (s *RoomStore) GetByID(ctx context.Context, roomId string) (*models.Room, error) {
	query := `
		SELECT id, phase, version, state, created_at, updated_at
		FROM rooms
		WHERE id = $1
	`

	room := &models.Room{}
	err := s.db.QueryRow(ctx, query, roomId).Scan(
		&room.Id,
		&room.Phase,
		&room.Version,
		&room.State,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // room not found
		}
		return nil, fmt.Errorf("failed to get room by ID: %w", err)
	}

	return room, nil
}

// Delete removes an archived room row.
func (s *RoomStore) Delete(ctx context.Context, roomId string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomId)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}
