package service

import (
	"context"

	"github.com/cassino-games/cassino-services/internal/gamesvc/models"
	"github.com/cassino-games/cassino-services/internal/gamesvc/store"
)

type RoomService struct {
	roomStore *store.RoomStore
}

func NewRoomService(roomStore *store.RoomStore) *RoomService {
	return &RoomService{roomStore: roomStore}
}

func (s *RoomService) Upsert(ctx context.Context, room *models.Room) error {
	return s.roomStore.Upsert(ctx, room)
}

func (s *RoomService) GetByID(ctx context.Context, roomId string) (*models.Room, error) {
	return s.roomStore.GetByID(ctx, roomId)
}

func (s *RoomService) Delete(ctx context.Context, roomId string) error {
	return s.roomStore.Delete(ctx, roomId)
}
