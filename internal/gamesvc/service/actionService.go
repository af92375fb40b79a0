package service

import (
	"context"

	"github.com/cassino-games/cassino-services/internal/gamesvc/models"
	"github.com/cassino-games/cassino-services/internal/gamesvc/store"
)

type ActionService struct {
	actionStore *store.ActionLogStore
}

func NewActionService(actionStore *store.ActionLogStore) *ActionService {
	return &ActionService{actionStore: actionStore}
}

func (s *ActionService) Insert(ctx context.Context, e *models.ActionLogEntry) error {
	return s.actionStore.Insert(ctx, e)
}

func (s *ActionService) GetSince(ctx context.Context, roomId string, lastSeen uint64) ([]*models.ActionLogEntry, error) {
	return s.actionStore.GetSince(ctx, roomId, lastSeen)
}

func (s *ActionService) DeleteForRoom(ctx context.Context, roomId string) error {
	return s.actionStore.DeleteForRoom(ctx, roomId)
}
