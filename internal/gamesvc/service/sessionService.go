package service

import (
	"context"
	"time"

	"github.com/cassino-games/cassino-services/internal/gamesvc/models"
	"github.com/cassino-games/cassino-services/internal/gamesvc/store"
	log "github.com/sirupsen/logrus"
)

// SessionService mirrors the in-memory session table into the database so
// sessions survive a process restart within their TTL.
type SessionService struct {
	sessionStore *store.SessionStore
}

func NewSessionService(sessionStore *store.SessionStore) *SessionService {
	return &SessionService{sessionStore: sessionStore}
}

func (s *SessionService) Upsert(ctx context.Context, sess *models.Session) error {
	return s.sessionStore.Upsert(ctx, sess)
}

func (s *SessionService) DeleteExpired(ctx context.Context) (int64, error) {
	return s.sessionStore.DeleteExpired(ctx)
}

// Run clears expired session rows periodically, the durable counterpart of
// the in-memory reaper.
func (s *SessionService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.DeleteExpired(ctx)
			if err != nil {
				log.Warnf("unable to delete expired session rows: %v", err)
				continue
			}
			if n > 0 {
				log.Infof("deleted %d expired session row(s)", n)
			}
		}
	}
}
