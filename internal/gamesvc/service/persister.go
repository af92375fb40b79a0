package service

import (
	"context"
	"time"

	"github.com/cassino-games/cassino-services/internal/gamesvc/actionlog"
	"github.com/cassino-games/cassino-services/internal/gamesvc/engine"
	"github.com/cassino-games/cassino-services/internal/gamesvc/models"
	log "github.com/sirupsen/logrus"
)

const (
	persistQueueSize   = 256
	persistMaxAttempts = 3
)

type persistJob struct {
	room         *models.Room
	entry        *models.ActionLogEntry
	deleteRoomId string
	attempts     int
}

// Persister queues durable writes behind the in-memory commit. A failed
// write is retried a few times and logged; it never fails the move that
// produced it. If the database stays down across a restart, the in-memory
// rooms are gone and clients re-sync through the room-not-found path.
type Persister struct {
	rooms   *RoomService
	actions *ActionService
	jobs    chan persistJob
}

func NewPersister(rooms *RoomService, actions *ActionService) *Persister {
	return &Persister{
		rooms:   rooms,
		actions: actions,
		jobs:    make(chan persistJob, persistQueueSize),
	}
}

// SaveRoom enqueues the room blob write. Non-blocking: when the queue is
// full the write is dropped with a warning, inside the bounded-loss window.
func (p *Persister) SaveRoom(roomId string, phase engine.Phase, version uint64, state []byte) {
	p.enqueue(persistJob{room: &models.Room{
		Id:      roomId,
		Phase:   string(phase),
		Version: version,
		State:   state,
	}})
}

// AppendAction enqueues the durable copy of one log entry.
func (p *Persister) AppendAction(e *actionlog.Entry) {
	p.enqueue(persistJob{entry: &models.ActionLogEntry{
		RoomId:     e.RoomId,
		Sequence:   e.Sequence,
		ActionType: e.ActionType,
		Payload:    e.Payload,
		Version:    e.Version,
		CreatedAt:  e.Timestamp,
	}})
}

// DeleteRoom enqueues removal of the room's durable rows after archival.
func (p *Persister) DeleteRoom(roomId string) {
	p.enqueue(persistJob{deleteRoomId: roomId})
}

func (p *Persister) enqueue(job persistJob) {
	select {
	case p.jobs <- job:
	default:
		log.Warnf("persistence queue full, dropping a durable write")
	}
}

// Run drains the queue until ctx is done.
func (p *Persister) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.process(ctx, job)
		}
	}
}

func (p *Persister) process(ctx context.Context, job persistJob) {
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	switch {
	case job.room != nil:
		err = p.rooms.Upsert(wctx, job.room)
	case job.entry != nil:
		err = p.actions.Insert(wctx, job.entry)
	case job.deleteRoomId != "":
		if err = p.actions.DeleteForRoom(wctx, job.deleteRoomId); err == nil {
			err = p.rooms.Delete(wctx, job.deleteRoomId)
		}
	}
	if err == nil {
		return
	}

	job.attempts++
	if job.attempts >= persistMaxAttempts {
		log.Errorf("persistence unavailable, giving up on a durable write: %v", err)
		return
	}
	log.Warnf("persistence unavailable, flagged for retry (%d/%d): %v", job.attempts, persistMaxAttempts, err)
	p.enqueue(job)
}
