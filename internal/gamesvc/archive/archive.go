package archive

import (
	"context"
	"net/url"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cassino-games/cassino-services/internal/gamesvc/actionlog"
)

const collectionName = "archived_rooms"

// Archiver stores finished and abandoned rooms in Mongo, where a TTL index
// on expires_at ages them out without any sweeping of our own.
type Archiver struct {
	col       *mongo.Collection
	retention time.Duration
}

// Connect opens the archive database named by MONGODB_URI. An unset URI
// returns nil: archival is optional and finished rooms are then simply
// dropped from memory.
func Connect(retention time.Duration) (*Archiver, context.CancelFunc, error) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		return nil, nil, nil
	}

	uri, err := url.Parse(mongoURI)
	if err != nil {
		return nil, nil, err
	}
	dbName := strings.TrimPrefix(uri.Path, "/")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		cancel()
		return nil, nil, err
	}

	a := &Archiver{
		col:       client.Database(dbName).Collection(collectionName),
		retention: retention,
	}
	if err := a.ensureTTLIndex(ctx); err != nil {
		cancel()
		return nil, nil, err
	}
	return a, cancel, nil
}

func (a *Archiver) ensureTTLIndex(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys:    bson.M{"expires_at": 1},
		Options: options.Index().SetExpireAfterSeconds(0), // expire at the document's own expires_at
	}
	_, err := a.col.Indexes().CreateOne(ctx, indexModel)
	return err
}

type archivedRoom struct {
	RoomId    string             `bson:"room_id"`
	State     []byte             `bson:"state"`
	Log       []*actionlog.Entry `bson:"log"`
	CreatedAt time.Time          `bson:"created_at"`
	ExpiresAt time.Time          `bson:"expires_at"`
}

// ArchiveRoom writes the final state blob and full action log of a room.
func (a *Archiver) ArchiveRoom(ctx context.Context, roomId string, state []byte, entries []*actionlog.Entry) error {
	now := time.Now()
	_, err := a.col.InsertOne(ctx, archivedRoom{
		RoomId:    roomId,
		State:     state,
		Log:       entries,
		CreatedAt: now,
		ExpiresAt: now.Add(a.retention),
	})
	return err
}
