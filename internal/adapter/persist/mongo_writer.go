package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/webitel/im-support-service/internal/domain/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	sessionsCollection = "sessions"
	messagesCollection = "messages"
)

// MongoWriter stores sessions (one upserted document per session) and chat
// messages (append only).
type MongoWriter struct {
	client   *mongo.Client
	sessions *mongo.Collection
	messages *mongo.Collection
}

func NewMongoWriter(ctx context.Context, uri, database string, timeout time.Duration) (*MongoWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(database)
	return &MongoWriter{
		client:   client,
		sessions: db.Collection(sessionsCollection),
		messages: db.Collection(messagesCollection),
	}, nil
}

type sessionDoc struct {
	UserIDs   []int64    `bson:"user_ids"`
	StartedAt time.Time  `bson:"started_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty"`
	Reason    string     `bson:"reason,omitempty"`
}

type messageDoc struct {
	SessionID string    `bson:"session_id"`
	SenderID  int64     `bson:"sender_id"`
	Text      string    `bson:"text"`
	SentAt    time.Time `bson:"sent_at"`
}

func toSessionDoc(rec *model.SessionRecord) sessionDoc {
	return sessionDoc{
		UserIDs:   []int64{int64(rec.UserIDs[0]), int64(rec.UserIDs[1])},
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
		Reason:    rec.Reason,
	}
}

func toMessageDoc(rec *model.ChatRecord) messageDoc {
	return messageDoc{
		SessionID: rec.SessionID.String(),
		SenderID:  int64(rec.SenderID),
		Text:      rec.Text,
		SentAt:    rec.SentAt,
	}
}

func (w *MongoWriter) WriteChat(ctx context.Context, rec *model.ChatRecord) error {
	if _, err := w.messages.InsertOne(ctx, toMessageDoc(rec)); err != nil {
		return fmt.Errorf("mongo insert message: %w", err)
	}
	return nil
}

// WriteSession upserts by session id, so the start and end writes may
// arrive in either order without losing the end time.
func (w *MongoWriter) WriteSession(ctx context.Context, rec *model.SessionRecord) error {
	_, err := w.sessions.UpdateOne(ctx,
		bson.M{"_id": rec.SessionID.String()},
		bson.M{"$set": toSessionDoc(rec)},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo upsert session: %w", err)
	}
	return nil
}

func (w *MongoWriter) Close(ctx context.Context) error {
	return w.client.Disconnect(ctx)
}
