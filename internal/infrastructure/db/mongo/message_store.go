package mongo

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/99minutos/direct-messaging/internal/core/domain"
)

const messagesCollection = "messages"

// MessageStore implements ports.MessageStore using MongoDB. Appends use a
// journaled majority write concern so an acknowledged insert survives a
// restart.
type MessageStore struct {
	coll *mongo.Collection
}

// NewMessageStore creates a new MessageStore.
func NewMessageStore(db *mongo.Database) *MessageStore {
	wc := writeconcern.Majority()
	wc.Journal = boolPtr(true)
	return &MessageStore{
		coll: db.Collection(messagesCollection, options.Collection().SetWriteConcern(wc)),
	}
}

type mongoMessage struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Sender    string             `bson:"sender"`
	Receiver  string             `bson:"receiver"`
	Message   string             `bson:"message"`
	Timestamp time.Time          `bson:"timestamp"`
}

// Append inserts msg and returns the generated ObjectID as hex.
func (s *MessageStore) Append(ctx context.Context, msg *domain.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoMessage{
		ID:        primitive.NewObjectID(),
		Sender:    msg.Sender,
		Receiver:  msg.Receiver,
		Message:   msg.Body,
		Timestamp: msg.SentAt.UTC(),
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return doc.ID.Hex(), nil
}

// History returns the newest limit messages involving username, oldest first.
func (s *MessageStore) History(ctx context.Context, username string, limit int) ([]*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"$or": bson.A{
		bson.M{"sender": username},
		bson.M{"receiver": username},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoMessage
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	msgs := make([]*domain.Message, 0, len(docs))
	for _, d := range docs {
		msgs = append(msgs, &domain.Message{
			ID:       d.ID.Hex(),
			Sender:   d.Sender,
			Receiver: d.Receiver,
			Body:     d.Message,
			SentAt:   d.Timestamp.UTC(),
		})
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// EnsureIndexes creates the indexes used by History.
func (s *MessageStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "timestamp", Value: -1}}},
	}

	_, err := s.coll.Indexes().CreateMany(ctx, indexes)
	return err
}

func boolPtr(b bool) *bool { return &b }
