package badgerdb

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/99minutos/direct-messaging/internal/core/domain"
)

// MessageStore implements ports.MessageStore on badger.
//
// Each message is written once under "msg:{nanos}:{id}" and indexed for both
// participants under "conv:{username}\x00{nanos}:{id}". The 19-digit padded
// timestamp keeps lexicographic and chronological order identical.
type MessageStore struct {
	db *badger.DB
}

func NewMessageStore(db *badger.DB) *MessageStore {
	return &MessageStore{db: db}
}

type diskMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Append writes the message and both conversation index entries in one
// transaction.
func (s *MessageStore) Append(ctx context.Context, msg *domain.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	at := msg.SentAt.UTC()
	data, err := json.Marshal(diskMessage{
		ID:        id,
		Sender:    msg.Sender,
		Receiver:  msg.Receiver,
		Message:   msg.Body,
		Timestamp: at,
	})
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	suffix := fmt.Sprintf("%019d:%s", at.UnixNano(), id)
	primary := []byte("msg:" + suffix)

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, data); err != nil {
			return err
		}
		for _, name := range participants(msg) {
			if err := txn.Set(convKey(name, suffix), primary); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store message: %w", err)
	}
	return id, nil
}

// History scans the user's conversation index newest first and returns the
// result oldest first.
func (s *MessageStore) History(ctx context.Context, username string, limit int) ([]*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := convPrefix(username)
	var msgs []*domain.Message

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(slices.Clone(prefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(msgs) == limit {
				break
			}
			primary, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			item, err := txn.Get(primary)
			if err != nil {
				return fmt.Errorf("conversation index points at %q: %w", primary, err)
			}

			var dm diskMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &dm)
			}); err != nil {
				return err
			}
			msgs = append(msgs, &domain.Message{
				ID:       dm.ID,
				Sender:   dm.Sender,
				Receiver: dm.Receiver,
				Body:     dm.Message,
				SentAt:   dm.Timestamp.UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("message history: %w", err)
	}

	slices.Reverse(msgs)
	return msgs, nil
}

func participants(msg *domain.Message) []string {
	if msg.Sender == msg.Receiver {
		return []string{msg.Sender}
	}
	return []string{msg.Sender, msg.Receiver}
}

func convPrefix(username string) []byte {
	return []byte("conv:" + username + "\x00")
}

func convKey(username, suffix string) []byte {
	return append(convPrefix(username), suffix...)
}
