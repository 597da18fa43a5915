package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/google/uuid"
)

const DefaultHistoryLimit = 50

func messagePrefix(room domain.RoomID) string { return fmt.Sprintf("msg:%s:", room) }

// messageKey is "msg:{room}:{unixnano, 19 digits}:{id}" so a prefix scan
// walks a room's history in time order and equal timestamps stay distinct.
func messageKey(m domain.Message) string {
	return fmt.Sprintf("%s%019d:%s", messagePrefix(m.RoomID), m.CreatedAt.UnixNano(), m.ID)
}

// CreateMessage stores a text message from sender and returns its id and
// timestamp.
func (s *Store) CreateMessage(_ context.Context, content string, sender domain.UserID, room domain.RoomID) (domain.MessageRecord, error) {
	m := domain.Message{
		ID:        domain.MessageID(uuid.NewString()),
		RoomID:    room,
		SenderID:  sender,
		Content:   content,
		Type:      domain.TextMessage,
		CreatedAt: time.Now().UTC(),
	}
	err := s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(roomKey(room))); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrRoomNotFound
			}
			return err
		}
		ident, err := identityOf(txn, sender)
		if err != nil {
			return err
		}
		m.Username = ident.Username
		return setJSON(txn, messageKey(m), m)
	})
	if err != nil {
		return domain.MessageRecord{}, notFound(err, domain.ErrUserNotFound, "create message")
	}
	return domain.MessageRecord{ID: m.ID, CreatedAt: m.CreatedAt}, nil
}

// GetMessages returns up to limit messages of room created strictly before
// before (or the newest ones when before is zero), oldest first.
func (s *Store) GetMessages(_ context.Context, room domain.RoomID, limit int, before time.Time) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	prefix := []byte(messagePrefix(room))
	var seek []byte
	if before.IsZero() {
		seek = append(slices.Clone(prefix), []byte("9999999999999999999")...)
	} else {
		// one below before, with a trailing byte above ':' so the seek lands on
		// the last key of that nanosecond.
		seek = fmt.Appendf(slices.Clone(prefix), "%019d;", before.UnixNano()-1)
	}

	out := make([]domain.Message, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(roomKey(room))); err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var m domain.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, notFound(err, domain.ErrRoomNotFound, "get messages")
	}
	slices.Reverse(out)
	return out, nil
}
