package storage

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const roomPrefix = "room:"

func roomKey(id domain.RoomID) string { return roomPrefix + string(id) }

// CreateRoom persists r under a fresh id unless one is set. The owner is
// always the first member.
func (s *Store) CreateRoom(_ context.Context, r domain.Room) (domain.Room, error) {
	if r.ID == "" {
		r.ID = domain.RoomID(uuid.NewString())
	}
	if r.Visibility == "" {
		r.Visibility = domain.Public
	}
	r.CreatedAt = time.Now().UTC()
	r.Members = []domain.UserID{r.Owner}
	err := s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(roomKey(r.ID))); err == nil {
			return domain.ErrConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if _, err := identityOf(txn, r.Owner); err != nil {
			return err
		}
		return setJSON(txn, roomKey(r.ID), r)
	})
	if err != nil {
		return domain.Room{}, notFound(err, domain.ErrUserNotFound, "create room")
	}
	log.Info().Str("module", "storage").Str("room", string(r.ID)).Str("user", string(r.Owner)).Msg("room created")
	return r, nil
}

func (s *Store) GetRoom(_ context.Context, id domain.RoomID) (domain.Room, error) {
	var r domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, roomKey(id), &r)
	})
	return r, notFound(err, domain.ErrRoomNotFound, "get room")
}

// ListRooms returns public rooms and the private rooms viewer belongs to,
// oldest first.
func (s *Store) ListRooms(_ context.Context, viewer domain.UserID) ([]domain.Room, error) {
	var rooms []domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(roomPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r domain.Room
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			rooms = append(rooms, r)
		}
		return nil
	})
	if err != nil {
		return nil, domain.Persistence("list rooms", err)
	}
	rooms = lo.Filter(rooms, func(r domain.Room, _ int) bool {
		return !r.IsPrivate() || r.HasMember(viewer)
	})
	sort.SliceStable(rooms, func(i, j int) bool { return rooms[i].CreatedAt.Before(rooms[j].CreatedAt) })
	return rooms, nil
}

// GetRoomMembers resolves the persisted members of a room to identities.
// Members whose user record vanished are skipped.
func (s *Store) GetRoomMembers(_ context.Context, id domain.RoomID) (domain.RoomMembers, error) {
	var out domain.RoomMembers
	err := s.db.View(func(txn *badger.Txn) error {
		var r domain.Room
		if err := getJSON(txn, roomKey(id), &r); err != nil {
			return err
		}
		out.Visibility = r.Visibility
		out.Members = make([]domain.Identity, 0, len(r.Members))
		for _, uid := range r.Members {
			ident, err := identityOf(txn, uid)
			if errors.Is(err, badger.ErrKeyNotFound) {
				log.Warn().Str("module", "storage").Str("room", string(id)).Str("user", string(uid)).Msg("member without user record")
				continue
			}
			if err != nil {
				return err
			}
			out.Members = append(out.Members, ident)
		}
		return nil
	})
	return out, notFound(err, domain.ErrRoomNotFound, "get room members")
}

func (s *Store) AddMember(_ context.Context, id domain.RoomID, user domain.UserID) error {
	err := s.update(func(txn *badger.Txn) error {
		var r domain.Room
		if err := getJSON(txn, roomKey(id), &r); err != nil {
			return err
		}
		if r.HasMember(user) {
			return nil
		}
		if _, err := identityOf(txn, user); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}
		r.Members = append(r.Members, user)
		return setJSON(txn, roomKey(id), r)
	})
	return notFound(err, domain.ErrRoomNotFound, "add member")
}

func (s *Store) RemoveMember(_ context.Context, id domain.RoomID, user domain.UserID) error {
	err := s.update(func(txn *badger.Txn) error {
		var r domain.Room
		if err := getJSON(txn, roomKey(id), &r); err != nil {
			return err
		}
		if !r.HasMember(user) {
			return nil
		}
		r.Members = slices.DeleteFunc(r.Members, func(m domain.UserID) bool { return m == user })
		return setJSON(txn, roomKey(id), r)
	})
	return notFound(err, domain.ErrRoomNotFound, "remove member")
}
