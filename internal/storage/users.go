package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func userKey(id domain.UserID) string { return "user:" + string(id) }
func emailKey(email string) string    { return "user_email:" + strings.ToLower(email) }
func usernameKey(name string) string  { return "user_name:" + strings.ToLower(name) }

// CreateUser persists u under a fresh id. Email and username are unique,
// case-insensitively.
func (s *Store) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	u.ID = domain.UserID(uuid.NewString())
	u.CreatedAt = time.Now().UTC()
	err := s.update(func(txn *badger.Txn) error {
		for _, k := range []string{emailKey(u.Email), usernameKey(u.Username)} {
			if _, err := txn.Get([]byte(k)); err == nil {
				return domain.ErrUserExists
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		if err := setJSON(txn, userKey(u.ID), u); err != nil {
			return err
		}
		if err := txn.Set([]byte(emailKey(u.Email)), []byte(u.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(usernameKey(u.Username)), []byte(u.ID))
	})
	if err != nil {
		return domain.User{}, notFound(err, domain.ErrUserNotFound, "create user")
	}
	log.Info().Str("module", "storage").Str("user", string(u.ID)).Msg("user created")
	return u, nil
}

func (s *Store) GetUserByID(_ context.Context, id domain.UserID) (domain.User, error) {
	var u domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &u)
	})
	return u, notFound(err, domain.ErrUserNotFound, "get user")
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	var u domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(emailKey(email)))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, userKey(domain.UserID(id)), &u)
	})
	return u, notFound(err, domain.ErrUserNotFound, "get user by email")
}

func (s *Store) UpdateLastLogin(_ context.Context, id domain.UserID, at time.Time) error {
	err := s.update(func(txn *badger.Txn) error {
		var u domain.User
		if err := getJSON(txn, userKey(id), &u); err != nil {
			return err
		}
		u.LastLogin = at.UTC()
		return setJSON(txn, userKey(id), u)
	})
	return notFound(err, domain.ErrUserNotFound, "update last login")
}

func identityOf(txn *badger.Txn, id domain.UserID) (domain.Identity, error) {
	var u domain.User
	if err := getJSON(txn, userKey(id), &u); err != nil {
		return domain.Identity{}, err
	}
	return u.Identity(), nil
}
