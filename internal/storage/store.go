package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Path     string
	InMemory bool
}

// Store is the embedded persistence layer for users, rooms and messages.
//
// Key layout:
//
//	user:{id}                    -> domain.User
//	user_email:{email}           -> user id
//	user_name:{username}         -> user id
//	room:{id}                    -> domain.Room (members inline)
//	msg:{room}:{unixnano19}:{id} -> domain.Message
type Store struct {
	db       *badger.DB
	inMemory bool
}

func Open(opts Options) (*Store, error) {
	bo := badger.DefaultOptions(opts.Path).WithLoggingLevel(badger.ERROR)
	if opts.InMemory {
		bo = badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	}
	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	log.Info().Str("module", "storage").Str("path", opts.Path).Bool("in_memory", opts.InMemory).Msg("store opened")
	return &Store{db: db, inMemory: opts.InMemory}, nil
}

func (s *Store) Close() error {
	log.Info().Str("module", "storage").Msg("closing store")
	return s.db.Close()
}

// RunGC reclaims value log space every interval until ctx is done.
func (s *Store) RunGC(ctx context.Context, interval time.Duration) error {
	if s.inMemory || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			for {
				err := s.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					log.Error().Err(err).Str("module", "storage").Msg("value log gc")
				}
				break
			}
		}
	}
}

const maxTxnRetries = 3

// update runs fn in a read-write transaction, retrying on conflicts with
// concurrent writers.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxTxnRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), b)
}

// notFound maps a missing key to the given domain error and wraps anything
// else as a persistence failure.
func notFound(err, missing error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return missing
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrValidation):
		return err
	default:
		return domain.Persistence(op, err)
	}
}
