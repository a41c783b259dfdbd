package store

import (
	"context"
	"encoding/json"
	"errors"

	"vendinha/internal/domain"
)

type Key string

const (
	KeyProducts  Key = "products"
	KeySales     Key = "sales"
	KeyCustomers Key = "customers"
	KeySettings  Key = "settings"
)

// ErrClosed is returned by backends after Close.
var ErrClosed = errors.New("store closed")

// Backend persists opaque values by key. Save must replace the value
// atomically; a reader never observes a partial write.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
}

// Store is the local, authoritative copy of every collection. Writes to one
// key run through that key's exclusive queue so read-modify-write sequences
// never interleave. Calls for different keys proceed independently.
type Store struct {
	backend Backend
	queue   *keyQueue
}

func New(backend Backend) *Store {
	return &Store{
		backend: backend,
		queue:   newKeyQueue(),
	}
}

// Get returns the value stored under key, or def when nothing is stored yet.
func Get[T any](ctx context.Context, s *Store, key Key, def T) (T, error) {
	return load(ctx, s, key, def)
}

// Set replaces the value under key.
func Set[T any](ctx context.Context, s *Store, key Key, value T) error {
	release, err := s.queue.acquire(ctx, string(key))
	if err != nil {
		return err
	}
	defer release()

	return save(ctx, s, key, value)
}

// Mutate loads key, applies fn and saves the result while holding the key's
// queue. If fn returns an error nothing is written. fn must not call back into
// the store for the same key.
func Mutate[T any](ctx context.Context, s *Store, key Key, def T, fn func(T) (T, error)) (T, error) {
	return MutateThen(ctx, s, key, def, fn, nil)
}

// MutateThen is Mutate with a follow-up: after a successful save, then runs
// with the saved value while the key is still held. Readers that go through
// View on the same key observe the save and then's effects together.
func MutateThen[T any](ctx context.Context, s *Store, key Key, def T, fn func(T) (T, error), then func(T)) (T, error) {
	var zero T

	release, err := s.queue.acquire(ctx, string(key))
	if err != nil {
		return zero, err
	}
	defer release()

	current, err := load(ctx, s, key, def)
	if err != nil {
		return zero, err
	}
	next, err := fn(current)
	if err != nil {
		return zero, err
	}
	if err := save(ctx, s, key, next); err != nil {
		return zero, err
	}
	if then != nil {
		then(next)
	}
	return next, nil
}

// View loads key and runs fn while holding the key's queue, so no write to
// key lands until fn returns. fn may write other keys but not key itself.
func View[T any](ctx context.Context, s *Store, key Key, def T, fn func(T) error) error {
	release, err := s.queue.acquire(ctx, string(key))
	if err != nil {
		return err
	}
	defer release()

	current, err := load(ctx, s, key, def)
	if err != nil {
		return err
	}
	return fn(current)
}

func load[T any](ctx context.Context, s *Store, key Key, def T) (T, error) {
	raw, ok, err := s.backend.Load(ctx, string(key))
	if err != nil {
		return def, &domain.StorageError{Op: "load", Key: string(key), Err: err}
	}
	if !ok || len(raw) == 0 {
		return def, nil
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return def, &domain.StorageError{Op: "decode", Key: string(key), Err: err}
	}
	return value, nil
}

func save[T any](ctx context.Context, s *Store, key Key, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &domain.StorageError{Op: "encode", Key: string(key), Err: err}
	}
	if err := s.backend.Save(ctx, string(key), raw); err != nil {
		return &domain.StorageError{Op: "save", Key: string(key), Err: err}
	}
	return nil
}
