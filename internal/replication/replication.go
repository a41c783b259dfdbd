// Package replication pushes local mutations to the remote system of record.
// Pushes are queued and applied in the background; the local store never
// waits on them and never learns whether they succeeded.
package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
)

type Entity string

const (
	EntityProducts  Entity = "products"
	EntitySales     Entity = "sales"
	EntityCustomers Entity = "customers"
	EntitySettings  Entity = "settings"
)

type Mode string

const (
	// ModeAppend inserts the given rows.
	ModeAppend Mode = "append"
	// ModeOverwrite replaces the whole remote collection with the given rows.
	ModeOverwrite Mode = "overwrite"
)

// Dispatcher accepts pushes without blocking and without reporting failure.
type Dispatcher interface {
	Push(entity Entity, mode Mode, payload any)
}

// Remote is the system of record. Implementations may be slow or down.
type Remote interface {
	Append(ctx context.Context, entity Entity, rows []json.RawMessage) error
	Overwrite(ctx context.Context, entity Entity, rows []json.RawMessage) error
}

// Discard drops every push.
type Discard struct{}

func (Discard) Push(Entity, Mode, any) {}

// NoopRemote accepts everything and stores nothing.
type NoopRemote struct{}

func (NoopRemote) Append(context.Context, Entity, []json.RawMessage) error    { return nil }
func (NoopRemote) Overwrite(context.Context, Entity, []json.RawMessage) error { return nil }

// Fanout applies each call to every remote and joins their errors.
type Fanout []Remote

func (f Fanout) Append(ctx context.Context, entity Entity, rows []json.RawMessage) error {
	var errs []error
	for _, remote := range f {
		if err := remote.Append(ctx, entity, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Overwrite(ctx context.Context, entity Entity, rows []json.RawMessage) error {
	var errs []error
	for _, remote := range f {
		if err := remote.Overwrite(ctx, entity, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Snapshot encodes payload as rows: a slice becomes one row per element,
// anything else a single row.
func Snapshot(payload any) ([]json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return []json.RawMessage{}, nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
	return []json.RawMessage{trimmed}, nil
}

type Push struct {
	Entity  Entity
	Mode    Mode
	Payload any
}

// Recorder keeps every push in memory.
type Recorder struct {
	mu     sync.Mutex
	pushes []Push
}

func (r *Recorder) Push(entity Entity, mode Mode, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, Push{Entity: entity, Mode: mode, Payload: payload})
}

func (r *Recorder) Pushes() []Push {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Push, len(r.pushes))
	copy(out, r.pushes)
	return out
}
