package replication

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

type job struct {
	entity Entity
	mode   Mode
	rows   []json.RawMessage
}

type QueueOptions struct {
	Size        int
	Workers     int
	PushTimeout time.Duration
}

type QueueStats struct {
	Enqueued  int64 `json:"enqueued"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Queue is the background Dispatcher. Push snapshots the payload and hands it
// to a bounded channel; workers apply jobs to the remote. A full queue drops
// the push. There is no retry: the next overwrite of the same entity repairs
// a missed one.
type Queue struct {
	remote  Remote
	jobs    chan job
	workers int
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	enqueued  atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewQueue(remote Remote, opts QueueOptions) *Queue {
	if remote == nil {
		remote = NoopRemote{}
	}
	if opts.Size < 1 {
		opts.Size = 256
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = 15 * time.Second
	}
	return &Queue{
		remote:  remote,
		jobs:    make(chan job, opts.Size),
		workers: opts.Workers,
		timeout: opts.PushTimeout,
	}
}

// Start launches the workers. They run until Close drains the queue.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.run(ctx, i)
	}
	log.Info().Str("component", "replication").Int("workers", q.workers).Msg("replication queue started")
}

func (q *Queue) Push(entity Entity, mode Mode, payload any) {
	rows, err := Snapshot(payload)
	if err != nil {
		q.dropped.Add(1)
		log.Warn().Str("component", "replication").Str("entity", string(entity)).Err(err).Msg("payload not encodable, push dropped")
		return
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return
	}

	select {
	case q.jobs <- job{entity: entity, mode: mode, rows: rows}:
		q.enqueued.Add(1)
	default:
		q.dropped.Add(1)
		log.Warn().Str("component", "replication").Str("entity", string(entity)).Str("mode", string(mode)).Msg("replication queue full, push dropped")
	}
}

// Close stops accepting pushes and waits for queued jobs to finish.
func (q *Queue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Enqueued:  q.enqueued.Load(),
		Delivered: q.delivered.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

func (q *Queue) run(ctx context.Context, id int) {
	defer q.wg.Done()
	for j := range q.jobs {
		q.apply(ctx, j)
	}
	log.Debug().Str("component", "replication").Int("worker", id).Msg("replication worker stopped")
}

func (q *Queue) apply(ctx context.Context, j job) {
	// Jobs still drain after ctx ends; each push gets its own deadline.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
	defer cancel()

	var err error
	switch j.mode {
	case ModeOverwrite:
		err = q.remote.Overwrite(pushCtx, j.entity, j.rows)
	default:
		err = q.remote.Append(pushCtx, j.entity, j.rows)
	}
	if err != nil {
		q.failed.Add(1)
		log.Warn().
			Str("component", "replication").
			Str("entity", string(j.entity)).
			Str("mode", string(j.mode)).
			Int("rows", len(j.rows)).
			Err(err).
			Msg("remote push failed")
		return
	}
	q.delivered.Add(1)
}
