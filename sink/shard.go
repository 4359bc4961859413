package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/raniellyferreira/redis-event-stream/replication"
)

// ErrClosed is returned by Handle after Close
var ErrClosed = errors.New("sink closed")

const defaultQueueSize = 1024

// Sharded dispatches events to a fixed set of workers chosen by the hash
// of the first key, so events for one key are handled in stream order.
// Keyless events (FLUSHALL, MULTI, ...) wait for every worker to drain and
// then run inline. The next handler must be safe for concurrent use.
type Sharded struct {
	next   replication.Handler
	queues []chan replication.Event

	g      *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	inflight sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewSharded starts workers goroutines, each with a queue of queueSize
// events. Zero values pick defaults.
func NewSharded(ctx context.Context, next replication.Handler, workers, queueSize int) *Sharded {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	s := &Sharded{
		next:   next,
		queues: make([]chan replication.Event, workers),
		g:      g,
		ctx:    gctx,
		cancel: cancel,
	}
	for i := range s.queues {
		q := make(chan replication.Event, queueSize)
		s.queues[i] = q
		g.Go(func() error {
			return s.work(q)
		})
	}
	return s
}

func (s *Sharded) work(q <-chan replication.Event) error {
	for ev := range q {
		err := s.next.Handle(ev)
		s.inflight.Done()
		if err != nil {
			// drain so Handle never blocks on a dead worker
			for range q {
				s.inflight.Done()
			}
			return err
		}
	}
	return nil
}

// Shard returns the worker index for key
func (s *Sharded) Shard(key []byte) int {
	return int(xxhash.Sum64(key) % uint64(len(s.queues)))
}

// Handle implements replication.Handler. It returns the first worker
// error once one has failed.
func (s *Sharded) Handle(ev replication.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	keys := ev.Keys()
	if len(keys) == 0 {
		s.inflight.Wait()
		if err := s.ctx.Err(); err != nil {
			return s.failure()
		}
		return s.next.Handle(ev)
	}

	s.inflight.Add(1)
	select {
	case s.queues[s.Shard(keys[0])] <- ev:
		return nil
	case <-s.ctx.Done():
		s.inflight.Done()
		return s.failure()
	}
}

// failure returns the worker error after the group was cancelled
func (s *Sharded) failure() error {
	s.closeQueues()
	if err := s.g.Wait(); err != nil {
		return err
	}
	return s.ctx.Err()
}

// Flush waits until every queued event has been handled
func (s *Sharded) Flush() {
	s.inflight.Wait()
}

// Close stops accepting events, waits for the queues to drain and returns
// the first worker error.
func (s *Sharded) Close() error {
	s.mu.Lock()
	s.closeQueues()
	s.mu.Unlock()

	err := s.g.Wait()
	s.cancel()
	return err
}

func (s *Sharded) closeQueues() {
	if s.closed {
		return
	}
	s.closed = true
	for _, q := range s.queues {
		close(q)
	}
}
