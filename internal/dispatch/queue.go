package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/pdfbot/internal/types"
)

// Queue manages per-chat lanes with a global concurrency semaphore.
// Each chat gets its own FIFO channel (lane) so that events within a
// chat are handled sequentially in delivery order, while the semaphore
// limits the total number of concurrent handlers across all chats. One
// chat's slow download never stalls another chat's merge.
type Queue struct {
	lanes     map[types.ChatID]chan *types.InboundEvent
	semaphore *semaphore.Weighted
	handler   func(context.Context, *types.InboundEvent) error
	active    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewQueue creates a Queue that allows up to maxConcurrent events to be
// handled simultaneously across all chat lanes.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[types.ChatID]chan *types.InboundEvent),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for
// in-flight handlers to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for _, lane := range q.lanes {
		close(lane)
	}
	q.lanes = make(map[types.ChatID]chan *types.InboundEvent)
	q.mu.Unlock()
	q.wg.Wait()
}

// SetHandler sets the function invoked for each dequeued event.
func (q *Queue) SetHandler(fn func(context.Context, *types.InboundEvent) error) {
	q.handler = fn
}

// Enqueue adds an event to its chat's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is
// full.
func (q *Queue) Enqueue(ev *types.InboundEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	lane, exists := q.lanes[ev.ChatID]
	if !exists {
		lane = make(chan *types.InboundEvent, 100)
		q.lanes[ev.ChatID] = lane
		q.wg.Add(1)
		go q.processLane(ev.ChatID, lane)
	}

	select {
	case lane <- ev:
		return nil
	default:
		return fmt.Errorf("queue full for chat %d", ev.ChatID)
	}
}

// processLane drains a single chat lane, acquiring a semaphore slot
// before running the handler synchronously. This keeps strict FIFO
// ordering within a chat while the semaphore bounds cross-chat
// parallelism.
func (q *Queue) processLane(chatID types.ChatID, lane chan *types.InboundEvent) {
	defer q.wg.Done()
	for {
		select {
		case ev, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			if q.handler != nil {
				q.active.Add(1)
				if err := q.handler(q.ctx, ev); err != nil {
					slog.Error("event handler failed", "chat_id", chatID, "event_id", ev.ID, "error", err)
				}
				q.active.Add(-1)
			}
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}

// WaitIdle blocks until no events are actively being handled, or the
// timeout expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
