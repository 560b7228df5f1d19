package bot

import (
	"context"
	"sync"
	"time"
)

const (
	userQueueSize   = 16
	userIdleTimeout = 5 * time.Minute
)

// dispatcher runs updates for different users concurrently and updates from the
// same user strictly in arrival order. A user's worker exits after it has been idle.
type dispatcher struct {
	handle      func(context.Context, Update)
	idleTimeout time.Duration

	mu     sync.Mutex
	queues map[int64]chan Update
	wg     sync.WaitGroup
}

func newDispatcher(handle func(context.Context, Update)) *dispatcher {
	return &dispatcher{
		handle:      handle,
		idleTimeout: userIdleTimeout,
		queues:      make(map[int64]chan Update),
	}
}

func (d *dispatcher) dispatch(ctx context.Context, u Update) {
	d.mu.Lock()
	q, ok := d.queues[u.TelegramID]
	if !ok {
		q = make(chan Update, userQueueSize)
		d.queues[u.TelegramID] = q
		d.wg.Add(1)
		go d.worker(ctx, u.TelegramID, q)
	}
	select {
	case q <- u:
		d.mu.Unlock()
		return
	default:
	}
	d.mu.Unlock()

	// Queue full: the worker is busy and cannot retire until it drains, so a
	// blocking send is safe.
	select {
	case q <- u:
	case <-ctx.Done():
	}
}

func (d *dispatcher) worker(ctx context.Context, telegramID int64, q chan Update) {
	defer d.wg.Done()
	idle := time.NewTimer(d.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case u := <-q:
			d.handle(ctx, u)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.idleTimeout)
		case <-idle.C:
			d.mu.Lock()
			if len(q) == 0 {
				delete(d.queues, telegramID)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(d.idleTimeout)
		case <-ctx.Done():
			return
		}
	}
}

// wait blocks until every worker has exited.
func (d *dispatcher) wait() {
	d.wg.Wait()
}
