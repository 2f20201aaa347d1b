package reconcile

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Resyncer is what the queue runs
type Resyncer interface {
	Resync(ctx context.Context) (int, error)
}

// Queue runs resyncs on a background goroutine after saves have committed.
// Triggers arriving while a resync is pending collapse into one run.
type Queue struct {
	resyncer Resyncer
	log      *logrus.Logger

	trigger chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewQueue creates a stopped queue
func NewQueue(resyncer Resyncer, log *logrus.Logger) *Queue {
	return &Queue{
		resyncer: resyncer,
		log:      log,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a resync without blocking the caller
func (q *Queue) Trigger() {
	select {
	case q.trigger <- struct{}{}:
	default:
	}
}

// Start launches the worker; calling it twice is a no-op
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	q.wg.Add(1)
	go q.run(ctx)
}

// Stop cancels the worker and waits for an in-flight resync to return
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.trigger:
			if _, err := q.resyncer.Resync(ctx); err != nil {
				q.log.Errorf("Reminder resync failed: %v", err)
			}
		}
	}
}
