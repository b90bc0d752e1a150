package enrichment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gitter-badger/xread/internal/domain"
	"github.com/gitter-badger/xread/internal/logger"
)

var errQueueClosed = errors.New("enrichment queue closed")

// Handler processes one task.
type Handler interface {
	Handle(ctx context.Context, task domain.Task) error
}

// QueueConfig sizes the queue and its worker pool.
type QueueConfig struct {
	Size         int
	Workers      int
	DrainTimeout time.Duration
}

// Queue is a bounded in-process task queue served by a fixed worker pool.
type Queue struct {
	handler Handler
	cfg     QueueConfig
	log     logger.Logger

	mu     sync.RWMutex
	tasks  chan domain.Task
	closed bool

	startOnce sync.Once
	wg        sync.WaitGroup
	cancel    context.CancelFunc

	dropped atomic.Int64
	failed  atomic.Int64
	done    atomic.Int64
}

// NewQueue creates a queue; workers start with Start or Run.
func NewQueue(h Handler, cfg QueueConfig, log logger.Logger) *Queue {
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	return &Queue{
		handler: h,
		cfg:     cfg,
		log:     logger.Ensure(log),
		tasks:   make(chan domain.Task, cfg.Size),
	}
}

// Submit enqueues task without blocking. A full queue drops the task and
// returns ErrQueueFull.
func (q *Queue) Submit(_ context.Context, task domain.Task) error {
	if q == nil {
		return errQueueClosed
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errQueueClosed
	}

	select {
	case q.tasks <- task:
		return nil
	default:
		q.dropped.Add(1)
		q.log.WarnObj("enrichment task dropped", "enrichment_queue", map[string]any{
			"task_id":    task.ID,
			"kind":       task.Kind,
			"article_id": task.ArticleID,
			"capacity":   q.cfg.Size,
		})
		return fmt.Errorf("%w: task %s", domain.ErrQueueFull, task.ID)
	}
}

// Start launches the workers. Task handling keeps running after ctx is
// cancelled until Close drains the queue.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		q.cancel = cancel
		for i := 0; i < q.cfg.Workers; i++ {
			q.wg.Add(1)
			go q.work(workCtx, i)
		}
		q.log.InfoObj("enrichment workers started", "enrichment_queue", map[string]any{
			"workers":  q.cfg.Workers,
			"capacity": q.cfg.Size,
		})
	})
}

// Run starts the workers, waits for ctx to end, then drains.
func (q *Queue) Run(ctx context.Context) error {
	q.Start(ctx)
	<-ctx.Done()
	return q.Close(context.WithoutCancel(ctx))
}

// Close stops accepting tasks and waits for queued ones to finish, up to the
// drain timeout. Tasks still running at the deadline are cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	// Workers never started: nothing will drain the buffer.
	q.Start(ctx)

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()

	timer := time.NewTimer(q.cfg.DrainTimeout)
	defer timer.Stop()

	var err error
	select {
	case <-finished:
	case <-timer.C:
		err = fmt.Errorf("enrichment drain timed out after %s with %d tasks pending", q.cfg.DrainTimeout, len(q.tasks))
	case <-ctx.Done():
		err = fmt.Errorf("enrichment drain interrupted: %w", ctx.Err())
	}
	if err != nil {
		q.cancel()
		<-finished
	}

	q.log.InfoObj("enrichment queue drained", "enrichment_queue", q.Stats())
	return err
}

// Stats reports queue counters.
func (q *Queue) Stats() map[string]int64 {
	return map[string]int64{
		"pending": int64(len(q.tasks)),
		"done":    q.done.Load(),
		"failed":  q.failed.Load(),
		"dropped": q.dropped.Load(),
	}
}

func (q *Queue) work(ctx context.Context, id int) {
	defer q.wg.Done()
	for task := range q.tasks {
		if ctx.Err() != nil {
			// Drain deadline passed; discard the rest.
			q.failed.Add(1)
			continue
		}
		q.handle(ctx, id, task)
	}
}

func (q *Queue) handle(ctx context.Context, worker int, task domain.Task) {
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			q.log.ErrorObj("enrichment task panicked", "enrichment_task", map[string]any{
				"worker":  worker,
				"task_id": task.ID,
				"panic":   fmt.Sprint(r),
			})
		}
	}()

	if err := q.handler.Handle(ctx, task); err != nil {
		q.failed.Add(1)
		q.log.WarnObj("enrichment task failed", "enrichment_task", map[string]any{
			"worker":     worker,
			"task_id":    task.ID,
			"kind":       task.Kind,
			"article_id": task.ArticleID,
			"error":      err.Error(),
		})
		return
	}
	q.done.Add(1)
}
