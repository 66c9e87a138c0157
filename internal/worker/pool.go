package worker

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrPoolStopped = errors.New("worker pool stopped")
	ErrQueueFull   = errors.New("worker pool queue is full")
)

type Task func()

// WorkerPool runs tasks on a fixed set of workers. Tasks submitted under
// the same key always land on the same worker and run in submission order.
type WorkerPool struct {
	queues        []chan Task
	wg            sync.WaitGroup
	activeWorkers atomic.Int32
	maxWorkers    int
	submitTimeout time.Duration
	logger        zerolog.Logger

	// mu guards the queues against Submit after Stop.
	mu      sync.RWMutex
	started bool
	stopped bool
}

func NewWorkerPool(maxWorkers, queueSize int, logger zerolog.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 10
	}

	queues := make([]chan Task, maxWorkers)
	for i := range queues {
		queues[i] = make(chan Task, queueSize)
	}

	return &WorkerPool{
		queues:        queues,
		maxWorkers:    maxWorkers,
		submitTimeout: time.Second,
		logger:        logger,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.stopped {
		return ErrPoolStopped
	}
	if wp.started {
		return nil
	}
	wp.started = true

	wp.logger.Info().Int("max_workers", wp.maxWorkers).Msg("Starting worker pool")

	for i := range wp.queues {
		wp.wg.Add(1)
		go wp.worker(i, wp.queues[i])
	}

	return nil
}

// Stop drains the queues and waits for running tasks.
func (wp *WorkerPool) Stop() error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return nil
	}
	wp.stopped = true
	for _, q := range wp.queues {
		close(q)
	}
	wp.mu.Unlock()

	wp.logger.Info().Msg("Stopping worker pool")
	wp.wg.Wait()
	wp.logger.Info().Msg("Worker pool stopped")
	return nil
}

// Submit queues task under key, waiting up to a second for room.
func (wp *WorkerPool) Submit(key string, task Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrPoolStopped
	}

	q := wp.queues[wp.slot(key)]
	select {
	case q <- task:
		return nil
	default:
	}

	wp.logger.Warn().Str("key", key).Msg("Worker pool task queue is full")

	timer := time.NewTimer(wp.submitTimeout)
	defer timer.Stop()
	select {
	case q <- task:
		return nil
	case <-timer.C:
		wp.logger.Error().Str("key", key).Msg("Failed to submit task to worker pool (timeout)")
		return ErrQueueFull
	}
}

// TrySubmit queues task under key without waiting. It returns ErrQueueFull
// when the key's worker is backed up.
func (wp *WorkerPool) TrySubmit(key string, task Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case wp.queues[wp.slot(key)] <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (wp *WorkerPool) slot(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(wp.queues)))
}

func (wp *WorkerPool) worker(id int, tasks <-chan Task) {
	defer wp.wg.Done()

	wp.logger.Debug().Int("worker_id", id).Msg("Worker started")

	for task := range tasks {
		wp.run(id, task)
	}

	wp.logger.Debug().Int("worker_id", id).Msg("Worker stopped")
}

func (wp *WorkerPool) run(id int, task Task) {
	wp.activeWorkers.Add(1)

	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error().
				Int("worker_id", id).
				Interface("panic", r).
				Msg("Worker recovered from panic")
		}

		wp.activeWorkers.Add(-1)
	}()

	task()
}

func (wp *WorkerPool) GetActiveWorkers() int {
	return int(wp.activeWorkers.Load())
}

func (wp *WorkerPool) GetQueueLength() int {
	n := 0
	for _, q := range wp.queues {
		n += len(q)
	}
	return n
}

func (wp *WorkerPool) GetStats() map[string]interface{} {
	capacity := 0
	for _, q := range wp.queues {
		capacity += cap(q)
	}

	return map[string]interface{}{
		"active_workers": wp.GetActiveWorkers(),
		"max_workers":    wp.maxWorkers,
		"queue_length":   wp.GetQueueLength(),
		"queue_capacity": capacity,
	}
}
