package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arunderwood/nextskip-sub005/internal/logging"
)

// Task is one queued rebuild: the cache's name and the closure that
// reloads it.
type Task struct {
	Name    string
	Rebuild func(ctx context.Context)
}

// Worker drains the rebuild queue on a single goroutine. Rebuilds are
// cheap store reads, so one goroutine keeps them strictly ordered and
// stops a misbehaving source from fanning out concurrent reloads.
type Worker struct {
	tasks chan Task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	enqueued  int64
	completed int64
	dropped   int64
}

// WorkerStats is a point-in-time counter snapshot.
type WorkerStats struct {
	Enqueued  int64
	Completed int64
	Dropped   int64
	Pending   int
}

// NewWorker creates a worker with the given queue depth. If buffer <= 0
// a default is used.
func NewWorker(buffer int) *Worker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Worker{
		tasks: make(chan Task, buffer),
	}
}

// Start launches the worker goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	logging.Debug("Cache worker started", "queue", cap(w.tasks))
}

// Stop shuts the worker down. Queued tasks that have not started are
// discarded; callers re-enqueue naturally on their next refresh cycle.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	logging.Debug("Cache worker stopped",
		"enqueued", atomic.LoadInt64(&w.enqueued),
		"completed", atomic.LoadInt64(&w.completed),
		"dropped", atomic.LoadInt64(&w.dropped))
}

// Enqueue queues a rebuild without blocking. When the queue is full the
// task is dropped: the cache keeps serving its previous value and the
// next refresh cycle enqueues again.
func (w *Worker) Enqueue(task Task) bool {
	select {
	case w.tasks <- task:
		atomic.AddInt64(&w.enqueued, 1)
		return true
	default:
		atomic.AddInt64(&w.dropped, 1)
		logging.Warn("Cache rebuild queue full, dropping task", "cache", task.Name)
		return false
	}
}

// Stats returns current counters.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Enqueued:  atomic.LoadInt64(&w.enqueued),
		Completed: atomic.LoadInt64(&w.completed),
		Dropped:   atomic.LoadInt64(&w.dropped),
		Pending:   len(w.tasks),
	}
}

func (w *Worker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.tasks:
			w.execute(task)
		}
	}
}

func (w *Worker) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Cache rebuild panicked", "cache", task.Name, "panic", r)
		}
	}()

	task.Rebuild(w.ctx)
	atomic.AddInt64(&w.completed, 1)
}
