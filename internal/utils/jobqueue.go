package utils

import (
	"sync"
)

// Job represents a task to be executed by a worker.
type Job struct {
	Task func()
}

// JobQueue executes queued jobs on a fixed set of workers over a
// bounded channel. Producers that must not block use TrySubmit and
// handle the full-queue case themselves. With a single worker, jobs
// run in submission order.
type JobQueue struct {
	jobs      chan Job
	waitGroup sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewJobQueue creates a JobQueue with the given worker count and queue capacity.
func NewJobQueue(workers, capacity int) *JobQueue {
	queue := &JobQueue{
		jobs: make(chan Job, capacity),
	}

	queue.waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		go queue.worker()
	}

	return queue
}

// worker processes jobs from the jobs channel.
func (q *JobQueue) worker() {
	defer q.waitGroup.Done()
	for job := range q.jobs {
		job.Task()
	}
}

// TrySubmit enqueues a task without blocking. It returns false when the
// queue is full or already shut down.
func (q *JobQueue) TrySubmit(task func()) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}
	select {
	case q.jobs <- Job{Task: task}:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting new jobs and waits for queued jobs to drain.
func (q *JobQueue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.waitGroup.Wait()
}
