package utils

import (
	"sync"
)

// WorkerPool fans submitted tasks out to a fixed set of goroutines. The
// backlog holds twice the worker count; once every worker is busy and
// the backlog is full, Submit blocks, which bounds how far dispatch can
// fall behind its producer.
type WorkerPool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

// NewWorkerPool starts a pool of the given size (minimum one worker).
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}

	wp := &WorkerPool{tasks: make(chan func(), 2*workers)}
	wp.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wp.wg.Done()
			for task := range wp.tasks {
				task()
			}
		}()
	}
	return wp
}

// Submit queues a task, blocking when the backlog is full.
func (wp *WorkerPool) Submit(task func()) {
	wp.tasks <- task
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
func (wp *WorkerPool) Shutdown() {
	close(wp.tasks)
	wp.wg.Wait()
}
