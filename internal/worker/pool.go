package worker

import (
	"context"
	"sync"
)

// Task is a unit of work for the pool. Process returns an error to request
// a retry.
type Task interface {
	Process() error
}

// Pool runs tasks on a fixed set of goroutines with a bounded queue.
// Tasks that keep failing past maxRetries land in the dead-letter list.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	workers    int
	tasks      chan Task
	maxRetries int

	deadLetterMu sync.Mutex
	deadLetter   []Task
}

// Stats holds monitoring information about the pool.
type Stats struct {
	Workers     int
	QueueLength int
	DeadLetters int
}

// NewPool creates a Pool with the given worker count.
func NewPool(workers int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		ctx:        ctx,
		cancel:     cancel,
		workers:    workers,
		tasks:      make(chan Task, 16),
		maxRetries: 3,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

// Stop signals all workers to exit and waits for them to finish.
func (p *Pool) Stop() {
	p.cancel()
	close(p.tasks)
	p.wg.Wait()
}

// Submit queues a task, returning false when the queue is full.
func (p *Pool) Submit(task Task) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.process(task)
		}
	}
}

// process runs a task, retrying up to maxRetries before dead-lettering it.
func (p *Pool) process(task Task) {
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		select {
		case <-p.ctx.Done():
			return
		default:
		}
		if err := task.Process(); err == nil {
			return
		}
	}
	p.deadLetterMu.Lock()
	p.deadLetter = append(p.deadLetter, task)
	p.deadLetterMu.Unlock()
}

// DeadLetterCount returns the number of dead-lettered tasks.
func (p *Pool) DeadLetterCount() int {
	p.deadLetterMu.Lock()
	defer p.deadLetterMu.Unlock()
	return len(p.deadLetter)
}

// Stats returns a snapshot of pool state.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:     p.workers,
		QueueLength: len(p.tasks),
		DeadLetters: p.DeadLetterCount(),
	}
}
