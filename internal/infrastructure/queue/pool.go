package queue

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

const channelBuffer = 256

// ErrPoolClosed is returned by Submit once the pool has been shut down.
var ErrPoolClosed = errors.New("worker pool closed")

// WorkerPool runs CPU-bound jobs on a fixed set of goroutines so that
// expensive work (password hashing) cannot starve request handling.
type WorkerPool struct {
	jobs    chan func()
	quit    chan struct{}
	size    int
	wg      sync.WaitGroup
	stopped sync.Once
	log     zerolog.Logger
}

// NewWorkerPool creates a pool with numWorkers goroutines.
// If numWorkers <= 0, GOMAXPROCS is used.
func NewWorkerPool(numWorkers int, log zerolog.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	return &WorkerPool{
		jobs: make(chan func(), channelBuffer),
		quit: make(chan struct{}),
		size: numWorkers,
		log:  log,
	}
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int { return p.size }

// Start launches the workers. They stop when ctx is cancelled. Once every
// worker has exited the pool is closed and jobs still sitting in the buffer
// are discarded; their submitters get ErrPoolClosed.
func (p *WorkerPool) Start(ctx context.Context) {
	var workers sync.WaitGroup
	for i := 0; i < p.size; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			p.runWorker(ctx, id)
		}(i)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		workers.Wait()
		p.stopped.Do(func() { close(p.quit) })
		p.drain()
	}()
}

// Wait blocks until every worker has exited.
func (p *WorkerPool) Wait() { p.wg.Wait() }

// Submit queues job and blocks until it has run. It returns early when ctx
// is done or the pool is closed. A job that was already picked up keeps running after ctx is
// cancelled; its result is simply never observed.
func (p *WorkerPool) Submit(ctx context.Context, job func()) error {
	select {
	case <-p.quit:
		return ErrPoolClosed
	default:
	}

	done := make(chan struct{})
	task := func() {
		defer close(done)
		job()
	}

	select {
	case p.jobs <- task:
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-p.quit:
		// The job may have finished just before the workers exited.
		select {
		case <-done:
			return nil
		default:
			return ErrPoolClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain drops queued jobs that no worker will pick up.
func (p *WorkerPool) drain() {
	for n := 0; ; n++ {
		select {
		case <-p.jobs:
		default:
			if n > 0 {
				p.log.Warn().Int("dropped", n).Msg("worker pool closed with queued jobs")
			}
			return
		}
	}
}

func (p *WorkerPool) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.jobs:
			p.run(id, task)
		}
	}
}

func (p *WorkerPool) run(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Int("worker_id", id).Msg("worker job panicked")
		}
	}()
	task()
}
