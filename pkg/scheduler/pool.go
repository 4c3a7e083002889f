package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/nearstore/internal/logger"
)

// job is one unit of maintenance work. done is always called, even when the
// job is dropped at shutdown, so tenant guards are released.
type job struct {
	tenant string
	name   string
	run    func(ctx context.Context)
	done   func()
}

// jobPool runs jobs on a fixed set of goroutines fed by a bounded queue.
type jobPool struct {
	queue   chan job
	workers int

	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

func newJobPool(workers, queueSize int) *jobPool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &jobPool{
		queue:     make(chan job, queueSize),
		workers:   workers,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (p *jobPool) start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	go func() {
		p.wg.Wait()
		close(p.stoppedCh)
	}()
}

// stop waits at most timeout for running jobs. Queued jobs are dropped.
func (p *jobPool) stop(timeout time.Duration) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	close(p.stopCh)
	if started {
		select {
		case <-p.stoppedCh:
		case <-time.After(timeout):
			logger.Warn("Scheduler job pool stop timed out", "queued", len(p.queue))
		}
	}
	p.discard()
}

// enqueue never blocks. It returns false when the queue is full or the pool
// is stopped.
func (p *jobPool) enqueue(j job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}

	select {
	case p.queue <- j:
		return true
	default:
		return false
	}
}

func (p *jobPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case j := <-p.queue:
			p.process(ctx, j)
		}
	}
}

func (p *jobPool) process(ctx context.Context, j job) {
	defer j.done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Scheduler job panicked",
				logger.KeyTenant, j.tenant, logger.KeyOperation, j.name, "panic", r)
		}
	}()

	j.run(ctx)
}

func (p *jobPool) discard() {
	for {
		select {
		case j := <-p.queue:
			j.done()
		default:
			return
		}
	}
}
