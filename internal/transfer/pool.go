package transfer

import (
	"context"
	"sync"

	"github.com/tabdeal-exchange/wallet-ledger/pkg/logging"
)

// job is a unit of work submitted to the pool: a closure plus the
// channel its single result is delivered on.
type job struct {
	task   func() (*Result, error)
	result chan jobResult
}

type jobResult struct {
	value *Result
	err   error
}

// Pool is a bounded worker pool. Transfer operations are submitted here;
// the public entry points (Engine.ChargeSale, Engine.ApproveCreditRequest)
// submit work and block on completion, so callers observe a synchronous
// result while overall concurrency stays bounded.
type Pool struct {
	jobs chan job
	size int
	log  *logging.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a Pool with the given number of workers. Start must be
// called before submitting work.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:   make(chan job, size),
		size:   size,
		log:    logging.GetDefault().Component("transfer-pool"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the pool's worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.log.Info("worker pool started", "workers", p.size)
}

// Stop signals workers to exit and waits for them. A job already running
// finishes and delivers its result; jobs still queued are abandoned, and
// their submitters unblock with the pool's context error.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.log.Info("worker pool stopped")
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			value, err := j.task()
			j.result <- jobResult{value: value, err: err}
		case <-p.ctx.Done():
			return
		}
	}
}

// Submit enqueues task and blocks until a worker has run it, returning
// its result. If ctx is cancelled before a worker picks up the job, it
// still returns ctx.Err() without leaking the goroutine waiting on it
// (the worker drains the result into an unread buffered channel).
func (p *Pool) Submit(ctx context.Context, task func() (*Result, error)) (*Result, error) {
	j := job{task: task, result: make(chan jobResult, 1)}

	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, p.ctx.Err()
	}

	select {
	case r := <-j.result:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, p.ctx.Err()
	}
}
