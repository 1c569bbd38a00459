package runner

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-unit/metrics"
)

// Unbounded removes the cap on the number of runners a pool may create
const Unbounded = 0

// Task is a unit of work executed on a runner goroutine
type Task func()

// Runner is a worker goroutine with a private FIFO task queue. It sleeps until a task is
// enqueued or it is told to stop.
type Runner struct {
	id       int
	mu       sync.Mutex
	queue    []Task
	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	log      log.Logger
}

func newRunner(id int, logger log.Logger) *Runner {
	return &Runner{
		id:   id,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		log:  logger.New("runner", id),
	}
}

// ID returns the runner's 1-based index within its pool
func (r *Runner) ID() int {
	return r.id
}

// Enqueue appends a task to the runner's queue and wakes it up
func (r *Runner) Enqueue(t Task) {
	r.mu.Lock()
	r.queue = append(r.queue, t)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) pop() (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil, false
	}
	t := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]
	return t, true
}

// loop runs queued tasks one at a time until stopped. Tasks already queued when the stop
// signal arrives still run; a task that is executing is never interrupted.
func (r *Runner) loop() error {
	r.log.Debug("Runner starting")
	defer r.log.Debug("Runner exiting")

	for {
		select {
		case <-r.wake:
			r.drain()
		case <-r.stop:
			r.drain()
			return nil
		}
	}
}

func (r *Runner) drain() {
	for {
		t, ok := r.pop()
		if !ok {
			return
		}
		t()
	}
}

func (r *Runner) signalStop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Pool hands out runners to the scheduler. Runners are created lazily, up to the limit,
// and reused once freed. Every runner goroutine is joined by Wait.
type Pool struct {
	mu      sync.Mutex
	limit   int
	runners []*Runner
	idle    []*Runner
	busy    map[*Runner]struct{}
	group   errgroup.Group
	stopped bool
	log     log.Logger
}

// NewPool creates a pool that runs at most limit runners at once (Unbounded for no cap)
func NewPool(limit int, logger log.Logger) *Pool {
	if limit < 0 {
		panic("pool limit cannot be negative")
	}
	if logger == nil {
		logger = log.New()
	}
	return &Pool{
		limit: limit,
		busy:  make(map[*Runner]struct{}),
		log:   logger.New("component", "pool"),
	}
}

// Occupy returns an idle runner, starting a new one if the limit allows. It returns nil
// when the pool is saturated or stopped.
func (p *Pool) Occupy() *Runner {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	if n := len(p.idle); n > 0 {
		r := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.busy[r] = struct{}{}
		return r
	}
	if p.limit != Unbounded && len(p.runners) >= p.limit {
		return nil
	}

	r := newRunner(len(p.runners)+1, p.log)
	p.runners = append(p.runners, r)
	p.busy[r] = struct{}{}
	p.group.Go(r.loop)
	metrics.RecordRunnerStarted()
	p.log.Debug("Started runner", "runner", r.id, "limit", p.limit)
	return r
}

// Free marks a busy runner idle again. Freeing a runner that is not busy is a programming
// error and panics.
func (p *Pool) Free(r *Runner) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.busy[r]; !ok {
		panic(fmt.Sprintf("runner %d freed while not occupied", r.id))
	}
	delete(p.busy, r)
	p.idle = append(p.idle, r)
}

// NoActiveRunners reports whether every runner created so far is idle
func (p *Pool) NoActiveRunners() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.busy) == 0
}

// Size returns the number of runners created so far
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.runners)
}

// StopAll signals every runner to exit once its queue is empty. It does not wait.
func (p *Pool) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	for _, r := range p.runners {
		r.signalStop()
	}
}

// Wait blocks until every runner goroutine has exited. Call StopAll first.
func (p *Pool) Wait() error {
	return p.group.Wait()
}

// Close stops and joins every runner
func (p *Pool) Close() error {
	p.StopAll()
	return p.Wait()
}
