package factory

import "sync"

// runner executes posted jobs one at a time in submission order on a
// single background goroutine. The queue is unbounded so jobs may safely
// post follow-up jobs from within the running job.
type runner struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func newRunner() *runner {
	r := &runner{done: make(chan struct{})}
	r.cond = sync.NewCond(&r.mu)
	go r.loop()
	return r
}

func (r *runner) loop() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		job := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		job()
	}
}

// post schedules job after every previously posted job. It reports false
// once the runner has been stopped.
func (r *runner) post(job func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.queue = append(r.queue, job)
	r.cond.Signal()
	return true
}

// flush blocks until every job posted before the call has finished.
func (r *runner) flush() {
	var wg sync.WaitGroup
	wg.Add(1)
	if !r.post(wg.Done) {
		return
	}
	wg.Wait()
}

// stop drains the queue and stops the runner. It blocks until the last
// job has finished and is safe to call more than once.
func (r *runner) stop() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		r.cond.Signal()
	}
	r.mu.Unlock()
	<-r.done
}
