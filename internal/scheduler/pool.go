package scheduler

import "sync"

// workerPool is a fixed set of long-lived goroutines fed from one job
// channel. It is created once at brain start and reused every tick, so high
// tick rates pay no spawn/join cost.
type workerPool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

func newWorkerPool(workers int) *workerPool {
	p := &workerPool{jobs: make(chan func(), workers*2)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

func (p *workerPool) submit(job func()) {
	p.jobs <- job
}

// stop drains the pool: queued jobs still run, then the workers exit.
func (p *workerPool) stop() {
	close(p.jobs)
	p.wg.Wait()
}
