// Package workerpool implements the supervised goroutine pool used to fan
// out connection handling, adapted from the teacher's own worker-pool
// idiom (internal/worker.go) onto gopkg.in/tomb.v2 supervision.
package workerpool

import (
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

// Func is the unit of work a Pool dispatches to an idle worker.
type Func = func(t *tomb.Tomb, task any) error

// Pool maintains up to n concurrently running workers pulling tasks off a
// shared channel, supervised by a tomb.Tomb so a worker failure (or the
// tomb dying) unwinds the whole pool.
type Pool struct {
	n     int
	tasks chan any
	log   zerolog.Logger
}

func New(size int, log zerolog.Logger) *Pool {
	return &Pool{
		n:     size,
		tasks: make(chan any, taskChanSize),
		log:   log,
	}
}

// AddTask enqueues a unit of work for the next idle worker.
func (p *Pool) AddTask(task any) {
	p.tasks <- task
}

// Setup keeps the pool topped up at n active workers until the tomb dies.
func (p *Pool) Setup(t *tomb.Tomb, work Func) {
	p.log.Info().Int("workers", p.n).Msg("starting worker pool")
	active := 0
	for {
		select {
		case <-t.Dying():
			return
		default:
			if active < p.n {
				t.Go(func() error {
					err := p.worker(t, work)
					active--
					return err
				})
				active++
			}
		}
	}
}

func (p *Pool) worker(t *tomb.Tomb, work Func) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-p.tasks:
			if err := p.runTask(t, work, task); err != nil {
				p.log.Error().Err(err).Msg("worker exiting on error")
				return err
			}
		}
	}
}

// runTask invokes work, turning a panic into a fatal log line rather than
// letting it unwind across goroutines silently — one bad connection's task
// must not take down the pool without anyone noticing. In the server the
// tasks are connection reads; Book.Submit runs on the server's session
// handler goroutine, outside this recover.
func (p *Pool) runTask(t *tomb.Tomb, work Func, task any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Fatal().Interface("panic", r).Msg("worker task panicked; terminating")
		}
	}()
	return work(t, task)
}
