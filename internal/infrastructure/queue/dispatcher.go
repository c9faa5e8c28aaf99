package queue

import (
	"context"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/schoolms/portal-client/internal/api/metrics"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

type job struct {
	key string
	fn  func()
}

// Dispatcher runs callbacks on a fixed set of workers using consistent
// hashing on a key, guaranteeing per-key ordering.
type Dispatcher struct {
	workers []chan job
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan job, numWorkers),
		done:    make(chan struct{}),
		log:     log.With().Str("component", "dispatcher").Logger(),
	}
	for i := range d.workers {
		d.workers[i] = make(chan job, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled
// or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
	go func() {
		select {
		case <-ctx.Done():
			d.Stop()
		case <-d.done:
		}
	}()
}

// Dispatch queues fn on the worker owning key. It blocks while that worker's
// buffer is full and drops fn once the dispatcher has stopped.
func (d *Dispatcher) Dispatch(key string, fn func()) {
	idx := d.shardIndex(key)
	select {
	case <-d.done:
		return
	default:
	}
	depth := metrics.NotifyQueueDepth.WithLabelValues(strconv.Itoa(idx))
	depth.Inc()
	select {
	case d.workers[idx] <- job{key: key, fn: fn}:
	case <-d.done:
		depth.Dec()
	}
}

// Stop signals every worker to exit and waits for them. Queued callbacks that
// have not started are discarded.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

// shardIndex maps a key deterministically to a worker index.
func (d *Dispatcher) shardIndex(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan job) {
	defer d.wg.Done()
	depth := metrics.NotifyQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case j := <-ch:
			depth.Dec()
			d.run(id, j)
		}
	}
}

func (d *Dispatcher) run(id int, j job) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Interface("panic", r).
				Str("key", j.key).
				Int("worker_id", id).
				Msg("listener panicked")
		}
	}()
	j.fn()
}
