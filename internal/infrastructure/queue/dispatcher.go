package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/greenpoint/recycling-ledger/internal/core/ports"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("dispatcher closed")

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithDepthGauge reports per-worker queue depth on g, labelled by worker_id.
func WithDepthGauge(g *prometheus.GaugeVec) Option {
	return func(d *Dispatcher) { d.depth = g }
}

// Dispatcher routes recycling scans to a fixed set of workers using consistent
// hashing on the user id, so scans for one user are applied in arrival order.
type Dispatcher struct {
	workers []chan ports.RecordEventInput
	ledger  ports.LedgerService
	log     zerolog.Logger
	depth   *prometheus.GaugeVec

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, ledger ports.LedgerService, log zerolog.Logger, opts ...Option) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.RecordEventInput, numWorkers),
		ledger:  ledger,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.RecordEventInput, channelBuffer)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled
// or, after Close, once their queue is drained.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue sends a scan to the worker responsible for its user.
// The call is non-blocking up to channelBuffer capacity.
func (d *Dispatcher) Enqueue(in ports.RecordEventInput) error {
	return d.EnqueueBatch([]ports.RecordEventInput{in})
}

// EnqueueBatch enqueues multiple scans preserving per-user ordering. The
// closed check happens once, so either the whole batch is queued or none of
// it is and ErrClosed is returned.
func (d *Dispatcher) EnqueueBatch(batch []ports.RecordEventInput) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	for _, in := range batch {
		idx := d.shardIndex(in.UserID)
		d.workers[idx] <- in
		d.observe(idx)
	}
	return nil
}

// Close stops accepting scans and waits until every worker has drained its
// queue (or ctx passed to Start is cancelled).
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.workers {
		close(ch)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

// shardIndex maps a user id deterministically to a worker index.
func (d *Dispatcher) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) observe(id int) {
	if d.depth == nil {
		return
	}
	d.depth.WithLabelValues(strconv.Itoa(id)).Set(float64(len(d.workers[id])))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.RecordEventInput) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-ch:
			if !ok {
				return
			}
			d.observe(id)
			ev, err := d.ledger.RecordEvent(ctx, in)
			if err != nil {
				d.log.Warn().Err(err).
					Str("user_id", in.UserID).
					Str("material", in.Material).
					Int("worker_id", id).
					Msg("queued recycling event failed")
				continue
			}
			d.log.Debug().
				Str("event_id", ev.ID).
				Str("user_id", ev.UserID).
				Int("worker_id", id).
				Msg("queued recycling event recorded")
		}
	}
}
