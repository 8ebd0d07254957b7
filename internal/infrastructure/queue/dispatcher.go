package queue

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

var eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "identity",
	Name:      "account_events_dropped_total",
	Help:      "Account events dropped because the worker queue was full.",
})

// Dispatcher routes account events to a fixed set of workers, sharded by user
// so that the events of one account are recorded in order.
type Dispatcher struct {
	workers []chan domain.AccountEvent
	service ports.EventService
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, service ports.EventService, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan domain.AccountEvent, numWorkers),
		service: service,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.AccountEvent, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled
// or, after Stop, once their queue is empty.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go func(id int, ch <-chan domain.AccountEvent) {
			defer d.wg.Done()
			d.runWorker(ctx, id, ch)
		}(i, ch)
	}
}

// Stop refuses new events and waits until the queued ones are recorded or
// ctx expires.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue hands an event to its worker without blocking the request. When the
// worker is saturated the event is dropped and counted.
func (d *Dispatcher) Enqueue(event domain.AccountEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		eventsDropped.Inc()
		d.log.Warn().Str("type", string(event.Type)).Msg("account event after shutdown dropped")
		return
	}

	select {
	case d.workers[d.shardIndex(event)] <- event:
	default:
		eventsDropped.Inc()
		d.log.Warn().Str("type", string(event.Type)).Msg("account event dropped")
	}
}

func (d *Dispatcher) shardIndex(event domain.AccountEvent) int {
	key := event.UserID
	if key == "" {
		key = event.ClientIP
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.AccountEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := d.service.Record(ctx, event); err != nil {
				d.log.Error().Err(err).
					Str("type", string(event.Type)).
					Int("worker_id", id).
					Msg("account event recording failed")
			}
		}
	}
}
