package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Sink persists events. Implementations may be slow; the emitter isolates
// callers from that.
type Sink interface {
	Record(ctx context.Context, event *Event) error
	Query(ctx context.Context, filter Filter) (events []*Event, total int, err error)
	Close() error
}

// defaultQueueSize bounds the emitter's in-flight buffer.
const defaultQueueSize = 1024

// Emitter decouples event recording from the request path. Emit never
// blocks: when the queue is full the event is dropped and counted, which is
// preferred over stalling a user-facing operation. Sink failures are logged
// and swallowed.
type Emitter struct {
	sink    Sink
	geo     *GeoResolver
	queue   chan *Event
	dropped atomic.Uint64
	wg      sync.WaitGroup

	mu     sync.RWMutex // serializes Emit against Close
	closed bool
}

// NewEmitter starts the background worker draining the queue into the sink.
// geo may be nil to disable IP enrichment.
func NewEmitter(sink Sink, geo *GeoResolver, queueSize int) *Emitter {
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	e := &Emitter{
		sink:  sink,
		geo:   geo,
		queue: make(chan *Event, queueSize),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

// Emit queues an event, assigning its id and timestamp. It never blocks and
// never returns an error: recording is not in the critical path of any
// operation.
func (e *Emitter) Emit(event *Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case e.queue <- event:
	default:
		dropped := e.dropped.Add(1)
		log.Warn().Uint64("dropped_total", dropped).Str("action", string(event.Action)).
			Msg("audit queue full, event dropped")
	}
}

// Dropped returns how many events were discarded on a full queue.
func (e *Emitter) Dropped() uint64 {
	return e.dropped.Load()
}

// Close stops accepting events, drains the queue into the sink and returns.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	e.wg.Wait()
}

func (e *Emitter) run() {
	defer e.wg.Done()

	for event := range e.queue {
		e.enrich(event)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.sink.Record(ctx, event); err != nil {
			log.Error().Err(err).Str("action", string(event.Action)).
				Msg("failed to record audit event")
		}
		cancel()
	}
}

func (e *Emitter) enrich(event *Event) {
	if e.geo == nil || event.ClientIP == "" || event.Country != "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	loc, err := e.geo.Lookup(ctx, event.ClientIP)
	if err != nil {
		log.Debug().Err(err).Str("ip", event.ClientIP).Msg("geolocation lookup failed")
		return
	}
	if loc == nil {
		return
	}
	event.Country = loc.Country
	event.Region = loc.Region
	event.City = loc.City
}
