package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// collectSink records events in memory with optional blocking and failure
// injection.
type collectSink struct {
	mu     sync.Mutex
	events []*Event
	gate   chan struct{} // when set, Record blocks until the gate closes
	fail   error
}

func (s *collectSink) Record(ctx context.Context, event *Event) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *collectSink) Query(ctx context.Context, filter Filter) ([]*Event, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events, len(s.events), nil
}

func (s *collectSink) Close() error { return nil }

func (s *collectSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// TestEmitAndDrain verifies events flow to the sink and Close drains the
// queue.
func TestEmitAndDrain(t *testing.T) {
	sink := &collectSink{}
	em := NewEmitter(sink, nil, 16)

	for i := 0; i < 5; i++ {
		em.Emit(&Event{ActorID: "u1", Action: ActionUpload, Status: StatusSuccess})
	}
	em.Close()

	if got := sink.count(); got != 5 {
		t.Fatalf("recorded = %d, want 5", got)
	}
	if em.Dropped() != 0 {
		t.Fatalf("dropped = %d, want 0", em.Dropped())
	}

	// ids and timestamps are assigned on emission
	for _, e := range sink.events {
		if e.ID == "" || e.Timestamp.IsZero() {
			t.Fatalf("event not normalized: %+v", e)
		}
	}
}

// TestEmitNeverBlocks verifies a full queue drops events instead of stalling
// the caller.
func TestEmitNeverBlocks(t *testing.T) {
	gate := make(chan struct{})
	sink := &collectSink{gate: gate}
	em := NewEmitter(sink, nil, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			em.Emit(&Event{Action: ActionDelete, Status: StatusSuccess})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full queue")
	}

	close(gate)
	em.Close()

	if em.Dropped() == 0 {
		t.Fatal("expected dropped events with a stalled sink")
	}
}

// TestSinkFailureSwallowed verifies a failing sink never propagates to the
// caller.
func TestSinkFailureSwallowed(t *testing.T) {
	sink := &collectSink{fail: errors.New("disk full")}
	em := NewEmitter(sink, nil, 4)

	em.Emit(&Event{Action: ActionUpload, Status: StatusSuccess})
	em.Close() // must not panic or hang

	if got := sink.count(); got != 0 {
		t.Fatalf("recorded = %d, want 0", got)
	}
}

// TestEmitAfterClose verifies late emissions are discarded quietly.
func TestEmitAfterClose(t *testing.T) {
	sink := &collectSink{}
	em := NewEmitter(sink, nil, 4)
	em.Close()

	em.Emit(&Event{Action: ActionUpload}) // must not panic
	if got := sink.count(); got != 0 {
		t.Fatalf("recorded = %d, want 0", got)
	}
}

// TestEmitConcurrentWithClose verifies emissions racing a Close never panic
// on the closed queue.
func TestEmitConcurrentWithClose(t *testing.T) {
	sink := &collectSink{}
	em := NewEmitter(sink, nil, 4)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				em.Emit(&Event{Action: ActionUpload, Status: StatusSuccess})
			}
		}()
	}
	em.Close()
	wg.Wait()
}
