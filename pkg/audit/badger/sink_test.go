package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stratafs/stratafs/pkg/audit"
)

func testSink(t *testing.T) *Sink {
	t.Helper()
	sink, err := New(context.Background(), Config{InMemory: true})
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	t.Cleanup(func() {
		if err := sink.Close(); err != nil {
			t.Errorf("close sink: %v", err)
		}
	})
	return sink
}

func record(t *testing.T, sink *Sink, i int, actor string, action audit.Action, status audit.Status, ts time.Time) {
	t.Helper()
	err := sink.Record(context.Background(), &audit.Event{
		ID:        fmt.Sprintf("ev-%03d", i),
		Timestamp: ts,
		ActorID:   actor,
		ActorName: actor,
		Action:    action,
		Status:    status,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
}

// TestQueryOrderAndPagination verifies newest-first ordering and that total
// counts all matches across pages.
func TestQueryOrderAndPagination(t *testing.T) {
	sink := testSink(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		record(t, sink, i, "alice", audit.ActionUpload, audit.StatusSuccess, base.Add(time.Duration(i)*time.Minute))
	}

	events, total, err := sink.Query(context.Background(), audit.Filter{Page: 1, Limit: 4})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if total != 10 || len(events) != 4 {
		t.Fatalf("total=%d len=%d, want 10/4", total, len(events))
	}
	if events[0].ID != "ev-009" || events[3].ID != "ev-006" {
		t.Fatalf("page 1 = [%s .. %s], want newest first", events[0].ID, events[3].ID)
	}

	events, _, err = sink.Query(context.Background(), audit.Filter{Page: 3, Limit: 4})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 2 || events[0].ID != "ev-001" {
		t.Fatalf("page 3 = %v, want the two oldest", events)
	}
}

// TestQueryFilters verifies actor, action, status and time-range filters.
func TestQueryFilters(t *testing.T) {
	sink := testSink(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	record(t, sink, 0, "alice", audit.ActionUpload, audit.StatusSuccess, base)
	record(t, sink, 1, "bob", audit.ActionDelete, audit.StatusFailure, base.Add(time.Minute))
	record(t, sink, 2, "alice", audit.ActionDelete, audit.StatusSuccess, base.Add(2*time.Minute))
	record(t, sink, 3, "alice", audit.ActionAccessDenied, audit.StatusDenied, base.Add(3*time.Minute))

	tests := []struct {
		name   string
		filter audit.Filter
		want   []string
	}{
		{
			name:   "by actor",
			filter: audit.Filter{ActorID: "bob"},
			want:   []string{"ev-001"},
		},
		{
			name:   "by action",
			filter: audit.Filter{Action: audit.ActionDelete},
			want:   []string{"ev-002", "ev-001"},
		},
		{
			name:   "by status",
			filter: audit.Filter{Status: audit.StatusDenied},
			want:   []string{"ev-003"},
		},
		{
			name:   "by time range",
			filter: audit.Filter{From: base.Add(30 * time.Second), To: base.Add(150 * time.Second)},
			want:   []string{"ev-002", "ev-001"},
		},
		{
			name:   "actor and action",
			filter: audit.Filter{ActorID: "alice", Action: audit.ActionDelete},
			want:   []string{"ev-002"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, total, err := sink.Query(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if total != len(tt.want) || len(events) != len(tt.want) {
				t.Fatalf("total=%d len=%d, want %d", total, len(events), len(tt.want))
			}
			for i, id := range tt.want {
				if events[i].ID != id {
					t.Fatalf("events[%d] = %s, want %s", i, events[i].ID, id)
				}
			}
		})
	}
}

// TestQueryEmpty verifies a fresh sink returns an empty page, not an error.
func TestQueryEmpty(t *testing.T) {
	sink := testSink(t)

	events, total, err := sink.Query(context.Background(), audit.Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if total != 0 || len(events) != 0 {
		t.Fatalf("total=%d len=%d, want 0/0", total, len(events))
	}
}
