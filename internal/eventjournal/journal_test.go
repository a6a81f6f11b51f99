package eventjournal

import "testing"

func TestRecordDropsWhenBufferFull(t *testing.T) {
	var warnings int
	j := &Journal{
		events: make(chan Event, 1),
		warn:   func(string, ...any) { warnings++ },
	}

	j.Record("worker_registered", "w-1")
	j.Record("worker_registered", "w-2") // buffer size 1, this one should drop

	if warnings != 1 {
		t.Fatalf("expected exactly one dropped-event warning, got %d", warnings)
	}
	if len(j.events) != 1 {
		t.Fatalf("expected the first event to remain buffered, got %d queued", len(j.events))
	}
}
