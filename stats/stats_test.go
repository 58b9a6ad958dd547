package stats

import (
	"context"
	"errors"
	"testing"
)

func TestCollector(t *testing.T) {
	events := make(chan Event, 16)
	events <- Event{Stage: StageSource, Type: EventTypeScanned}
	events <- Event{Stage: StageSource, Type: EventTypeScanned}
	events <- Event{Stage: StageSource, Type: EventTypeEnqueued}
	events <- Event{Stage: StageSource, Type: EventTypeSkipped}
	events <- Event{Stage: StageConvert, Type: EventTypeConverted}
	events <- Event{Stage: StageIMAP, Type: EventTypeUploaded}
	events <- Event{Stage: StageIMAP, Type: EventTypeRetry}
	events <- Event{Stage: StageIMAP, Type: EventTypeFailed}
	events <- Event{Stage: StageIMAP, Type: EventTypeError, Err: errors.New("boom")}
	close(events)

	c := NewCollector()
	c.Run(context.Background(), events)

	s := c.Snapshot()
	want := Summary{
		Scanned:  2,
		Enqueued: 1,
		Skipped:  1, Converted: 1,
		Uploaded: 1, Retries: 1, Failed: 1, Errors: 1,
		LastError: s.LastError,
	}
	if s != want {
		t.Errorf("Snapshot = %+v, want %+v", s, want)
	}
	if s.LastError == nil || s.LastError.Error() != "boom" {
		t.Errorf("LastError = %v, want boom", s.LastError)
	}
}

func TestCollector_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := make(chan Event)
	c := NewCollector()
	c.Run(ctx, events) // must return instead of blocking
}

func TestSummary_LogAttrs(t *testing.T) {
	s := Summary{Scanned: 3, LastError: errors.New("x")}
	attrs := s.LogAttrs()
	if len(attrs)%2 != 0 {
		t.Fatalf("LogAttrs must come in key/value pairs, got %d entries", len(attrs))
	}

	found := false
	for i := 0; i < len(attrs); i += 2 {
		if attrs[i] == "lastError" {
			found = true
		}
	}
	if !found {
		t.Error("LastError should be included when set")
	}
}
