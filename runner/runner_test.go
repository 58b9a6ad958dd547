package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mboxport/mboxport/model"
	"github.com/mboxport/mboxport/stats"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func drain(r *Runner, into *[]model.Message) {
	r.AddStage("drain", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg, ok := <-r.Work():
				if !ok {
					return nil
				}
				*into = append(*into, msg)
			}
		}
	})
}

func TestRunner_BridgePassesMessages(t *testing.T) {
	r := New(testLogger(), nil)

	var got []model.Message
	drain(r, &got)

	src := r.SourceWriter()
	src <- model.Envelope{Message: model.Message{Identity: "a"}}
	src <- model.Envelope{Message: model.Message{Identity: "b"}}
	r.CloseSource()

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
}

func TestRunner_SkipFuncDropsMessages(t *testing.T) {
	r := New(testLogger(), func(m model.Message) bool {
		return m.Identity == "skip-me"
	})

	var got []model.Message
	drain(r, &got)

	src := r.SourceWriter()
	src <- model.Envelope{Message: model.Message{Identity: "skip-me"}}
	src <- model.Envelope{Message: model.Message{Identity: "keep-me"}}
	r.CloseSource()

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(got) != 1 || got[0].Identity != "keep-me" {
		t.Errorf("got %v, want only keep-me", got)
	}
}

func TestRunner_ErrorEnvelopeDoesNotFailRun(t *testing.T) {
	r := New(testLogger(), nil)

	var got []model.Message
	drain(r, &got)

	src := r.SourceWriter()
	src <- model.Envelope{Err: errors.New("mangled entry")}
	src <- model.Envelope{Message: model.Message{Identity: "ok"}}
	r.CloseSource()

	if err := r.Start(); err != nil {
		t.Fatalf("an undecodable entry must not fail the run: %v", err)
	}
	if len(got) != 1 || got[0].Identity != "ok" {
		t.Errorf("got %v, want only the decodable message", got)
	}
}

func TestRunner_StageErrorFailsRun(t *testing.T) {
	r := New(testLogger(), nil)

	stageErr := errors.New("stage exploded")
	r.AddStage("boom", func(ctx context.Context) error {
		return stageErr
	})
	r.CloseSource()

	err := r.Start()
	if !errors.Is(err, stageErr) {
		t.Fatalf("Start = %v, want wrapped stage error", err)
	}
}

func TestRunner_StatsSubscriberSeesEvents(t *testing.T) {
	r := New(testLogger(), nil)

	var seen []stats.Event
	r.SubscribeStats("test", func(ctx context.Context, events <-chan stats.Event) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case evt, ok := <-events:
				if !ok {
					return nil
				}
				seen = append(seen, evt)
			}
		}
	})

	var got []model.Message
	drain(r, &got)

	src := r.SourceWriter()
	src <- model.Envelope{Message: model.Message{Identity: "a"}}
	r.CloseSource()

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	types := make(map[stats.EventType]int)
	for _, evt := range seen {
		types[evt.Type]++
	}
	if types[stats.EventTypeScanned] != 1 || types[stats.EventTypeEnqueued] != 1 {
		t.Errorf("events = %v, want one scanned and one enqueued", types)
	}
}
