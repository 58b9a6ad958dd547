package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mboxport/mboxport/model"
	"github.com/mboxport/mboxport/stats"
)

type StageFunc func(context.Context) error

// SkipFunc decides whether the bridge drops a message before it reaches the
// worker stage. The upload pipeline plugs the ledger in here so confirmed
// messages are never re-enqueued.
type SkipFunc func(model.Message) bool

// Runner owns the channel pipeline shared by the convert and upload
// pipelines: a producer stage writes envelopes to the source channel, the
// bridge filters them onto the work channel, and a consumer stage drains
// the work channel. Stat subscribers observe the event channel on the side.
type Runner struct {
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	source chan model.Envelope
	work   chan model.Message
	events chan stats.Event

	skip SkipFunc

	workWG  sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSourceOnce sync.Once
	closeWorkOnce   sync.Once
	closeEventsOnce sync.Once
	since           time.Time
}

func New(logger *slog.Logger, skip SkipFunc) *Runner {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		source: make(chan model.Envelope, 32),
		work:   make(chan model.Message, 32),
		events: make(chan stats.Event, 128),
		skip:   skip,
	}

	r.AddStage("bridge", r.bridge)
	return r
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

func (r *Runner) SourceWriter() chan<- model.Envelope {
	return r.source
}

func (r *Runner) CloseSource() {
	r.closeSourceOnce.Do(func() {
		close(r.source)
	})
}

func (r *Runner) Work() <-chan model.Message {
	return r.work
}

func (r *Runner) EmitEvent(evt stats.Event) {
	select {
	case <-r.ctx.Done():
	case r.events <- evt:
	}
}

func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		if err := fn(r.ctx, r.events); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
	}()
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.workWG.Add(1)
	go func() {
		defer r.workWG.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stage: %w", name, err))
		}
	}()
}

func (r *Runner) Start() error {
	r.since = time.Now()

	r.workWG.Wait()
	r.closeEvents()
	r.statsWG.Wait()

	r.cancel()

	err := r.err
	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration)
	return nil
}

// bridge moves decoded messages from the source to the work channel. An
// envelope carrying a decode error is logged and dropped rather than
// failing the run: one mangled entry in a multi-gigabyte archive must not
// abort the migration.
func (r *Runner) bridge(ctx context.Context) error {
	defer r.closeWork()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case envelope, ok := <-r.source:
			if !ok {
				return nil
			}

			if envelope.Err != nil {
				r.EmitEvent(stats.Event{Stage: stats.StageSource, Type: stats.EventTypeError, Err: envelope.Err})
				if r.logger != nil {
					r.logger.Warn("skipping undecodable entry", "err", envelope.Err)
				}
				continue
			}

			msg := envelope.Message
			r.EmitEvent(stats.Event{Stage: stats.StageSource, Type: stats.EventTypeScanned, Identity: msg.Identity})

			if r.skip != nil && r.skip(msg) {
				r.EmitEvent(stats.Event{Stage: stats.StageSource, Type: stats.EventTypeSkipped, Identity: msg.Identity})
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.work <- msg:
				r.EmitEvent(stats.Event{Stage: stats.StageSource, Type: stats.EventTypeEnqueued, Identity: msg.Identity})
			}
		}
	}
}

func (r *Runner) closeWork() {
	r.closeWorkOnce.Do(func() {
		close(r.work)
	})
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		close(r.events)
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
