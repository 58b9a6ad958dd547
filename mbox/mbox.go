package mbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/mboxport/mboxport/filter"
	"github.com/mboxport/mboxport/label"
	"github.com/mboxport/mboxport/model"
	"github.com/mboxport/mboxport/runner"
)

type Options struct {
	Path   string
	Ignore label.IgnoreSet
	Filter *filter.Filter
}

type Reader interface {
	Stream(ctx context.Context, out chan<- model.Envelope) error
}

func NewReader(opts Options, logger *slog.Logger) (Reader, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}

	return &fileReader{
		path:   path,
		ignore: opts.Ignore,
		filter: opts.Filter,
		logger: logger,
	}, nil
}

type fileReader struct {
	path   string
	ignore label.IgnoreSet
	filter *filter.Filter
	logger *slog.Logger
}

// Stream reads the archive entry by entry and emits one envelope per
// message. Entries that cannot be decoded are emitted as error envelopes
// and the stream keeps going; only I/O failures on the archive itself end
// the stream early.
func (f *fileReader) Stream(ctx context.Context, out chan<- model.Envelope) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("mbox entry %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			if err := f.emit(ctx, out, model.Envelope{Err: fmt.Errorf("mbox entry %d read: %w", idx, err)}); err != nil {
				return err
			}
			continue
		}

		msg, err := decode(raw, idx, f.ignore)
		if err != nil {
			if err := f.emit(ctx, out, model.Envelope{Err: fmt.Errorf("mbox entry %d: %w", idx, err)}); err != nil {
				return err
			}
			continue
		}

		if f.filter != nil {
			header, body := filter.SplitRawMessage(raw)
			if !f.filter.Allows(header, body, msg.Labels) {
				continue
			}
		}

		if err := f.emit(ctx, out, model.Envelope{Message: msg}); err != nil {
			return err
		}
	}
}

func (f *fileReader) emit(ctx context.Context, out chan<- model.Envelope, env model.Envelope) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- env:
		return nil
	}
}

// decode builds a message unit out of one raw mbox entry. Labels in the
// ignore set are dropped here, before any folder decision sees them.
func decode(raw []byte, ordinal int, ignore label.IgnoreSet) (model.Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return model.Message{}, err
	}

	labels := label.ParseValues(msg.Header[label.HeaderKey])
	if ignore != nil {
		labels = ignore.Filter(labels)
	}

	var receivedAt time.Time
	if date := msg.Header.Get("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			receivedAt = t
		}
	}

	return model.Message{
		Identity:   Identity(raw, ordinal),
		Labels:     labels,
		ReceivedAt: receivedAt,
		Size:       int64(len(raw)),
		Raw:        raw,
	}, nil
}

// Identity derives the stable per-message identity used for output file
// names and ledger keys: SHA-256 over the raw bytes plus the entry's
// ordinal position, so byte-identical duplicates within one archive stay
// distinct while re-runs over an unchanged file reproduce the same values.
func Identity(raw []byte, ordinal int) string {
	h := sha256.New()
	h.Write(raw)
	h.Write([]byte("#" + strconv.Itoa(ordinal)))
	return hex.EncodeToString(h.Sum(nil))
}

// Count reports the number of entries in an mbox file without decoding
// them, for progress totals.
func Count(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return 0, err
		}

		if _, err := io.Copy(io.Discard, msgReader); err != nil {
			count++
			continue
		}
		count++
	}
}

type Producer struct {
	reader Reader
	runner *runner.Runner
}

func NewProducer(opts Options, r *runner.Runner, logger *slog.Logger) (*Producer, error) {
	reader, err := NewReader(opts, logger)
	if err != nil {
		return nil, err
	}
	producer := &Producer{reader: reader, runner: r}
	r.AddStage("mbox", producer.run)
	return producer, nil
}

func (p *Producer) run(ctx context.Context) error {
	defer p.runner.CloseSource()
	return p.reader.Stream(ctx, p.runner.SourceWriter())
}
