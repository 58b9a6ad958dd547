package eml

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mboxport/mboxport/label"
	"github.com/mboxport/mboxport/model"
	"github.com/mboxport/mboxport/runner"
)

// Extension is the suffix conversion gives every message file.
const Extension = ".eml"

type Options struct {
	Dir    string
	Ignore label.IgnoreSet
}

// Walker streams the .eml files of a conversion output tree as message
// units. The label set is re-read from each file's headers so the uploader
// resolves folders from the same inputs the converter did, not from the
// directory names.
type Walker struct {
	dir    string
	ignore label.IgnoreSet
	runner *runner.Runner
	logger *slog.Logger
}

func NewProducer(opts Options, r *runner.Runner, logger *slog.Logger) (*Walker, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return nil, fmt.Errorf("eml directory is empty")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("eml directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("eml directory: %s is not a directory", dir)
	}

	total, err := Count(dir)
	if err != nil {
		return nil, fmt.Errorf("eml directory: %w", err)
	}
	if total == 0 {
		// A maildir-format conversion or a wrong --dir would otherwise
		// upload nothing and still exit zero.
		return nil, fmt.Errorf("no %s files under %s", Extension, dir)
	}

	walker := &Walker{dir: dir, ignore: opts.Ignore, runner: r, logger: logger}
	r.AddStage("walk", walker.run)
	return walker, nil
}

func (w *Walker) run(ctx context.Context) error {
	defer w.runner.CloseSource()
	out := w.runner.SourceWriter()

	return filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), Extension) {
			return nil
		}

		env := w.read(path, d.Name())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- env:
			return nil
		}
	})
}

func (w *Walker) read(path, name string) model.Envelope {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Envelope{Err: fmt.Errorf("read %s: %w", path, err)}
	}

	msg, err := Decode(raw, identityFromName(name), w.ignore)
	if err != nil {
		return model.Envelope{Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	return model.Envelope{Message: msg}
}

// Decode builds a message unit from the contents of one EML file. The
// identity comes from the file name, which conversion derived from the
// content hash.
func Decode(raw []byte, identity string, ignore label.IgnoreSet) (model.Message, error) {
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
		Identity:   identity,
		Labels:     labels,
		ReceivedAt: receivedAt,
		Size:       int64(len(raw)),
		Raw:        raw,
	}, nil
}

func identityFromName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Count reports how many .eml files live under dir, for progress totals.
func Count(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(d.Name()), Extension) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
