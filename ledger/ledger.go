package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusUploaded Status = "uploaded"
	StatusFailed   Status = "failed"
)

// Record is one upload outcome. Records are only ever appended; on load the
// latest record per identity wins.
type Record struct {
	Identity  string    `json:"identity"`
	Folder    string    `json:"folder"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"ts"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
}

const fileName = "upload-ledger.jsonl"

// Ledger is the durable journal of per-message upload outcomes. It has a
// single writer (the upload driver) and is replayed once at startup; an
// identity whose latest status is uploaded is skipped on resume, anything
// else is retried.
type Ledger struct {
	mu      sync.Mutex
	records map[string]Record
	path    string
	file    *os.File
	writer  *bufio.Writer
	logger  *slog.Logger
}

// Open loads the ledger from stateDir and opens it for appending. With
// resume disabled any previous journal is discarded, mirroring a migration
// started from scratch.
func Open(stateDir string, resume bool, logger *slog.Logger) (*Ledger, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	l := &Ledger{
		records: make(map[string]Record),
		path:    filepath.Join(stateDir, fileName),
		logger:  logger,
	}

	if !resume {
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reset ledger: %w", err)
		}
	} else if err := l.load(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open ledger for append: %w", err)
	}
	l.file = file
	l.writer = bufio.NewWriterSize(file, 64*1024)

	return l, nil
}

// load replays the journal. A final line that both fails to parse and is
// not newline-terminated is the footprint of a mid-write crash: the append
// it belonged to was never acknowledged, so dropping it is safe. Any other
// unparseable line means the file was damaged and resuming on it could
// duplicate or lose uploads, which must surface instead.
func (l *Ledger) load() error {
	file, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for lineNo := 1; ; lineNo++ {
		line, readErr := reader.ReadString('\n')
		atEOF := errors.Is(readErr, io.EOF)
		if readErr != nil && !atEOF {
			return fmt.Errorf("read ledger: %w", readErr)
		}

		text := strings.TrimSpace(line)
		if text != "" {
			var rec Record
			if err := json.Unmarshal([]byte(text), &rec); err != nil {
				if atEOF {
					if l.logger != nil {
						l.logger.Warn("discarding truncated ledger tail", "line", lineNo)
					}
					return nil
				}
				return fmt.Errorf("ledger line %d: %w", lineNo, err)
			}
			if rec.Identity != "" {
				l.records[rec.Identity] = rec
			}
		}

		if atEOF {
			return nil
		}
	}
}

// Get returns the latest record for an identity.
func (l *Ledger) Get(identity string) (Record, bool) {
	l.mu.Lock()
	rec, ok := l.records[identity]
	l.mu.Unlock()
	return rec, ok
}

// Uploaded reports whether an identity is confirmed delivered.
func (l *Ledger) Uploaded(identity string) bool {
	rec, ok := l.Get(identity)
	return ok && rec.Status == StatusUploaded
}

// Record appends an outcome and flushes it to durable storage before the
// in-memory view advances. Losing an upload acknowledgement but not the
// upload itself would only cause a harmless duplicate on resume; the
// reverse would silently drop mail, so the write comes first.
func (l *Ledger) Record(rec Record) error {
	if rec.Identity == "" {
		return fmt.Errorf("ledger record without identity")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode ledger record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("write ledger record: %w", err)
	}
	if err := l.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write ledger record: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}

	l.records[rec.Identity] = rec
	return nil
}

type Snapshot struct {
	Uploaded int
	Failed   int
	Pending  int
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s Snapshot
	for _, rec := range l.records {
		switch rec.Status {
		case StatusUploaded:
			s.Uploaded++
		case StatusFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}

// Close flushes and closes the journal file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	var firstErr error
	if err := l.writer.Flush(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("flush ledger: %w", err)
	}
	if err := l.file.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sync ledger: %w", err)
	}
	if err := l.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close ledger: %w", err)
	}
	l.file = nil

	return firstErr
}
