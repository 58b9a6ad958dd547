package imap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/mboxport/mboxport/label"
	"github.com/mboxport/mboxport/ledger"
	"github.com/mboxport/mboxport/model"
	"github.com/mboxport/mboxport/runner"
	"github.com/mboxport/mboxport/stats"
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool

	// ParentFolder roots every resolved folder, so an import never mixes
	// into the account's existing hierarchy. Empty means no parent.
	ParentFolder string

	DryRun      bool
	MaxAttempts int
	RetryBase   time.Duration

	Order *label.Order
}

// Uploader drives the single IMAP session of a run: per message it
// resolves the target folder, ensures the mailbox hierarchy, appends the
// raw content and records the outcome in the ledger before moving on.
type Uploader struct {
	opts   Options
	runner *runner.Runner
	ledger *ledger.Ledger
	work   <-chan model.Message
	logger *slog.Logger

	// dial is swapped out by tests.
	dial func(ctx context.Context) (Session, func(), error)

	sess    Session
	cleanup func()

	// Mailboxes ensured so far. Creation outlives a reconnect, so the
	// cache is never invalidated within a run.
	ensured map[string]bool
}

func NewUploader(opts Options, r *runner.Runner, led *ledger.Ledger, logger *slog.Logger) (*Uploader, error) {
	if !opts.DryRun {
		if opts.Host == "" {
			return nil, fmt.Errorf("imap host is empty")
		}
		if opts.Port <= 0 {
			return nil, fmt.Errorf("imap port must be positive")
		}
	}
	if opts.Order == nil {
		return nil, fmt.Errorf("priority order must not be nil")
	}
	if led == nil && !opts.DryRun {
		return nil, fmt.Errorf("ledger must not be nil")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	if opts.ParentFolder != "" {
		opts.ParentFolder = label.FolderFromLabel(opts.ParentFolder)
	}

	uploader := &Uploader{
		opts:    opts,
		runner:  r,
		ledger:  led,
		work:    r.Work(),
		logger:  logger,
		ensured: make(map[string]bool),
	}
	uploader.dial = uploader.dialSession

	r.AddStage("imap", uploader.run)
	return uploader, nil
}

func (u *Uploader) run(ctx context.Context) error {
	defer u.closeSession()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-u.work:
			if !ok {
				return nil
			}
			if msg.Identity == "" {
				err := errors.New("message without identity")
				u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeError, Err: err})
				continue
			}

			folder := u.opts.Order.Folder(msg.Labels)

			if u.opts.DryRun {
				u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeDryRunUpload, Identity: msg.Identity, Folder: folder})
				if u.logger != nil {
					u.logger.Debug("dry-run upload", "identity", msg.Identity, "folder", folder)
				}
				continue
			}

			if err := u.process(ctx, msg, folder); err != nil {
				u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeError, Identity: msg.Identity, Err: err})
				return err
			}
		}
	}
}

// process delivers one message, retrying transient failures with bounded
// exponential backoff. It returns an error only for run-scoped failures
// (authentication, inability to connect, a ledger that stopped accepting
// writes); a message that exhausts its attempts is recorded failed and the
// run continues.
func (u *Uploader) process(ctx context.Context, msg model.Message, folder string) error {
	for attempt := 1; ; attempt++ {
		err := u.tryUpload(ctx, msg, folder)
		if err == nil {
			if recErr := u.ledger.Record(ledger.Record{
				Identity: msg.Identity,
				Folder:   folder,
				Status:   ledger.StatusUploaded,
				Attempts: attempt,
			}); recErr != nil {
				return recErr
			}
			u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeUploaded, Identity: msg.Identity, Folder: folder})
			if u.logger != nil {
				u.logger.Debug("uploaded message", "identity", msg.Identity, "folder", folder, "attempts", attempt)
			}
			return nil
		}

		if errors.Is(err, ErrAuth) || errors.Is(err, ErrConnect) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt >= u.opts.MaxAttempts {
			if recErr := u.ledger.Record(ledger.Record{
				Identity: msg.Identity,
				Folder:   folder,
				Status:   ledger.StatusFailed,
				Attempts: attempt,
				Error:    err.Error(),
			}); recErr != nil {
				return recErr
			}
			u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeFailed, Identity: msg.Identity, Folder: folder, Err: err})
			if u.logger != nil {
				u.logger.Warn("message failed after retries", "identity", msg.Identity, "folder", folder, "attempts", attempt, "err", err)
			}
			return nil
		}

		u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeRetry, Identity: msg.Identity, Folder: folder, Err: err})
		if u.logger != nil {
			u.logger.Warn("upload attempt failed, retrying", "identity", msg.Identity, "attempt", attempt, "err", err)
		}

		if isConnError(err) {
			u.closeSession()
		}

		if err := sleep(ctx, backoff(u.opts.RetryBase, attempt)); err != nil {
			return err
		}
	}
}

func (u *Uploader) tryUpload(ctx context.Context, msg model.Message, folder string) error {
	if u.sess == nil {
		sess, cleanup, err := u.dial(ctx)
		if err != nil {
			return err
		}
		u.sess = sess
		u.cleanup = cleanup
	}

	mailbox := u.mailboxFor(folder)
	if err := u.ensurePath(mailbox); err != nil {
		return err
	}
	return u.sess.Append(mailbox, msg)
}

// mailboxFor translates a resolved folder path into the server's mailbox
// name: rooted under the parent folder and joined with the session's
// hierarchy delimiter.
func (u *Uploader) mailboxFor(folder string) string {
	var segments []string
	if u.opts.ParentFolder != "" {
		segments = strings.Split(u.opts.ParentFolder, "/")
	}
	segments = append(segments, strings.Split(folder, "/")...)
	return strings.Join(segments, u.sess.Delimiter())
}

// ensurePath creates every hierarchy level of a mailbox, shallowest first,
// skipping levels already ensured this run. With hundreds of thousands of
// messages resolving to a few hundred folders, the cache saves a round
// trip per message.
func (u *Uploader) ensurePath(mailbox string) error {
	delim := u.sess.Delimiter()
	segments := strings.Split(mailbox, delim)

	prefix := ""
	for i, segment := range segments {
		if i == 0 {
			prefix = segment
		} else {
			prefix += delim + segment
		}
		if u.ensured[prefix] {
			continue
		}
		if err := u.sess.Ensure(prefix); err != nil {
			return err
		}
		u.ensured[prefix] = true
	}
	return nil
}

func (u *Uploader) closeSession() {
	if u.cleanup != nil {
		u.cleanup()
	}
	u.sess = nil
	u.cleanup = nil
}

func backoff(base time.Duration, attempt int) time.Duration {
	const ceiling = 30 * time.Second
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isConnError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
