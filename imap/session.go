package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/mboxport/mboxport/model"
)

// ErrAuth marks a rejected login. No later message can succeed after one,
// so the whole run aborts instead of burning retries per message.
var ErrAuth = errors.New("imap authentication failed")

// ErrConnect marks a failure to establish the IMAP session.
var ErrConnect = errors.New("imap connection failed")

// Session is the slice of an IMAP connection the upload driver needs:
// hierarchy delimiter discovery, idempotent mailbox creation and message
// append.
type Session interface {
	Delimiter() string
	Ensure(mailbox string) error
	Append(mailbox string, msg model.Message) error
}

type clientSession struct {
	client *imapclient.Client
	delim  string
	logger *slog.Logger
}

func (u *Uploader) dialSession(ctx context.Context) (Session, func(), error) {
	address := net.JoinHostPort(u.opts.Host, strconv.Itoa(u.opts.Port))
	options := &imapclient.Options{}

	if u.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         u.opts.Host,
			InsecureSkipVerify: u.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	if u.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dial %s: %v", ErrConnect, address, err)
	}

	if err := client.Login(u.opts.Username, u.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("%w: %v (for Gmail use an app password, regular passwords are rejected when MFA is enabled)", ErrAuth, err)
	}

	sess := &clientSession{
		client: client,
		delim:  discoverDelimiter(client),
		logger: u.logger,
	}

	if u.logger != nil {
		u.logger.Debug("imap connection established", "address", address, "user", u.opts.Username, "delimiter", sess.delim, "tls", u.opts.UseTLS)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil && u.logger != nil {
				u.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil && u.logger != nil {
			u.logger.Debug("imap connection closed", "err", err)
		}
	}

	return sess, cleanup, nil
}

// discoverDelimiter asks the server for its hierarchy delimiter via LIST.
// Servers that return nothing usable get the common default.
func discoverDelimiter(client *imapclient.Client) string {
	listings, err := client.List("", "%", nil).Collect()
	if err != nil {
		return "/"
	}
	for _, listing := range listings {
		if listing.Delim != 0 {
			return string(listing.Delim)
		}
	}
	return "/"
}

func (s *clientSession) Delimiter() string {
	return s.delim
}

// Ensure creates a mailbox if it does not exist yet. The AlreadyExists
// response code is success: folder creation is idempotent so that resumed
// runs and shared hierarchy prefixes cost nothing.
func (s *clientSession) Ensure(mailbox string) error {
	if err := s.client.Create(mailbox, nil).Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) && respErr.Code == imapv2.ResponseCodeAlreadyExists {
			if s.logger != nil {
				s.logger.Debug("imap mailbox already exists", "mailbox", mailbox)
			}
			return nil
		}
		return fmt.Errorf("ensure mailbox %s: %w", mailbox, err)
	}

	if s.logger != nil {
		s.logger.Info("imap mailbox created", "mailbox", mailbox)
	}
	return nil
}

func (s *clientSession) Append(mailbox string, msg model.Message) error {
	size := int64(len(msg.Raw))

	var opts *imapv2.AppendOptions
	if !msg.ReceivedAt.IsZero() {
		opts = &imapv2.AppendOptions{Time: msg.ReceivedAt}
	}

	cmd := s.client.Append(mailbox, size, opts)

	remaining := msg.Raw
	for len(remaining) > 0 {
		n, err := cmd.Write(remaining)
		if err != nil {
			_ = cmd.Close()
			return fmt.Errorf("append write: %w", err)
		}
		if n == 0 {
			_ = cmd.Close()
			return fmt.Errorf("append write: wrote 0 bytes")
		}
		remaining = remaining[n:]
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}

	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}

	return nil
}
