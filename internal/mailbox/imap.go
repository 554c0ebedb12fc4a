package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPDialer opens IMAP/IMAPS sessions.
type IMAPDialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewIMAP creates a new IMAP dialer.
func NewIMAP(cfg Config, logger *slog.Logger) *IMAPDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &IMAPDialer{cfg: cfg, logger: logger}
}

// Account implements Dialer.
func (d *IMAPDialer) Account() string { return d.cfg.account() }

// Dial implements Dialer. The session's connection expires shortly after
// ctx's deadline and is cut when ctx is cancelled.
func (d *IMAPDialer) Dial(ctx context.Context) (Session, error) {
	addr := d.cfg.addr()

	conn, release, err := d.cfg.sessionConn(ctx, d.cfg.UseTLS)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}
	client := imapclient.New(conn, nil)

	if err := client.Login(d.cfg.Username, d.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		release()
		return nil, d.loginError(addr, err)
	}

	d.logger.Debug("imap session opened", "addr", addr, "username", d.cfg.Username)
	return &imapSession{client: client, release: release, logger: d.logger}, nil
}

// loginError maps a failed LOGIN onto the typed error taxonomy. Only a
// credential refusal becomes an AuthError; a server that is busy or
// unavailable is retried like a connection failure.
func (d *IMAPDialer) loginError(addr string, err error) error {
	var imapErr *imap.Error
	if !errors.As(err, &imapErr) {
		// No status reply at all: the connection broke or timed out.
		return &ConnectionError{Addr: addr, Err: err}
	}

	switch imapErr.Code {
	case imap.ResponseCodeAuthenticationFailed, imap.ResponseCodeAuthorizationFailed, imap.ResponseCodeExpired:
		return d.authError(err)
	case imap.ResponseCodeUnavailable, imap.ResponseCodeInUse, imap.ResponseCodeServerBug:
		return &ConnectionError{Addr: addr, Err: err}
	case "":
		if imapErr.Type == imap.StatusResponseTypeNo {
			return d.authError(err)
		}
	}
	return fmt.Errorf("imap login %s: %w", d.cfg.Username, err)
}

func (d *IMAPDialer) authError(err error) *AuthError {
	return &AuthError{
		Account: d.cfg.account(),
		Hint:    "check the IMAP username and password (many providers require an app password)",
		Err:     err,
	}
}

type imapSession struct {
	client  *imapclient.Client
	release func()
	logger  *slog.Logger
	closed  bool
}

func (s *imapSession) OpenMailbox(name string) error {
	if name == "" {
		name = DefaultFolder
	}
	// Read-only so that nothing we do can change flags.
	if _, err := s.client.Select(name, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return &MailboxError{Name: name, Err: err}
	}
	return nil
}

func (s *imapSession) Search(criteria SearchCriteria) ([]MessageRef, error) {
	searchCriteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "Subject", Value: criteria.Subject},
		},
	}
	data, err := s.client.UIDSearch(searchCriteria, nil).Wait()
	if err != nil {
		return nil, &SearchError{Err: err}
	}

	uids := data.AllUIDs()
	refs := make([]MessageRef, 0, len(uids))
	for _, uid := range uids {
		refs = append(refs, MessageRef(uid))
	}
	// UIDs grow with arrival.
	slices.Sort(refs)
	if criteria.Limit > 0 && len(refs) > criteria.Limit {
		refs = refs[len(refs)-criteria.Limit:]
	}
	return refs, nil
}

func (s *imapSession) FetchMeta(ref MessageRef) (MessageMeta, error) {
	buf, err := s.fetchOne(ref, &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
	})
	if err != nil {
		return MessageMeta{}, &FetchError{Ref: ref, Op: "meta", Err: err}
	}
	return metaFromBuffer(ref, buf), nil
}

func (s *imapSession) FetchBody(ref MessageRef) (string, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	buf, err := s.fetchOne(ref, &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	if err != nil {
		return "", &FetchError{Ref: ref, Op: "body", Err: err}
	}
	return TextBody(buf.FindBodySection(section)), nil
}

func (s *imapSession) fetchOne(ref MessageRef, opts *imap.FetchOptions) (*imapclient.FetchMessageBuffer, error) {
	buffers, err := s.client.Fetch(imap.UIDSetNum(imap.UID(ref)), opts).Collect()
	if err != nil {
		return nil, err
	}
	if len(buffers) == 0 {
		return nil, fmt.Errorf("message UID %d not found", ref)
	}
	return buffers[0], nil
}

func (s *imapSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.release()
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Debug("imap logout failed", "error", err)
	}
	return s.client.Close()
}

// metaFromBuffer extracts MessageMeta from a FetchMessageBuffer.
func metaFromBuffer(ref MessageRef, buf *imapclient.FetchMessageBuffer) MessageMeta {
	meta := MessageMeta{Ref: ref, SentAt: buf.InternalDate}
	env := buf.Envelope
	if env == nil {
		return meta
	}

	meta.MessageID = env.MessageID
	meta.Subject = env.Subject
	if !env.Date.IsZero() {
		meta.SentAt = env.Date
	}
	for _, list := range [][]imap.Address{env.To, env.Cc, env.Bcc} {
		for _, addr := range list {
			if a := addr.Addr(); a != "" {
				meta.Recipients = append(meta.Recipients, a)
			}
		}
	}
	return meta
}
