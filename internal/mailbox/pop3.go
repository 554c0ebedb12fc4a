package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	pop3client "github.com/knadh/go-pop3"
)

// POP3Dialer opens POP3/POP3S sessions.
type POP3Dialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewPOP3 creates a new POP3 dialer.
func NewPOP3(cfg Config, logger *slog.Logger) *POP3Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &POP3Dialer{cfg: cfg, logger: logger}
}

// Account implements Dialer.
func (d *POP3Dialer) Account() string { return d.cfg.account() }

// Dial implements Dialer. Like IMAP sessions, the connection is bound to
// ctx.
func (d *POP3Dialer) Dial(ctx context.Context) (Session, error) {
	addr := d.cfg.addr()
	if err := ctx.Err(); err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}

	dialer := &pop3Dialer{ctx: ctx, cfg: d.cfg}
	client := pop3client.New(pop3client.Opt{
		Host:          d.cfg.Host,
		Port:          d.cfg.Port,
		DialTimeout:   d.cfg.dialTimeout(),
		Dialer:        dialer,
		TLSEnabled:    d.cfg.UseTLS,
		TLSSkipVerify: d.cfg.InsecureSkipVerify,
	})
	conn, err := client.NewConn()
	if err != nil {
		dialer.closeConn()
		return nil, &ConnectionError{Addr: addr, Err: err}
	}

	if err := conn.Auth(d.cfg.Username, d.cfg.Password); err != nil {
		_ = conn.Quit()
		dialer.closeConn()
		return nil, d.authError(addr, err)
	}

	d.logger.Debug("pop3 session opened", "addr", addr, "username", d.cfg.Username)
	return &pop3Session{
		conn:    conn,
		dialer:  dialer,
		headers: make(map[MessageRef]message.Header),
		logger:  d.logger,
	}, nil
}

// tempRespCodes mark a refused login as temporary (RFC 2449, RFC 3206).
var tempRespCodes = []string{"[IN-USE]", "[SYS/TEMP]", "[LOGIN-DELAY]"}

// authError maps a failed USER/PASS exchange. go-pop3 reports -ERR replies
// as plain text, so the response code is read from the reply itself.
func (d *POP3Dialer) authError(addr string, err error) error {
	if isNetError(err) {
		return &ConnectionError{Addr: addr, Err: err}
	}
	reply := strings.ToUpper(strings.TrimSpace(err.Error()))
	for _, code := range tempRespCodes {
		if strings.HasPrefix(reply, code) {
			return &ConnectionError{Addr: addr, Err: err}
		}
	}
	return &AuthError{
		Account: d.cfg.account(),
		Hint:    "check the POP3 username and password and that POP access is enabled for the account",
		Err:     err,
	}
}

type pop3Session struct {
	conn    *pop3client.Conn
	dialer  *pop3Dialer
	headers map[MessageRef]message.Header
	logger  *slog.Logger
	closed  bool
}

// OpenMailbox only accepts INBOX, the single mailbox POP3 exposes.
func (s *pop3Session) OpenMailbox(name string) error {
	if name != "" && !strings.EqualFold(name, DefaultFolder) {
		return &MailboxError{Name: name, Err: fmt.Errorf("pop3 only provides %s", DefaultFolder)}
	}
	return nil
}

// scanFactor bounds how many headers Search reads per wanted match.
const scanFactor = 5

// Search walks the maildrop newest first, reading headers with TOP. It stops
// once Limit matches were found or Limit*scanFactor messages were read, so
// the work per call does not grow with the maildrop.
func (s *pop3Session) Search(criteria SearchCriteria) ([]MessageRef, error) {
	msgs, err := s.conn.List(0)
	if err != nil {
		return nil, &SearchError{Err: fmt.Errorf("pop3 list: %w", err)}
	}

	want := strings.ToLower(criteria.Subject)
	oldest := 0
	if criteria.Limit > 0 {
		oldest = max(0, len(msgs)-criteria.Limit*scanFactor)
	}
	var refs []MessageRef
	for i := len(msgs) - 1; i >= oldest; i-- {
		ref := MessageRef(msgs[i].ID)
		h, err := s.header(ref)
		if err != nil {
			return nil, &SearchError{Err: err}
		}
		subject, _ := (&mail.Header{Header: h}).Subject()
		if !strings.Contains(strings.ToLower(subject), want) {
			continue
		}
		refs = append(refs, ref)
		if criteria.Limit > 0 && len(refs) >= criteria.Limit {
			break
		}
	}
	slices.Reverse(refs)
	return refs, nil
}

func (s *pop3Session) FetchMeta(ref MessageRef) (MessageMeta, error) {
	h, err := s.header(ref)
	if err != nil {
		return MessageMeta{}, &FetchError{Ref: ref, Op: "meta", Err: err}
	}
	return metaFromHeader(ref, h), nil
}

func (s *pop3Session) FetchBody(ref MessageRef) (string, error) {
	raw, err := s.conn.RetrRaw(int(ref))
	if err != nil {
		return "", &FetchError{Ref: ref, Op: "body", Err: fmt.Errorf("pop3 retr: %w", err)}
	}
	return TextBody(raw.Bytes()), nil
}

func (s *pop3Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.dialer.closeConn()
	return s.conn.Quit()
}

// header returns the message header, reading it with TOP n 0 on first use.
func (s *pop3Session) header(ref MessageRef) (message.Header, error) {
	if h, ok := s.headers[ref]; ok {
		return h, nil
	}
	entity, err := s.conn.Top(int(ref), 0)
	if err != nil {
		return message.Header{}, fmt.Errorf("pop3 top %d: %w", ref, err)
	}
	s.headers[ref] = entity.Header
	return entity.Header, nil
}

// recipientHeaders are read in order; the last two carry the address the
// message was actually delivered to when plus-addressing or aliases are used.
var recipientHeaders = []string{"To", "Cc", "Delivered-To", "X-Original-To"}

// metaFromHeader extracts MessageMeta from raw message headers.
func metaFromHeader(ref MessageRef, h message.Header) MessageMeta {
	mh := &mail.Header{Header: h}
	meta := MessageMeta{Ref: ref}

	meta.MessageID, _ = mh.MessageID()
	meta.Subject, _ = mh.Subject()
	if date, err := mh.Date(); err == nil {
		meta.SentAt = date
	}

	for _, key := range recipientHeaders {
		addrs, err := mh.AddressList(key)
		if err == nil {
			for _, a := range addrs {
				meta.Recipients = append(meta.Recipients, a.Address)
			}
			continue
		}
		// Fall back to the raw value for headers that do not parse as a list.
		if v := strings.Trim(strings.TrimSpace(h.Get(key)), "<>"); v != "" {
			meta.Recipients = append(meta.Recipients, v)
		}
	}
	return meta
}
