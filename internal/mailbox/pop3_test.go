package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emersion/go-message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePOP3 serves a fixed maildrop to any number of sequential sessions.
type fakePOP3 struct {
	user, pass string
	passReply  string // replaces the reply to PASS when set
	messages   []string
	tops       atomic.Int32
}

func startFakePOP3(t *testing.T, f *fakePOP3) Config {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			f.serve(conn)
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return Config{Host: host, Port: port, Username: f.user, Password: f.pass, DialTimeout: 2 * time.Second}
}

func (f *fakePOP3) serve(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("+OK fake pop3 ready")

	var user string
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "USER":
			user = fields[1]
			_ = tp.PrintfLine("+OK")
		case "PASS":
			if f.passReply != "" {
				_ = tp.PrintfLine("%s", f.passReply)
				continue
			}
			if user != f.user || len(fields) < 2 || fields[1] != f.pass {
				_ = tp.PrintfLine("-ERR invalid credentials")
				continue
			}
			_ = tp.PrintfLine("+OK logged in")
		case "NOOP":
			_ = tp.PrintfLine("+OK")
		case "STAT":
			_ = tp.PrintfLine("+OK %d 0", len(f.messages))
		case "LIST":
			_ = tp.PrintfLine("+OK %d messages", len(f.messages))
			for i, m := range f.messages {
				_ = tp.PrintfLine("%d %d", i+1, len(m))
			}
			_ = tp.PrintfLine(".")
		case "TOP", "RETR":
			id, err := strconv.Atoi(fields[1])
			if err != nil || id < 1 || id > len(f.messages) {
				_ = tp.PrintfLine("-ERR no such message")
				continue
			}
			raw := f.messages[id-1]
			if strings.ToUpper(fields[0]) == "TOP" {
				f.tops.Add(1)
				raw, _, _ = strings.Cut(raw, "\r\n\r\n")
				raw += "\r\n\r\n"
			}
			_ = tp.PrintfLine("+OK")
			w := tp.DotWriter()
			_, _ = w.Write([]byte(raw))
			_ = w.Close()
		case "QUIT":
			_ = tp.PrintfLine("+OK bye")
			return
		default:
			_ = tp.PrintfLine("-ERR unknown command")
		}
	}
}

func pop3Message(subject, to string, date time.Time, body string) string {
	return fmt.Sprintf("From: noreply@service.test\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Date: %s\r\n"+
		"Message-ID: <%s@service.test>\r\n"+
		"\r\n"+
		"%s\r\n", to, subject, date.Format(time.RFC1123Z), strings.ReplaceAll(subject, " ", "-"), body)
}

func TestPOP3SearchAndFetch(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	f := &fakePOP3{
		user: "qa",
		pass: "secret",
		messages: []string{
			pop3Message("Your code one", "qa@example.com", now.Add(-3*time.Minute), "111111"),
			pop3Message("Newsletter", "qa@example.com", now.Add(-2*time.Minute), "no code"),
			pop3Message("your CODE two", "qa+x@example.com", now.Add(-time.Minute), "222222"),
		},
	}
	cfg := startFakePOP3(t, f)

	sess, err := NewPOP3(cfg, nil).Dial(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.OpenMailbox("inbox"))

	refs, err := sess.Search(SearchCriteria{Subject: "your code"})
	require.NoError(t, err)
	assert.Equal(t, []MessageRef{1, 3}, refs)

	refs, err = sess.Search(SearchCriteria{Subject: "your code", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []MessageRef{3}, refs)

	meta, err := sess.FetchMeta(3)
	require.NoError(t, err)
	assert.Equal(t, "your CODE two", meta.Subject)
	assert.True(t, meta.SentAt.Equal(now.Add(-time.Minute)))
	assert.Contains(t, meta.Recipients, "qa+x@example.com")
	assert.Equal(t, "your-CODE-two@service.test", meta.MessageID)

	// Headers are cached after the first search.
	assert.EqualValues(t, 3, f.tops.Load())

	body, err := sess.FetchBody(3)
	require.NoError(t, err)
	assert.Contains(t, body, "222222")

	_, err = sess.FetchBody(9)
	var fetchErr *FetchError
	assert.ErrorAs(t, err, &fetchErr)
}

func TestPOP3DialRejectsBadPassword(t *testing.T) {
	cfg := startFakePOP3(t, &fakePOP3{user: "qa", pass: "secret"})
	cfg.Password = "nope"

	_, err := NewPOP3(cfg, nil).Dial(context.Background())
	assert.True(t, IsAuthError(err), "got %T: %v", err, err)
}

func TestPOP3LoginRefusals(t *testing.T) {
	cases := []struct {
		reply    string
		wantAuth bool
	}{
		{reply: "-ERR [AUTH] invalid password", wantAuth: true},
		{reply: "-ERR authentication failed", wantAuth: true},
		{reply: "-ERR [IN-USE] maildrop locked by another session"},
		{reply: "-ERR [SYS/TEMP] try again later"},
		{reply: "-ERR [LOGIN-DELAY] wait before logging in again"},
	}

	for _, tc := range cases {
		t.Run(tc.reply, func(t *testing.T) {
			cfg := startFakePOP3(t, &fakePOP3{user: "qa", pass: "secret", passReply: tc.reply})

			_, err := NewPOP3(cfg, nil).Dial(context.Background())
			require.Error(t, err)

			var connErr *ConnectionError
			assert.Equal(t, tc.wantAuth, IsAuthError(err), "err: %v", err)
			assert.Equal(t, !tc.wantAuth, errors.As(err, &connErr), "err: %v", err)
		})
	}
}

func TestPOP3SearchBoundsHeaderReads(t *testing.T) {
	now := time.Now()
	f := &fakePOP3{user: "qa", pass: "secret"}
	for i := 0; i < 40; i++ {
		f.messages = append(f.messages, pop3Message(fmt.Sprintf("Newsletter %d", i), "qa@example.com", now, "nothing"))
	}
	f.messages[0] = pop3Message("Your code", "qa@example.com", now, "123456")
	cfg := startFakePOP3(t, f)

	sess, err := NewPOP3(cfg, nil).Dial(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	refs, err := sess.Search(SearchCriteria{Subject: "your code", Limit: 2})
	require.NoError(t, err)
	// The only match is older than the scan window.
	assert.Empty(t, refs)
	assert.EqualValues(t, 2*scanFactor, f.tops.Load())
}

func TestPOP3DialCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPOP3(Config{Host: "127.0.0.1", Port: 1}, nil).Dial(ctx)
	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestPOP3OpenMailboxOnlyInbox(t *testing.T) {
	s := &pop3Session{}
	assert.NoError(t, s.OpenMailbox(""))
	assert.NoError(t, s.OpenMailbox("INBOX"))

	var mboxErr *MailboxError
	assert.ErrorAs(t, s.OpenMailbox("Codes"), &mboxErr)
}

func TestMetaFromHeader(t *testing.T) {
	var h message.Header
	h.Set("Subject", "Login code")
	h.Set("Date", "Mon, 04 May 2026 10:30:00 +0000")
	h.Set("Message-Id", "<abc@example.com>")
	h.Set("To", "Someone <someone@example.com>")
	h.Set("Delivered-To", "qa+run1@example.com")
	h.Set("X-Original-To", "<alias@example.com>")

	meta := metaFromHeader(7, h)
	assert.Equal(t, MessageRef(7), meta.Ref)
	assert.Equal(t, "Login code", meta.Subject)
	assert.Equal(t, "abc@example.com", meta.MessageID)
	assert.True(t, meta.SentAt.Equal(time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)))
	assert.Equal(t, []string{"someone@example.com", "qa+run1@example.com", "alias@example.com"}, meta.Recipients)
}

func TestMetaFromHeaderMissingDate(t *testing.T) {
	var h message.Header
	h.Set("Subject", "Login code")

	meta := metaFromHeader(1, h)
	assert.True(t, meta.SentAt.IsZero())
	assert.Empty(t, meta.Recipients)
}
