// Package mailboxtest runs an in-memory IMAP server for tests.
package mailboxtest

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/stretchr/testify/require"

	"github.com/tracyhatemice/gomailcode/internal/mailbox"
)

const (
	DefaultUser = "qa@example.com"
	DefaultPass = "hunter2"
)

// Server is a running in-memory IMAP server with one user and an INBOX.
type Server struct {
	Addr string
	Host string
	Port int
}

// StartIMAPServer starts a plaintext IMAP server on a loopback port. It is
// stopped when the test ends.
func StartIMAPServer(t *testing.T) *Server {
	t.Helper()

	memServer := imapmemserver.New()
	user := imapmemserver.NewUser(DefaultUser, DefaultPass)
	require.NoError(t, user.Create("INBOX", nil))
	memServer.AddUser(user)

	server := imapserver.New(&imapserver.Options{
		NewSession: func(conn *imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return memServer.NewSession(), nil, nil
		},
		Caps: imap.CapSet{
			imap.CapIMAP4rev1: {},
			imap.CapIMAP4rev2: {},
		},
		InsecureAuth: true,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = server.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = server.Close()
	})

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return &Server{Addr: ln.Addr().String(), Host: host, Port: port}
}

// StartSilentServer accepts TCP connections and never writes to them, like
// a server that hangs after the handshake. It returns dialer settings for
// it.
func StartSilentServer(t *testing.T) mailbox.Config {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			_ = conn.Close()
		}
	})

	addr := ln.Addr().(*net.TCPAddr)
	return mailbox.Config{
		Host:        addr.IP.String(),
		Port:        addr.Port,
		Username:    DefaultUser,
		Password:    DefaultPass,
		DialTimeout: 2 * time.Second,
	}
}

// Config returns dialer settings for the default user.
func (s *Server) Config() mailbox.Config {
	return mailbox.Config{
		Host:        s.Host,
		Port:        s.Port,
		Username:    DefaultUser,
		Password:    DefaultPass,
		DialTimeout: 5 * time.Second,
	}
}

// Append stores raw in INBOX.
func (s *Server) Append(t *testing.T, raw []byte) {
	t.Helper()
	require.NoError(t, s.Deliver(raw))
}

// Deliver stores raw in INBOX. Unlike Append it may be called from any
// goroutine.
func (s *Server) Deliver(raw []byte) error {
	c, err := imapclient.DialInsecure(s.Addr, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Login(DefaultUser, DefaultPass).Wait(); err != nil {
		return err
	}
	cmd := c.Append("INBOX", int64(len(raw)), nil)
	if _, err := cmd.Write(raw); err != nil {
		return err
	}
	if err := cmd.Close(); err != nil {
		return err
	}
	if _, err := cmd.Wait(); err != nil {
		return err
	}
	return c.Logout().Wait()
}

// Flags returns the flags of the message with uid, as seen by a fresh client.
func (s *Server) Flags(t *testing.T, uid uint32) []imap.Flag {
	t.Helper()

	c, err := imapclient.DialInsecure(s.Addr, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Login(DefaultUser, DefaultPass).Wait())
	_, err = c.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait()
	require.NoError(t, err)

	msgs, err := c.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{Flags: true}).Collect()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, c.Logout().Wait())
	return msgs[0].Flags
}

var messageSeq atomic.Int64

// Message builds a plain-text email with CRLF line endings.
func Message(subject, to string, date time.Time, body string) []byte {
	body = strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n")
	return []byte(fmt.Sprintf("From: Service <noreply@service.test>\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Date: %s\r\n"+
		"Message-ID: <%d.%s>\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"\r\n"+
		"%s\r\n",
		to, subject, date.Format(time.RFC1123Z), messageSeq.Add(1), "test@service.test", body))
}
