package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds the connection settings shared by the IMAP and POP3 dialers.
type Config struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	DialTimeout        time.Duration

	// IOTimeout bounds a session whose context carries no deadline.
	IOTimeout time.Duration
}

// deadlineGrace lets an operation that started just before the context
// deadline finish before the connection expires.
const deadlineGrace = time.Second

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) account() string {
	return fmt.Sprintf("%s@%s", c.Username, c.Host)
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout <= 0 {
		return 15 * time.Second
	}
	return c.DialTimeout
}

func (c Config) ioTimeout() time.Duration {
	if c.IOTimeout <= 0 {
		return time.Minute
	}
	return c.IOTimeout
}

func (c Config) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         c.Host,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
}

// dial opens a TCP (or TLS) connection that honours ctx.
func (c Config) dial(ctx context.Context, useTLS bool) (net.Conn, error) {
	nd := &net.Dialer{Timeout: c.dialTimeout()}
	if !useTLS {
		return nd.DialContext(ctx, "tcp", c.addr())
	}
	td := &tls.Dialer{NetDialer: nd, Config: c.tlsConfig()}
	return td.DialContext(ctx, "tcp", c.addr())
}

// sessionConn dials and ties the connection to ctx. Reads and writes fail
// shortly after the ctx deadline (or after IOTimeout when there is none),
// and at once when ctx is cancelled. The returned func detaches ctx and
// must be called when the session ends.
func (c Config) sessionConn(ctx context.Context, useTLS bool) (net.Conn, func(), error) {
	conn, err := c.dial(ctx, useTLS)
	if err != nil {
		return nil, nil, err
	}

	deadline := time.Now().Add(c.ioTimeout())
	if d, ok := ctx.Deadline(); ok {
		deadline = d.Add(deadlineGrace)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		if errors.Is(ctx.Err(), context.Canceled) {
			_ = conn.SetDeadline(time.Now())
		}
	})
	return conn, func() { stop() }, nil
}

// pop3Dialer adapts sessionConn to the go-pop3 Dialer interface. TLS is
// layered on by go-pop3 itself.
type pop3Dialer struct {
	ctx     context.Context
	cfg     Config
	conn    net.Conn
	release func()
}

func (d *pop3Dialer) Dial(network, address string) (net.Conn, error) {
	conn, release, err := d.cfg.sessionConn(d.ctx, false)
	if err != nil {
		return nil, err
	}
	d.conn, d.release = conn, release
	return conn, nil
}

// closeConn closes the raw connection and detaches ctx. go-pop3 leaves the
// connection open when QUIT or the greeting fails.
func (d *pop3Dialer) closeConn() {
	if d.conn == nil {
		return
	}
	_ = d.conn.Close()
	d.release()
}
