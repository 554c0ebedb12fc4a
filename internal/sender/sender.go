package sender

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
)

const dialTimeout = 15 * time.Second

// Sender delivers synthetic verification emails over SMTP.
type Sender struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	logger   *slog.Logger
}

// New creates a new SMTP sender.
func New(host string, port int, username, password string, useTLS bool, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		useTLS:   useTLS,
		logger:   logger,
	}
}

// Compose builds a plain-text RFC 5322 message.
func Compose(from, to, subject, text string, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}
	if _, err := io.WriteString(w, text); err != nil {
		return nil, fmt.Errorf("write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Send delivers a raw message from one envelope address to another.
func (s *Sender) Send(message []byte, from, to string) error {
	client, err := s.connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := s.deliver(client, message, from, to); err != nil {
		return err
	}
	s.logger.Debug("selftest message sent", "to", to, "bytes", len(message))
	return client.Quit()
}

// connect opens an SMTP session: implicit TLS when useTLS is set, otherwise
// plaintext upgraded with STARTTLS when the server offers it.
func (s *Sender) connect() (*smtp.Client, error) {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	tlsConfig := &tls.Config{ServerName: s.host}
	nd := &net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	var err error
	if s.useTLS {
		conn, err = tls.DialWithDialer(nd, "tcp", addr, tlsConfig)
	} else {
		conn, err = nd.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp greeting from %s: %w", addr, err)
	}
	if !s.useTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	return client, nil
}

// deliver runs AUTH (when credentials are set), MAIL, RCPT and DATA.
func (s *Sender) deliver(client *smtp.Client, message []byte, from, to string) error {
	if s.username != "" && s.password != "" {
		if err := client.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			return fmt.Errorf("smtp auth as %s: %w", s.username, err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp sender %s: %w", from, err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp recipient %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write message: %w", err)
	}
	return w.Close()
}
