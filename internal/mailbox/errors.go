package mailbox

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// ConnectionError reports that the server could not be reached or the
// connection broke.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError reports that the server rejected the account credentials.
type AuthError struct {
	Account string
	Hint    string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Account, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// MailboxError reports that a folder could not be opened.
type MailboxError struct {
	Name string
	Err  error
}

func (e *MailboxError) Error() string {
	return fmt.Sprintf("open mailbox %s: %v", e.Name, e.Err)
}

func (e *MailboxError) Unwrap() error { return e.Err }

// SearchError reports a failed search.
type SearchError struct {
	Err error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search: %v", e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// FetchError reports a failed fetch of one message.
type FetchError struct {
	Ref MessageRef
	Op  string // "meta" or "body"
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %d: %v", e.Op, e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// isNetError reports whether err came from the network layer rather than
// from a protocol reply.
func isNetError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
