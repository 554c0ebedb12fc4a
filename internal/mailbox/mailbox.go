package mailbox

import (
	"context"
	"time"
)

// MessageRef identifies a message within one open session. For IMAP it is
// the message UID, for POP3 the message number.
type MessageRef uint32

// MessageMeta is the envelope data of one message.
type MessageMeta struct {
	Ref        MessageRef
	MessageID  string    // Message-ID header, may be empty
	Subject    string    // decoded subject, for logging
	SentAt     time.Time // date the message reports as its send time
	Recipients []string  // bare addresses from the recipient headers
}

// SearchCriteria selects candidate messages.
type SearchCriteria struct {
	// Subject is matched case-insensitively as a substring of the Subject header.
	Subject string

	// Limit, when positive, lets a session stop after the newest Limit
	// matches. Sessions with server-side search may ignore it.
	Limit int
}

// Session is an open, authenticated connection to a mail store.
type Session interface {
	// OpenMailbox selects the folder that subsequent calls operate on.
	OpenMailbox(name string) error

	// Search returns references to matching messages in arrival order,
	// oldest first. It never changes message flags.
	Search(criteria SearchCriteria) ([]MessageRef, error)

	// FetchMeta returns the envelope data for ref.
	FetchMeta(ref MessageRef) (MessageMeta, error)

	// FetchBody returns the decoded text content for ref.
	FetchBody(ref MessageRef) (string, error)

	// Close releases the connection. It is safe to call more than once and
	// after any earlier error.
	Close() error
}

// Dialer opens new sessions. Dial connects and authenticates. The session
// is bound to ctx: shortly after its deadline, or as soon as it is
// cancelled, pending session operations fail instead of blocking.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)

	// Account names the mailbox account for diagnostics, e.g. "user@host".
	Account() string
}

// DefaultFolder is used when no folder is configured.
const DefaultFolder = "INBOX"
