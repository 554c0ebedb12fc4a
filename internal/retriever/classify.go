package retriever

import (
	"errors"

	"github.com/tracyhatemice/gomailcode/internal/mailbox"
)

// DefaultFailureThreshold is how many consecutive auth or unrecognized
// failures are tolerated before a call gives up.
const DefaultFailureThreshold = 3

// ErrorKind is the classifier's verdict on a failed tick.
type ErrorKind int

const (
	Transient ErrorKind = iota
	FatalAuth
	FatalOther
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case FatalAuth:
		return "fatal auth"
	case FatalOther:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classifier maps tick failures onto retry decisions. Connection, search
// and fetch failures are always transient. Auth failures and unrecognized
// failures become fatal once they repeat threshold times in a row.
//
// A Classifier belongs to a single RetrieveCode call and is not safe for
// concurrent use.
type Classifier struct {
	threshold   int
	authStreak  int
	otherStreak int
}

// NewClassifier creates a Classifier. A non-positive threshold selects
// DefaultFailureThreshold.
func NewClassifier(threshold int) *Classifier {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &Classifier{threshold: threshold}
}

// Classify records err and returns how the caller should treat it.
func (c *Classifier) Classify(err error) ErrorKind {
	var (
		connErr   *mailbox.ConnectionError
		searchErr *mailbox.SearchError
		fetchErr  *mailbox.FetchError
	)

	switch {
	case mailbox.IsAuthError(err):
		c.otherStreak = 0
		c.authStreak++
		if c.authStreak >= c.threshold {
			return FatalAuth
		}
		return Transient
	case errors.As(err, &connErr), errors.As(err, &searchErr), errors.As(err, &fetchErr):
		c.Reset()
		return Transient
	default:
		c.authStreak = 0
		c.otherStreak++
		if c.otherStreak >= c.threshold {
			return FatalOther
		}
		return Transient
	}
}

// Streak returns the length of the current run of auth or unrecognized
// failures.
func (c *Classifier) Streak() int {
	return max(c.authStreak, c.otherStreak)
}

// Reset clears the failure streaks after a clean tick.
func (c *Classifier) Reset() {
	c.authStreak = 0
	c.otherStreak = 0
}

// errorClass labels err for logs.
func errorClass(err error) string {
	var (
		connErr    *mailbox.ConnectionError
		mailboxErr *mailbox.MailboxError
		searchErr  *mailbox.SearchError
		fetchErr   *mailbox.FetchError
	)
	switch {
	case mailbox.IsAuthError(err):
		return "auth"
	case errors.As(err, &connErr):
		return "connection"
	case errors.As(err, &mailboxErr):
		return "mailbox"
	case errors.As(err, &searchErr):
		return "search"
	case errors.As(err, &fetchErr):
		return "fetch"
	default:
		return "other"
	}
}
