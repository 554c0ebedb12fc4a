package retriever

import (
	"fmt"
	"log/slog"
	"time"
)

// Defaults applied to zero Request fields.
const (
	DefaultMaxWait       = 120 * time.Second
	DefaultCheckInterval = 5 * time.Second
	DefaultMaxMessageAge = 10 * time.Minute
)

// Request describes one code retrieval.
type Request struct {
	// Subject is matched against the Subject header of candidate messages.
	Subject string

	// Recipient, when set, restricts candidates to messages addressed to it
	// (or to its local part, to tolerate plus-addressing).
	Recipient string

	MaxWait       time.Duration
	CheckInterval time.Duration
	MaxMessageAge time.Duration
}

func (r Request) withDefaults() Request {
	if r.MaxWait <= 0 {
		r.MaxWait = DefaultMaxWait
	}
	if r.CheckInterval <= 0 {
		r.CheckInterval = DefaultCheckInterval
	}
	if r.MaxMessageAge <= 0 {
		r.MaxMessageAge = DefaultMaxMessageAge
	}
	return r
}

// SearchWindow is captured once per call. Messages sent before StartedAt
// (minus a small buffer) belong to earlier runs and are ignored.
type SearchWindow struct {
	StartedAt time.Time
}

// Attempt records one polling tick for logging.
type Attempt struct {
	Number    int
	StartedAt time.Time
	Err       error
}

// LogValue implements slog.LogValuer.
func (a Attempt) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("number", a.Number),
		slog.Time("started_at", a.StartedAt),
	}
	if a.Err != nil {
		attrs = append(attrs, slog.String("error", a.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}

// OutcomeKind is the terminal state of a RetrieveCode call.
type OutcomeKind int

const (
	Found OutcomeKind = iota + 1
	TimedOut
	Fatal
)

func (k OutcomeKind) String() string {
	switch k {
	case Found:
		return "found"
	case TimedOut:
		return "timed out"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// FatalReason says why a Fatal outcome gave up early.
type FatalReason int

const (
	ReasonNone FatalReason = iota
	ReasonAuthFailure
	ReasonOther
)

func (r FatalReason) String() string {
	switch r {
	case ReasonAuthFailure:
		return "auth failure"
	case ReasonOther:
		return "error"
	default:
		return "none"
	}
}

// Outcome is the result of RetrieveCode. Exactly one of the Kind-specific
// fields is meaningful: Code and Strategy for Found, Reason and Diagnostic
// for Fatal.
type Outcome struct {
	Kind       OutcomeKind
	Code       string
	Strategy   Strategy
	Reason     FatalReason
	Diagnostic string
	Err        error
	Attempts   int
	Elapsed    time.Duration
}

func (o Outcome) String() string {
	switch o.Kind {
	case Found:
		return fmt.Sprintf("found code via %s after %d attempt(s)", o.Strategy, o.Attempts)
	case TimedOut:
		return fmt.Sprintf("gave up after %s (%d attempts)", o.Elapsed.Round(time.Second), o.Attempts)
	case Fatal:
		return fmt.Sprintf("fatal %s: %s", o.Reason, o.Diagnostic)
	default:
		return "no outcome"
	}
}
