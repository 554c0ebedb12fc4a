package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tracyhatemice/gomailcode/internal/dedup"
	"github.com/tracyhatemice/gomailcode/internal/mailbox"
)

// errDeadline stops a tick before it starts a network operation past the
// call's deadline.
var errDeadline = errors.New("deadline reached")

// Options configures a Retriever.
type Options struct {
	// Folder is the mailbox searched for codes. Defaults to INBOX.
	Folder string

	// FailureThreshold is passed to NewClassifier.
	FailureThreshold int

	// PreamblePhrases are tried before DefaultPreamblePhrases.
	PreamblePhrases []string
}

// Retriever polls a mailbox for verification codes. It holds no per-call
// state, so RetrieveCode may be called concurrently; every call and every
// tick opens its own session.
type Retriever struct {
	dialer    mailbox.Dialer
	folder    string
	threshold int
	extractor *Extractor
	logger    *slog.Logger
}

// New creates a Retriever that opens sessions with dialer.
func New(dialer mailbox.Dialer, opts Options, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	folder := opts.Folder
	if folder == "" {
		folder = mailbox.DefaultFolder
	}
	return &Retriever{
		dialer:    dialer,
		folder:    folder,
		threshold: opts.FailureThreshold,
		extractor: NewExtractor(opts.PreamblePhrases...),
		logger:    logger,
	}
}

// call is the state of one RetrieveCode invocation.
type call struct {
	req      Request
	window   SearchWindow
	deadline time.Time
	seen     *dedup.Tracker
	logger   *slog.Logger
}

// check returns a non-nil error once the call must not start another
// network operation.
func (c *call) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !time.Now().Before(c.deadline) {
		return errDeadline
	}
	return nil
}

// RetrieveCode polls until a message matching req yields a code, the wait
// runs out, or a failure is classified fatal. It always returns an Outcome.
//
// Cancelling ctx ends the call at the next suspension point with a TimedOut
// outcome whose Err is ctx.Err(). A ctx deadline earlier than req.MaxWait
// shortens the wait.
func (r *Retriever) RetrieveCode(ctx context.Context, req Request) Outcome {
	req = req.withDefaults()
	c := &call{
		req:    req,
		window: SearchWindow{StartedAt: time.Now()},
		seen:   dedup.NewTracker(),
		logger: r.logger.With("call_id", uuid.NewString(), "subject", req.Subject),
	}
	c.deadline = c.window.StartedAt.Add(req.MaxWait)
	if d, ok := ctx.Deadline(); ok && d.Before(c.deadline) {
		c.deadline = d
	}

	if strings.TrimSpace(req.Subject) == "" {
		return r.finish(c, Outcome{
			Kind:       Fatal,
			Reason:     ReasonOther,
			Diagnostic: "subject pattern is empty: set retrieval.subject or pass --subject",
		})
	}

	c.logger.Info("waiting for verification code",
		"recipient", req.Recipient,
		"max_wait", req.MaxWait,
		"interval", req.CheckInterval,
		"max_age", req.MaxMessageAge,
	)

	classifier := NewClassifier(r.threshold)
	attempts := 0
	for {
		if err := c.check(ctx); err != nil {
			return r.finish(c, timedOut(ctx, attempts))
		}

		attempts++
		attempt := Attempt{Number: attempts, StartedAt: time.Now()}
		res, found, err := r.tick(ctx, c)
		switch {
		case found:
			return r.finish(c, Outcome{
				Kind:     Found,
				Code:     res.Code,
				Strategy: res.Strategy,
				Attempts: attempts,
			})
		case errors.Is(err, errDeadline) || ctx.Err() != nil:
			return r.finish(c, timedOut(ctx, attempts))
		case err != nil:
			attempt.Err = err
			switch classifier.Classify(err) {
			case FatalAuth:
				return r.finish(c, r.authOutcome(err, classifier.Streak(), attempts))
			case FatalOther:
				return r.finish(c, Outcome{
					Kind:   Fatal,
					Reason: ReasonOther,
					Diagnostic: fmt.Sprintf("%d consecutive unexpected failures talking to %s, last: %v",
						classifier.Streak(), r.dialer.Account(), err),
					Err:      err,
					Attempts: attempts,
				})
			default:
				c.logger.Warn("attempt failed, retrying", "attempt", attempt, "class", errorClass(err))
			}
		default:
			classifier.Reset()
			c.logger.Debug("no code yet", "attempt", attempt)
		}

		r.sleep(ctx, c)
	}
}

// tick runs one session: search, filter, and extract. The caller checks
// the deadline before dialing. The session is bound to the call's deadline
// and is closed on every path, panics included.
func (r *Retriever) tick(ctx context.Context, c *call) (res ExtractionResult, found bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res, found, err = ExtractionResult{}, false, fmt.Errorf("tick panicked: %v", rec)
		}
	}()

	// The session's connection expires with the call.
	sessCtx, cancel := context.WithDeadline(ctx, c.deadline)
	defer cancel()

	sess, err := r.dialer.Dial(sessCtx)
	if err != nil {
		return ExtractionResult{}, false, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			c.logger.Debug("session close failed", "error", err)
		}
	}()

	if err := c.check(ctx); err != nil {
		return ExtractionResult{}, false, err
	}
	if err := sess.OpenMailbox(r.folder); err != nil {
		return ExtractionResult{}, false, err
	}

	if err := c.check(ctx); err != nil {
		return ExtractionResult{}, false, err
	}
	refs, err := searchCandidates(sess, c.req.Subject)
	if err != nil {
		return ExtractionResult{}, false, err
	}

	metas := make([]mailbox.MessageMeta, 0, len(refs))
	for _, ref := range refs {
		if err := c.check(ctx); err != nil {
			return ExtractionResult{}, false, err
		}
		meta, err := sess.FetchMeta(ref)
		if err != nil {
			return ExtractionResult{}, false, err
		}
		metas = append(metas, meta)
	}

	candidates := filterFresh(metas, c.window, time.Now(), c.req.MaxMessageAge)
	c.logger.Debug("searched mailbox", "matches", len(refs), "fresh", len(candidates))

	for _, meta := range candidates {
		key := messageKey(meta)
		if c.seen.Seen(key) {
			continue
		}
		if err := c.check(ctx); err != nil {
			return ExtractionResult{}, false, err
		}
		body, err := sess.FetchBody(meta.Ref)
		if err != nil {
			return ExtractionResult{}, false, err
		}

		if !matchesRecipient(meta, body, c.req.Recipient) {
			c.logger.Debug("recipient mismatch", "ref", meta.Ref, "recipients", meta.Recipients)
			c.seen.MarkSeen(key)
			continue
		}
		res, ok := r.extractor.Extract(body)
		if !ok {
			c.logger.Debug("no code in message", "ref", meta.Ref, "msg_subject", meta.Subject)
			c.seen.MarkSeen(key)
			continue
		}
		return res, true, nil
	}
	return ExtractionResult{}, false, nil
}

// sleep waits for the next tick, never past the deadline.
func (r *Retriever) sleep(ctx context.Context, c *call) {
	wait := min(c.req.CheckInterval, time.Until(c.deadline))
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (r *Retriever) finish(c *call, o Outcome) Outcome {
	o.Elapsed = time.Since(c.window.StartedAt)
	switch o.Kind {
	case Found:
		c.logger.Info("verification code found", "strategy", o.Strategy, "attempts", o.Attempts, "elapsed", o.Elapsed)
	case TimedOut:
		c.logger.Info("no verification code arrived", "attempts", o.Attempts, "elapsed", o.Elapsed, "error", o.Err)
	case Fatal:
		c.logger.Error("giving up", "reason", o.Reason, "diagnostic", o.Diagnostic, "attempts", o.Attempts)
	}
	return o
}

func (r *Retriever) authOutcome(err error, streak, attempts int) Outcome {
	account := r.dialer.Account()
	hint := "check the mailbox username and password"
	var authErr *mailbox.AuthError
	if errors.As(err, &authErr) {
		if authErr.Account != "" {
			account = authErr.Account
		}
		if authErr.Hint != "" {
			hint = authErr.Hint
		}
	}
	return Outcome{
		Kind:       Fatal,
		Reason:     ReasonAuthFailure,
		Diagnostic: fmt.Sprintf("mail server rejected credentials for %s %d times in a row: %s", account, streak, hint),
		Err:        err,
		Attempts:   attempts,
	}
}

func timedOut(ctx context.Context, attempts int) Outcome {
	return Outcome{Kind: TimedOut, Err: ctx.Err(), Attempts: attempts}
}

func messageKey(meta mailbox.MessageMeta) string {
	if meta.MessageID != "" {
		return meta.MessageID
	}
	return fmt.Sprintf("ref-%d", meta.Ref)
}
