package retriever

import (
	"slices"
	"time"

	"github.com/tracyhatemice/gomailcode/internal/mailbox"
)

const (
	// maxCandidates caps how many of the newest search hits are examined per tick.
	maxCandidates = 10

	// windowBuffer absorbs clock skew between us and the mail server, and
	// the one-second granularity of Date headers.
	windowBuffer = 30 * time.Second
)

// searchCandidates runs the subject search and keeps the newest
// maxCandidates references, still in arrival order.
func searchCandidates(sess mailbox.Session, subject string) ([]mailbox.MessageRef, error) {
	refs, err := sess.Search(mailbox.SearchCriteria{
		Subject: subject,
		Limit:   maxCandidates,
	})
	if err != nil {
		return nil, err
	}
	if len(refs) > maxCandidates {
		refs = refs[len(refs)-maxCandidates:]
	}
	return refs, nil
}

// isFresh reports whether a message sent at sentAt may be examined at now.
// Both bounds apply: it is no older than maxAge, and it was not sent before
// the call started (less windowBuffer).
func isFresh(sentAt time.Time, window SearchWindow, now time.Time, maxAge time.Duration) bool {
	if sentAt.IsZero() {
		return false
	}
	if now.Sub(sentAt) > maxAge {
		return false
	}
	return !sentAt.Before(window.StartedAt.Add(-windowBuffer))
}

// filterFresh drops stale messages and orders the rest most recent first.
// metas must be in arrival order; among messages with the same send time
// the later arrival wins.
func filterFresh(metas []mailbox.MessageMeta, window SearchWindow, now time.Time, maxAge time.Duration) []mailbox.MessageMeta {
	fresh := make([]mailbox.MessageMeta, 0, len(metas))
	for _, m := range metas {
		if isFresh(m.SentAt, window, now, maxAge) {
			fresh = append(fresh, m)
		}
	}
	slices.Reverse(fresh)
	slices.SortStableFunc(fresh, func(a, b mailbox.MessageMeta) int {
		return b.SentAt.Compare(a.SentAt)
	})
	return fresh
}
