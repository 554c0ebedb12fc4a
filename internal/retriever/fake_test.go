package retriever

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tracyhatemice/gomailcode/internal/mailbox"
)

type fakeMessage struct {
	meta mailbox.MessageMeta
	body string
}

// fakeDialer serves an in-memory mailbox and counts session lifecycle calls.
type fakeDialer struct {
	mu          sync.Mutex
	messages    []fakeMessage
	dialErrs    []error // consumed one per Dial; the last one repeats
	searchErr   error
	panicOnBody bool
	dials       int
	closes      int
	bodyFetches map[mailbox.MessageRef]int

	// dialDeadlines records the ctx deadline of every Dial; zero if none.
	dialDeadlines []time.Time
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{bodyFetches: make(map[mailbox.MessageRef]int)}
}

// add appends a message that arrived after every earlier one.
func (d *fakeDialer) add(subject string, age time.Duration, body string, recipients ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref := mailbox.MessageRef(len(d.messages) + 1)
	if len(recipients) == 0 {
		recipients = []string{"qa@example.com"}
	}
	d.messages = append(d.messages, fakeMessage{
		meta: mailbox.MessageMeta{
			Ref:        ref,
			Subject:    subject,
			SentAt:     time.Now().Add(-age),
			Recipients: recipients,
		},
		body: body,
	})
}

func (d *fakeDialer) Account() string { return "qa@mail.test" }

func (d *fakeDialer) Dial(ctx context.Context) (mailbox.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	deadline, _ := ctx.Deadline()
	d.dialDeadlines = append(d.dialDeadlines, deadline)
	if len(d.dialErrs) > 0 {
		err := d.dialErrs[0]
		if len(d.dialErrs) > 1 {
			d.dialErrs = d.dialErrs[1:]
		}
		if err != nil {
			return nil, err
		}
	}
	return &fakeSession{d: d}, nil
}

func (d *fakeDialer) counts() (dials, closes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials, d.closes
}

type fakeSession struct {
	d *fakeDialer
}

func (s *fakeSession) OpenMailbox(name string) error { return nil }

func (s *fakeSession) Search(criteria mailbox.SearchCriteria) ([]mailbox.MessageRef, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if s.d.searchErr != nil {
		return nil, s.d.searchErr
	}
	var refs []mailbox.MessageRef
	for _, m := range s.d.messages {
		if strings.Contains(strings.ToLower(m.meta.Subject), strings.ToLower(criteria.Subject)) {
			refs = append(refs, m.meta.Ref)
		}
	}
	return refs, nil
}

func (s *fakeSession) FetchMeta(ref mailbox.MessageRef) (mailbox.MessageMeta, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.d.messages[ref-1].meta, nil
}

func (s *fakeSession) FetchBody(ref mailbox.MessageRef) (string, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if s.d.panicOnBody {
		panic("body decoder exploded")
	}
	s.d.bodyFetches[ref]++
	return s.d.messages[ref-1].body, nil
}

func (s *fakeSession) Close() error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.closes++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
