package mailbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracyhatemice/gomailcode/internal/mailbox"
	"github.com/tracyhatemice/gomailcode/internal/mailbox/mailboxtest"
)

func silentDialers(cfg mailbox.Config) map[string]mailbox.Dialer {
	return map[string]mailbox.Dialer{
		"imap": mailbox.NewIMAP(cfg, nil),
		"pop3": mailbox.NewPOP3(cfg, nil),
	}
}

func TestDialSilentServerStopsAfterDeadline(t *testing.T) {
	for name, d := range silentDialers(mailboxtest.StartSilentServer(t)) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			start := time.Now()
			sess, err := d.Dial(ctx)
			elapsed := time.Since(start)

			require.Error(t, err)
			assert.Nil(t, sess)
			var connErr *mailbox.ConnectionError
			assert.ErrorAs(t, err, &connErr)
			assert.False(t, mailbox.IsAuthError(err))
			// Deadline plus the one second grace, with room for a slow runner.
			assert.Less(t, elapsed, 3*time.Second)
		})
	}
}

func TestDialSilentServerStopsOnCancel(t *testing.T) {
	for name, d := range silentDialers(mailboxtest.StartSilentServer(t)) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			time.AfterFunc(100*time.Millisecond, cancel)

			start := time.Now()
			_, err := d.Dial(ctx)

			var connErr *mailbox.ConnectionError
			assert.ErrorAs(t, err, &connErr)
			assert.Less(t, time.Since(start), 3*time.Second)
		})
	}
}
