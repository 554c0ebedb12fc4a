package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracyhatemice/gomailcode/internal/config"
	"github.com/tracyhatemice/gomailcode/internal/retriever"
)

type waitFlags struct {
	subject   string
	recipient string
	maxWait   time.Duration
	interval  time.Duration
	maxAge    time.Duration
}

func newWaitCmd(opts *rootOptions) *cobra.Command {
	var flags waitFlags
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait for a verification email and print its code",
		Long: `Poll the configured mailbox until a fresh message with a matching subject
carries a 6-digit code, then print the code on stdout.

Exit status is 0 when a code was found, 2 when the wait timed out and 3 on a
fatal mailbox error such as rejected credentials.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			r, err := a.newRetriever()
			if err != nil {
				return err
			}

			out := r.RetrieveCode(cmd.Context(), flags.request(a.cfg.Retrieval))
			if err := outcomeError(out); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Code)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.subject, "subject", "", "subject text to search for (overrides retrieval.subject)")
	cmd.Flags().StringVar(&flags.recipient, "recipient", "", "only accept mail addressed to this address")
	cmd.Flags().DurationVar(&flags.maxWait, "max-wait", 0, "give up after this long (overrides retrieval.max_wait_seconds)")
	cmd.Flags().DurationVar(&flags.interval, "interval", 0, "time between mailbox checks")
	cmd.Flags().DurationVar(&flags.maxAge, "max-age", 0, "ignore messages older than this")
	return cmd
}

// request merges the flags over the configured defaults.
func (f waitFlags) request(r config.Retrieval) retriever.Request {
	req := retriever.Request{
		Subject:       r.Subject,
		Recipient:     r.Recipient,
		MaxWait:       r.MaxWait(),
		CheckInterval: r.CheckInterval(),
		MaxMessageAge: r.MaxMessageAge(),
	}
	if f.subject != "" {
		req.Subject = f.subject
	}
	if f.recipient != "" {
		req.Recipient = f.recipient
	}
	if f.maxWait > 0 {
		req.MaxWait = f.maxWait
	}
	if f.interval > 0 {
		req.CheckInterval = f.interval
	}
	if f.maxAge > 0 {
		req.MaxMessageAge = f.maxAge
	}
	return req
}
