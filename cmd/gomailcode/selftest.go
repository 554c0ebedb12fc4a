package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tracyhatemice/gomailcode/internal/retriever"
	"github.com/tracyhatemice/gomailcode/internal/sender"
)

func newSelfTestCmd(opts *rootOptions) *cobra.Command {
	var maxWait time.Duration
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Send a synthetic verification email and read its code back",
		Long: `Send a message carrying a random 6-digit code through the selftest SMTP
account, then wait for it in the configured mailbox. Fails unless the same
code is read back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			st := a.cfg.SelfTest
			if st == nil {
				return errors.New("selftest section is missing from the config")
			}
			r, err := a.newRetriever()
			if err != nil {
				return err
			}

			code, err := randomCode()
			if err != nil {
				return err
			}
			subject := "gomailcode selftest " + uuid.NewString()[:8]
			body := fmt.Sprintf("Your verification code is:\n\n%s\n\nThis message was sent by gomailcode selftest.\n", code)

			raw, err := sender.Compose(st.From, st.To, subject, body, time.Now())
			if err != nil {
				return err
			}
			smtp := sender.New(st.Host, st.Port, st.Username, st.Password, st.UseTLS, a.logger)
			if err := smtp.Send(raw, st.From, st.To); err != nil {
				return fmt.Errorf("send selftest message: %w", err)
			}
			a.logger.Info("selftest message sent", "to", st.To, "subject", subject)

			req := retriever.Request{
				Subject:       subject,
				Recipient:     st.To,
				MaxWait:       a.cfg.Retrieval.MaxWait(),
				CheckInterval: a.cfg.Retrieval.CheckInterval(),
				MaxMessageAge: a.cfg.Retrieval.MaxMessageAge(),
			}
			if maxWait > 0 {
				req.MaxWait = maxWait
			}
			out := r.RetrieveCode(cmd.Context(), req)
			if err := outcomeError(out); err != nil {
				return err
			}
			if out.Code != code {
				return &exitError{code: exitFatal, err: fmt.Errorf("selftest read back %s, sent %s", out.Code, code)}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%s)\n", code, out)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxWait, "max-wait", 0, "give up after this long (overrides retrieval.max_wait_seconds)")
	return cmd
}

// randomCode returns a uniformly random 6-digit code. A leading zero is
// avoided so the code never looks like a 5-digit number.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
