package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tracyhatemice/gomailcode/internal/config"
	"github.com/tracyhatemice/gomailcode/internal/mailbox"
	"github.com/tracyhatemice/gomailcode/internal/retriever"
	"github.com/tracyhatemice/gomailcode/internal/secrets"
)

const (
	exitFailure  = 1
	exitTimedOut = 2
	exitFatal    = 3
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "gomailcode",
		Short:         "Fetch emailed verification codes for automated test runs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log_level from the config (debug, info, warn, error)")

	cmd.AddCommand(newWaitCmd(opts))
	cmd.AddCommand(newSelfTestCmd(opts))
	cmd.AddCommand(newKeyringCmd(opts))
	return cmd
}

// app is what every subcommand builds from the config file.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func loadApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	return &app{cfg: cfg, logger: setupLogger(level)}, nil
}

// newRetriever resolves the mailbox password and builds a Retriever for the
// configured protocol.
func (a *app) newRetriever() (*retriever.Retriever, error) {
	m := a.cfg.Mailbox
	password, err := secrets.MailboxPassword(m.Password, m.GetKeyringAccount())
	if err != nil {
		return nil, err
	}

	dialer, err := newDialer(m, password, a.logger)
	if err != nil {
		return nil, err
	}
	return retriever.New(dialer, retriever.Options{
		Folder:           m.GetFolder(),
		FailureThreshold: a.cfg.Retrieval.FailureThreshold,
		PreamblePhrases:  a.cfg.Retrieval.PreamblePhrases,
	}, a.logger), nil
}

func newDialer(m config.Mailbox, password string, logger *slog.Logger) (mailbox.Dialer, error) {
	mc := mailbox.Config{
		Host:               m.Host,
		Port:               m.Port,
		Username:           m.Username,
		Password:           password,
		UseTLS:             m.UseTLS,
		InsecureSkipVerify: m.InsecureSkipVerify,
		DialTimeout:        m.DialTimeout(),
		IOTimeout:          m.IOTimeout(),
	}
	switch m.Protocol {
	case "pop3":
		return mailbox.NewPOP3(mc, logger), nil
	case "imap":
		return mailbox.NewIMAP(mc, logger), nil
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", m.Protocol)
	}
}

// outcomeError maps a non-Found outcome onto an exit code.
func outcomeError(out retriever.Outcome) error {
	switch out.Kind {
	case retriever.Found:
		return nil
	case retriever.TimedOut:
		return &exitError{code: exitTimedOut, err: errors.New(out.String())}
	default:
		return &exitError{code: exitFatal, err: errors.New(out.String())}
	}
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
