package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracyhatemice/gomailcode/internal/config"
	"github.com/tracyhatemice/gomailcode/internal/secrets"
)

// passwordEnv lets CI pipe the mailbox password without a terminal.
const passwordEnv = "GOMAILCODE_PASSWORD"

func newKeyringCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyring",
		Short: "Manage the mailbox password in the OS keyring",
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store the mailbox password",
		Long: `Store the mailbox password in the OS keyring under the configured
keyring_account. The password is read from $` + passwordEnv + ` or, if unset,
from the first line of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			account := cfg.Mailbox.GetKeyringAccount()
			if err := secrets.SetMailboxPassword(account, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored password for %s\n", account)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored mailbox password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			account := cfg.Mailbox.GetKeyringAccount()
			if err := secrets.DeleteMailboxPassword(account); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted password for %s\n", account)
			return nil
		},
	}

	cmd.AddCommand(setCmd, deleteCmd)
	return cmd
}

func readPassword(stdin io.Reader) (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password given on stdin or in $" + passwordEnv)
	}
	return line, nil
}
