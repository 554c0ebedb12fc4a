package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups this tool's secrets in the OS keychain.
const KeyringService = "gomailcode"

// ErrPasswordNotFound is returned when neither the config nor the keyring
// holds a mailbox password.
var ErrPasswordNotFound = errors.New("mailbox password not found (set mailbox.password or store it with `gomailcode keyring set`)")

// MailboxPassword returns configured if it is set, otherwise the password
// stored in the keyring under account.
func MailboxPassword(configured, account string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if strings.TrimSpace(account) == "" {
		return "", ErrPasswordNotFound
	}

	pw, err := keyring.Get(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrPasswordNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read keyring entry %q: %w", account, err)
	}
	if strings.TrimSpace(pw) == "" {
		return "", ErrPasswordNotFound
	}
	return pw, nil
}

// SetMailboxPassword stores password in the keyring under account.
func SetMailboxPassword(account, password string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	if err := keyring.Set(KeyringService, account, password); err != nil {
		return fmt.Errorf("write keyring entry %q: %w", account, err)
	}
	return nil
}

// DeleteMailboxPassword removes the keyring entry for account.
func DeleteMailboxPassword(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if err := keyring.Delete(KeyringService, account); err != nil {
		return fmt.Errorf("delete keyring entry %q: %w", account, err)
	}
	return nil
}
