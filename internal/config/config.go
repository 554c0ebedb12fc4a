package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v4"
)

// Config is the top-level application configuration.
type Config struct {
	LogLevel  string    `yaml:"log_level"`
	Mailbox   Mailbox   `yaml:"mailbox"`
	Retrieval Retrieval `yaml:"retrieval"`
	SelfTest  *SelfTest `yaml:"selftest"`
}

// Mailbox describes the account verification emails are delivered to.
type Mailbox struct {
	Protocol           string `yaml:"protocol"` // "imap" or "pop3"
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	KeyringAccount     string `yaml:"keyring_account"`
	UseTLS             bool   `yaml:"use_tls"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	Folder             string `yaml:"folder"`
	DialTimeoutSeconds int    `yaml:"dial_timeout_seconds"`
	IOTimeoutSeconds   int    `yaml:"io_timeout_seconds"`
}

// Retrieval holds the defaults for one code retrieval.
type Retrieval struct {
	Subject              string   `yaml:"subject"`
	Recipient            string   `yaml:"recipient"`
	MaxWaitSeconds       int      `yaml:"max_wait_seconds"`
	CheckIntervalSeconds int      `yaml:"check_interval_seconds"`
	MaxMessageAgeSeconds int      `yaml:"max_message_age_seconds"`
	FailureThreshold     int      `yaml:"failure_threshold"`
	PreamblePhrases      []string `yaml:"preamble_phrases"`
}

// SelfTest is the SMTP account used to send a synthetic verification email.
type SelfTest struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// GetFolder returns the IMAP folder name, defaulting to "INBOX".
func (m *Mailbox) GetFolder() string {
	if m.Folder == "" {
		return "INBOX"
	}
	return m.Folder
}

// DialTimeout returns the connect timeout as a time.Duration.
func (m *Mailbox) DialTimeout() time.Duration {
	if m.DialTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(m.DialTimeoutSeconds) * time.Second
}

// IOTimeout bounds a session that has no call deadline. Zero leaves the
// mailbox package default in place.
func (m *Mailbox) IOTimeout() time.Duration {
	return time.Duration(m.IOTimeoutSeconds) * time.Second
}

// GetKeyringAccount returns the keyring entry name for the mailbox password.
func (m *Mailbox) GetKeyringAccount() string {
	if m.KeyringAccount != "" {
		return m.KeyringAccount
	}
	return fmt.Sprintf("gomailcode:%s:%s@%s", m.Protocol, m.Username, m.Host)
}

// MaxWait returns how long to wait for a code.
func (r *Retrieval) MaxWait() time.Duration {
	if r.MaxWaitSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(r.MaxWaitSeconds) * time.Second
}

// CheckInterval returns the time between polls.
func (r *Retrieval) CheckInterval() time.Duration {
	if r.CheckIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.CheckIntervalSeconds) * time.Second
}

// MaxMessageAge returns the oldest message age still considered.
func (r *Retrieval) MaxMessageAge() time.Duration {
	if r.MaxMessageAgeSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(r.MaxMessageAgeSeconds) * time.Second
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{
		LogLevel: "info",
		Mailbox: Mailbox{
			Protocol: "imap",
			UseTLS:   true,
		},
		Retrieval: Retrieval{
			FailureThreshold: 3,
		},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	m := c.Mailbox
	if m.Protocol != "pop3" && m.Protocol != "imap" {
		return fmt.Errorf("mailbox.protocol must be pop3 or imap")
	}
	if m.Host == "" {
		return fmt.Errorf("mailbox.host is required")
	}
	if m.Port == 0 {
		return fmt.Errorf("mailbox.port is required")
	}
	if m.Username == "" {
		return fmt.Errorf("mailbox.username is required")
	}
	if m.Protocol == "pop3" && m.Folder != "" && m.Folder != "INBOX" {
		return fmt.Errorf("mailbox.folder is not supported with pop3")
	}
	if c.Retrieval.FailureThreshold < 0 {
		return fmt.Errorf("retrieval.failure_threshold must not be negative")
	}
	if m.DialTimeoutSeconds < 0 || m.IOTimeoutSeconds < 0 {
		return fmt.Errorf("mailbox timeouts must not be negative")
	}
	if c.Retrieval.MaxWaitSeconds < 0 || c.Retrieval.CheckIntervalSeconds < 0 || c.Retrieval.MaxMessageAgeSeconds < 0 {
		return fmt.Errorf("retrieval durations must not be negative")
	}
	if s := c.SelfTest; s != nil {
		if s.Host == "" || s.Port == 0 {
			return fmt.Errorf("selftest.host and selftest.port are required")
		}
		if s.From == "" || s.To == "" {
			return fmt.Errorf("selftest.from and selftest.to are required")
		}
	}
	return nil
}
