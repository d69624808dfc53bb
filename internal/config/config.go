// Package config loads the mailer's YAML configuration file.
package config

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/emersion/go-msgauth/dkim"
	yaml "gopkg.in/yaml.v3"

	badass "github.com/moriyoshi/badass-mailer"
	"github.com/moriyoshi/badass-mailer/internal/expand"
)

type EmailConfig struct {
	Sender       string   `yaml:"sender"`
	Subject      string   `yaml:"subject"`
	MailingList  string   `yaml:"mailing_list"`
	EmailContent string   `yaml:"email_content"`
	Attachments  []string `yaml:"attachments"`
}

type ServerConfig struct {
	Hostname    string        `yaml:"hostname"`
	PortNumber  int           `yaml:"port_number"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
}

type ScheduleConfig struct {
	// Time is the time of day in HH:MM, local time.
	Time string `yaml:"time"`
	// Rebuild makes every firing re-read the mailing list and body and
	// redraft the message.
	Rebuild bool `yaml:"rebuild"`
}

type DeliveryConfig struct {
	OnError badass.DeliveryPolicy `yaml:"on_error"`
}

type DKIMConfig struct {
	Domain     string   `yaml:"domain"`
	Selector   string   `yaml:"selector"`
	PrivateKey string   `yaml:"private_key"`
	HeaderKeys []string `yaml:"header_keys"`
}

type Config struct {
	Email    EmailConfig    `yaml:"email"`
	Server   ServerConfig   `yaml:"server"`
	Schedule ScheduleConfig `yaml:"schedule"`
	// ScheduleTime is the older spelling of schedule.time.
	ScheduleTime string         `yaml:"schedule_time"`
	Delivery     DeliveryConfig `yaml:"delivery"`
	DKIM         DKIMConfig     `yaml:"dkim"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			PortNumber:  25,
			ConnTimeout: 2 * time.Second,
		},
		Delivery: DeliveryConfig{
			OnError: badass.AbortOnError,
		},
	}
}

func expandAll(vs []string) {
	for i := range vs {
		vs[i] = expand.Expand(vs[i], expand.Env)
	}
}

func (c *Config) expand() {
	for _, p := range []*string{
		&c.Email.Sender,
		&c.Email.Subject,
		&c.Email.MailingList,
		&c.Email.EmailContent,
		&c.Server.Hostname,
		&c.Schedule.Time,
		&c.ScheduleTime,
		&c.DKIM.Domain,
		&c.DKIM.Selector,
		&c.DKIM.PrivateKey,
	} {
		*p = expand.Expand(*p, expand.Env)
	}
	expandAll(c.Email.Attachments)
	expandAll(c.DKIM.HeaderKeys)
}

// Load parses b, expands ${env.NAME} references and fills in defaults.
func Load(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	cfg.expand()
	if cfg.Schedule.Time == "" {
		cfg.Schedule.Time = cfg.ScheduleTime
	}
	if err := mergo.Merge(&cfg, defaults()); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return &cfg, nil
}

func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}
	cfg, err := Load(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every missing mandatory setting at once.
func (c *Config) Validate() error {
	var errs []error
	for _, f := range []struct {
		name  string
		value string
	}{
		{"email.sender", c.Email.Sender},
		{"email.mailing_list", c.Email.MailingList},
		{"email.email_content", c.Email.EmailContent},
		{"server.hostname", c.Server.Hostname},
	} {
		if f.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", f.name))
		}
	}
	if c.Server.PortNumber < 1 || c.Server.PortNumber > 65535 {
		errs = append(errs, fmt.Errorf("server.port_number %d is out of range", c.Server.PortNumber))
	}
	if c.Server.ConnTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.conn_timeout must be positive"))
	}
	if c.Schedule.Time != "" {
		if _, _, err := c.Schedule.TimeOfDay(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.DKIM.Domain != "" && (c.DKIM.Selector == "" || c.DKIM.PrivateKey == "") {
		errs = append(errs, fmt.Errorf("dkim.selector and dkim.private_key are required when dkim.domain is set"))
	}
	return errors.Join(errs...)
}

// TimeOfDay parses Time as HH:MM (seconds, if given, must be zero).
func (s ScheduleConfig) TimeOfDay() (hour, minute int, err error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		t, perr := time.Parse(layout, s.Time)
		if perr != nil {
			continue
		}
		if t.Second() != 0 {
			break
		}
		return t.Hour(), t.Minute(), nil
	}
	return 0, 0, fmt.Errorf("schedule.time %q is not a valid time of day (expected HH:MM)", s.Time)
}

func parsePrivateKey(b []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return k, nil
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := k.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", k)
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %s", block.Type)
	}
}

// SignOptions returns nil when DKIM signing is not configured.
func (d DKIMConfig) SignOptions() (*dkim.SignOptions, error) {
	if d.Domain == "" {
		return nil, nil
	}
	b, err := os.ReadFile(d.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read DKIM private key: %w", err)
	}
	signer, err := parsePrivateKey(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.PrivateKey, err)
	}
	return &dkim.SignOptions{
		Domain:     d.Domain,
		Selector:   d.Selector,
		Signer:     signer,
		HeaderKeys: d.HeaderKeys,
	}, nil
}
