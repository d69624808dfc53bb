package smtpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"blitiri.com.ar/go/spf"

	"github.com/moriyoshi/badass-mailer/internal/logging"
)

const defaultConnTimeout = 2 * time.Second

// Connector opens SMTP sessions. It never retries: a failed Connect is
// reported to the caller as is.
type Connector struct {
	resolver      spf.DNSResolver
	connTimeout   time.Duration
	helloHostname string
	logger        *slog.Logger
}

type ConnectorOptionFunc func(*Connector) (*Connector, error)

func WithResolver(resolver spf.DNSResolver) ConnectorOptionFunc {
	return func(c *Connector) (*Connector, error) {
		c.resolver = resolver
		return c, nil
	}
}

func WithLogger(logger *slog.Logger) ConnectorOptionFunc {
	return func(c *Connector) (*Connector, error) {
		c.logger = logging.OrDiscard(logger)
		return c, nil
	}
}

// WithConnTimeout bounds dialing, the greeting and EHLO together.
func WithConnTimeout(timeout time.Duration) ConnectorOptionFunc {
	return func(c *Connector) (*Connector, error) {
		if timeout <= 0 {
			return nil, fmt.Errorf("connection timeout must be positive, got %s", timeout)
		}
		c.connTimeout = timeout
		return c, nil
	}
}

// WithHelloHostname sets the name announced in EHLO.
func WithHelloHostname(hostname string) ConnectorOptionFunc {
	return func(c *Connector) (*Connector, error) {
		if hostname != "" {
			c.helloHostname = hostname
		}
		return c, nil
	}
}

func NewConnector(options ...ConnectorOptionFunc) (*Connector, error) {
	c := &Connector{
		resolver:      &net.Resolver{},
		connTimeout:   defaultConnTimeout,
		helloHostname: "localhost",
		logger:        logging.Discard(),
	}
	for _, option := range options {
		var err error
		c, err = option(c)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Connector) dial(ctx context.Context, logger *slog.Logger, addrs []net.IPAddr, port int) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: c.connTimeout}
	var errs []error
	for _, addr := range addrs {
		hostPort := net.JoinHostPort(addr.String(), strconv.Itoa(port))
		logger.Debug("connecting to host", slog.String("address", hostPort))
		conn, err := dialer.DialContext(ctx, "tcp", hostPort)
		if err == nil {
			return conn, nil
		}
		logger.WarnContext(ctx, "failed to connect", slog.String("address", hostPort), slog.Any("error", err))
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// Connect resolves hostname, connects to it on port and exchanges greeting
// and EHLO. The caller owns the returned session and must Close it.
func (c *Connector) Connect(ctx context.Context, hostname string, port int) (*Session, error) {
	logger := c.logger.With(slog.String("hostname", hostname), slog.Int("port", port))

	if port <= 0 || port > 65535 {
		err := &ConnectionError{Hostname: hostname, Port: port, Err: fmt.Errorf("port %d out of range", port)}
		logger.ErrorContext(ctx, "invalid port", slog.Any("error", err))
		return nil, err
	}

	addrs, err := c.resolver.LookupIPAddr(ctx, hostname)
	if err == nil && len(addrs) == 0 {
		err = fmt.Errorf("no addresses found for %s", hostname)
	}
	if err != nil {
		err := &HostnameError{Hostname: hostname, Err: err}
		logger.ErrorContext(ctx, "failed to resolve hostname", slog.Any("error", err))
		return nil, err
	}

	conn, err := c.dial(ctx, logger, addrs, port)
	if err != nil {
		err := &ConnectionError{Hostname: hostname, Port: port, Err: err}
		logger.ErrorContext(ctx, "failed to connect", slog.Any("error", err))
		return nil, err
	}

	client, err := func() (*smtp.Client, error) {
		if err := conn.SetDeadline(time.Now().Add(c.connTimeout)); err != nil {
			return nil, err
		}
		client, err := smtp.NewClient(conn, hostname)
		if err != nil {
			return nil, err
		}
		if err := client.Hello(c.helloHostname); err != nil {
			client.Close()
			return nil, err
		}
		return client, conn.SetDeadline(time.Time{})
	}()
	if err != nil {
		conn.Close()
		err := &ConnectionError{Hostname: hostname, Port: port, Err: err}
		logger.ErrorContext(ctx, "failed to establish session", slog.Any("error", err))
		return nil, err
	}

	logger.InfoContext(ctx, "successfully made connection", slog.String("address", conn.RemoteAddr().String()))
	return &Session{
		client:   client,
		conn:     conn,
		hostname: hostname,
		port:     port,
		resolver: c.resolver,
		logger:   logger,
	}, nil
}
