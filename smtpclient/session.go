package smtpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"time"

	"blitiri.com.ar/go/spf"
)

// Session is one live SMTP connection. It is not safe for concurrent use.
type Session struct {
	client   *smtp.Client
	conn     net.Conn
	hostname string
	port     int
	resolver spf.DNSResolver
	logger   *slog.Logger
	closed   bool
}

func (s *Session) Hostname() string {
	return s.hostname
}

func (s *Session) Port() int {
	return s.port
}

func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func asReply(err error) (*textproto.Error, bool) {
	var te *textproto.Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Send submits m in one MAIL FROM / RCPT TO / DATA transaction. Sends are
// only bounded in time when ctx carries a deadline.
func (s *Session) Send(ctx context.Context, m Mail) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetDeadline(deadline); err != nil {
			return &SendError{Recipient: m.Recipient(), Stage: "setup", Err: err}
		}
		defer s.conn.SetDeadline(time.Time{})
	}

	logger := s.logger.With(slog.String("sender", m.Sender()), slog.String("recipient", m.Recipient()))

	logger.Debug("mail from")
	if err := s.client.Mail(m.Sender()); err != nil {
		if te, ok := asReply(err); ok {
			return &SenderRejectedError{Sender: m.Sender(), Err: te}
		}
		return &SendError{Recipient: m.Recipient(), Stage: "MAIL FROM", Err: err}
	}
	logger.Debug("rcpt to")
	if err := s.client.Rcpt(m.Recipient()); err != nil {
		if te, ok := asReply(err); ok {
			return &RecipientRejectedError{Recipient: m.Recipient(), Err: te}
		}
		return &SendError{Recipient: m.Recipient(), Stage: "RCPT TO", Err: err}
	}
	logger.Debug("data", slog.Int("size", len(m.Data())))
	err := func() error {
		w, err := s.client.Data()
		if err != nil {
			return err
		}
		if _, err := w.Write(m.Data()); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	}()
	if err != nil {
		return &SendError{Recipient: m.Recipient(), Stage: "DATA", Err: err}
	}
	return nil
}

// Reset aborts a half-finished transaction so that the session can be used
// for the next one.
func (s *Session) Reset() error {
	if s.closed {
		return ErrSessionClosed
	}
	return s.client.Reset()
}

// Close ends the session with QUIT and releases the connection. Only the
// first call does anything.
func (s *Session) Close() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	err := s.client.Quit()
	if err != nil {
		s.logger.Warn("QUIT failed; dropping connection", slog.Any("error", err))
		if cerr := s.client.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = errors.Join(err, cerr)
		}
	}
	s.logger.Debug("session closed")
	return err
}

func ipPart(addr net.Addr) net.IP {
	switch addr := addr.(type) {
	case *net.TCPAddr:
		return addr.IP
	case *net.UDPAddr:
		return addr.IP
	case *net.IPAddr:
		return addr.IP
	default:
		return nil
	}
}

// VerifySenderPolicy evaluates the SPF policy of sender's domain against
// the address of the server this session talks to. Mail relayed through a
// server the policy does not cover is likely to be refused downstream.
func (s *Session) VerifySenderPolicy(ctx context.Context, sender string) (spf.Result, error) {
	ip := ipPart(s.conn.RemoteAddr())
	if ip == nil {
		return spf.None, fmt.Errorf("cannot determine the address of %s", s.hostname)
	}
	result, err := spf.CheckHostWithSender(
		ip,
		"",
		sender,
		spf.WithResolver(s.resolver),
		spf.WithContext(ctx),
		spf.WithTraceFunc(func(f string, args ...interface{}) {
			s.logger.Debug("spf trace", slog.String("text", fmt.Sprintf(f, args...)))
		}),
	)
	if err != nil {
		switch err {
		case spf.ErrMatchedAll, spf.ErrMatchedA, spf.ErrMatchedIP, spf.ErrMatchedMX, spf.ErrMatchedPTR, spf.ErrMatchedExists:
			err = nil
		default:
			err = fmt.Errorf("error occurred during verifying SPF record: %w", err)
		}
	}
	return result, err
}
