// Package smtptest runs an in-process SMTP server for tests.
package smtptest

import (
	"net"
	"sync"
	"time"

	"github.com/mhale/smtpd"
)

// Message is one accepted DATA transaction.
type Message struct {
	From string
	To   []string
	Data []byte
}

type Server struct {
	s               *smtpd.Server
	l               net.Listener
	acceptRecipient func(from, to string) bool
	mu              sync.Mutex
	messages        []Message
	rcptAttempts    []string
	done            chan struct{}
}

type OptionFunc func(*Server)

// WithRecipientFilter makes the server refuse RCPT TO for which fn returns
// false.
func WithRecipientFilter(fn func(from, to string) bool) OptionFunc {
	return func(s *Server) {
		s.acceptRecipient = fn
	}
}

// RejectRecipients refuses the listed recipients and accepts everyone else.
func RejectRecipients(rcpts ...string) OptionFunc {
	return WithRecipientFilter(func(_, to string) bool {
		for _, r := range rcpts {
			if r == to {
				return false
			}
		}
		return true
	})
}

func Start(options ...OptionFunc) (*Server, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		l:    l,
		done: make(chan struct{}),
	}
	for _, option := range options {
		option(s)
	}
	s.s = &smtpd.Server{
		Appname:  "smtptest",
		Hostname: "mx.example.com",
		Timeout:  30 * time.Second,
		Handler: func(origin net.Addr, from string, to []string, data []byte) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.messages = append(s.messages, Message{
				From: from,
				To:   append([]string(nil), to...),
				Data: append([]byte(nil), data...),
			})
			return nil
		},
		HandlerRcpt: func(origin net.Addr, from string, to string) bool {
			s.mu.Lock()
			s.rcptAttempts = append(s.rcptAttempts, to)
			s.mu.Unlock()
			if s.acceptRecipient == nil {
				return true
			}
			return s.acceptRecipient(from, to)
		},
	}
	go func() {
		defer close(s.done)
		s.s.Serve(l)
	}()
	return s, nil
}

func (s *Server) Addr() *net.TCPAddr {
	return s.l.Addr().(*net.TCPAddr)
}

func (s *Server) Port() int {
	return s.Addr().Port
}

// Messages returns the accepted messages in arrival order.
func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// RecipientAttempts returns every RCPT TO address seen, accepted or not.
func (s *Server) RecipientAttempts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.rcptAttempts...)
}

func (s *Server) Close() error {
	err := s.l.Close()
	s.s.Close()
	<-s.done
	return err
}
