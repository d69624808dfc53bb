package smtpclient

import (
	"errors"
	"fmt"
	"net/textproto"
)

var ErrSessionClosed = errors.New("smtp session already closed")

// HostnameError means the SMTP server's name could not be resolved.
type HostnameError struct {
	Hostname string
	Err      error
}

func (e *HostnameError) Error() string {
	return fmt.Sprintf("it appears that %s is not a valid hostname: %v", e.Hostname, e.Err)
}

func (e *HostnameError) Unwrap() error {
	return e.Err
}

// ConnectionError covers refused connections, timeouts and any other socket
// level failure while establishing the session.
type ConnectionError struct {
	Hostname string
	Port     int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf(
		"failed to connect to %s:%d; potentially either the hostname or port number are incorrect: %v",
		e.Hostname, e.Port, e.Err,
	)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SenderRejectedError is returned when the server refuses MAIL FROM.
type SenderRejectedError struct {
	Sender string
	Err    *textproto.Error
}

func (e *SenderRejectedError) Error() string {
	return fmt.Sprintf("sender %s refused: %d %s", e.Sender, e.Err.Code, e.Err.Msg)
}

func (e *SenderRejectedError) Unwrap() error {
	return e.Err
}

// RecipientRejectedError is returned when the server refuses RCPT TO.
type RecipientRejectedError struct {
	Recipient string
	Err       *textproto.Error
}

func (e *RecipientRejectedError) Error() string {
	return fmt.Sprintf("recipient %s refused: %d %s", e.Recipient, e.Err.Code, e.Err.Msg)
}

func (e *RecipientRejectedError) Unwrap() error {
	return e.Err
}

// SendError is any other failure during a transaction, e.g. a broken
// connection or a refused DATA.
type SendError struct {
	Recipient string
	Stage     string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send to %s during %s: %v", e.Recipient, e.Stage, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// IsRejection reports whether err is a server side refusal of the sender or
// of the recipient.
func IsRejection(err error) bool {
	var sre *SenderRejectedError
	var rre *RecipientRejectedError
	return errors.As(err, &sre) || errors.As(err, &rre)
}
