package types

// EnvelopeSource hands out the mail to be submitted for one recipient.
// Implementations must be safe to call repeatedly with different recipients;
// the returned Mail carries exactly that recipient in its To header.
type EnvelopeSource interface {
	Sender() string
	Envelope(recipient string) (Mail, error)
}
