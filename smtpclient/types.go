package smtpclient

// Mail is what a Session submits: one sender, one recipient and the full
// message data.
type Mail interface {
	Sender() string
	Recipient() string
	Data() []byte
}
