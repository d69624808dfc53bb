package types

// Mail is a message ready to be submitted for a single recipient.
// The data is the complete RFC 5322 message, headers included.
type Mail struct {
	sender    string
	recipient string
	data      []byte
}

func NewMail(sender, recipient string, data []byte) Mail {
	return Mail{
		sender:    sender,
		recipient: recipient,
		data:      data,
	}
}

func (m Mail) Sender() string {
	return m.sender
}

func (m Mail) Recipient() string {
	return m.recipient
}

func (m Mail) Data() []byte {
	return m.data
}

func (m Mail) Size() int {
	return len(m.data)
}
