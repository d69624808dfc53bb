package rfc5322

import (
	"io"

	"github.com/moriyoshi/badass-mailer/internal/bufio"
)

// Builder is a Handler that writes what it receives back out with CRLF line
// endings.
type Builder struct {
	io.Writer
	shortWrite bool
}

var crlf = []byte{'\r', '\n'}

func (bl *Builder) write(b []byte) error {
	n, err := bl.Writer.Write(b)
	if n != len(b) {
		bl.shortWrite = true
	}
	if err == nil && bl.shortWrite {
		err = io.ErrShortWrite
	}
	return err
}

func (bl *Builder) writeLine(b []byte) error {
	if err := bl.write(b); err != nil {
		return err
	}
	return bl.write(crlf)
}

func (bl *Builder) HandleStraggler(b []byte) error {
	return bl.writeLine(b)
}

func (bl *Builder) HandleHeaderLine(chunks [][]byte) error {
	for _, chunk := range chunks {
		if err := bl.writeLine(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (bl *Builder) HandleBody(r bufio.Reader) error {
	if err := bl.write(crlf); err != nil {
		return err
	}
	_, err := io.Copy(bl.Writer, r)
	return err
}

func (bl *Builder) ShortWrite() bool {
	return bl.shortWrite
}
