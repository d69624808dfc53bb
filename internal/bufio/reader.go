package bufio

import (
	"bytes"
	"io"
)

// Reader is what the RFC 5322 scanner needs from its input.
type Reader interface {
	io.Reader
	io.ByteScanner
	// ReadUpTo reads until delim, inclusive. The boolean reports whether the
	// returned slice may be retained by the caller.
	ReadUpTo(delim byte) ([]byte, bool, error)
}

// BytesReader adapts a bytes.Reader into a Reader.
type BytesReader struct {
	*bytes.Reader
}

func NewBytesReader(b []byte) *BytesReader {
	return &BytesReader{Reader: bytes.NewReader(b)}
}

func (r *BytesReader) ReadUpTo(delim byte) ([]byte, bool, error) {
	var b []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			return b, true, err
		}
		b = append(b, c)
		if c == delim {
			return b, true, nil
		}
	}
}

var _ Reader = &BytesReader{}
