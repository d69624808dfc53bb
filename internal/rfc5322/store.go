package rfc5322

import (
	"bytes"
	"io"

	"github.com/moriyoshi/badass-mailer/internal/bufio"
)

type ComponentType int

const (
	Header ComponentType = iota
	Straggler
	Body
)

type Component struct {
	Type ComponentType
	Data [][]byte
}

// Store is a Handler that records a scanned message so that it can be
// replayed any number of times.
type Store []Component

func (s *Store) HandleStraggler(b []byte) error {
	*s = append(*s, Component{Type: Straggler, Data: [][]byte{bytes.Clone(b)}})
	return nil
}

func (s *Store) HandleHeaderLine(chunks [][]byte) error {
	data := make([][]byte, len(chunks))
	for i, c := range chunks {
		data[i] = bytes.Clone(c)
	}
	*s = append(*s, Component{Type: Header, Data: data})
	return nil
}

func (s *Store) HandleBody(r bufio.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	*s = append(*s, Component{Type: Body, Data: [][]byte{body}})
	return nil
}

// Replay feeds the recorded components to h in their original order.
func (s Store) Replay(h Handler) error {
	for _, c := range s {
		var err error
		switch c.Type {
		case Header:
			err = h.HandleHeaderLine(c.Data)
		case Straggler:
			err = h.HandleStraggler(c.Data[0])
		case Body:
			err = h.HandleBody(bufio.NewBytesReader(c.Data[0]))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Headers returns the recorded header lines named name, case-insensitively.
func (s Store) Headers(name string) [][][]byte {
	var retval [][][]byte
	for _, c := range s {
		if c.Type != Header {
			continue
		}
		if n, ok := HeaderName(c.Data); ok && bytes.EqualFold(n, []byte(name)) {
			retval = append(retval, c.Data)
		}
	}
	return retval
}
