package rfc5322

import (
	"bytes"
	"io"

	"github.com/moriyoshi/badass-mailer/internal/bufio"
)

// Handler receives the pieces of a message in the order they appear.
// A header line is passed as its physical lines, CRLF stripped, so folded
// headers arrive as several chunks.
type Handler interface {
	HandleStraggler([]byte) error
	HandleHeaderLine([][]byte) error
	HandleBody(bufio.Reader) error
}

func readLine(r bufio.Reader) ([]byte, bool, error) {
	l, retainable, err := r.ReadUpTo('\n')
	if len(l) == 0 {
		return nil, true, err
	}
	if l[len(l)-1] == '\n' {
		l = l[:len(l)-1]
		if len(l) > 0 && l[len(l)-1] == '\r' {
			l = l[:len(l)-1]
		}
	}
	return l, retainable, err
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t'
}

// Scan splits the header section of r into header lines and hands the rest
// over to handler.HandleBody. Continuation lines that precede any header are
// reported as stragglers.
func Scan(r bufio.Reader, handler Handler) error {
	var chunks [][]byte
	flush := func() error {
		if len(chunks) == 0 {
			return nil
		}
		err := handler.HandleHeaderLine(chunks)
		chunks = nil
		return err
	}
	for {
		l, retainable, err := readLine(r)
		eof := err == io.EOF
		if err != nil && !eof {
			return err
		}
		switch {
		case len(l) == 0:
			if err := flush(); err != nil {
				return err
			}
			return handler.HandleBody(r)
		case isWhitespace(l[0]) && len(chunks) == 0:
			if err := handler.HandleStraggler(l); err != nil {
				return err
			}
		default:
			if !isWhitespace(l[0]) {
				if err := flush(); err != nil {
					return err
				}
			}
			if !retainable {
				l = bytes.Clone(l)
			}
			chunks = append(chunks, l)
		}
		if eof {
			if err := flush(); err != nil {
				return err
			}
			return handler.HandleBody(r)
		}
	}
}

// HeaderName returns the field name of a header line, or false if the first
// chunk carries no colon.
func HeaderName(chunks [][]byte) ([]byte, bool) {
	if len(chunks) == 0 {
		return nil, false
	}
	i := bytes.IndexByte(chunks[0], ':')
	if i < 0 {
		return nil, false
	}
	return bytes.TrimRight(chunks[0][:i], " \t"), true
}

type funcHandler struct {
	straggler  func([]byte) error
	headerLine func([][]byte) error
	body       func(bufio.Reader) error
}

func (h *funcHandler) HandleStraggler(l []byte) error {
	if h.straggler == nil {
		return nil
	}
	return h.straggler(l)
}

func (h *funcHandler) HandleHeaderLine(chunks [][]byte) error {
	if h.headerLine == nil {
		return nil
	}
	return h.headerLine(chunks)
}

func (h *funcHandler) HandleBody(r bufio.Reader) error {
	if h.body == nil {
		return nil
	}
	return h.body(r)
}

// HandlerFromFunctions builds a Handler out of plain functions; nil ones are
// no-ops.
func HandlerFromFunctions(
	straggler func([]byte) error,
	headerLine func([][]byte) error,
	body func(bufio.Reader) error,
) Handler {
	return &funcHandler{straggler: straggler, headerLine: headerLine, body: body}
}
