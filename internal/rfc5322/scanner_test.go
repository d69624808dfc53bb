package rfc5322

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moriyoshi/badass-mailer/internal/bufio"
)

var roundtripCases = []struct {
	name  string
	input []byte
}{
	{
		name: "simple",
		input: []byte(strings.Trim(`
Subject: foo
	bar
	baz
From: abc
	<def@example.com>
To: "ghi"
  <"jkl"@example.com>

body
body`, "\n")),
	},
	{
		name: "straggler",
		input: []byte(strings.Trim(`
		Straggler
Subject: foo
From: abc <def@example.com>

body`, "\n")),
	},
	{
		name:  "no body",
		input: []byte("Subject: foo\n\n"),
	},
}

func toCRLF(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte{'\n'}, []byte{'\r', '\n'})
}

func TestRoundtrips(t *testing.T) {
	t.Parallel()

	for i, c := range roundtripCases {
		c := c
		t.Run(fmt.Sprintf("#%d: %s", i, c.name), func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			err := Scan(bufio.NewBytesReader(toCRLF(c.input)), &Builder{Writer: buf})
			if assert.NoError(t, err) {
				assert.Equal(t, toCRLF(c.input), buf.Bytes())
			}
		})
	}
}

func TestScanHeaderLines(t *testing.T) {
	var names []string
	var body []byte
	err := Scan(
		bufio.NewBytesReader(toCRLF(roundtripCases[0].input)),
		HandlerFromFunctions(
			nil,
			func(chunks [][]byte) error {
				n, ok := HeaderName(chunks)
				if assert.True(t, ok) {
					names = append(names, fmt.Sprintf("%s/%d", n, len(chunks)))
				}
				return nil
			},
			func(r bufio.Reader) error {
				var buf bytes.Buffer
				_, err := buf.ReadFrom(r)
				body = buf.Bytes()
				return err
			},
		),
	)
	if assert.NoError(t, err) {
		assert.Equal(t, []string{"Subject/3", "From/2", "To/2"}, names)
		assert.Equal(t, []byte("body\r\nbody"), body)
	}
}

func TestScanUnterminatedHeader(t *testing.T) {
	var s Store
	err := Scan(bufio.NewBytesReader([]byte("Subject: foo")), &s)
	if assert.NoError(t, err) {
		assert.Len(t, s, 2)
		assert.Equal(t, Header, s[0].Type)
		assert.Equal(t, Body, s[1].Type)
		assert.Empty(t, s[1].Data[0])
	}
}

func TestHeaderName(t *testing.T) {
	n, ok := HeaderName([][]byte{[]byte("To : a@b.co")})
	assert.True(t, ok)
	assert.Equal(t, []byte("To"), n)

	_, ok = HeaderName([][]byte{[]byte("no colon here")})
	assert.False(t, ok)

	_, ok = HeaderName(nil)
	assert.False(t, ok)
}
