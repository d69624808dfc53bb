package rfc5322

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moriyoshi/badass-mailer/internal/bufio"
)

func TestStoreReplay(t *testing.T) {
	t.Parallel()

	for _, c := range roundtripCases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			input := toCRLF(c.input)
			var s Store
			if !assert.NoError(t, Scan(bufio.NewBytesReader(input), &s)) {
				t.FailNow()
			}
			// replaying twice must give the same result each time
			for i := 0; i < 2; i++ {
				var buf bytes.Buffer
				if assert.NoError(t, s.Replay(&Builder{Writer: &buf})) {
					assert.Equal(t, input, buf.Bytes())
				}
			}
		})
	}
}

func TestStoreHeaders(t *testing.T) {
	var s Store
	input := toCRLF([]byte("To: a@b.co\nSubject: x\nto: c@d.co\n\nbody"))
	if !assert.NoError(t, Scan(bufio.NewBytesReader(input), &s)) {
		t.FailNow()
	}
	h := s.Headers("TO")
	if assert.Len(t, h, 2) {
		assert.Equal(t, []byte("To: a@b.co"), h[0][0])
		assert.Equal(t, []byte("to: c@d.co"), h[1][0])
	}
	assert.Empty(t, s.Headers("Cc"))
}
