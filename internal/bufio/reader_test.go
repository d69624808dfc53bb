package bufio

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadUpTo(t *testing.T) {
	r := NewBytesReader([]byte("ab\ncd"))
	l, retainable, err := r.ReadUpTo('\n')
	assert.NoError(t, err)
	assert.True(t, retainable)
	assert.Equal(t, []byte("ab\n"), l)

	l, _, err = r.ReadUpTo('\n')
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, []byte("cd"), l)
}
