package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrDiscard(t *testing.T) {
	l := OrDiscard(nil)
	if assert.NotNil(t, l) {
		assert.False(t, l.Enabled(context.Background(), slog.LevelError))
	}
	d := slog.Default()
	assert.Same(t, d, OrDiscard(d))
}
