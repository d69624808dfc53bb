package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := New()
	c.Sent()
	c.Sent()
	c.Failed("recipient_rejected")
	c.Batch("partial", 1500*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.sent))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failed.WithLabelValues("recipient_rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.batches.WithLabelValues("partial")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if assert.NoError(t, err) {
		assert.True(t, strings.Contains(string(body), "badass_mailer_mails_sent_total 2"))
		assert.Contains(t, string(body), `badass_mailer_batches_total{outcome="partial"} 1`)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Sent()
		c.Failed("x")
		c.Batch("ok", time.Second)
	})
}
