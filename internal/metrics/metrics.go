// Package metrics exposes delivery counters in the Prometheus format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moriyoshi/badass-mailer/internal/logging"
)

const namespace = "badass_mailer"

// Collector holds the counters of a mailer process. A nil *Collector is
// valid and records nothing.
type Collector struct {
	registry *prometheus.Registry
	sent     prometheus.Counter
	failed   *prometheus.CounterVec
	batches  *prometheus.CounterVec
	duration prometheus.Histogram
	lastRun  prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mails_sent_total",
			Help:      "Messages accepted by the SMTP server.",
		}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mails_failed_total",
			Help:      "Messages that could not be delivered, by reason.",
		}, []string{"reason"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Delivery batches run, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time spent on one delivery batch.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_timestamp_seconds",
			Help:      "Unix time at which the last batch finished.",
		}),
	}
	c.registry.MustRegister(c.sent, c.failed, c.batches, c.duration, c.lastRun)
	return c
}

func (c *Collector) Sent() {
	if c == nil {
		return
	}
	c.sent.Inc()
}

func (c *Collector) Failed(reason string) {
	if c == nil {
		return
	}
	c.failed.WithLabelValues(reason).Inc()
}

func (c *Collector) Batch(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.batches.WithLabelValues(outcome).Inc()
	c.duration.Observe(elapsed.Seconds())
	c.lastRun.SetToCurrentTime()
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	logger = logging.OrDiscard(logger)
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down metrics server", slog.Any("error", err))
		}
	}()
	logger.Info("serving metrics", slog.String("address", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
