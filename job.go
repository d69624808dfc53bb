package badass

import (
	"context"
	"fmt"
	"log/slog"

	"blitiri.com.ar/go/spf"

	"github.com/moriyoshi/badass-mailer/internal/logging"
	"github.com/moriyoshi/badass-mailer/smtpclient"
	"github.com/moriyoshi/badass-mailer/types"
)

// BatchSource supplies the recipients and the message of one run.
type BatchSource interface {
	Batch(ctx context.Context) (types.MailingList, types.EnvelopeSource, error)
}

// StaticBatch hands out the same recipients and message on every run.
type StaticBatch struct {
	Recipients types.MailingList
	Source     types.EnvelopeSource
}

func (b StaticBatch) Batch(context.Context) (types.MailingList, types.EnvelopeSource, error) {
	return b.Recipients, b.Source, nil
}

// BatchSourceFunc builds the batch anew on every run.
type BatchSourceFunc func(ctx context.Context) (types.MailingList, types.EnvelopeSource, error)

func (f BatchSourceFunc) Batch(ctx context.Context) (types.MailingList, types.EnvelopeSource, error) {
	return f(ctx)
}

// Job is one complete delivery run: connect, deliver, disconnect.
type Job struct {
	hostname   string
	port       int
	connector  *smtpclient.Connector
	dispatcher *Dispatcher
	source     BatchSource
	verifySPF  bool
	logger     *slog.Logger
}

type JobOptionFunc func(*Job) error

func WithSPFVerification(enabled bool) JobOptionFunc {
	return func(j *Job) error {
		j.verifySPF = enabled
		return nil
	}
}

func WithLogger(logger *slog.Logger) JobOptionFunc {
	return func(j *Job) error {
		j.logger = logging.OrDiscard(logger)
		return nil
	}
}

func NewJob(hostname string, port int, connector *smtpclient.Connector, dispatcher *Dispatcher, source BatchSource, options ...JobOptionFunc) (*Job, error) {
	j := &Job{
		hostname:   hostname,
		port:       port,
		connector:  connector,
		dispatcher: dispatcher,
		source:     source,
		logger:     logging.Discard(),
	}
	for _, option := range options {
		if err := option(j); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func (j *Job) checkSenderPolicy(ctx context.Context, sess *smtpclient.Session, sender string) {
	logger := j.logger.With(slog.String("sender", sender), slog.String("relay", sess.RemoteAddr().String()))
	result, err := sess.VerifySenderPolicy(ctx, sender)
	if err != nil {
		logger.WarnContext(ctx, "could not evaluate SPF policy", slog.Any("error", err))
		return
	}
	switch result {
	case spf.Pass, spf.None, spf.Neutral:
		logger.InfoContext(ctx, "SPF policy checked", slog.String("result", string(result)))
	default:
		logger.WarnContext(ctx, "SPF policy of the sender domain does not cover the relay; messages may be refused downstream", slog.String("result", string(result)))
	}
}

// Run performs the delivery. Errors are returned untouched so that the
// caller can tell the failure classes apart.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	recipients, source, err := j.source.Batch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare batch: %w", err)
	}
	j.logger.InfoContext(ctx, "emails being sent", slog.String("sender", source.Sender()), slog.Int("recipients", len(recipients)))

	sess, err := j.connector.Connect(ctx, j.hostname, j.port)
	if err != nil {
		return nil, err
	}
	if j.verifySPF {
		j.checkSenderPolicy(ctx, sess, source.Sender())
	}
	return j.dispatcher.Deliver(ctx, sess, recipients, source)
}

// Task adapts Run to the scheduler.
func (j *Job) Task() func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := j.Run(ctx)
		return err
	}
}
