package badass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moriyoshi/badass-mailer/internal/logging"
	"github.com/moriyoshi/badass-mailer/internal/metrics"
	"github.com/moriyoshi/badass-mailer/smtpclient"
	"github.com/moriyoshi/badass-mailer/types"
)

// DeliveryPolicy decides what happens to the rest of a batch once the
// server refuses the sender or a recipient.
type DeliveryPolicy int

const (
	// AbortOnError stops the batch at the first refusal.
	AbortOnError DeliveryPolicy = iota
	// ContinueOnError records the refusal and goes on with the next
	// recipient.
	ContinueOnError
)

var deliveryPolicyNames = map[DeliveryPolicy]string{
	AbortOnError:    "abort",
	ContinueOnError: "continue",
}

func (p DeliveryPolicy) String() string {
	if s, ok := deliveryPolicyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("DeliveryPolicy(%d)", int(p))
}

func ParseDeliveryPolicy(s string) (DeliveryPolicy, error) {
	for p, name := range deliveryPolicyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return AbortOnError, fmt.Errorf("unknown delivery policy %q (expected abort or continue)", s)
}

func (p *DeliveryPolicy) UnmarshalText(b []byte) error {
	v, err := ParseDeliveryPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p DeliveryPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Session is the part of smtpclient.Session the dispatcher drives.
type Session interface {
	Send(context.Context, smtpclient.Mail) error
	Reset() error
	Close() error
}

type Failure struct {
	Recipient string
	Err       error
}

// Report tells what became of every recipient of a batch.
type Report struct {
	BatchID  uuid.UUID
	Started  time.Time
	Finished time.Time
	Sent     []string
	Failed   []Failure
	// Skipped holds the recipients that were never attempted because the
	// batch stopped early.
	Skipped []string
}

func (r *Report) Total() int {
	return len(r.Sent) + len(r.Failed) + len(r.Skipped)
}

func (r *Report) Summary() string {
	return fmt.Sprintf("sent %d of %d (%d failed, %d skipped)", len(r.Sent), r.Total(), len(r.Failed), len(r.Skipped))
}

// PartialDeliveryError is returned under ContinueOnError when some of the
// recipients were refused.
type PartialDeliveryError struct {
	Failures []Failure
	Total    int
}

func (e *PartialDeliveryError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "delivery failed for %d of %d recipients", len(e.Failures), e.Total)
	for i, f := range e.Failures {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString("; ")
		}
		sb.WriteString(f.Err.Error())
	}
	return sb.String()
}

func (e *PartialDeliveryError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

type Dispatcher struct {
	policy    DeliveryPolicy
	logger    *slog.Logger
	metrics   *metrics.Collector
	nowGetter func() time.Time
}

type DispatcherOptionFunc func(*Dispatcher) (*Dispatcher, error)

func WithPolicy(policy DeliveryPolicy) DispatcherOptionFunc {
	return func(d *Dispatcher) (*Dispatcher, error) {
		if _, ok := deliveryPolicyNames[policy]; !ok {
			return nil, fmt.Errorf("unknown delivery policy %s", policy)
		}
		d.policy = policy
		return d, nil
	}
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOptionFunc {
	return func(d *Dispatcher) (*Dispatcher, error) {
		d.logger = logging.OrDiscard(logger)
		return d, nil
	}
}

func WithMetrics(m *metrics.Collector) DispatcherOptionFunc {
	return func(d *Dispatcher) (*Dispatcher, error) {
		d.metrics = m
		return d, nil
	}
}

func NewDispatcher(options ...DispatcherOptionFunc) (*Dispatcher, error) {
	d := &Dispatcher{
		policy:    AbortOnError,
		logger:    logging.Discard(),
		nowGetter: time.Now,
	}
	for _, option := range options {
		var err error
		d, err = option(d)
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dispatcher) Policy() DeliveryPolicy {
	return d.policy
}

func failureReason(err error) string {
	var sre *smtpclient.SenderRejectedError
	var rre *smtpclient.RecipientRejectedError
	switch {
	case errors.As(err, &sre):
		return "sender_rejected"
	case errors.As(err, &rre):
		return "recipient_rejected"
	default:
		return "error"
	}
}

func outcome(r *Report, err error) string {
	switch {
	case err == nil:
		return "success"
	case len(r.Sent) > 0:
		return "partial"
	default:
		return "failure"
	}
}

// Deliver sends one envelope per recipient over session, in list order.
// Deliver takes ownership of session and closes it exactly once before it
// returns, whatever the outcome. The report is returned even on error.
func (d *Dispatcher) Deliver(ctx context.Context, session Session, recipients types.MailingList, source types.EnvelopeSource) (report *Report, err error) {
	report = &Report{
		BatchID: uuid.New(),
		Started: d.nowGetter(),
	}
	logger := d.logger.With(
		slog.String("batch_id", report.BatchID.String()),
		slog.String("sender", source.Sender()),
	)
	logger.InfoContext(ctx, "starting batch", slog.Int("recipients", len(recipients)), slog.String("policy", d.policy.String()))

	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.WarnContext(ctx, "failed to close session", slog.Any("error", cerr))
		}
		report.Finished = d.nowGetter()
		d.metrics.Batch(outcome(report, err), report.Finished.Sub(report.Started))
		if err != nil {
			logger.ErrorContext(ctx, "batch ended with errors", slog.String("summary", report.Summary()), slog.Any("error", err))
		} else {
			logger.InfoContext(ctx, "batch finished", slog.String("summary", report.Summary()))
		}
	}()

	for i, rcpt := range recipients {
		if err := ctx.Err(); err != nil {
			report.Skipped = append(report.Skipped, recipients[i:]...)
			return report, err
		}
		logger := logger.With(slog.String("recipient", rcpt))
		logger.InfoContext(ctx, "sending report")

		m, err := source.Envelope(rcpt)
		if err != nil {
			report.Failed = append(report.Failed, Failure{Recipient: rcpt, Err: err})
			report.Skipped = append(report.Skipped, recipients[i+1:]...)
			d.metrics.Failed("envelope")
			return report, fmt.Errorf("failed to build message for %s: %w", rcpt, err)
		}

		err = session.Send(ctx, m)
		if err == nil {
			report.Sent = append(report.Sent, rcpt)
			d.metrics.Sent()
			logger.InfoContext(ctx, "email successfully sent")
			continue
		}

		report.Failed = append(report.Failed, Failure{Recipient: rcpt, Err: err})
		d.metrics.Failed(failureReason(err))
		logger.ErrorContext(ctx, "failed to send", slog.Any("error", err))
		if d.policy == AbortOnError || !smtpclient.IsRejection(err) {
			report.Skipped = append(report.Skipped, recipients[i+1:]...)
			return report, err
		}
		if err := session.Reset(); err != nil {
			report.Skipped = append(report.Skipped, recipients[i+1:]...)
			return report, fmt.Errorf("failed to reset session after refusal of %s: %w", rcpt, err)
		}
	}

	if len(report.Failed) > 0 {
		return report, &PartialDeliveryError{Failures: report.Failed, Total: len(recipients)}
	}
	return report, nil
}
