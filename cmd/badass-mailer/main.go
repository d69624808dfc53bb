package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"blitiri.com.ar/go/spf"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	badass "github.com/moriyoshi/badass-mailer"
	"github.com/moriyoshi/badass-mailer/draft"
	"github.com/moriyoshi/badass-mailer/internal/config"
	"github.com/moriyoshi/badass-mailer/internal/metrics"
	"github.com/moriyoshi/badass-mailer/scheduler"
	"github.com/moriyoshi/badass-mailer/smtpclient"
)

const defaultEnvFile = ".env"

type SendCmd struct{}

type ScheduleCmd struct {
	KeepGoing bool `name:"keep-going" help:"Log a failed run and wait for the next one instead of exiting." env:"BADASS_KEEP_GOING" default:"false"`
}

type CheckCmd struct{}

type CLI struct {
	Config        string     `name:"config" short:"c" help:"Path to the configuration file." env:"BADASS_CONFIG" default:"config.yaml"`
	LogLevel      slog.Level `name:"log-level" help:"Log level." env:"BADASS_LOG_LEVEL" default:"INFO" enum:"DEBUG,INFO,WARN,ERROR"`
	Nameservers   []string   `name:"nameservers" help:"DNS server to use for resolving." env:"BADASS_NAMESERVERS"`
	VerifySpf     bool       `name:"verify-spf" help:"Check the sender domain's SPF record against the SMTP server before sending." env:"BADASS_VERIFY_SPF" default:"false"`
	MetricsListen string     `name:"metrics-listen" help:"Address to expose Prometheus metrics on while scheduling." env:"BADASS_METRICS_LISTEN" optional:""`
	HelloHostname string     `name:"hello-hostname" help:"Host name to announce in EHLO." env:"BADASS_HELLO_HOSTNAME" default:"localhost"`

	Send     SendCmd     `cmd:"" default:"1" help:"Send the message to the mailing list once."`
	Schedule ScheduleCmd `cmd:"" help:"Send the message every day at schedule.time."`
	Check    CheckCmd    `cmd:"" help:"Validate the configuration and connect to the SMTP server without sending."`
}

func (CLI *CLI) initLogger(*kong.Context) *slog.Logger {
	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{Level: CLI.LogLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: CLI.LogLevel})
	}
	return slog.New(handler)
}

func (CLI *CLI) loadConfig(kongCtx *kong.Context) *config.Config {
	cfg, err := config.LoadFile(CLI.Config)
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
	if err := cfg.Validate(); err != nil {
		kongCtx.FatalIfErrorf(fmt.Errorf("%s: %w", CLI.Config, err))
	}
	return cfg
}

func (CLI *CLI) initResolver(kongCtx *kong.Context, logger *slog.Logger) spf.DNSResolver {
	if len(CLI.Nameservers) == 0 {
		return &net.Resolver{}
	}
	servers := make([]string, len(CLI.Nameservers))
	copy(servers, CLI.Nameservers)
	for i := range servers {
		_, _, err := net.SplitHostPort(servers[i])
		if err != nil {
			host, port, err := net.SplitHostPort(servers[i] + ":53")
			if err != nil {
				kongCtx.FatalIfErrorf(fmt.Errorf("invalid DNS server address: %s", servers[i]))
			}
			servers[i] = net.JoinHostPort(host, port)
		}
	}
	logger.Info("with custom DNS servers", slog.Any("servers", servers))
	var next atomic.Uint32
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, servers[int(next.Add(1)-1)%len(servers)])
		},
	}
}

func (CLI *CLI) initConnector(kongCtx *kong.Context, logger *slog.Logger, cfg *config.Config, res spf.DNSResolver) *smtpclient.Connector {
	connector, err := smtpclient.NewConnector(
		smtpclient.WithLogger(logger),
		smtpclient.WithResolver(res),
		smtpclient.WithConnTimeout(cfg.Server.ConnTimeout),
		smtpclient.WithHelloHostname(CLI.HelloHostname),
	)
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
	return connector
}

func (CLI *CLI) initDispatcher(kongCtx *kong.Context, logger *slog.Logger, cfg *config.Config, m *metrics.Collector) *badass.Dispatcher {
	dispatcher, err := badass.NewDispatcher(
		badass.WithPolicy(cfg.Delivery.OnError),
		badass.WithDispatcherLogger(logger),
		badass.WithMetrics(m),
	)
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
	return dispatcher
}

func (CLI *CLI) initBatchSource(ctx context.Context, kongCtx *kong.Context, logger *slog.Logger, cfg *config.Config) badass.BatchSource {
	options := []draft.BuilderOptionFunc{draft.WithLogger(logger)}
	signOptions, err := cfg.DKIM.SignOptions()
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
	if signOptions != nil {
		logger.Info("signing messages with DKIM", slog.String("domain", signOptions.Domain), slog.String("selector", signOptions.Selector))
		options = append(options, draft.WithDKIMSignOptions(signOptions))
	}
	builder, err := draft.NewBuilder(options...)
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
	source := badass.FileBatch{
		Sender:          cfg.Email.Sender,
		Subject:         cfg.Email.Subject,
		BodyPath:        cfg.Email.EmailContent,
		MailingListPath: cfg.Email.MailingList,
		Attachments:     cfg.Email.Attachments,
		Builder:         builder,
	}
	if cfg.Schedule.Rebuild && kongCtx.Command() == "schedule" {
		return source
	}
	frozen, err := badass.Freeze(ctx, source)
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
	return frozen
}

func (CLI *CLI) initJob(kongCtx *kong.Context, logger *slog.Logger, cfg *config.Config, connector *smtpclient.Connector, dispatcher *badass.Dispatcher, source badass.BatchSource) *badass.Job {
	job, err := badass.NewJob(
		cfg.Server.Hostname,
		cfg.Server.PortNumber,
		connector,
		dispatcher,
		source,
		badass.WithSPFVerification(CLI.VerifySpf),
		badass.WithLogger(logger),
	)
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
	return job
}

func (CLI *CLI) send(ctx context.Context, kongCtx *kong.Context, job *badass.Job) {
	report, err := job.Run(ctx)
	if report != nil {
		kongCtx.Printf("%s", report.Summary())
	}
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
}

func (CLI *CLI) schedule(ctx context.Context, kongCtx *kong.Context, logger *slog.Logger, cfg *config.Config, job *badass.Job, m *metrics.Collector) {
	if cfg.Schedule.Time == "" {
		kongCtx.FatalIfErrorf(fmt.Errorf("%s: schedule.time is required to schedule", CLI.Config))
	}
	hour, minute, err := cfg.Schedule.TimeOfDay()
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
	options := []scheduler.RunOptionFunc{scheduler.WithLogger(logger)}
	if CLI.Schedule.KeepGoing {
		options = append(options, scheduler.WithErrorHandler(func(ctx context.Context, err error) {
			logger.ErrorContext(ctx, "scheduled run failed; waiting for the next one", slog.Any("error", err))
		}))
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.ScheduleDaily(ctx, job.Task(), hour, minute, options...)
	})
	if m != nil {
		g.Go(func() error {
			return m.Serve(ctx, CLI.MetricsListen, logger)
		})
	}
	if err := g.Wait(); err != nil {
		kongCtx.FatalIfErrorf(err)
	}
}

func (CLI *CLI) check(ctx context.Context, kongCtx *kong.Context, logger *slog.Logger, cfg *config.Config, connector *smtpclient.Connector, source badass.BatchSource) {
	recipients, envelopes, err := source.Batch(ctx)
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
	sess, err := connector.Connect(ctx, cfg.Server.Hostname, cfg.Server.PortNumber)
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
	defer sess.Close()
	if CLI.VerifySpf {
		result, err := sess.VerifySenderPolicy(ctx, envelopes.Sender())
		if err != nil {
			logger.Warn("could not evaluate SPF policy", slog.Any("error", err))
		} else {
			logger.Info("SPF policy checked", slog.String("result", string(result)))
		}
	}
	kongCtx.Printf("configuration OK: %d recipients, relay %s", len(recipients), sess.RemoteAddr())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	envFile := os.Getenv("BADASS_ENV_FILE")
	if envFile == "" {
		envFile = defaultEnvFile
	}
	// the file is optional
	_ = godotenv.Load(envFile)

	var CLI CLI
	kongCtx := kong.Parse(&CLI, kong.Description("Sends a message with attachments to every address of a mailing list."))
	logger := CLI.initLogger(kongCtx)
	cfg := CLI.loadConfig(kongCtx)
	res := CLI.initResolver(kongCtx, logger)
	connector := CLI.initConnector(kongCtx, logger, cfg, res)
	var m *metrics.Collector
	if CLI.MetricsListen != "" && kongCtx.Command() == "schedule" {
		m = metrics.New()
	}
	dispatcher := CLI.initDispatcher(kongCtx, logger, cfg, m)
	source := CLI.initBatchSource(ctx, kongCtx, logger, cfg)

	switch kongCtx.Command() {
	case "check":
		CLI.check(ctx, kongCtx, logger, cfg, connector, source)
	case "schedule":
		CLI.schedule(ctx, kongCtx, logger, cfg, CLI.initJob(kongCtx, logger, cfg, connector, dispatcher, source), m)
	default:
		CLI.send(ctx, kongCtx, CLI.initJob(kongCtx, logger, cfg, connector, dispatcher, source))
	}
}
