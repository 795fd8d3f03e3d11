// Package commands implements the invoke CLI using Cobra.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spachava753/invoke"
	"github.com/spachava753/invoke/internal/config"
	"github.com/spachava753/invoke/promobserver"
)

const defaultProvider = "sse"

// app holds global flags and everything built from them before a command runs.
type app struct {
	cfgFile          string
	provider         string
	model            string
	guardrailID      string
	guardrailVersion string
	metricsAddr      string
	verbose          bool
	timeout          time.Duration
	retries          int

	cfg          *config.Config
	logger       *zap.Logger
	observer     invoke.Observer
	metricsSrv   *http.Server
	newTransport transportFactory
	out          io.Writer
}

// Execute runs the root command.
func Execute() error {
	a := &app{newTransport: defaultTransport}
	return a.execute(newRootCmd(a))
}

// execute runs cmd and then stops the metrics server and flushes the logger, whether or
// not the command succeeded. Cobra skips post-run hooks after a failed RunE.
func (a *app) execute(cmd *cobra.Command) error {
	defer a.shutdown()
	return cmd.Execute()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "invoke",
		Short: "Stream completions from generative model inference APIs",
		Long: `invoke submits prompts to a model inference service and prints the completion.

Providers: sse (any gateway speaking the invoke-with-response-stream protocol),
anthropic, bedrock (Claude on Amazon Bedrock), openai and gemini.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		SilenceUsage: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&a.cfgFile, "config", "", "config file (default is ~/.invoke/config.yaml)")
	f.StringVar(&a.provider, "provider", "", "provider (sse, anthropic, bedrock, openai, gemini)")
	f.StringVar(&a.model, "model", "", "model ID (e.g. anthropic.claude-v2)")
	f.StringVar(&a.guardrailID, "guardrail-id", "", "guardrail identifier applied by the service")
	f.StringVar(&a.guardrailVersion, "guardrail-version", "", "guardrail version")
	f.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	f.BoolVar(&a.verbose, "verbose", false, "enable debug logging")
	f.DurationVar(&a.timeout, "timeout", 0, "cancel the invocation after this long (0 = no limit)")
	f.IntVar(&a.retries, "retries", 0, "retry throttled or failed stream opens this many times")

	root.AddCommand(newStreamCmd(a), newGenerateCmd(a), newReplayCmd(a))
	return root
}

// init loads the config file, applies its defaults to unset flags, and builds the logger
// and metrics.
func (a *app) init(cmd *cobra.Command) error {
	path := a.cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return exitWithCode(ExitValidation, fmt.Errorf("load config: %w", err))
	}
	a.cfg = cfg

	flags := cmd.Flags()
	if a.provider == "" {
		a.provider = cfg.DefaultProvider
	}
	if a.provider == "" {
		a.provider = defaultProvider
	}
	if a.model == "" {
		a.model = cfg.DefaultModel
	}
	if !flags.Changed("timeout") && cfg.Timeout > 0 {
		a.timeout = cfg.Timeout
	}
	if !flags.Changed("retries") && cfg.Retries > 0 {
		a.retries = cfg.Retries
	}
	if a.metricsAddr == "" {
		a.metricsAddr = cfg.MetricsAddr
	}
	if a.guardrailID == "" && cfg.Guardrail != nil {
		a.guardrailID = cfg.Guardrail.ID
		a.guardrailVersion = cfg.Guardrail.Version
	}

	if a.out == nil {
		a.out = cmd.OutOrStdout()
	}
	if a.logger == nil {
		if a.logger, err = newLogger(a.verbose); err != nil {
			return err
		}
	}
	if a.metricsAddr != "" {
		if err := a.serveMetrics(); err != nil {
			return exitWithCode(ExitValidation, err)
		}
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	return cfg.Build()
}

func (a *app) serveMetrics() error {
	reg := prometheus.NewRegistry()
	a.observer = promobserver.New(reg)

	ln, err := net.Listen("tcp", a.metricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return nil
}

func (a *app) shutdown() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(ctx)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// context derives the invocation context: interrupted by Ctrl-C and bounded by --timeout.
func (a *app) context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	if a.timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// client wraps t with per-attempt logging and, when --retries is set, retrying of
// transient stream-open failures.
func (a *app) client(t invoke.Transport) *invoke.Client {
	var wrappers []invoke.WrapperFunc
	if a.retries > 0 {
		wrappers = append(wrappers, invoke.WithRetry(nil,
			backoff.WithMaxTries(uint(a.retries+1)),
			backoff.WithMaxElapsedTime(2*time.Minute),
			backoff.WithNotify(func(err error, next time.Duration) {
				a.logger.Warn("retrying", zap.Error(err), zap.Duration("backoff", next))
			}),
		))
	}
	wrappers = append(wrappers, invoke.WithLogging(a.logger))

	opts := []invoke.ClientOption{invoke.WithLogger(a.logger)}
	if a.observer != nil {
		opts = append(opts, invoke.WithObserver(a.observer))
	}
	return invoke.NewClient(invoke.Wrap(t, wrappers...), opts...)
}

func (a *app) providerClient(ctx context.Context) (*invoke.Client, error) {
	if a.model == "" {
		return nil, exitWithCode(ExitValidation, errors.New("model required: use --model or set default_model in config"))
	}
	t, err := a.newTransport(ctx, a.provider, a.cfg.Provider(a.provider))
	if err != nil {
		return nil, exitWithCode(ExitValidation, err)
	}
	return a.client(t), nil
}

func (a *app) request(body []byte) invoke.Request {
	req := invoke.Request{ModelID: a.model, Body: body}
	if a.guardrailID != "" {
		req.Guardrail = &invoke.GuardrailRef{ID: a.guardrailID, Version: a.guardrailVersion}
	}
	return req
}

// report turns a failed Outcome into an exit error and logs the metrics of every Outcome.
func (a *app) report(o invoke.Outcome) error {
	fields := []zap.Field{zap.Bool("succeeded", o.Succeeded())}
	if n, ok := invoke.Chunks(o.Metrics); ok {
		fields = append(fields, zap.Int("chunks", n))
	}
	if d, ok := invoke.Elapsed(o.Metrics); ok {
		fields = append(fields, zap.Duration("elapsed", d))
	}
	a.logger.Debug("invocation finished", fields...)
	if o.Err != nil {
		return exitWithCode(exitCodeFor(o.Err), o.Err)
	}
	return nil
}
