package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/httpsample/internal/config"
	"github.com/torosent/httpsample/internal/engine"
	"github.com/torosent/httpsample/internal/metrics"
	"github.com/torosent/httpsample/internal/output"
	"github.com/torosent/httpsample/internal/sink"
	"github.com/torosent/httpsample/internal/threshold"
	"github.com/torosent/httpsample/internal/tracing"
)

const tracingShutdownTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, err := newLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	runID := ulid.Make().String()
	logger = logger.With(slog.String("run_id", runID))

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tracingShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	eng := engine.New(cfg.URLs).
		WithHeaders(cfg.Headers).
		WithLogger(logger).
		WithTracer(provider.Tracer(), provider.ShouldPropagate()).
		WithRate(cfg.Rate).
		WithProxy(cfg.Proxy)

	collector := metrics.NewCollector()
	collectors := []engine.Collector{collector}

	var samples *sink.FileSink
	if cfg.SamplesOut != "" {
		samples, err = sink.Open(cfg.SamplesOut, runID)
		if err != nil {
			return err
		}
		collectors = append(collectors, samples)
	}

	var progress *output.ProgressReporter
	if cfg.Progress {
		progress = output.NewProgressReporter(collector, cfg.Requests, cfg.ProgressInterval, stderr)
	}

	// Start the clock right before dispatch so setup cost stays out of the rate.
	collector.Start()
	if progress != nil {
		progress.Start()
	}
	runErr := eng.Run(ctx, cfg.Requests, engine.Tee(collectors...))
	if progress != nil {
		progress.Stop()
		fmt.Fprintln(stderr)
	}
	stats := collector.Stats(collector.Elapsed())

	var sinkErr error
	if samples != nil {
		sinkErr = samples.Close()
	}

	results := threshold.NewEvaluator(thresholds).Evaluate(stats)
	report := output.NewReport(runID, cfg.URLs, stats, results)
	if err := output.Write(stdout, output.Format(cfg.Format), report); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if sinkErr != nil {
		return fmt.Errorf("samples file: %w", sinkErr)
	}
	if failed := threshold.Failed(results); len(failed) > 0 {
		return fmt.Errorf("%d of %d thresholds failed", len(failed), len(results))
	}
	return nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
