package telemetry

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/zhouzirui/chatdesk/backend/internal/config"
)

// InitLogging mirrors the standard logger into a rotated file when LOG_FILE is set.
// The returned closer flushes the file and is a no-op otherwise.
func InitLogging(cfg config.LogConfig) (io.Closer, error) {
	if cfg.File == "" {
		return io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	rotated := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotated))
	return rotated, nil
}

// InitTracing installs a tracer provider exporting spans to TRACE_FILE.
// Without a file the global no-op provider stays in place.
func InitTracing(ctx context.Context, cfg config.TraceConfig, logCfg config.LogConfig) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if cfg.File == "" {
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("create resource: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return noop, fmt.Errorf("create trace directory: %w", err)
	}
	traceFile := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    logCfg.MaxSizeMB,
		MaxBackups: logCfg.MaxBackups,
		MaxAge:     logCfg.MaxAgeDays,
		Compress:   true,
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(traceFile),
	)
	if err != nil {
		return noop, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	log.Printf("[telemetry] exporting traces to %s", cfg.File)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if closeErr := traceFile.Close(); err == nil {
			err = closeErr
		}
		return err
	}, nil
}
