package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/epon-sim/epon-sim/sim"
)

const tracerName = "github.com/epon-sim/epon-sim/cmd"

// initTracing installs a tracer provider writing spans as JSON to path.
// With an empty path the global no-op provider stays in place. The returned
// function flushes spans and closes the file.
func initTracing(ctx context.Context, path string) (func(context.Context) error, error) {
	if path == "" {
		return func(context.Context) error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating trace file: %w", err)
	}
	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(f),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", "epon-sim"),
	))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	}, nil
}

// shutdownWithTimeout flushes tracing with a bounded timeout, logging failures.
func shutdownWithTimeout(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logrus.Warnf("tracing shutdown failed: %v", err)
	}
}

// startRunSpan opens the span covering one simulation run.
func startRunSpan(ctx context.Context, cfg sim.Config) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "simulation.run", trace.WithAttributes(
		attribute.String("epon.policy", cfg.Network.Policy),
		attribute.Int64("epon.seed", cfg.Seed),
		attribute.Int("epon.onus", cfg.Network.NumONUs),
		attribute.Float64("epon.horizon_s", cfg.Horizon),
	))
}

// endRunSpan records the outcome of a run on span and ends it.
func endRunSpan(span trace.Span, m *sim.Metrics, err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	_, sent, dropped := m.Totals()
	span.SetAttributes(
		attribute.Int64("epon.events", int64(m.EventsDispatched)),
		attribute.Int("epon.dba_cycles", m.Cycles),
		attribute.Int64("epon.packets_sent", sent),
		attribute.Int64("epon.packets_dropped", dropped),
		attribute.Float64("epon.mean_delay_s", m.MeanDelay()),
		attribute.Float64("epon.mean_energy", m.MeanEnergy()),
	)
}
