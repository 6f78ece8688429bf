package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/kuro6061/nexum/common/config"
	"github.com/kuro6061/nexum/common/logger"
)

// Telemetry serves the ops endpoints (/metrics, /health, pprof) and
// owns the OTLP tracer provider when an exporter endpoint is configured.
type Telemetry struct {
	serviceName string
	cfg         config.TelemetryConfig
	registry    *prometheus.Registry
	log         *logger.Logger

	server  *http.Server
	tracer  *sdktrace.TracerProvider
	healthy func(context.Context) error
}

// New creates telemetry components
func New(serviceName string, cfg config.TelemetryConfig, registry *prometheus.Registry, log *logger.Logger) *Telemetry {
	return &Telemetry{
		serviceName: serviceName,
		cfg:         cfg,
		registry:    registry,
		log:         log,
	}
}

// SetHealthCheck wires the function behind GET /health. Must be called
// before Start.
func (t *Telemetry) SetHealthCheck(fn func(context.Context) error) {
	t.healthy = fn
}

// Start starts the ops HTTP server and, if configured, the OTLP tracer.
// Tracer initialization failures are logged and do not abort startup.
func (t *Telemetry) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if t.healthy != nil {
			if err := t.healthy(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if t.cfg.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.cfg.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		t.log.Info("metrics server starting", "addr", t.server.Addr)
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("metrics server error", "error", err)
		}
	}()

	if t.cfg.OTLPEndpoint != "" {
		t.initTracer(ctx)
	}

	return nil
}

// Shutdown stops the ops server and flushes the tracer provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.server != nil {
		if err := t.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
		}
	}
	if t.tracer != nil {
		if err := t.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (t *Telemetry) initTracer(ctx context.Context) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpointURL(t.cfg.OTLPEndpoint),
	)
	if err != nil {
		t.log.Warn("tracer init failed, continuing without tracing", "error", err)
		return
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(t.serviceName),
		),
	)
	if err != nil {
		t.log.Warn("tracer resource merge failed, continuing without tracing", "error", err)
		return
	}

	t.tracer = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(t.cfg.SampleRate)),
	)
	otel.SetTracerProvider(t.tracer)

	t.log.Info("tracer initialized", "endpoint", t.cfg.OTLPEndpoint)
}
