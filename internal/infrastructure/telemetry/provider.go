// Package telemetry wires OpenTelemetry traces, metrics and logs for the
// service and instruments the database and the access gateway.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/adamj-ops/everyday-properties/internal/infrastructure/config"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	metricExportInterval = 30 * time.Second
	shutdownTimeout      = 10 * time.Second
)

// Providers owns the SDK providers. When telemetry is disabled every SDK
// provider is nil and the accessors return the global no-op providers.
type Providers struct {
	tracer      *sdktrace.TracerProvider
	meter       *sdkmetric.MeterProvider
	logs        *sdklog.LoggerProvider
	serviceName string
	logger      *zap.Logger
}

// Setup creates the OTLP exporters and installs the providers globally.
func Setup(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Providers{serviceName: cfg.ServiceName, logger: logger}
	if !cfg.Enabled {
		logger.Info("Telemetry disabled, using no-op providers")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := p.setupTraces(ctx, cfg, res); err != nil {
		return nil, err
	}
	if err := p.setupMetrics(ctx, cfg, res); err != nil {
		return nil, multierror.Append(err, p.Shutdown(ctx)).ErrorOrNil()
	}
	if err := p.setupLogs(ctx, cfg, res); err != nil {
		return nil, multierror.Append(err, p.Shutdown(ctx)).ErrorOrNil()
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry initialized",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Float64("sampling_ratio", cfg.SamplingRatio),
		zap.String("service_name", cfg.ServiceName),
	)
	return p, nil
}

func (p *Providers) setupTraces(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	p.tracer = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplingRatio)),
	)
	otel.SetTracerProvider(p.tracer)
	return nil
}

func (p *Providers) setupMetrics(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	p.meter = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricExportInterval))),
	)
	otel.SetMeterProvider(p.meter)
	return nil
}

func (p *Providers) setupLogs(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) error {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create OTLP logs exporter: %w", err)
	}

	p.logs = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(p.logs)
	return nil
}

// sampler honours the caller's sampling decision and samples new traces at ratio.
func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// Enabled reports whether SDK providers are running.
func (p *Providers) Enabled() bool {
	return p.tracer != nil
}

// TracerProvider returns the tracer provider to instrument with.
func (p *Providers) TracerProvider() trace.TracerProvider {
	if p.tracer == nil {
		return otel.GetTracerProvider()
	}
	return p.tracer
}

// MeterProvider returns the meter provider to instrument with.
func (p *Providers) MeterProvider() metric.MeterProvider {
	if p.meter == nil {
		return otel.GetMeterProvider()
	}
	return p.meter
}

// Meter returns the service's named meter.
func (p *Providers) Meter() metric.Meter {
	return p.MeterProvider().Meter(p.serviceName)
}

// Shutdown flushes and stops every running provider. All providers are shut
// down even when one fails; the failures are combined.
func (p *Providers) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var result *multierror.Error
	if p.logs != nil {
		if err := p.logs.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to shutdown logger provider: %w", err))
		}
	}
	if p.meter != nil {
		if err := p.meter.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}
	if p.tracer != nil {
		if err := p.tracer.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		p.logger.Error("Telemetry shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
