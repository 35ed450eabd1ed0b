package observability

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/yungbote/trackflow-backend/internal/platform/envutil"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

// TracingConfig identifies the process in exported spans. The exporter itself
// is configured through the standard OTEL_* variables.
type TracingConfig struct {
	ServiceName string
	Environment string
	Version     string
}

type exporterSettings struct {
	enabled  bool
	endpoint string
	insecure bool
	headers  map[string]string
	ratio    float64
}

func exporterSettingsFromEnv() exporterSettings {
	return exporterSettings{
		enabled:  envutil.Bool("OTEL_ENABLED", false),
		endpoint: envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		insecure: envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
		headers:  parseHeaders(envutil.List("OTEL_EXPORTER_OTLP_HEADERS", nil)),
		ratio:    clampRatio(envutil.Float("OTEL_SAMPLER_RATIO", 0.1)),
	}
}

var (
	tracingOnce     sync.Once
	tracingShutdown = func(context.Context) error { return nil }
)

// InitTracing installs the global tracer provider and W3C propagators once.
// Exporter failures are logged and tracing continues without export.
func InitTracing(ctx context.Context, log *logger.Logger, cfg TracingConfig) func(context.Context) error {
	tracingOnce.Do(func() {
		s := exporterSettingsFromEnv()
		if !s.enabled {
			return
		}
		name := strings.TrimSpace(cfg.ServiceName)
		if name == "" {
			name = "trackflow-api"
		}
		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(strings.TrimSpace(cfg.Version)),
			attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
		))
		if err != nil {
			log.Warn("otel resource incomplete", "error", err)
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.ratio))),
			sdktrace.WithResource(res),
		}
		if exp, err := newExporter(ctx, s); err != nil {
			log.Warn("otel exporter unavailable, spans will not be exported", "error", err)
		} else {
			opts = append(opts, sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)))
		}
		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
		tracingShutdown = tp.Shutdown
		log.Info("tracing enabled", "service", name, "endpoint", s.endpoint, "sample_ratio", s.ratio)
	})
	return tracingShutdown
}

// newExporter ships spans over OTLP/HTTP, or pretty-prints them to stdout when
// no collector endpoint is configured.
func newExporter(ctx context.Context, s exporterSettings) (sdktrace.SpanExporter, error) {
	if s.endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(s.endpoint)}
	if s.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(s.headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(s.headers))
	}
	return otlptracehttp.New(ctx, opts...)
}

// parseHeaders reads "k=v" pairs. Pairs missing either side are skipped.
func parseHeaders(pairs []string) map[string]string {
	var out map[string]string
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[k] = v
	}
	return out
}

func clampRatio(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
