package observability

import (
	"github.com/smallbiznis/creditgate/internal/config"
	"github.com/smallbiznis/creditgate/internal/observability/logger"
	"github.com/smallbiznis/creditgate/internal/observability/metrics"
	"github.com/smallbiznis/creditgate/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideLoggerConfig,
		logger.New,
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		provideRemoteWriteConfig,
	),
	fx.Invoke(ensureTracingProvider),
	fx.Invoke(metrics.RegisterRemoteWrite),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

func provideLoggerConfig(cfg config.Config) logger.Config {
	debug := cfg.DebugLogging()
	return logger.Config{
		ServiceName:         cfg.AppName,
		Environment:         cfg.Environment,
		Version:             cfg.AppVersion,
		Level:               cfg.Observability.LogLevel,
		Format:              cfg.Observability.LogFormat,
		Debug:               debug,
		IncludeCaller:       true,
		IncludeStackOnError: debug,
	}
}

func provideTracingConfig(cfg config.Config) tracing.Config {
	obs := cfg.Observability
	return tracing.Config{
		Enabled:          obs.OtelEnabled,
		ServiceName:      cfg.AppName,
		ServiceVersion:   cfg.AppVersion,
		Environment:      cfg.Environment,
		ExporterEndpoint: obs.OtelEndpoint,
		ExporterProtocol: obs.OtelProtocol,
		SamplingRatio:    obs.OtelSamplingRatio,
	}
}

func provideMetricsConfig(cfg config.Config) metrics.Config {
	obs := cfg.Observability
	return metrics.Config{
		Enabled:          obs.OtelEnabled,
		ExporterEndpoint: obs.OtelEndpoint,
		ExporterProtocol: obs.OtelProtocol,
		ServiceName:      cfg.AppName,
		Environment:      cfg.Environment,
	}
}

func provideRemoteWriteConfig(cfg config.Config) metrics.RemoteWriteConfig {
	return metrics.RemoteWriteConfig{
		URL:      cfg.Observability.RemoteWriteURL,
		Token:    cfg.Observability.RemoteWriteToken,
		Interval: cfg.Observability.RemoteWriteInterval,
	}
}
