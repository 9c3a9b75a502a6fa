package observability

import (
	"context"
	stderrors "errors"
	"sync"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/logger"
)

// Providers holds the installed OpenTelemetry providers of one run.
type Providers struct {
	config        Config
	traceProvider *sdktrace.TracerProvider
	meterProvider *sdkmetric.MeterProvider
}

var (
	providersMu sync.RWMutex
	active      *Providers
)

type otelLoggerErrorHandler struct {
	log *logger.Logger
}

func (h otelLoggerErrorHandler) Handle(err error) {
	if err == nil {
		return
	}
	// Route OpenTelemetry internal warnings through the yetii logger.
	h.log.Warnf("OpenTelemetry warning: %v", err)
}

// Setup installs global tracer and meter providers for cfg. With observability
// disabled the providers are no-op SDK instances.
func Setup(ctx context.Context, cfg *config.Config, serviceVersion string) (*Providers, error) {
	oc, err := ResolveConfig(cfg)
	if err != nil {
		return nil, err
	}
	if serviceVersion != "" {
		oc.ServiceVersion = serviceVersion
	}

	traceProvider, err := buildTraceProvider(ctx, oc)
	if err != nil {
		return nil, err
	}

	meterProvider, err := buildMeterProvider(ctx, oc)
	if err != nil {
		_ = traceProvider.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(traceProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetErrorHandler(otelLoggerErrorHandler{log: logger.New("observability")})

	p := &Providers{
		config:        oc,
		traceProvider: traceProvider,
		meterProvider: meterProvider,
	}

	providersMu.Lock()
	active = p
	providersMu.Unlock()

	return p, nil
}

// ActiveConfig returns the config of the installed providers.
func ActiveConfig() Config {
	providersMu.RLock()
	defer providersMu.RUnlock()
	if active == nil {
		return Config{}
	}
	return active.config
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.traceProvider != nil {
		if err := p.traceProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
