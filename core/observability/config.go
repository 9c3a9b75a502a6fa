package observability

import (
	"fmt"
	"os"
	"strconv"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/runtime/utils"
)

// Config controls the OpenTelemetry providers. Everything is off unless
// YETII_OTEL_ENABLED is true.
type Config struct {
	Enabled           bool
	TracesEnabled     bool
	MetricsEnabled    bool
	ServiceName       string
	ServiceVersion    string
	Environment       string
	OTLPEndpoint      string
	TraceSamplingRate float64
}

// ResolveConfig builds the observability config from the environment. The
// deployment environment defaults to settings.environment of cfg.
func ResolveConfig(cfg *config.Config) (Config, error) {
	oc := Config{
		Enabled:           false,
		TracesEnabled:     true,
		MetricsEnabled:    true,
		ServiceName:       "yetii",
		ServiceVersion:    "dev",
		Environment:       config.DefaultEnvironment,
		OTLPEndpoint:      "localhost:4317",
		TraceSamplingRate: 1.0,
	}
	if cfg != nil {
		if cfg.Settings.Environment != "" {
			oc.Environment = cfg.Settings.Environment
		}
		if cfg.Name != "" {
			oc.ServiceName = "yetii/" + cfg.Name
		}
	}

	overrideBool("YETII_OTEL_ENABLED", &oc.Enabled)
	overrideBool("YETII_OTEL_TRACES_ENABLED", &oc.TracesEnabled)
	overrideBool("YETII_OTEL_METRICS_ENABLED", &oc.MetricsEnabled)
	overrideString("YETII_OTEL_SERVICE_NAME", &oc.ServiceName)
	overrideString("YETII_OTEL_SERVICE_VERSION", &oc.ServiceVersion)
	overrideString("YETII_OTEL_ENVIRONMENT", &oc.Environment)
	overrideString("YETII_OTEL_ENDPOINT", &oc.OTLPEndpoint)
	overrideFloat("YETII_OTEL_TRACE_SAMPLING_RATIO", &oc.TraceSamplingRate)

	if oc.TraceSamplingRate < 0 {
		oc.TraceSamplingRate = 0
	}
	if oc.TraceSamplingRate > 1 {
		oc.TraceSamplingRate = 1
	}

	var err error
	oc.ServiceName, err = utils.SubstituteEnvVars(oc.ServiceName)
	if err != nil {
		return Config{}, fmt.Errorf("resolve observability service name: %w", err)
	}
	oc.OTLPEndpoint, err = utils.SubstituteEnvVars(oc.OTLPEndpoint)
	if err != nil {
		return Config{}, fmt.Errorf("resolve observability otlp endpoint: %w", err)
	}

	return oc, nil
}

func overrideString(name string, target *string) {
	if value := os.Getenv(name); value != "" {
		*target = value
	}
}

func overrideBool(name string, target *bool) {
	value := os.Getenv(name)
	if value == "" {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err == nil {
		*target = parsed
	}
}

func overrideFloat(name string, target *float64) {
	value := os.Getenv(name)
	if value == "" {
		return
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err == nil {
		*target = parsed
	}
}
