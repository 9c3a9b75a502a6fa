package config

// Defaults for the optional settings section.
const (
	DefaultTimeoutSeconds = 30
	DefaultMaxConnections = 1
	DefaultRetryAttempts  = 0
	DefaultEnvironment    = "development"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "pretty"
	DefaultOnQueryError   = OnErrorContinue
	DefaultPushJob        = "yetii"
)

// Error policies for settings.error_handling.on_query_error.
const (
	OnErrorContinue = "continue"
	OnErrorStop     = "stop"
)

// Settings collects the run-wide knobs of the optional settings section.
type Settings struct {
	Environment    string             `yaml:"environment" validate:"oneof=development staging production"`
	TimeoutSeconds int                `yaml:"timeout_seconds" validate:"min=1,max=300"`
	MaxParallel    int                `yaml:"max_parallel" validate:"min=0,max=256"`
	Pool           PoolSettings       `yaml:"pool"`
	Logging        LoggingSettings    `yaml:"logging"`
	ErrorHandling  ErrorHandling      `yaml:"error_handling"`
	Monitoring     MonitoringSettings `yaml:"monitoring"`
}

// PoolSettings bounds the per-connection handle pool.
type PoolSettings struct {
	MaxConnections int `yaml:"max_connections" validate:"min=1,max=1000"`
	RetryAttempts  int `yaml:"retry_attempts" validate:"min=0,max=10"`
}

// LoggingSettings selects log verbosity and output format.
type LoggingSettings struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json plain pretty"`
}

// ErrorHandling decides what a failed query does to the rest of the run.
type ErrorHandling struct {
	OnQueryError string `yaml:"on_query_error" validate:"oneof=continue stop"`
}

// MonitoringSettings configures the optional Prometheus push of the run summary.
type MonitoringSettings struct {
	PushgatewayURL string `yaml:"pushgateway_url" validate:"omitempty,url"`
	Job            string `yaml:"job" validate:"omitempty,max=128"`
}

// DefaultSettings returns the settings used when the document omits them.
func DefaultSettings() Settings {
	return Settings{
		Environment:    DefaultEnvironment,
		TimeoutSeconds: DefaultTimeoutSeconds,
		Pool: PoolSettings{
			MaxConnections: DefaultMaxConnections,
			RetryAttempts:  DefaultRetryAttempts,
		},
		Logging: LoggingSettings{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		ErrorHandling: ErrorHandling{
			OnQueryError: DefaultOnQueryError,
		},
		Monitoring: MonitoringSettings{
			Job: DefaultPushJob,
		},
	}
}
