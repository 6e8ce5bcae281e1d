package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// TelemetryConfig holds the OpenTelemetry tracing settings
type TelemetryConfig struct {
	// Enabled turns on span export to an OTLP/HTTP collector
	Enabled bool `env:"SQLRESTORE_TRACING_ENABLED" env-default:"false"`

	// Endpoint is the collector host:port, e.g. otel-collector:4318
	Endpoint string `env:"SQLRESTORE_TRACING_ENDPOINT"`

	ServiceName string `env:"SQLRESTORE_TRACING_SERVICE_NAME" env-default:"sqlrestore"`

	Environment string `env:"SQLRESTORE_TRACING_ENVIRONMENT" env-default:"production"`

	// Insecure sends spans over plain HTTP
	Insecure bool `env:"SQLRESTORE_TRACING_INSECURE" env-default:"true"`

	Timeout time.Duration `env:"SQLRESTORE_TRACING_TIMEOUT" env-default:"5s"`

	SamplingRate float64 `env:"SQLRESTORE_TRACING_SAMPLING_RATE" env-default:"1.0"`
}

// LoadTelemetryConfig reads SQLRESTORE_TRACING_* variables. Tracing is off by default.
func LoadTelemetryConfig() (*TelemetryConfig, error) {
	tc := &TelemetryConfig{}
	if err := cleanenv.ReadEnv(tc); err != nil {
		return nil, fmt.Errorf("failed to read telemetry environment: %w", err)
	}
	return tc, nil
}

// Validate checks required fields when tracing is enabled
func (tc *TelemetryConfig) Validate() error {
	if !tc.Enabled {
		return nil
	}
	if tc.Endpoint == "" {
		return &ConfigError{Field: "tracing-endpoint", Value: "", Message: "required when tracing is enabled"}
	}
	if tc.ServiceName == "" {
		return &ConfigError{Field: "tracing-service-name", Value: "", Message: "required when tracing is enabled"}
	}
	if tc.Timeout <= 0 {
		return &ConfigError{Field: "tracing-timeout", Value: tc.Timeout.String(), Message: "must be positive"}
	}
	if tc.SamplingRate < 0.0 || tc.SamplingRate > 1.0 {
		return &ConfigError{Field: "tracing-sampling-rate",
			Value:   strconv.FormatFloat(tc.SamplingRate, 'g', -1, 64),
			Message: "must be between 0.0 and 1.0"}
	}
	return nil
}
