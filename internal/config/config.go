// Package config loads and validates httpsample settings from flags and files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Report formats accepted by --format.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

type Config struct {
	URLs             []string      `mapstructure:"urls" validate:"required,min=1,dive,required"`
	Headers          []string      `mapstructure:"headers"`
	Requests         int           `mapstructure:"requests" validate:"gte=0"`
	Rate             float64       `mapstructure:"rate" validate:"gte=0"`
	Proxy            string        `mapstructure:"proxy" validate:"omitempty,url"`
	Format           string        `mapstructure:"format" validate:"oneof=text json yaml"`
	SamplesOut       string        `mapstructure:"samples_out"`
	Thresholds       []string      `mapstructure:"thresholds"`
	Progress         bool          `mapstructure:"progress"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" validate:"gte=0"`
	LogLevel         string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Tracing          TracingConfig `mapstructure:"tracing"`
	ConfigFile       string        `mapstructure:"-"`
}

// TracingConfig controls OpenTelemetry export for sample spans.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol" validate:"omitempty,oneof=grpc http"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Insecure    bool    `mapstructure:"insecure"`
	// Propagate defaults to true when tracing is enabled.
	Propagate *bool `mapstructure:"propagate"`
}

// Enabled reports whether an OTLP endpoint is configured, either directly
// or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether traceparent headers go on outgoing samples.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks struct tags and the few cross-field rules tags cannot express.
func (c Config) Validate() error {
	issues := validateStruct(c)

	if c.Rate > 1000 {
		fmt.Fprintf(os.Stderr, "WARNING: High rate configured (%g samples/sec). Ensure you have authorization to sample the target system.\n", c.Rate)
	}

	if c.Progress && c.ProgressInterval == 0 {
		issues = append(issues, "progress_interval: must be positive when progress is enabled")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
