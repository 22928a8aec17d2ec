// Package telemetry wires OpenTelemetry tracing for the heap-analysis
// tooling. Configuration comes from the standard OTEL_* environment
// variables; when OTEL_ENABLED is not "true" everything is a no-op.
package telemetry

import (
	"os"
	"strconv"
	"strings"
)

// Config holds OpenTelemetry configuration loaded from the environment.
type Config struct {
	// Enabled turns tracing on. From OTEL_ENABLED.
	Enabled bool

	// ServiceName identifies this service. From OTEL_SERVICE_NAME,
	// defaults to "heap-analysis".
	ServiceName string

	// ServiceVersion is reported as a resource attribute. From
	// OTEL_SERVICE_VERSION.
	ServiceVersion string

	// Endpoint is the OTLP collector endpoint. From
	// OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string

	// Protocol selects the exporter transport, "grpc" (default) or
	// "http/protobuf". From OTEL_EXPORTER_OTLP_PROTOCOL.
	Protocol string

	// Headers are added to exporter requests, e.g. for authentication.
	// From OTEL_EXPORTER_OTLP_HEADERS as "k1=v1,k2=v2".
	Headers map[string]string

	// Insecure disables transport security. From
	// OTEL_EXPORTER_OTLP_INSECURE.
	Insecure bool

	// SampleRatio is the fraction of traces to sample in [0, 1]. From
	// OTEL_TRACES_SAMPLER_ARG; defaults to 1 (sample everything).
	SampleRatio float64
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *Config {
	return &Config{
		Enabled:        strings.EqualFold(os.Getenv("OTEL_ENABLED"), "true"),
		ServiceName:    envOrDefault("OTEL_SERVICE_NAME", "heap-analysis"),
		ServiceVersion: envOrDefault("OTEL_SERVICE_VERSION", "unknown"),
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Protocol:       envOrDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
		Headers:        parseKeyValuePairs(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Insecure:       strings.EqualFold(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"), "true"),
		SampleRatio:    parseRatio(os.Getenv("OTEL_TRACES_SAMPLER_ARG")),
	}
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseRatio parses a sampling ratio, clamped to [0, 1]. Unset or
// unparsable values mean full sampling.
func parseRatio(s string) float64 {
	if s == "" {
		return 1.0
	}
	ratio, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 1.0
	}
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1.0
	}
	return ratio
}

// parseKeyValuePairs parses "k1=v1,k2=v2" into a map. Values may contain
// '=' characters.
func parseKeyValuePairs(s string) map[string]string {
	result := make(map[string]string)
	if s == "" {
		return result
	}

	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(pair[:idx])
		value := strings.TrimSpace(pair[idx+1:])
		if key != "" {
			result[key] = value
		}
	}
	return result
}
