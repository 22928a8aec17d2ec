package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "")

	cfg := LoadFromEnv()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "heap-analysis", cfg.ServiceName)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, 1.0, cfg.SampleRatio)
	assert.Empty(t, cfg.Headers)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "TRUE")
	t.Setenv("OTEL_SERVICE_NAME", "dump-indexer")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "Authorization=Bearer abc=def, X-Team = heap ")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg := LoadFromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "dump-indexer", cfg.ServiceName)
	assert.Equal(t, "http://collector:4317", cfg.Endpoint)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 0.25, cfg.SampleRatio)
	assert.Equal(t, map[string]string{
		"Authorization": "Bearer abc=def",
		"X-Team":        "heap",
	}, cfg.Headers)
}

func TestParseRatio(t *testing.T) {
	assert.Equal(t, 1.0, parseRatio(""))
	assert.Equal(t, 1.0, parseRatio("bogus"))
	assert.Equal(t, 0.5, parseRatio("0.5"))
	assert.Equal(t, 0.0, parseRatio("-1"))
	assert.Equal(t, 1.0, parseRatio("7"))
}

func TestParseKeyValuePairs(t *testing.T) {
	assert.Empty(t, parseKeyValuePairs(""))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, parseKeyValuePairs("a=1,b=2"))
	assert.Empty(t, parseKeyValuePairs("=nokey,alsobad"))
}
