package observability

import (
	"testing"

	"github.com/smallbiznis/sponsornet/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigNormalizesTelemetry(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "production",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "info",
			OTLPEnabled:   true,
			OTLPEndpoint:  "collector:4318",
			OTLPProtocol:  "http/protobuf",
			SamplingRatio: 3,
		},
	})
	assert.Equal(t, "sponsornet", cfg.ServiceName)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.True(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigDisablesOtelWithoutEndpoint(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "test",
		Telemetry:   config.TelemetryConfig{OTLPEnabled: true, LogLevel: "warn"},
	})
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.True(t, cfg.Debug())
}
