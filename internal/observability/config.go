package observability

import (
	"strings"

	"github.com/smallbiznis/sponsornet/internal/config"
)

// Config is the resolved telemetry setup shared by the logger, tracer and
// metrics providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	t := cfg.Telemetry
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "sponsornet"
	}
	protocol := "grpc"
	if strings.HasPrefix(t.OTLPProtocol, "http") {
		protocol = "http"
	}
	ratio := t.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             t.LogLevel,
		LogFormat:            t.LogFormat,
		OtelEnabled:          t.OTLPEnabled && t.OTLPEndpoint != "",
		OtelExporterEndpoint: t.OTLPEndpoint,
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug enables verbose request logs and stack traces.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
