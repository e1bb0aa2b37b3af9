package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the TutorStack engine.
type Config struct {
	Port      int
	Version   string
	Seed      SeedConfig
	Tools     ToolConfig
	Providers ProviderDefaults
	Usage     UsageConfig
	Telemetry TelemetryConfig
}

// SeedConfig points at the YAML files loaded into the store on boot.
type SeedConfig struct {
	TenantsPath    string
	AssistantsPath string
}

type ToolConfig struct {
	// Timeout bounds a single tool invocation.
	Timeout time.Duration
	// Concurrent runs enabled tools via an errgroup instead of sequentially.
	Concurrent bool
	// BackendBase is the default base URL for HTTP tool backends.
	BackendBase string
	// RatePerSec throttles calls per tool backend.
	RatePerSec float64
	RateBurst  int
}

// ProviderDefaults apply when a tenant's provider entry omits tuning knobs.
type ProviderDefaults struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	MaxConns       int
}

type UsageConfig struct {
	Enabled bool
	DBPath  string
	// Buffer sizes the async write queue; records are dropped when full.
	Buffer int
}

type TelemetryConfig struct {
	Enabled        bool
	OTLPEndpoint   string
	ServiceName    string
	ServiceVersion string
	Environment    string
	// SampleRatio is the parent-based trace sampling ratio, 0 to 1.
	SampleRatio float64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("TUTORSTACK_PORT", 8080),
		Version: envStr("TUTORSTACK_VERSION", "0.4.0"),
		Seed: SeedConfig{
			TenantsPath:    envStr("TUTORSTACK_SEED_TENANTS", ""),
			AssistantsPath: envStr("TUTORSTACK_SEED_ASSISTANTS", ""),
		},
		Tools: ToolConfig{
			Timeout:     envDur("TUTORSTACK_TOOL_TIMEOUT", 10*time.Second),
			Concurrent:  envBool("TUTORSTACK_TOOL_CONCURRENT", false),
			BackendBase: envStr("TUTORSTACK_TOOL_BACKEND_BASE", "http://localhost:9090"),
			RatePerSec:  envFloat("TUTORSTACK_TOOL_RATE", 10),
			RateBurst:   envInt("TUTORSTACK_TOOL_BURST", 20),
		},
		Providers: ProviderDefaults{
			ConnectTimeout: envDur("TUTORSTACK_CONNECT_TIMEOUT", 5*time.Second),
			RequestTimeout: envDur("TUTORSTACK_REQUEST_TIMEOUT", 120*time.Second),
			MaxConns:       envInt("TUTORSTACK_MAX_CONNS", 32),
		},
		Usage: UsageConfig{
			Enabled: envBool("TUTORSTACK_USAGE_ENABLED", true),
			DBPath:  envStr("TUTORSTACK_USAGE_DB", "tutorstack-usage.db"),
			Buffer:  envInt("TUTORSTACK_USAGE_BUFFER", 256),
		},
		Telemetry: TelemetryConfig{
			Enabled:        envBool("OTEL_ENABLED", false),
			OTLPEndpoint:   envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:    envStr("OTEL_SERVICE_NAME", "tutorstack-engine"),
			ServiceVersion: envStr("TUTORSTACK_VERSION", "0.4.0"),
			Environment:    envStr("TUTORSTACK_ENV", "development"),
			SampleRatio:    envFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
