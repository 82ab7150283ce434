package otel

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Protocol represents OTLP transport protocol
type Protocol string

const (
	ProtocolGRPC         Protocol = "grpc"
	ProtocolHTTPProtobuf Protocol = "http/protobuf"
	ProtocolHTTPJSON     Protocol = "http/json"
)

// SignalType represents the OTEL signal type
type SignalType string

const (
	SignalTraces  SignalType = "traces"
	SignalMetrics SignalType = "metrics"
)

// ExporterConfig holds parsed OTLP exporter configuration for a signal
type ExporterConfig struct {
	Endpoint    string
	Protocol    Protocol
	Headers     map[string]string
	Timeout     time.Duration
	Insecure    bool
	Compression string
}

// IsTracingEnabled returns true if OTEL tracing is enabled
func IsTracingEnabled() bool {
	return isTrue(os.Getenv("OTEL_TRACING_ENABLED"))
}

// IsMetricsEnabled returns true if OTEL metrics is enabled
func IsMetricsEnabled() bool {
	return isTrue(os.Getenv("OTEL_METRICS_ENABLED"))
}

// TraceSampleRatio returns the parent-based sampling ratio from OTEL_TRACES_SAMPLER_ARG.
// A split search fans out into many leg lookups, so busy deployments usually sample.
func TraceSampleRatio() float64 {
	v := os.Getenv("OTEL_TRACES_SAMPLER_ARG")
	if v == "" {
		return 1.0
	}
	ratio, err := strconv.ParseFloat(v, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		slog.Warn("Ignoring invalid OTEL_TRACES_SAMPLER_ARG", "value", v)
		return 1.0
	}
	return ratio
}

// signalEnv resolves OTEL_EXPORTER_OTLP_<SIGNAL>_* with fallback to OTEL_EXPORTER_OTLP_*
type signalEnv struct {
	signal SignalType
}

func (e signalEnv) get(suffix, defaultValue string) string {
	specific := "OTEL_EXPORTER_OTLP_" + strings.ToUpper(string(e.signal)) + "_" + suffix
	if v := os.Getenv(specific); v != "" {
		return v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_" + suffix); v != "" {
		return v
	}
	return defaultValue
}

// GetExporterConfig returns the exporter configuration for a specific signal type
func GetExporterConfig(signal SignalType) ExporterConfig {
	env := signalEnv{signal: signal}

	protocol := parseProtocol(env.get("PROTOCOL", string(ProtocolHTTPProtobuf)))
	endpoint := resolveEndpoint(signal, protocol)

	cfg := ExporterConfig{
		Endpoint:    endpoint,
		Protocol:    protocol,
		Headers:     parseHeaders(env.get("HEADERS", "")),
		Timeout:     parseDuration(env.get("TIMEOUT", ""), 10*time.Second),
		Compression: env.get("COMPRESSION", ""),
	}

	if v := env.get("INSECURE", ""); v != "" {
		cfg.Insecure = isTrue(v)
	} else {
		cfg.Insecure = strings.HasPrefix(endpoint, "http://")
	}

	return cfg
}

func parseProtocol(s string) Protocol {
	switch strings.ToLower(s) {
	case "grpc":
		return ProtocolGRPC
	case "http/json":
		return ProtocolHTTPJSON
	default:
		return ProtocolHTTPProtobuf
	}
}

// resolveEndpoint prefers the signal endpoint as-is, then the base endpoint with
// the signal path appended, then the local collector default.
func resolveEndpoint(signal SignalType, protocol Protocol) string {
	if v := os.Getenv("OTEL_EXPORTER_OTLP_" + strings.ToUpper(string(signal)) + "_ENDPOINT"); v != "" {
		return normalizeEndpoint(v, protocol)
	}

	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		return appendSignalPath(normalizeEndpoint(v, protocol), signal, protocol)
	}

	if protocol == ProtocolGRPC {
		return "localhost:4317"
	}
	return "http://localhost:4318/v1/" + string(signal)
}

// normalizeEndpoint strips gRPC endpoints to host:port and gives HTTP endpoints a scheme
func normalizeEndpoint(endpoint string, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
		if idx := strings.Index(endpoint, "/"); idx != -1 {
			endpoint = endpoint[:idx]
		}
		return endpoint
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	return endpoint
}

func appendSignalPath(endpoint string, signal SignalType, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		return endpoint
	}

	signalPath := "/v1/" + string(signal)

	u, err := url.Parse(endpoint)
	if err != nil {
		return strings.TrimSuffix(endpoint, "/") + signalPath
	}
	if strings.HasSuffix(u.Path, signalPath) {
		return endpoint
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + signalPath

	return u.String()
}

// isTrue checks if a string represents a true value
func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// parseHeaders parses "key1=value1,key2=value2". Values are kept verbatim,
// including any '=' after the first, so "Authorization=Basic abc==" survives.
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	if headerStr == "" {
		return headers
	}

	for _, pair := range strings.Split(headerStr, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = value
		slog.Debug("Parsed OTEL header", "key", key, "value_length", len(value))
	}

	return headers
}

// parseDuration accepts Go durations ("10s") and OTEL millisecond integers ("10000")
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}
