package otel

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const (
	ServiceName = "splitfare"

	defaultNamespace   = "splitfare"
	defaultEnvironment = "production"
)

// Version is set at build time via -ldflags
// e.g., go build -ldflags="-X splitfare/pkg/otel.Version=1.2.3"
var Version = "dev"

// Command names the CLI command this process runs (search or serve).
// It is attached to all telemetry so both modes can be told apart.
var Command = ""

// NewResource describes this process for both tracing and metrics providers.
// OTEL_SERVICE_NAME and OTEL_RESOURCE_ATTRIBUTES still take effect.
func NewResource() (*resource.Resource, error) {
	return resource.New(context.Background(),
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithAttributes(resourceAttributes()...),
	)
}

func resourceAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(Version),
		semconv.ServiceNamespace(envOr("OTEL_SERVICE_NAMESPACE", defaultNamespace)),
		semconv.ServiceInstanceID(instanceID()),
		semconv.DeploymentEnvironment(envOr("OTEL_DEPLOYMENT_ENVIRONMENT", defaultEnvironment)),
		semconv.ProcessRuntimeName("go"),
		semconv.ProcessRuntimeVersion(runtime.Version()),
		semconv.TelemetrySDKLanguageGo,
	}
	if Command != "" {
		attrs = append(attrs, attribute.String("splitfare.command", Command))
	}
	return attrs
}

// instanceID prefers OTEL_SERVICE_INSTANCE_ID, then the hostname, then the pid
func instanceID() string {
	if id := os.Getenv("OTEL_SERVICE_INSTANCE_ID"); id != "" {
		return id
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return fmt.Sprintf("%s-%d", ServiceName, os.Getpid())
}

func envOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
