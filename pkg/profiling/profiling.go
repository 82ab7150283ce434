package profiling

import (
	"log/slog"
	"os"
	"runtime"
	"strings"

	"splitfare/pkg/otel"

	"github.com/grafana/pyroscope-go"
)

// defaultProfileTypes includes goroutines since every split search runs its
// leg lookups concurrently.
var defaultProfileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
}

var knownProfileTypes = map[string]pyroscope.ProfileType{
	"cpu":            pyroscope.ProfileCPU,
	"alloc_objects":  pyroscope.ProfileAllocObjects,
	"alloc_space":    pyroscope.ProfileAllocSpace,
	"inuse_objects":  pyroscope.ProfileInuseObjects,
	"inuse_space":    pyroscope.ProfileInuseSpace,
	"goroutines":     pyroscope.ProfileGoroutines,
	"mutex_count":    pyroscope.ProfileMutexCount,
	"mutex_duration": pyroscope.ProfileMutexDuration,
	"block_count":    pyroscope.ProfileBlockCount,
	"block_duration": pyroscope.ProfileBlockDuration,
}

// InitProfiling starts continuous profiling when PYROSCOPE_PROFILING_ENABLED is set
func InitProfiling() (func(), error) {
	if !isTrue(os.Getenv("PYROSCOPE_PROFILING_ENABLED")) {
		slog.Debug("Pyroscope profiling is disabled")
		return func() {}, nil
	}

	config := pyroscope.Config{
		ApplicationName:   getEnv("PYROSCOPE_APPLICATION_NAME", otel.ServiceName),
		ServerAddress:     getEnv("PYROSCOPE_SERVER_ADDRESS", "http://localhost:4040"),
		Tags:              tags(),
		ProfileTypes:      parseProfileTypes(os.Getenv("PYROSCOPE_PROFILE_TYPES")),
		BasicAuthUser:     os.Getenv("PYROSCOPE_BASIC_AUTH_USER"),
		BasicAuthPassword: os.Getenv("PYROSCOPE_BASIC_AUTH_PASSWORD"),
	}

	// Mutex and block profiles are empty unless the runtime samples them
	for _, profileType := range config.ProfileTypes {
		switch profileType {
		case pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration:
			runtime.SetMutexProfileFraction(5)
		case pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration:
			runtime.SetBlockProfileRate(5)
		}
	}

	profiler, err := pyroscope.Start(config)
	if err != nil {
		slog.Warn("Failed to start Pyroscope profiler", "error", err)
		return func() {}, nil
	}

	slog.Debug("Pyroscope profiling started",
		"server", config.ServerAddress,
		"application", config.ApplicationName,
		"profile_types", len(config.ProfileTypes),
	)

	return func() {
		if err := profiler.Stop(); err != nil {
			slog.Error("Error stopping Pyroscope profiler", "error", err)
		}
	}, nil
}

func tags() map[string]string {
	t := map[string]string{
		"service": otel.ServiceName,
		"version": otel.Version,
	}
	if otel.Command != "" {
		t["command"] = otel.Command
	}
	return t
}

// parseProfileTypes reads a comma-separated list such as "cpu,goroutines".
// Unknown names are skipped; an empty or fully unknown list yields the defaults.
func parseProfileTypes(s string) []pyroscope.ProfileType {
	var types []pyroscope.ProfileType
	for _, name := range strings.Split(s, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		profileType, ok := knownProfileTypes[name]
		if !ok {
			slog.Warn("Ignoring unknown Pyroscope profile type", "type", name)
			continue
		}
		types = append(types, profileType)
	}
	if len(types) == 0 {
		return defaultProfileTypes
	}
	return types
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func isTrue(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
