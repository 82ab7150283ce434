package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"splitfare/pkg/otel"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const exportInterval = 60 * time.Second

var (
	meterProvider *sdkmetric.MeterProvider

	// Meter creates all instruments; nil while metrics are disabled
	Meter metric.Meter

	// lastSuccessTimestamp is the Unix time of the last completed split search
	lastSuccessTimestamp atomic.Int64
)

// InitMetrics sets up the OTLP meter provider when metrics are enabled.
// Failures fall back to disabled metrics rather than stopping the process.
func InitMetrics() (func(), error) {
	if !otel.IsMetricsEnabled() {
		slog.Debug("OpenTelemetry metrics is disabled")
		return func() {}, nil
	}

	ctx := context.Background()
	cfg := otel.GetExporterConfig(otel.SignalMetrics)

	exporter, err := otel.NewMetricExporter(ctx, cfg)
	if err != nil {
		slog.Warn("Failed to create OTLP metric exporter, using noop", "error", err)
		return func() {}, nil
	}

	res, err := otel.NewResource()
	if err != nil {
		slog.Warn("Failed to create resource, using noop", "error", err)
		return func() {}, nil
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
		sdkmetric.WithResource(res),
	)

	if err := setup(provider); err != nil {
		slog.Error("Failed to initialize metric instruments", "error", err)
		_ = provider.Shutdown(ctx)
		return func() {}, nil
	}
	meterProvider = provider
	otelapi.SetMeterProvider(provider)

	slog.Debug("OpenTelemetry metrics initialized",
		"endpoint", cfg.Endpoint,
		"protocol", cfg.Protocol,
	)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			slog.Error("Error shutting down meter provider", "error", err)
		}
		Meter = nil
	}, nil
}

// setup creates every instrument on provider and enables the recorders
func setup(provider metric.MeterProvider) error {
	Meter = provider.Meter(otel.ServiceName)

	if err := initializeInstruments(); err != nil {
		Meter = nil
		return err
	}
	if err := registerRuntimeMetrics(); err != nil {
		slog.Warn("Failed to register runtime metrics", "error", err)
	}
	return nil
}

// memStat is a runtime.MemStats field exported as a gauge in bytes
type memStat struct {
	name        string
	description string
	value       func(*runtime.MemStats) uint64
}

var memStats = []memStat{
	{"runtime.go.mem.heap_alloc", "Heap memory allocated", func(m *runtime.MemStats) uint64 { return m.HeapAlloc }},
	{"runtime.go.mem.heap_inuse", "Heap memory in use", func(m *runtime.MemStats) uint64 { return m.HeapInuse }},
	{"runtime.go.mem.heap_sys", "Heap memory obtained from OS", func(m *runtime.MemStats) uint64 { return m.HeapSys }},
	{"runtime.go.mem.stack_inuse", "Stack memory in use", func(m *runtime.MemStats) uint64 { return m.StackInuse }},
	{"runtime.go.mem.sys", "Total memory obtained from OS", func(m *runtime.MemStats) uint64 { return m.Sys }},
}

// registerRuntimeMetrics observes runtime state with a single callback so
// MemStats is read once per collection.
func registerRuntimeMetrics() error {
	goroutines, err := Meter.Int64ObservableGauge("runtime.go.goroutines",
		metric.WithDescription("Number of goroutines"),
		metric.WithUnit("{goroutine}"),
	)
	if err != nil {
		return err
	}

	lastSuccess, err := Meter.Int64ObservableGauge("split.last_success.timestamp",
		metric.WithDescription("Unix timestamp of the last completed split search"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	gcCount, err := Meter.Int64ObservableCounter("runtime.go.gc.count",
		metric.WithDescription("Number of completed GC cycles"),
		metric.WithUnit("{gc}"),
	)
	if err != nil {
		return err
	}

	gcPause, err := Meter.Int64ObservableCounter("runtime.go.gc.pause.total",
		metric.WithDescription("Total GC pause time"),
		metric.WithUnit("ns"),
	)
	if err != nil {
		return err
	}

	observables := []metric.Observable{goroutines, lastSuccess, gcCount, gcPause}
	memGauges := make([]metric.Int64ObservableGauge, len(memStats))
	for i, stat := range memStats {
		memGauges[i], err = Meter.Int64ObservableGauge(stat.name,
			metric.WithDescription(stat.description),
			metric.WithUnit("By"),
		)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", stat.name, err)
		}
		observables = append(observables, memGauges[i])
	}

	_, err = Meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		o.ObserveInt64(goroutines, int64(runtime.NumGoroutine()))
		if ts := lastSuccessTimestamp.Load(); ts > 0 {
			o.ObserveInt64(lastSuccess, ts)
		}
		o.ObserveInt64(gcCount, int64(m.NumGC))
		o.ObserveInt64(gcPause, int64(m.PauseTotalNs))
		for i, stat := range memStats {
			o.ObserveInt64(memGauges[i], int64(stat.value(&m)))
		}
		return nil
	}, observables...)
	return err
}

// RecordLastSuccessTimestamp records the current time as the last completed search
func RecordLastSuccessTimestamp() {
	lastSuccessTimestamp.Store(time.Now().Unix())
}

// IsEnabled returns true if metrics collection is enabled
func IsEnabled() bool {
	return Meter != nil
}
