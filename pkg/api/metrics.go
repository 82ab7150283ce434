package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus instruments served on /metrics
type Collector struct {
	reg *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	SearchesInFlight prometheus.Gauge
	SplitsFound      prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitfare_http_requests_total",
			Help: "Total HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "splitfare_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"method", "route"}),
		SearchesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "splitfare_api_searches_in_flight",
			Help: "Number of split searches currently running for API requests.",
		}),
		SplitsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitfare_api_splits_found_total",
			Help: "Total profitable split options returned by the API.",
		}),
	}

	reg.MustRegister(
		c.RequestsTotal,
		c.RequestDuration,
		c.SearchesInFlight,
		c.SplitsFound,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Middleware counts requests by matched route
func (c *Collector) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		start := time.Now()
		err := ctx.Next()

		status := ctx.Response().StatusCode()
		if err != nil {
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := ctx.Route().Path
		c.RequestsTotal.WithLabelValues(ctx.Method(), route, strconv.Itoa(status)).Inc()
		c.RequestDuration.WithLabelValues(ctx.Method(), route).Observe(time.Since(start).Seconds())

		return err
	}
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}))
}
