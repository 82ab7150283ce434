package api

import (
	"context"

	"splitfare/pkg/planner"
	"splitfare/pkg/split"

	"github.com/gofiber/fiber/v2"
)

type Server struct {
	app       *fiber.App
	planner   *planner.Client
	searcher  *split.Searcher
	publisher split.Publisher
	collector *Collector

	// baseCtx parents streaming searches; stop cancels them on shutdown
	baseCtx context.Context
	stop    context.CancelFunc
}

type Option func(*Server)

// WithPublisher publishes the progress of every API search
func WithPublisher(publisher split.Publisher) Option {
	return func(s *Server) {
		s.publisher = publisher
	}
}

func WithCollector(collector *Collector) Option {
	return func(s *Server) {
		s.collector = collector
	}
}

func NewServer(client *planner.Client, opts ...Option) *Server {
	s := &Server{
		planner:  client,
		searcher: split.NewSearcher(client),
	}
	s.baseCtx, s.stop = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(s)
	}
	if s.collector == nil {
		s.collector = NewCollector()
	}

	webApp := fiber.New(fiber.Config{
		AppName:               "splitfare",
		DisableStartupMessage: true,
	})
	webApp.Use(NewLogger())
	webApp.Use(s.collector.Middleware())

	webApp.Get("/metrics", s.collector.Handler())

	group := webApp.Group("/splitfare")
	group.Get("/version", APIVersion)
	group.Get("/journeys", s.getJourneys)
	group.Post("/splits", s.postSplits)
	group.Post("/splits/stream", s.streamSplits)

	s.app = webApp
	return s
}

// App exposes the fiber app, mainly for app.Test
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(listen string) error {
	return s.app.Listen(listen)
}

// Shutdown cancels running streaming searches so they end with their final
// state, then stops the app.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	return s.app.ShutdownWithContext(ctx)
}
