package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"splitfare/pkg/api"
	"splitfare/pkg/config"
	"splitfare/pkg/eligibility"
	"splitfare/pkg/metrics"
	"splitfare/pkg/notify"
	splitotel "splitfare/pkg/otel"
	"splitfare/pkg/pipeline"
	"splitfare/pkg/planner"
	"splitfare/pkg/pricecache"
	"splitfare/pkg/profiling"
	"splitfare/pkg/split"
	"splitfare/pkg/tracing"
	"splitfare/pkg/types"

	"github.com/urfave/cli/v2"
)

// commonFlags are shared by every command. Unset flags fall back to the
// SPLITFARE_* environment and .env values read by config.Load.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "planner-url", Usage: "journey planner base URL", EnvVars: []string{"SPLITFARE_PLANNER_URL"}},
		&cli.DurationFlag{Name: "fetch-timeout", Usage: "timeout of a single leg price lookup", EnvVars: []string{"SPLITFARE_FETCH_TIMEOUT"}},
		&cli.StringFlag{Name: "cache", Usage: "leg price cache: off, memory or redis", EnvVars: []string{"SPLITFARE_CACHE"}},
		&cli.StringFlag{Name: "rules", Usage: "YAML file overriding the flat-rate eligibility rules", EnvVars: []string{"SPLITFARE_RULES_FILE"}},
		&cli.StringFlag{Name: "nats-url", Usage: "publish search progress to this NATS server", EnvVars: []string{"SPLITFARE_NATS_URL"}},
		&cli.StringFlag{Name: "nats-subject", Usage: "subject prefix for progress messages", EnvVars: []string{"SPLITFARE_NATS_SUBJECT"}},
	}
}

func searchCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "from", Usage: "origin station ID", Required: true},
		&cli.StringFlag{Name: "to", Usage: "destination station ID", Required: true},
		&cli.StringFlag{Name: "departure", Usage: "departure time (RFC3339), defaults to now"},
		&cli.IntFlag{Name: "age", Usage: "traveller age"},
		&cli.BoolFlag{Name: "deutschland-ticket", Usage: "traveller holds a Deutschland-Ticket"},
		&cli.BoolFlag{Name: "first-class", Usage: "price first class tickets"},
		&cli.StringFlag{Name: "loyalty-card", Usage: "loyalty card, e.g. bahncard-2nd-25"},
		&cli.IntFlag{Name: "journey", Usage: "index of the journey to split", Value: 0},
		&cli.IntFlag{Name: "results", Usage: "number of journeys to request", Value: 0},
		&cli.BoolFlag{Name: "dry-run", Usage: "print the result instead of sending it to Loki"},
		&cli.BoolFlag{Name: "debug", Usage: "dump the final search state in dry run mode"},
		&cli.StringFlag{Name: "loki-url", Usage: "Grafana Loki URL", EnvVars: []string{"SPLITFARE_LOKI_URL"}},
		&cli.StringFlag{Name: "loki-user", Usage: "Loki username (for Grafana Cloud authentication)", EnvVars: []string{"SPLITFARE_LOKI_USER"}},
		&cli.StringFlag{Name: "loki-password", Usage: "Loki password/token (for Grafana Cloud authentication)", EnvVars: []string{"SPLITFARE_LOKI_PASSWORD"}},
	}

	return &cli.Command{
		Name:  "search",
		Usage: "search a journey and look for cheaper split tickets",
		Flags: append(flags, commonFlags()...),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if v := c.String("loki-url"); v != "" {
				cfg.LokiURL = v
			}
			if v := c.String("loki-user"); v != "" {
				cfg.LokiUser = v
			}
			if v := c.String("loki-password"); v != "" {
				cfg.LokiPassword = v
			}

			params := types.SearchParams{
				From:         c.String("from"),
				To:           c.String("to"),
				Age:          c.Int("age"),
				FlatRatePass: c.Bool("deutschland-ticket"),
				FirstClass:   c.Bool("first-class"),
				LoyaltyCard:  c.String("loyalty-card"),
			}
			if v := c.String("departure"); v != "" {
				departure, err := time.Parse(time.RFC3339, v)
				if err != nil {
					return fmt.Errorf("invalid departure %q: %w", v, err)
				}
				params.Departure = &departure
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdown, err := initTelemetry(c.Command.Name)
			if err != nil {
				return err
			}
			defer shutdown()

			deps, err := buildDependencies(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			opts := []pipeline.Option{pipeline.WithEvaluator(deps.evaluator)}
			if deps.publisher != nil {
				opts = append(opts, pipeline.WithPublisher(deps.publisher))
			}

			p, err := pipeline.New(pipeline.Config{
				DryRun:       c.Bool("dry-run"),
				Debug:        c.Bool("debug"),
				Params:       params,
				JourneyIndex: c.Int("journey"),
				Results:      c.Int("results"),
				LokiURL:      cfg.LokiURL,
				LokiUser:     cfg.LokiUser,
				LokiPassword: cfg.LokiPassword,
			}, deps.planner, opts...)
			if err != nil {
				return fmt.Errorf("failed to create pipeline: %w", err)
			}

			if c.Bool("dry-run") {
				slog.Info("Starting split search in DRY RUN mode", "from", params.From, "to", params.To)
			} else {
				slog.Info("Starting split search", "from", params.From, "to", params.To, "loki_url", cfg.LokiURL)
			}

			state, err := p.Run(ctx)
			if err != nil {
				return err
			}
			if state.Error != "" && state.Error != split.ErrCancelled {
				return errors.New(state.Error)
			}

			return nil
		},
	}
}

func serveCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "listen", Usage: "listen target for the web server", EnvVars: []string{"SPLITFARE_LISTEN"}},
	}

	return &cli.Command{
		Name:  "serve",
		Usage: "run the split search HTTP API",
		Flags: append(flags, commonFlags()...),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if v := c.String("listen"); v != "" {
				cfg.ListenAddress = v
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdown, err := initTelemetry(c.Command.Name)
			if err != nil {
				return err
			}
			defer shutdown()

			deps, err := buildDependencies(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			var opts []api.Option
			if deps.publisher != nil {
				opts = append(opts, api.WithPublisher(deps.publisher))
			}
			server := api.NewServer(deps.planner, opts...)

			errChan := make(chan error, 1)
			go func() {
				slog.Info("Split search API listening", "address", cfg.ListenAddress)
				errChan <- server.Listen(cfg.ListenAddress)
			}()

			select {
			case <-ctx.Done():
				slog.Info("Shutting down split search API")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errChan:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("API server failed: %w", err)
				}
				return nil
			}
		},
	}
}

// loadConfig reads the environment and applies the common flags on top
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if v := c.String("planner-url"); v != "" {
		cfg.PlannerURL = v
	}
	if c.IsSet("fetch-timeout") {
		if c.Duration("fetch-timeout") <= 0 {
			return nil, fmt.Errorf("fetch timeout must be positive")
		}
		cfg.FetchTimeout = c.Duration("fetch-timeout")
	}
	if v := c.String("cache"); v != "" {
		switch mode := config.CacheMode(v); mode {
		case config.CacheOff, config.CacheMemory, config.CacheRedis:
			cfg.CacheMode = mode
		default:
			return nil, fmt.Errorf("invalid cache mode %q", v)
		}
	}
	if v := c.String("rules"); v != "" {
		cfg.RulesFile = v
	}
	if v := c.String("nats-url"); v != "" {
		cfg.NATSURL = v
	}
	if v := c.String("nats-subject"); v != "" {
		cfg.NATSSubject = v
	}

	return cfg, nil
}

func initTelemetry(command string) (func(), error) {
	splitotel.Command = command

	shutdownTracing, err := tracing.InitTracing()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	shutdownMetrics, err := metrics.InitMetrics()
	if err != nil {
		shutdownTracing()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	shutdownProfiling, err := profiling.InitProfiling()
	if err != nil {
		shutdownMetrics()
		shutdownTracing()
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}

	return func() {
		shutdownProfiling()
		shutdownMetrics()
		shutdownTracing()
	}, nil
}

type dependencies struct {
	planner   *planner.Client
	evaluator *eligibility.Evaluator
	publisher *notify.Publisher
	closers   []func()
}

func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDependencies(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	deps := &dependencies{}

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	deps.evaluator = eligibility.NewEvaluator(rules)

	opts := []planner.Option{
		planner.WithUserAgent(cfg.UserAgent),
		planner.WithFetchTimeout(cfg.FetchTimeout),
		planner.WithEvaluator(deps.evaluator),
	}

	switch cfg.CacheMode {
	case config.CacheMemory:
		opts = append(opts, planner.WithCache(pricecache.NewMemory(cfg.CacheSize, cfg.CacheTTL)))
		slog.Info("Using in-memory leg price cache", "size", cfg.CacheSize, "ttl", cfg.CacheTTL)
	case config.CacheRedis:
		client, err := pricecache.Connect(ctx, cfg.RedisAddress, cfg.RedisPassword, cfg.RedisDatabase)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, func() { _ = client.Close() })
		opts = append(opts, planner.WithCache(pricecache.NewRedis(client, cfg.CacheTTL)))
		slog.Info("Using Redis leg price cache", "address", cfg.RedisAddress, "ttl", cfg.CacheTTL)
	}

	deps.planner = planner.NewClient(cfg.PlannerURL, opts...)

	if cfg.NATSURL != "" {
		publisher, err := notify.Connect(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.publisher = publisher
		deps.closers = append(deps.closers, publisher.Close)
		slog.Info("Publishing search progress to NATS", "url", cfg.NATSURL, "subject", cfg.NATSSubject+".<search id>")
	}

	return deps, nil
}
