package main

import (
	"log/slog"
	"os"

	"splitfare/pkg/logging"
	splitotel "splitfare/pkg/otel"

	"github.com/urfave/cli/v2"
)

func main() {
	logging.InitLogging()

	app := &cli.App{
		Name:    "splitfare",
		Usage:   "Find cheaper split tickets for German rail journeys",
		Version: splitotel.Version,
		Description: "Queries a journey planner for a connection, re-prices every possible split point\n" +
			"along the route and reports combinations of two tickets that are cheaper than\n" +
			"the through ticket. Results are printed, shipped to Grafana Loki, streamed\n" +
			"over HTTP or published to NATS.",
		Commands: []*cli.Command{
			searchCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("splitfare failed", "error", err)
		os.Exit(1)
	}
}
