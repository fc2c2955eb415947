package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/thibo-redpepper/convoflow/pkg/cmd"
	"github.com/thibo-redpepper/convoflow/pkg/eventbus"
	"github.com/thibo-redpepper/convoflow/pkg/log"
	"github.com/thibo-redpepper/convoflow/pkg/otelhelper"
	"github.com/thibo-redpepper/convoflow/pkg/runner"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "convoflow-api",
		Usage:                 "Create, validate and run outreach workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export per-node execution spans over OTLP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Convoflow API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			bus, pub, sub := cmd.NewEventBus(logger)
			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			// Agent events flow through the bus and land in the store
			// asynchronously.
			recorder := eventbus.NewRecorder(sub, persistence.EventRepository(), logger)
			if err := recorder.Run(ctx); err != nil {
				return err
			}

			// Lifecycle notifications are consumed in-process and logged.
			if err := eventbus.NewLifecycleLogger(bus, logger).Run(ctx); err != nil {
				return err
			}

			chainRunner := runner.NewRunner(logger)

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "convoflow-api")
				if err != nil {
					return err
				}

				chainRunner = chainRunner.WithTracer(tracer)
			}

			api := NewAPI(logger, persistence, bus, pub, chainRunner)

			err := api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "API server stopped", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
