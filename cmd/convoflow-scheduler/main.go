// Package main provides the follow-up tick daemon. It periodically collects
// agent sessions whose next follow-up is due, dispatches each one to the
// agent boundary and advances its cadence.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/thibo-redpepper/convoflow/pkg/cmd"
	"github.com/thibo-redpepper/convoflow/pkg/eventbus"
	"github.com/thibo-redpepper/convoflow/pkg/log"
	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/scheduler"
	"github.com/thibo-redpepper/convoflow/pkg/session"
)

const (
	defaultInterval = time.Minute
	defaultMinDelay = 25 * time.Minute
	defaultMaxDelay = 35 * time.Minute
)

func main() {
	logger := log.WithModule("scheduler")

	command := &cli.Command{
		Name:                  "convoflow-scheduler",
		Usage:                 "Dispatch due agent follow-ups on a fixed tick",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the tick lease; empty runs without one",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "Tick interval",
				Value:   defaultInterval,
				Sources: cli.EnvVars("TICK_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "batch-limit",
				Usage:   "Maximum due sessions handled per tick",
				Value:   session.DefaultDueLimit,
				Sources: cli.EnvVars("BATCH_LIMIT"),
			},
			&cli.DurationFlag{
				Name:    "min-delay",
				Usage:   "Lower bound for the randomized next follow-up delay",
				Value:   defaultMinDelay,
				Sources: cli.EnvVars("FOLLOW_UP_MIN_DELAY"),
			},
			&cli.DurationFlag{
				Name:    "max-delay",
				Usage:   "Upper bound for the randomized next follow-up delay",
				Value:   defaultMaxDelay,
				Sources: cli.EnvVars("FOLLOW_UP_MAX_DELAY"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Convoflow scheduler")

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

			recorder := eventbus.NewRecorder(sub, persistence.EventRepository(), logger)
			if err := recorder.Run(ctx); err != nil {
				return err
			}

			lease, err := newLease(command)
			if err != nil {
				return err
			}

			ticker := scheduler.NewTicker(
				scheduler.Config{
					Interval:   command.Duration("interval"),
					BatchLimit: command.Int("batch-limit"),
					MinDelay:   command.Duration("min-delay"),
					MaxDelay:   command.Duration("max-delay"),
				},
				session.NewFollowUps(persistence.SessionRepository(), logger),
				lease,
				dispatch(logger),
				eventbus.NewAgentEventWriter(pub, logger),
				logger,
			)

			if err := ticker.Start(ctx); err != nil {
				return err
			}

			waitForShutdown(ctx, logger)
			ticker.Stop()

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

// newLease builds the tick lease: redis SetNX when a redis URL is given, a
// pass-through otherwise.
func newLease(command *cli.Command) (scheduler.Lease, error) {
	redisURL := command.String("redis-url")
	if redisURL == "" {
		return scheduler.SingleInstanceLease{}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()

	return scheduler.NewRedisLease(
		redis.NewClient(opts),
		"convoflow:scheduler:tick",
		hostname,
		command.Duration("interval"),
	), nil
}

// dispatch is the agent-policy boundary. The agent runtime that composes
// the follow-up message lives outside this service; until it is attached
// each due session is logged and acknowledged.
func dispatch(logger *slog.Logger) scheduler.DispatchFunc {
	return func(ctx context.Context, s *models.AgentSession) error {
		logger.InfoContext(ctx, "Follow-up dispatch requested",
			"session_id", s.ID,
			"workflow_id", s.WorkflowID,
			"agent_id", s.AgentID,
			"channel", s.Channel,
			"follow_up_step", s.FollowUpStep)

		return nil
	}
}

func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.InfoContext(ctx, "Shutting down", "signal", sig.String())
	case <-ctx.Done():
	}
}
