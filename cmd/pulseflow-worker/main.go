package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/repopulse/pulseflow/pkg/cmd"
	"github.com/repopulse/pulseflow/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "pulseflow-worker",
		Usage:                 "Start a worker to drive workflow executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "gateway-url",
				Usage:    "Base URL of the AI model gateway",
				Required: true,
				Sources:  cli.EnvVars("AI_GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:    "queue",
				Usage:   "Redis list to receive execution start requests from (disabled when empty)",
				Value:   "",
				Sources: cli.EnvVars("START_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the start queue",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.FloatFlag{
				Name:    "caller-budget-usd",
				Usage:   "Per-caller spending cap applied to routing decisions (0 disables budget constraints)",
				Value:   0,
				Sources: cli.EnvVars("CALLER_BUDGET_USD"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("OTEL_ENABLED"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("pulseflow-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing PulseFlow Worker")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "pulseflow-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			worker, err := NewWorker(ctx, WorkerConfig{
				WorkerID:        workerID,
				GatewayURL:      command.String("gateway-url"),
				Queue:           command.String("queue"),
				RedisAddr:       command.String("redis-addr"),
				Tracing:         command.Bool("tracing"),
				CallerBudgetUSD: command.Float("caller-budget-usd"),
			}, persistence, eventBus, logger)
			if err != nil {
				return err
			}

			return worker.Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
