// Package main provides the PulseFlow worker: it consumes execution
// requests off the event bus and drives them through the orchestrator.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/repopulse/pulseflow/pkg/backend"
	"github.com/repopulse/pulseflow/pkg/cmd"
	"github.com/repopulse/pulseflow/pkg/eventbus"
	"github.com/repopulse/pulseflow/pkg/events"
	"github.com/repopulse/pulseflow/pkg/execution"
	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/otelhelper"
	"github.com/repopulse/pulseflow/pkg/persistence"
	"github.com/repopulse/pulseflow/pkg/receivers/queue"
	"github.com/repopulse/pulseflow/pkg/router"
	"github.com/repopulse/pulseflow/pkg/services"
)

const circuitReportInterval = time.Minute

// WorkerConfig holds the worker's wiring options.
type WorkerConfig struct {
	WorkerID   string
	GatewayURL string
	Queue      string
	RedisAddr  string
	Tracing    bool

	// CallerBudgetUSD caps every caller's spend per routing decision.
	// Zero leaves routing unconstrained.
	CallerBudgetUSD float64
}

type Worker struct {
	config       WorkerConfig
	logger       *slog.Logger
	persistence  persistence.Persistence
	eventBus     eventbus.EventBus
	stack        *cmd.RoutingStack
	orchestrator *execution.Orchestrator
	janitor      *execution.Janitor
	receiver     *queue.Receiver
}

// NewWorker wires the routing stack, node registry, orchestrator, and
// recovery janitor.
func NewWorker(
	ctx context.Context,
	config WorkerConfig,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
) (*Worker, error) {
	invoker := backend.NewHTTPInvoker(config.GatewayURL)
	stack := cmd.NewRoutingStack(invoker, persistence.TokenUsageRepository(), eventBus, logger)

	var budgets router.BudgetSource
	if config.CallerBudgetUSD > 0 {
		budgets = router.StaticBudgetSource{PerCallerUSD: config.CallerBudgetUSD}
	}

	registry := cmd.NewRegistry(logger, stack, budgets)

	var tracer trace.Tracer

	if config.Tracing {
		var err error

		tracer, err = otelhelper.NewTracer(ctx, "pulseflow-worker")
		if err != nil {
			return nil, err
		}
	}

	failures := execution.NewFailureHandler(execution.DefaultFailureConfig(), logger)
	orchestrator := execution.NewOrchestrator(persistence, registry, failures, eventBus, tracer, config.WorkerID, logger)
	janitor := execution.NewJanitor(execution.DefaultJanitorConfig(), persistence.ExecutionRepository(), logger)

	worker := &Worker{
		config:       config,
		logger:       logger.With("module", "pulseflow-worker"),
		persistence:  persistence,
		eventBus:     eventBus,
		stack:        stack,
		orchestrator: orchestrator,
		janitor:      janitor,
	}

	if config.Queue != "" {
		executionService := services.NewExecution(persistence, eventBus, logger)
		worker.receiver = queue.NewReceiver(queue.Config{
			Addr:  config.RedisAddr,
			Queue: config.Queue,
		}, executionService, logger)
	}

	return worker, nil
}

// Run subscribes to the event bus and blocks until a shutdown signal.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	if err := w.eventBus.Handle(events.ExecutionRequestedEvent, w.handleExecutionRequested); err != nil {
		return err
	}

	if err := w.eventBus.Handle(events.ExecutionPauseRequestedEvent, w.handlePauseRequested); err != nil {
		return err
	}

	if err := w.eventBus.Handle(events.ExecutionResumeRequestedEvent, w.handleResumeRequested); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if err := w.janitor.Start(ctx); err != nil {
		return err
	}

	if w.receiver != nil {
		if err := w.receiver.Start(ctx); err != nil {
			return err
		}
	}

	reportCtx, stopReports := context.WithCancel(ctx)
	defer stopReports()

	go w.reportCircuits(reportCtx)

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	if w.receiver != nil {
		if err := w.receiver.Stop(ctx); err != nil {
			w.logger.ErrorContext(ctx, "Failed to stop queue receiver", "error", err)
		}
	}

	w.janitor.Stop()

	return nil
}

func (w *Worker) handleExecutionRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionRequested")

		return nil
	}

	logger := w.logger.With(
		"execution_id", requested.ExecutionID,
		"workflow_id", requested.WorkflowID,
	)
	logger.InfoContext(ctx, "Processing execution request")

	// The orchestrator persists terminal failures itself; an error here
	// means the run ended failed, not that the message must redeliver.
	if err := w.orchestrator.Start(ctx, requested.ExecutionID); err != nil {
		logger.ErrorContext(ctx, "Execution finished with failure", "error", err)
	}

	return nil
}

func (w *Worker) handlePauseRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionPauseRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionPauseRequested")

		return nil
	}

	// Pause requests are broadcast to every worker; only the one driving
	// the execution accepts its copy.
	if !w.orchestrator.RequestPause(requested.ExecutionID) {
		w.logger.DebugContext(ctx, "Pause request ignored, execution not driven here",
			"execution_id", requested.ExecutionID)

		return nil
	}

	w.logger.InfoContext(ctx, "Pause requested", "execution_id", requested.ExecutionID)

	return nil
}

// reportCircuits periodically logs every model circuit that is not closed,
// so degraded backends show up in the worker's logs before executions fail.
func (w *Worker) reportCircuits(ctx context.Context) {
	ticker := time.NewTicker(circuitReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, state := range w.stack.Breakers.Snapshot() {
				if state.State == models.CircuitClosed {
					continue
				}

				w.logger.WarnContext(ctx, "Model circuit not closed",
					"model_id", state.ModelID,
					"state", string(state.State),
					"consecutive_failures", state.ConsecutiveFailures)
			}
		}
	}
}

func (w *Worker) handleResumeRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionResumeRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionResumeRequested")

		return nil
	}

	logger := w.logger.With("execution_id", requested.ExecutionID)
	logger.InfoContext(ctx, "Resuming execution")

	if err := w.orchestrator.Resume(ctx, requested.ExecutionID); err != nil {
		logger.ErrorContext(ctx, "Resume finished with failure", "error", err)
	}

	return nil
}
