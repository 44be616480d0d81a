// Package queue provides a Redis list receiver that feeds execution start
// requests into the execution service.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/repopulse/pulseflow/pkg/services"
)

// StartRequest is the message shape expected on the queue.
type StartRequest struct {
	WorkflowID string         `json:"workflow_id"`
	CallerID   string         `json:"caller_id,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
}

// Config holds the Redis connection and queue settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

// ConfigFromMap builds a Config from a loosely typed option bag.
func ConfigFromMap(raw map[string]any) (Config, error) {
	cfg := Config{Addr: "localhost:6379"}

	if addr, ok := raw["addr"].(string); ok && addr != "" {
		cfg.Addr = addr
	}

	if password, ok := raw["password"].(string); ok {
		cfg.Password = password
	}

	if dbStr, ok := raw["db"].(string); ok && dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid db value: %w", err)
		}

		cfg.DB = db
	}

	queue, _ := raw["queue"].(string)
	if queue == "" {
		return Config{}, errors.New("queue name is required")
	}

	cfg.Queue = queue

	return cfg, nil
}

// Receiver pops start requests off a Redis list and starts executions.
type Receiver struct {
	config     Config
	executions *services.Execution

	client redis.UniversalClient
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewReceiver creates a queue receiver over the execution service.
func NewReceiver(config Config, executions *services.Execution, logger *slog.Logger) *Receiver {
	return &Receiver{
		config:     config,
		executions: executions,
		stopCh:     make(chan struct{}),
		logger: logger.With(
			"module", "queue_receiver",
			"queue", config.Queue,
		),
	}
}

// Start connects to Redis and begins consuming.
func (r *Receiver) Start(ctx context.Context) error {
	r.client = redis.NewClient(&redis.Options{
		Addr:     r.config.Addr,
		Password: r.config.Password,
		DB:       r.config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r.logger.InfoContext(ctx, "Connected to Redis", "addr", r.config.Addr, "db", r.config.DB)

	r.wg.Add(1)

	go r.consume(ctx)

	return nil
}

func (r *Receiver) consume(ctx context.Context) {
	defer r.wg.Done()

	r.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-r.stopCh:
			r.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			err := r.processMessage(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (r *Receiver) processMessage(ctx context.Context) error {
	result, err := r.client.BLPop(ctx, 1*time.Second, r.config.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	var req StartRequest
	if err := json.Unmarshal([]byte(result[1]), &req); err != nil {
		// Malformed messages are dropped, not retried.
		r.logger.WarnContext(ctx, "Discarding malformed start request", "error", err)

		return nil
	}

	execution, err := r.executions.StartExecution(ctx, services.StartExecutionRequest{
		WorkflowID: req.WorkflowID,
		CallerID:   req.CallerID,
		InputData:  req.Input,
	})
	if err != nil {
		return fmt.Errorf("failed to start execution for workflow %s: %w", req.WorkflowID, err)
	}

	r.logger.InfoContext(ctx, "Execution started from queue",
		"execution_id", execution.ID,
		"workflow_id", req.WorkflowID)

	return nil
}

// Stop halts consumption and closes the Redis client.
func (r *Receiver) Stop(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Stopping queue receiver")

	close(r.stopCh)
	r.wg.Wait()

	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
