// Package worker consumes task messages from the Redis broker, dispatches
// them to registered tasks and publishes results, speaking the Celery
// protocol the orchestration layer uses.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openrelik/openrelik-worker-dissect/internal/dissect"
	"github.com/openrelik/openrelik-worker-dissect/internal/logger"
	"github.com/openrelik/openrelik-worker-dissect/internal/proc"
	"github.com/openrelik/openrelik-worker-dissect/internal/task"
)

const (
	// resultKeyPrefix is where the Celery result backend expects task
	// state, keyed by task id.
	resultKeyPrefix = "celery-task-meta-"

	// registrationKeyPrefix is where task registration metadata is
	// published for the orchestrator UI.
	registrationKeyPrefix = "openrelik:worker:"

	defaultResultTTL    = 24 * time.Hour
	defaultBlockTimeout = 1 * time.Second
)

// Worker is a single-message-at-a-time consumer: one broker message is
// decoded, executed and answered before the next is fetched. Task retry
// policy belongs to the orchestration layer; the worker never retries.
type Worker struct {
	client       redis.UniversalClient
	registry     *task.Registry
	queue        string
	log          logger.Logger
	resultTTL    time.Duration
	blockTimeout time.Duration
}

// New creates a Worker consuming the given queue.
func New(client redis.UniversalClient, registry *task.Registry, queue string, log logger.Logger) *Worker {
	if log == nil {
		log = logger.Nop()
	}
	return &Worker{
		client:       client,
		registry:     registry,
		queue:        queue,
		log:          log,
		resultTTL:    defaultResultTTL,
		blockTimeout: defaultBlockTimeout,
	}
}

// RegisterTasks publishes the registration metadata of every task in the
// registry so the orchestrator can render the task forms.
func (w *Worker) RegisterTasks(ctx context.Context) error {
	key := registrationKeyPrefix + w.queue
	for _, t := range w.registry.All() {
		meta, err := t.Metadata(ctx)
		if err != nil {
			return fmt.Errorf("register %s: %w", t.Name(), err)
		}
		b, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("register %s: %w", t.Name(), err)
		}
		if err := w.client.HSet(ctx, key, t.Name(), string(b)).Err(); err != nil {
			return fmt.Errorf("register %s: %w", t.Name(), err)
		}
		w.log.Info("registered task", "task", t.Name())
	}
	return nil
}

// Run consumes messages until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started", "queue", w.queue)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		vals, err := w.client.BRPop(ctx, w.blockTimeout, w.queue).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("broker read failed", "error", err)
			time.Sleep(w.blockTimeout)
			continue
		}
		// BRPop returns [key, value].
		w.handle(ctx, []byte(vals[1]))
	}
}

// HandleOne decodes and executes a single raw broker message, publishing
// the outcome to the result backend. Exposed for tests driving the worker
// without the blocking loop.
func (w *Worker) HandleOne(ctx context.Context, raw []byte) {
	w.handle(ctx, raw)
}

func (w *Worker) handle(ctx context.Context, raw []byte) {
	inv, err := decodeMessage(raw)
	if err != nil {
		w.log.Error("discarding undecodable message", "error", err)
		return
	}
	log := w.log.With("task", inv.name, "id", inv.id)

	t, ok := w.registry.Get(inv.name)
	if !ok {
		log.Error("received message for unregistered task")
		w.postFailure(ctx, inv.id, fmt.Errorf("task %q is not registered", inv.name))
		return
	}

	log.Info("task received")
	result, err := t.Run(ctx, inv.req)
	if err != nil {
		log.Error("task failed", "error", err)
		w.postFailure(ctx, inv.id, err)
		return
	}

	encoded, err := result.Encode()
	if err != nil {
		log.Error("result encoding failed", "error", err)
		w.postFailure(ctx, inv.id, err)
		return
	}
	log.Info("task succeeded", "output_files", len(result.OutputFiles))
	w.postResult(ctx, inv.id, taskMeta{
		Status: "SUCCESS",
		Result: encoded,
		TaskID: inv.id,
	})
}

// taskMeta is the result-backend record for one task id.
type taskMeta struct {
	Status    string  `json:"status"`
	Result    any     `json:"result"`
	Traceback *string `json:"traceback"`
	Children  []any   `json:"children"`
	DateDone  string  `json:"date_done"`
	TaskID    string  `json:"task_id"`
}

// failurePayload mirrors the exception record the orchestration layer
// renders for failed tasks.
type failurePayload struct {
	ExcType    string   `json:"exc_type"`
	ExcMessage []string `json:"exc_message"`
	ExcModule  string   `json:"exc_module"`
}

func (w *Worker) postFailure(ctx context.Context, id string, taskErr error) {
	w.postResult(ctx, id, taskMeta{
		Status: "FAILURE",
		Result: failurePayload{
			ExcType:    excType(taskErr),
			ExcMessage: []string{taskErr.Error()},
			ExcModule:  "openrelik-worker-dissect",
		},
		TaskID: id,
	})
}

func (w *Worker) postResult(ctx context.Context, id string, meta taskMeta) {
	if id == "" {
		return
	}
	meta.Children = []any{}
	meta.DateDone = time.Now().UTC().Format(time.RFC3339Nano)
	b, err := json.Marshal(meta)
	if err != nil {
		w.log.Error("result marshal failed", "id", id, "error", err)
		return
	}
	if err := w.client.Set(ctx, resultKeyPrefix+id, string(b), w.resultTTL).Err(); err != nil {
		w.log.Error("result publish failed", "id", id, "error", err)
	}
}

// excType maps the worker error taxonomy to the exception names operators
// see in the orchestrator.
func excType(err error) string {
	switch {
	case errors.Is(err, dissect.ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, proc.ErrToolExecution):
		return "ToolExecutionError"
	case errors.Is(err, task.ErrNoOutput):
		return "NoOutputError"
	default:
		return "RuntimeError"
	}
}
