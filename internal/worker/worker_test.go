package worker

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrelik/openrelik-worker-dissect/internal/dissect"
	"github.com/openrelik/openrelik-worker-dissect/internal/logger"
	"github.com/openrelik/openrelik-worker-dissect/internal/proc"
	"github.com/openrelik/openrelik-worker-dissect/internal/task"
)

const testQueue = "openrelik-worker-dissect"

// stubRunner answers version/catalog probes and succeeds on everything
// else, unless fail is set.
type stubRunner struct {
	fail  error
	calls int
}

func (s *stubRunner) Run(_ context.Context, args []string, _ io.Writer) (*proc.Result, error) {
	if len(args) == 2 && args[1] == "--version" {
		return &proc.Result{Stdout: []byte(args[0] + " 3.15")}, nil
	}
	if len(args) == 2 && args[1] == "--list" {
		return &proc.Result{Stdout: []byte("amcache\nmft\n")}, nil
	}
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	return &proc.Result{}, nil
}

func newTestWorker(t *testing.T, runner proc.Runner) (*Worker, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	deps := task.Deps{Runner: runner, Tools: dissect.NewToolset(runner), Log: logger.Nop()}
	reg := task.NewRegistry()
	require.NoError(t, reg.Register(task.NewRdumpJSONL(deps)))
	require.NoError(t, reg.Register(task.NewRdumpSplunk(deps, dissect.SplunkSink{})))
	require.NoError(t, reg.Register(task.NewTargetQuery(deps)))

	return New(client, reg, testQueue, logger.Nop()), client
}

func resultMeta(t *testing.T, client *redis.Client, id string) map[string]any {
	t.Helper()
	raw, err := client.Get(context.Background(), resultKeyPrefix+id).Result()
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &meta))
	return meta
}

func TestWorker_HandleOne_Success(t *testing.T) {
	runner := &stubRunner{}
	w, client := newTestWorker(t, runner)

	id, raw, err := encodeMessage(task.RdumpJSONLName, testQueue, &task.Request{
		InputFiles: []task.InputFile{{Path: "/data/in.rec"}},
		WorkflowID: "wf-1",
	})
	require.NoError(t, err)

	w.HandleOne(context.Background(), raw)

	meta := resultMeta(t, client, id)
	assert.Equal(t, "SUCCESS", meta["status"])
	assert.Equal(t, id, meta["task_id"])

	encoded, ok := meta["result"].(string)
	require.True(t, ok)
	res, err := task.DecodeResult(encoded)
	require.NoError(t, err)
	assert.Equal(t, "rdump /data/in.rec -J", res.Command)
	assert.Equal(t, "wf-1", res.WorkflowID)
	assert.Equal(t, 1, runner.calls)
}

func TestWorker_HandleOne_ConfigurationFailure(t *testing.T) {
	runner := &stubRunner{}
	w, client := newTestWorker(t, runner)

	// The splunk task has no sink coordinates in this worker.
	id, raw, err := encodeMessage(task.RdumpSplunkName, testQueue, &task.Request{
		InputFiles: []task.InputFile{{Path: "/data/in.rec"}},
	})
	require.NoError(t, err)

	w.HandleOne(context.Background(), raw)

	meta := resultMeta(t, client, id)
	assert.Equal(t, "FAILURE", meta["status"])
	payload, ok := meta["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ConfigurationError", payload["exc_type"])
	assert.Equal(t, 0, runner.calls, "no process must be spawned")
}

func TestWorker_HandleOne_ToolFailure(t *testing.T) {
	runner := &stubRunner{fail: &proc.ToolError{Tool: "rdump", ExitCode: 2, Stderr: "bad input"}}
	w, client := newTestWorker(t, runner)

	id, raw, err := encodeMessage(task.RdumpJSONLName, testQueue, &task.Request{
		InputFiles: []task.InputFile{{Path: "/data/in.rec"}},
	})
	require.NoError(t, err)

	w.HandleOne(context.Background(), raw)

	meta := resultMeta(t, client, id)
	assert.Equal(t, "FAILURE", meta["status"])
	payload := meta["result"].(map[string]any)
	assert.Equal(t, "ToolExecutionError", payload["exc_type"])
	msgs := payload["exc_message"].([]any)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "bad input")
}

func TestWorker_HandleOne_UnregisteredTask(t *testing.T) {
	w, client := newTestWorker(t, &stubRunner{})

	id, raw, err := encodeMessage("openrelik-worker-dissect.nope", testQueue, &task.Request{})
	require.NoError(t, err)

	w.HandleOne(context.Background(), raw)

	meta := resultMeta(t, client, id)
	assert.Equal(t, "FAILURE", meta["status"])
}

func TestWorker_HandleOne_UndecodableMessageIsDropped(t *testing.T) {
	w, client := newTestWorker(t, &stubRunner{})

	w.HandleOne(context.Background(), []byte("{not json"))

	keys, err := client.Keys(context.Background(), resultKeyPrefix+"*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestWorker_RegisterTasks(t *testing.T) {
	w, client := newTestWorker(t, &stubRunner{})

	require.NoError(t, w.RegisterTasks(context.Background()))

	entries, err := client.HGetAll(context.Background(), registrationKeyPrefix+testQueue).Result()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var meta task.Metadata
	require.NoError(t, json.Unmarshal([]byte(entries[task.TargetQueryName]), &meta))
	assert.Equal(t, "Dissect: target-query", meta.DisplayName)
	require.Len(t, meta.TaskConfig, 1)
	assert.Equal(t, []string{"amcache", "mft"}, meta.TaskConfig[0].Items)
}

func TestWorker_RunConsumesQueue(t *testing.T) {
	runner := &stubRunner{}
	w, client := newTestWorker(t, runner)
	w.blockTimeout = 50 * time.Millisecond

	id, raw, err := encodeMessage(task.RdumpJSONLName, testQueue, &task.Request{
		InputFiles: []task.InputFile{{Path: "/data/in.rec"}},
	})
	require.NoError(t, err)
	require.NoError(t, client.LPush(context.Background(), testQueue, string(raw)).Err())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, err := client.Exists(context.Background(), resultKeyPrefix+id).Result()
		return err == nil && n == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop on cancellation")
	}

	meta := resultMeta(t, client, id)
	assert.Equal(t, "SUCCESS", meta["status"])
}

func TestMessageRoundTrip(t *testing.T) {
	req := &task.Request{
		InputFiles: []task.InputFile{{Path: "/data/in.rec", DisplayName: "in.rec"}},
		OutputPath: "/out",
		WorkflowID: "wf-1",
		TaskConfig: map[string]any{"protocol": "tcp"},
	}
	id, raw, err := encodeMessage(task.TargetQueryName, testQueue, req)
	require.NoError(t, err)

	inv, err := decodeMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, id, inv.id)
	assert.Equal(t, task.TargetQueryName, inv.name)
	assert.Equal(t, req.InputFiles, inv.req.InputFiles)
	assert.Equal(t, "wf-1", inv.req.WorkflowID)
	assert.Equal(t, "tcp", inv.req.TaskConfig["protocol"])
}

func TestDecodeMessage_MissingTaskHeader(t *testing.T) {
	_, err := decodeMessage([]byte(`{"body":"", "headers":{}}`))
	require.Error(t, err)
}
