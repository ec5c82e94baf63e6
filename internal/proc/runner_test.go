package proc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_CapturesStdout(t *testing.T) {
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), []string{"sh", "-c", "printf hello"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello", string(res.Stdout))
}

func TestExecRunner_NonZeroExitIsToolError(t *testing.T) {
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), []string{"sh", "-c", "echo 'bad input' >&2; exit 2"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolExecution)
	assert.Contains(t, err.Error(), "2")
	assert.Contains(t, err.Error(), "bad input")

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, 2, toolErr.ExitCode)
	assert.Equal(t, "bad input\n", toolErr.Stderr)

	// Diagnostics are still available alongside the error.
	require.NotNil(t, res)
	assert.Equal(t, 2, res.ExitCode)
}

func TestExecRunner_StreamsStdoutToFile(t *testing.T) {
	r := NewExecRunner(nil)
	path := filepath.Join(t.TempDir(), "out.dump")

	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = r.Run(context.Background(), []string{"sh", "-c", "printf 'record data'"}, f)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "record data", string(data))
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := NewExecRunner(nil)

	_, err := r.Run(context.Background(), []string{"definitely-not-a-real-binary-xyz"}, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrToolExecution)
}

func TestExecRunner_EmptyCommand(t *testing.T) {
	r := NewExecRunner(nil)
	_, err := r.Run(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestExecRunner_CancellationKillsProcess(t *testing.T) {
	r := NewExecRunner(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Run(ctx, []string{"sh", "-c", "sleep 30"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecRunner_AuditRecords(t *testing.T) {
	rec := NewRecorder()
	r := NewExecRunner(rec)

	_, err := r.Run(context.Background(), []string{"sh", "-c", "echo oops >&2; exit 3"}, nil)
	require.Error(t, err)

	events := rec.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, []string{"sh", "-c", "echo oops >&2; exit 3"}, events[0].Args)
	assert.Equal(t, 3, events[0].ExitCode)
	assert.NotZero(t, events[0].StderrBytes)
}

func TestSafeRecord_SurvivesPanickySink(t *testing.T) {
	assert.NotPanics(t, func() {
		SafeRecord(panicSink{}, Event{})
		SafeRecord(nil, Event{})
	})
}

type panicSink struct{}

func (panicSink) Record(Event) { panic("broken sink") }

func TestFileSink_AppendsNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	s := NewFileSink(path)

	s.Record(Event{Time: time.Now(), Args: []string{"rdump", "x", "-J"}, ExitCode: 0})
	s.Record(Event{Time: time.Now(), Args: []string{"rdump", "y", "-J"}, ExitCode: 2})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"argv":["rdump","x","-J"]`)
	assert.Contains(t, string(data), `"exit":2`)
	assert.Equal(t, 2, countLines(data))
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
