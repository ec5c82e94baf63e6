// Package proc runs external tool processes to completion and translates
// their exit status into errors.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ErrToolExecution marks an external process that exited non-zero.
var ErrToolExecution = errors.New("tool execution failed")

// ToolError carries the exit code and captured stderr of a failed tool run.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %s exited with code %d", ErrToolExecution.Error(), e.Tool, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ToolError) Unwrap() error { return ErrToolExecution }

// Result describes a completed child process.
type Result struct {
	// Stdout is the captured standard output. Empty when stdout was
	// streamed to a writer instead.
	Stdout []byte

	// Stderr is the captured standard error, kept for diagnostics.
	Stderr []byte

	// ExitCode is the process exit code; always 0 on the success path.
	ExitCode int

	// Duration is the wall-clock run time.
	Duration time.Duration
}

// Runner executes one external command to completion.
//
// When stdout is nil the child's standard output is captured into
// Result.Stdout; otherwise it is streamed to the writer (dump-mode
// invocations write directly into a pre-created output file).
//
// A non-zero exit is returned as a ToolError; the Result is still
// populated for callers that want the diagnostics.
type Runner interface {
	Run(ctx context.Context, args []string, stdout io.Writer) (*Result, error)
}

// ExecRunner runs commands as real child processes via os/exec.
type ExecRunner struct {
	// Audit receives one event per invocation. Nil disables auditing.
	Audit Sink
}

// NewExecRunner creates an ExecRunner with the given audit sink.
func NewExecRunner(audit Sink) *ExecRunner {
	return &ExecRunner{Audit: audit}
}

// Run launches args as a child process and blocks until it terminates.
// Arguments are passed as a vector, never through a shell, so no quoting
// hazards apply. There is no timeout: a stuck tool blocks until the
// context is cancelled, at which point the whole process group is killed.
func (r *ExecRunner) Run(ctx context.Context, args []string, stdout io.Writer) (*Result, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = os.Environ()

	// Own process group so cancellation can kill the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var outBuf, errBuf bytes.Buffer
	if stdout != nil {
		cmd.Stdout = stdout
	} else {
		cmd.Stdout = &outBuf
	}
	cmd.Stderr = &errBuf

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", args[0], err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			// Negative PID targets the process group.
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return nil, fmt.Errorf("%s cancelled: %w", args[0], ctx.Err())
	case waitErr = <-done:
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("wait %s: %w", args[0], waitErr)
		}
	}

	result := &Result{
		Stdout:   outBuf.Bytes(),
		Stderr:   errBuf.Bytes(),
		ExitCode: exitCode,
		Duration: time.Since(start),
	}

	SafeRecord(r.Audit, Event{
		Time:        start,
		Args:        args,
		ExitCode:    exitCode,
		Duration:    result.Duration,
		StderrBytes: errBuf.Len(),
	})

	if exitCode != 0 {
		return result, &ToolError{
			Tool:     args[0],
			ExitCode: exitCode,
			Stderr:   errBuf.String(),
		}
	}
	return result, nil
}
