package task

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openrelik/openrelik-worker-dissect/internal/artifact"
)

// ErrNoOutput marks a task that ran its tools successfully but produced no
// output files when some were expected. This signals a logic or
// environment problem distinct from a tool crash.
var ErrNoOutput = errors.New("no output files produced")

// Result is the envelope returned to the orchestration layer.
//
// Command holds the display string of the last executed command, which is
// what the orchestrator's result schema carries. Commands additionally
// keeps one record per input file, so no invocation is lost when a batch
// holds more than one file.
type Result struct {
	OutputFiles []artifact.OutputFile `json:"output_files"`
	WorkflowID  string                `json:"workflow_id"`
	Command     string                `json:"command"`
	Commands    []string              `json:"commands,omitempty"`
	Meta        map[string]string     `json:"meta,omitempty"`
}

// Encode serializes the result to the base64-encoded JSON form the
// orchestration layer passes between pipeline tasks.
func (r *Result) Encode() (string, error) {
	if r.OutputFiles == nil {
		r.OutputFiles = []artifact.OutputFile{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal task result: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeResult parses a base64-encoded result envelope, typically the
// pipe_result of an upstream task.
func DecodeResult(encoded string) (*Result, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode task result: %w", err)
	}
	var r Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("unmarshal task result: %w", err)
	}
	return &r, nil
}
