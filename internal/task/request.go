package task

import "fmt"

// InputFile is one upstream artifact handed to a task, consumed read-only.
type InputFile struct {
	UUID        string `json:"uuid,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Extension   string `json:"extension,omitempty"`
	DataType    string `json:"data_type,omitempty"`
	Path        string `json:"path"`
}

// Request is the decoded payload of one task invocation.
type Request struct {
	// PipeResult is the encoded envelope of the previous pipeline task,
	// if any. When present its output files supersede InputFiles.
	PipeResult string `json:"pipe_result,omitempty"`

	InputFiles []InputFile    `json:"input_files,omitempty"`
	OutputPath string         `json:"output_path,omitempty"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	TaskConfig map[string]any `json:"task_config,omitempty"`
}

// ResolveInputs returns the files this invocation operates on: the
// upstream task's output files when the result was piped, the request's
// own input files otherwise.
func (r *Request) ResolveInputs() ([]InputFile, error) {
	if r.PipeResult == "" {
		return r.InputFiles, nil
	}
	prev, err := DecodeResult(r.PipeResult)
	if err != nil {
		return nil, fmt.Errorf("resolve piped inputs: %w", err)
	}
	inputs := make([]InputFile, 0, len(prev.OutputFiles))
	for _, f := range prev.OutputFiles {
		inputs = append(inputs, InputFile{
			UUID:        f.UUID,
			DisplayName: f.DisplayName,
			Extension:   f.Extension,
			DataType:    f.DataType,
			Path:        f.Path,
		})
	}
	return inputs, nil
}
