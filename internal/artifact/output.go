// Package artifact allocates and describes output files handed back to
// the orchestration layer.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// OutputFile describes one file produced by a task. The JSON shape is the
// output file dictionary the orchestration layer expects.
type OutputFile struct {
	UUID        string `json:"uuid"`
	DisplayName string `json:"display_name"`
	Extension   string `json:"extension,omitempty"`
	DataType    string `json:"data_type,omitempty"`
	Path        string `json:"path"`
}

// NewOutputFile allocates a fresh, uuid-named output path under outputDir.
// The directory is created if needed; the file itself is created by
// whoever writes it. displayName defaults to the uuid when empty.
func NewOutputFile(outputDir, displayName, extension, dataType string) (*OutputFile, error) {
	if outputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	id := uuid.New().String()
	name := id
	if extension != "" {
		name = id + "." + extension
	}
	if displayName == "" {
		displayName = name
	}
	return &OutputFile{
		UUID:        id,
		DisplayName: displayName,
		Extension:   extension,
		DataType:    dataType,
		Path:        filepath.Join(outputDir, name),
	}, nil
}
