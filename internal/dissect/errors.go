package dissect

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks bad, missing or ambiguous user-supplied settings,
// including missing required environment values. Always fatal to the task.
var ErrConfiguration = errors.New("configuration error")

// ConfigError wraps a configuration failure with a human-readable detail.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	if e == nil || e.Msg == "" {
		return ErrConfiguration.Error()
	}
	return fmt.Sprintf("%s: %s", ErrConfiguration.Error(), e.Msg)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

func configf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}
