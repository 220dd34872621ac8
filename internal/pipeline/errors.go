package pipeline

import (
	"errors"
	"fmt"
)

// ConfigurationError reports missing or invalid setup (credentials, bad
// provider). Always fatal: retrying cannot fix configuration.
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsFatal marks the error as non-retryable.
func (e *ConfigurationError) IsFatal() bool { return true }

// fatalError is implemented by errors that must stop the loop immediately
// instead of consuming a retry slot. llm.ProviderError implements it.
type fatalError interface {
	error
	IsFatal() bool
}

// isFatal classifies an error as retryable or fatal. Anything not explicitly
// fatal is retry fuel.
func isFatal(err error) bool {
	var fe fatalError
	return errors.As(err, &fe) && fe.IsFatal()
}

// exhaustedMessage is the terminal detail when every attempt failed.
func exhaustedMessage(maxAttempts int, lastDetail string) string {
	return fmt.Sprintf("no successful render after %d attempts; last error: %s", maxAttempts, lastDetail)
}
