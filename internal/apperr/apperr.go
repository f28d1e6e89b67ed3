// Package apperr names the error taxonomy of spec §7: distinct Go error
// types callers can distinguish with errors.As, each carrying enough
// context to print a useful diagnostic without a stack trace.
package apperr

import "fmt"

// ConfigError is a missing required key, malformed XML, or invalid enum
// value in the configuration layer.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config: %s: %v", e.Key, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// ModelError is a pricing model rejecting an input: bad date ordering, an
// unknown index, a non-positive-definite correlation matrix, and so on.
type ModelError struct {
	Op  string
	Err error
}

func (e *ModelError) Error() string { return fmt.Sprintf("model: %s: %v", e.Op, e.Err) }
func (e *ModelError) Unwrap() error { return e.Err }

// IOError is a cube or scenario file read/write failure.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("io: %s: %v", e.Path, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// AggregationError is a dimension mismatch between cube and scenarioData,
// an unknown netting set, or a divide-by-zero in allocation.
type AggregationError struct {
	Op  string
	Err error
}

func (e *AggregationError) Error() string { return fmt.Sprintf("aggregation: %s: %v", e.Op, e.Err) }
func (e *AggregationError) Unwrap() error { return e.Err }

func NewAggregationError(op string, err error) *AggregationError {
	return &AggregationError{Op: op, Err: err}
}

func NewIOError(path string, err error) *IOError {
	return &IOError{Path: path, Err: err}
}

func NewModelError(op string, err error) *ModelError {
	return &ModelError{Op: op, Err: err}
}

func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{Key: key, Err: err}
}
