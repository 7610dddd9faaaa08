package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
)

// Error types for the filterline search core
type ErrorType string

const (
	// Pattern errors
	ErrorTypePatternSyntax ErrorType = "pattern_syntax"

	// External tool errors
	ErrorTypeToolUnavailable ErrorType = "tool_unavailable"
	ErrorTypeProcessLaunch   ErrorType = "process_launch"
	ErrorTypeToolFailure     ErrorType = "tool_failure"

	// File errors
	ErrorTypeFileNotFound ErrorType = "file_not_found"
	ErrorTypePermission   ErrorType = "permission"
	ErrorTypeIO           ErrorType = "io"

	// Result gate
	ErrorTypeLowMemory ErrorType = "low_memory"

	ErrorTypeCancelled ErrorType = "cancelled"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// PatternSyntaxError reports a pattern that cannot be used for matching
type PatternSyntaxError struct {
	Type       ErrorType
	Pattern    string
	Underlying error
	Timestamp  time.Time
}

// NewPatternSyntaxError creates a new pattern syntax error
func NewPatternSyntaxError(pattern string, err error) *PatternSyntaxError {
	return &PatternSyntaxError{
		Type:       ErrorTypePatternSyntax,
		Pattern:    pattern,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *PatternSyntaxError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *PatternSyntaxError) Unwrap() error {
	return e.Underlying
}

// ToolUnavailableError reports that the external search tool cannot be used
type ToolUnavailableError struct {
	Type      ErrorType
	ToolPath  string
	Reason    string
	Timestamp time.Time
}

// NewToolUnavailableError creates a new tool unavailable error
func NewToolUnavailableError(toolPath, reason string) *ToolUnavailableError {
	return &ToolUnavailableError{
		Type:      ErrorTypeToolUnavailable,
		ToolPath:  toolPath,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *ToolUnavailableError) Error() string {
	if e.ToolPath == "" {
		return fmt.Sprintf("ripgrep executable not found: %s", e.Reason)
	}
	return fmt.Sprintf("ripgrep executable not usable at %s: %s", e.ToolPath, e.Reason)
}

// ProcessLaunchError reports that the external process could not be started.
// It is distinct from a tool that ran and returned a meaningful exit status.
type ProcessLaunchError struct {
	Type       ErrorType
	Tool       string
	Args       []string
	Underlying error
	Timestamp  time.Time
}

// NewProcessLaunchError creates a new process launch error
func NewProcessLaunchError(tool string, args []string, err error) *ProcessLaunchError {
	return &ProcessLaunchError{
		Type:       ErrorTypeProcessLaunch,
		Tool:       tool,
		Args:       args,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ProcessLaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Tool, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ProcessLaunchError) Unwrap() error {
	return e.Underlying
}

// ToolFailureError reports a tool that ran but exited with an error status
type ToolFailureError struct {
	Type       ErrorType
	Tool       string
	ExitStatus int
	Stderr     string
	Timestamp  time.Time
}

// NewToolFailureError creates a new tool failure error
func NewToolFailureError(tool string, exitStatus int, stderr string) *ToolFailureError {
	return &ToolFailureError{
		Type:       ErrorTypeToolFailure,
		Tool:       tool,
		ExitStatus: exitStatus,
		Stderr:     stderr,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ToolFailureError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitStatus)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Tool, e.ExitStatus, msg)
}

// FileError represents a file-related error
type FileError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewFileError creates a new file error
func NewFileError(op, path string, err error) *FileError {
	errorType := ErrorTypeIO
	switch {
	case isPermissionError(err):
		errorType = ErrorTypePermission
	case stderrors.Is(err, fs.ErrNotExist):
		errorType = ErrorTypeFileNotFound
	}

	return &FileError{
		Type:       errorType,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// isPermissionError checks if the error is a permission error
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, fs.ErrPermission) {
		return true
	}
	errStr := err.Error()
	return errStr == "permission denied" || errStr == "access denied"
}

// Error implements the error interface
func (e *FileError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

// Unwrap returns the underlying error
func (e *FileError) Unwrap() error {
	return e.Underlying
}

// LowMemoryError is the presentation form of a result the safety gate refused
type LowMemoryError struct {
	Type           ErrorType
	Path           string
	EstimatedBytes uint64
	AvailableBytes uint64
	LimitingFactor string
	Timestamp      time.Time
}

// NewLowMemoryError creates a new low memory error
func NewLowMemoryError(path string, estimated, available uint64, limitingFactor string) *LowMemoryError {
	return &LowMemoryError{
		Type:           ErrorTypeLowMemory,
		Path:           path,
		EstimatedBytes: estimated,
		AvailableBytes: available,
		LimitingFactor: limitingFactor,
		Timestamp:      time.Now(),
	}
}

// Error implements the error interface
func (e *LowMemoryError) Error() string {
	return fmt.Sprintf("result %s needs ~%d MB but only %d MB of %s is available; narrow the filter and try again",
		e.Path, e.EstimatedBytes/(1024*1024), e.AvailableBytes/(1024*1024), e.LimitingFactor)
}

// CancelledError reports a search stopped by its context
type CancelledError struct {
	Type       ErrorType
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewCancelledError creates a new cancellation error
func NewCancelledError(op string, err error) *CancelledError {
	return &CancelledError{
		Type:       ErrorTypeCancelled,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s cancelled: %v", e.Operation, e.Underlying)
}

// Unwrap returns the underlying error
func (e *CancelledError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error
func NewMultiError(errs []error) *MultiError {
	// Filter out nil errors
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// ErrorOrNil returns nil when the multi-error holds nothing
func (e *MultiError) ErrorOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Kind classifies an error chain by the first typed error found in it
func Kind(err error) ErrorType {
	if err == nil {
		return ""
	}
	var (
		patternErr *PatternSyntaxError
		toolErr    *ToolUnavailableError
		launchErr  *ProcessLaunchError
		failErr    *ToolFailureError
		fileErr    *FileError
		memErr     *LowMemoryError
		cancelErr  *CancelledError
		configErr  *ConfigError
	)
	switch {
	case stderrors.As(err, &patternErr):
		return patternErr.Type
	case stderrors.As(err, &toolErr):
		return toolErr.Type
	case stderrors.As(err, &launchErr):
		return launchErr.Type
	case stderrors.As(err, &failErr):
		return failErr.Type
	case stderrors.As(err, &memErr):
		return memErr.Type
	case stderrors.As(err, &cancelErr):
		return cancelErr.Type
	case stderrors.As(err, &fileErr):
		return fileErr.Type
	case stderrors.As(err, &configErr):
		return ErrorTypeConfig
	}
	return ErrorTypeInternal
}

// UserMessage renders a short message naming the precondition that failed
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var patternErr *PatternSyntaxError
	var fileErr *FileError
	switch Kind(err) {
	case ErrorTypePatternSyntax:
		if stderrors.As(err, &patternErr) {
			return fmt.Sprintf("Invalid pattern: %v", patternErr.Underlying)
		}
	case ErrorTypeToolUnavailable:
		return "Ripgrep executable not found. Folder filtering is unavailable"
	case ErrorTypeProcessLaunch:
		return "Could not start ripgrep: " + err.Error()
	case ErrorTypeToolFailure:
		return "Filter failed: " + err.Error()
	case ErrorTypeLowMemory:
		return "Not enough memory to open the result. " + err.Error()
	case ErrorTypeCancelled:
		return "Filter cancelled"
	case ErrorTypeFileNotFound, ErrorTypePermission, ErrorTypeIO:
		if stderrors.As(err, &fileErr) {
			return fmt.Sprintf("Cannot %s %s: %v", fileErr.Operation, fileErr.Path, fileErr.Underlying)
		}
	case ErrorTypeConfig:
		return "Configuration error: " + err.Error()
	}
	return err.Error()
}
