package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Error types reported by ConfigurationError.
const (
	ErrorTypeIO         = "io"
	ErrorTypeParse      = "parse"
	ErrorTypeValidation = "validation"
)

// ConfigurationError represents a structured error that occurs during configuration loading
type ConfigurationError struct {
	FilePath    string   `json:"filePath"`
	ErrorType   string   `json:"errorType"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
	Err         error    `json:"-"`
}

// Error implements the error interface
func (ce *ConfigurationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ce.ErrorType, filepath.Base(ce.FilePath), ce.Message)
}

func (ce *ConfigurationError) Unwrap() error {
	return ce.Err
}

// DetailedError returns a detailed error message with all context
func (ce *ConfigurationError) DetailedError() string {
	parts := []string{
		fmt.Sprintf("Configuration error in %s", ce.FilePath),
		fmt.Sprintf("  Type: %s", ce.ErrorType),
		fmt.Sprintf("  Error: %s", ce.Message),
	}
	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, suggestion := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", suggestion))
		}
	}
	return strings.Join(parts, "\n")
}

func newConfigurationError(path, errorType string, err error, suggestions ...string) *ConfigurationError {
	return &ConfigurationError{
		FilePath:    path,
		ErrorType:   errorType,
		Message:     err.Error(),
		Suggestions: suggestions,
		Err:         err,
	}
}
