package config

import (
	"fmt"
	"strings"
	"time"

	"echopulse/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	if ve.Value != nil {
		return fmt.Sprintf("field '%s': %s (got %v)", ve.Field, ve.Message, ve.Value)
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	messages := make([]string, 0, len(ve))
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if strings.EqualFold(value, allowedValue) {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

func validatePositive(errs *ValidationErrors, field string, d time.Duration) {
	if d <= 0 {
		errs.Add(field, "must be a positive duration", d)
	}
}

// Validate checks the whole configuration and reports every problem at once.
func (c Config) Validate() error {
	var errs ValidationErrors

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs.Add("server.port", "must be between 1 and 65535", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		errs.Add("server.path", "must start with '/'", c.Server.Path)
	}

	validatePositive(&errs, "reconcile.interval", c.Reconcile.Interval)
	validatePositive(&errs, "reconcile.timeout", c.Reconcile.Timeout)
	if c.Reconcile.Debounce < 0 {
		errs.Add("reconcile.debounce", "must not be negative", c.Reconcile.Debounce)
	}

	if err := ValidateOneOf("runtime.type", c.Runtime.Type, []string{"docker"}); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if strings.TrimSpace(c.Runtime.DefaultImage) == "" {
		errs.Add("runtime.default_image", "is required")
	}
	if c.Runtime.ManagedLabel != "" && !strings.Contains(c.Runtime.ManagedLabel, "=") {
		errs.Add("runtime.managed_label", "must be in key=value form", c.Runtime.ManagedLabel)
	}
	if c.Runtime.LogsTail < 0 {
		errs.Add("runtime.logs_tail", "must not be negative", c.Runtime.LogsTail)
	}

	if err := ValidateOneOf("storage.driver", c.Storage.Driver, []string{"sqlite", "mongo", "memory"}); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "sqlite":
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			errs.Add("storage.sqlite_path", "is required for the sqlite driver")
		}
	case "mongo":
		if strings.TrimSpace(c.Storage.MongoURI) == "" {
			errs.Add("storage.mongo_uri", "is required for the mongo driver")
		}
	}

	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		errs.Add("log.level", "must be one of: debug, info, warn, error", c.Log.Level)
	}
	if err := ValidateOneOf("log.format", c.Log.Format, []string{"text", "json"}); err != nil {
		errs = append(errs, err.(ValidationError))
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
