package model

import "fmt"

// ConfigError reports missing or invalid build-time configuration.
type ConfigError struct {
	Field string
	Path  string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config: %s %q: %v", e.Field, e.Path, e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ValidationError reports a malformed resource graph.
type ValidationError struct {
	Resource string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Resource == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Resource, e.Reason)
}

// ValidationErrors collects every problem found in a graph.
type ValidationErrors []*ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(errs))
	for _, e := range errs {
		msg += "\n  " + e.Error()
	}
	return msg
}

// Unwrap exposes the individual errors to errors.Is/As.
func (errs ValidationErrors) Unwrap() []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}
