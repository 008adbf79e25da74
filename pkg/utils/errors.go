package utils

import (
	"fmt"
	"strings"
)

// MultiError collects independent failures, e.g. from rollback actions.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var messages []string
	for i, err := range m.Errors {
		messages = append(messages, fmt.Sprintf("%d. %s", i+1, err.Error()))
	}
	return fmt.Sprintf("multiple errors occurred:\n%s", strings.Join(messages, "\n"))
}

// Unwrap lets errors.Is and errors.As see every collected error.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the collection
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ErrorOrNil returns the error if there are any, otherwise nil
func (m *MultiError) ErrorOrNil() error {
	if m.HasErrors() {
		return m
	}
	return nil
}
