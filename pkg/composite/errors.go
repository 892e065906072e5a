package composite

import (
	"errors"
)

type errConfigurationIf interface{ Configuration() bool }
type errConfiguration struct{ error }

func (e errConfiguration) Configuration() bool { return true }
func (e *errConfiguration) Unwrap() error      { return e.error }

// MakeConfiguration marks err as a ConfigurationError: the request or the
// settings cannot describe a valid run (e.g. an empty stack).
func MakeConfiguration(err error) error { return &errConfiguration{err} }

type errConsistencyIf interface{ Consistency() bool }
type errConsistency struct{ error }

func (e errConsistency) Consistency() bool { return true }
func (e *errConsistency) Unwrap() error    { return e.error }

// MakeConsistency marks err as a ConsistencyError: the inputs disagree with
// each other (grid geometry, sensor layouts, band counts).
func MakeConsistency(err error) error { return &errConsistency{err} }

// IsConfiguration inspects the error trace for a ConfigurationError
func IsConfiguration(err error) bool {
	var e errConfigurationIf
	if errors.As(err, &e) {
		return e.Configuration()
	}
	return false
}

// IsConsistency inspects the error trace for a ConsistencyError
func IsConsistency(err error) bool {
	var e errConsistencyIf
	if errors.As(err, &e) {
		return e.Consistency()
	}
	return false
}
