// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable reports that the tracking endpoint could not be reached.
	ErrBackendUnavailable = errors.New("tracking backend unavailable")
	// ErrExperimentAlreadyExists reports an attempt to create an experiment whose name is taken.
	ErrExperimentAlreadyExists = errors.New("experiment already exists")
	// ErrExperimentNotFound reports a lookup of a missing experiment.
	ErrExperimentNotFound = errors.New("experiment not found")
	// ErrRunNotFound reports a lookup of a missing run.
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidParameter reports an invalid key or a change of an already logged param.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrUnsupportedEndpoint reports a tracking endpoint with an unknown scheme.
	ErrUnsupportedEndpoint = errors.New("unsupported tracking endpoint")
)

// Error decorates backend failures with the operation that produced them.
type Error struct {
	Op  string
	Err error
}

// NewError wraps err for the op operation, nil errors stay nil.
func NewError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
