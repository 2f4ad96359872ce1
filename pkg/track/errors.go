// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package track

import (
	"errors"
)

var (
	// ErrMetricArityMismatch is returned when the declared metric names do not match the returned values.
	ErrMetricArityMismatch = errors.New("metric names do not match returned values")
	// ErrNonNumericMetric is returned when a returned value cannot be converted to a float.
	ErrNonNumericMetric = errors.New("metric value is not numeric")
	// ErrUnsupportedSignature is returned when a function cannot be wrapped.
	ErrUnsupportedSignature = errors.New("unsupported function signature")
)
