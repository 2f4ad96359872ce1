// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package track

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/mia-platform/mltrack/internal/logger"
)

var errMissingMetricNames = fmt.Errorf("%w: at least one metric name is required", ErrUnsupportedSignature)

// MetricTracker logs the return values of every call as run metrics, pairing them
// positionally with the declared names.
type MetricTracker[R, A, O any] struct {
	*Adapter[R, A, O]

	names   []string
	options *options
}

// NewMetricTracker wraps a free function returning one value per name.
func NewMetricTracker[A, O any](fn Func[A, O], names []string, opts ...Option) (*MetricTracker[NoReceiver, A, O], error) {
	if len(names) == 0 {
		return nil, errMissingMetricNames
	}

	o := newOptions(funcName(fn), opts)
	return &MetricTracker[NoReceiver, A, O]{Adapter: newFuncAdapter(fn, o), names: names, options: o}, nil
}

// NewMethodMetricTracker wraps a method returning one value per name.
func NewMethodMetricTracker[R, A, O any](method Method[R, A, O], names []string, opts ...Option) (*MetricTracker[R, A, O], error) {
	if len(names) == 0 {
		return nil, errMissingMetricNames
	}

	o := newOptions(funcName(method), opts)
	return &MetricTracker[R, A, O]{Adapter: newMethodAdapter(method, o), names: names, options: o}, nil
}

// Names returns the declared metric names.
func (t *MetricTracker[R, A, O]) Names() []string {
	return append([]string(nil), t.names...)
}

// Call invokes the wrapped function and logs its outputs at the step carried by ctx.
// Nothing is logged when the outputs do not match the declared names.
func (t *MetricTracker[R, A, O]) Call(ctx context.Context, recv R, args A) (O, error) {
	outputs, err := t.Invoke(ctx, recv, args)
	if err != nil {
		return outputs, err
	}

	metrics, err := collectMetrics(t.names, outputs, t.options.keep)
	if err != nil {
		return outputs, fmt.Errorf("tracking %s: %w", t.Name(), err)
	}

	if err := t.options.store.Client().LogMetrics(ctx, metrics, stepFromContext(ctx)); err != nil {
		return outputs, err
	}

	logger.Named(ctx, loggerName).Debug("metrics tracked", "function", t.Name(), "metrics", len(metrics))
	return outputs, nil
}

// Bind returns the tracked function with recv threaded through on every call.
func (t *MetricTracker[R, A, O]) Bind(recv R) Func[A, O] {
	return func(ctx context.Context, args A) (O, error) {
		return t.Call(ctx, recv, args)
	}
}

// Metrics wraps fn so its return values are logged as metrics named names.
// It panics when names is empty.
func Metrics[A, O any](fn Func[A, O], names []string, opts ...Option) Func[A, O] {
	tracker, err := NewMetricTracker(fn, names, opts...)
	if err != nil {
		panic(err)
	}
	return tracker.Bind(NoReceiver{})
}

// MethodMetrics wraps method so its return values are logged as metrics named names.
// It panics when names is empty.
func MethodMetrics[R, A, O any](method Method[R, A, O], names []string, opts ...Option) Method[R, A, O] {
	tracker, err := NewMethodMetricTracker(method, names, opts...)
	if err != nil {
		panic(err)
	}
	return func(recv R, ctx context.Context, args A) (O, error) {
		return tracker.Call(ctx, recv, args)
	}
}

// collectMetrics pairs names with the sequence view of outputs and coerces every
// value to float32 precision.
func collectMetrics(names []string, outputs any, keep func(string) bool) (map[string]float64, error) {
	values := sequence(reflect.ValueOf(outputs))
	if len(values) != len(names) {
		return nil, fmt.Errorf("%w: %d names for %d values", ErrMetricArityMismatch, len(names), len(values))
	}

	metrics := make(map[string]float64, len(names))
	var errs error
	for i, name := range names {
		if !keep(name) {
			continue
		}

		value, err := toFloat32(values[i])
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("%w: %s is %s", ErrNonNumericMetric, name, err))
			continue
		}
		metrics[name] = value
	}

	if errs != nil {
		return nil, errs
	}
	return metrics, nil
}

// sequence returns the elements of slices and arrays, the exported fields of
// structs, or the value itself.
func sequence(value reflect.Value) []reflect.Value {
	for value.IsValid() && (value.Kind() == reflect.Pointer || value.Kind() == reflect.Interface) && !value.IsNil() {
		value = value.Elem()
	}

	switch value.Kind() {
	case reflect.Slice, reflect.Array:
		values := make([]reflect.Value, 0, value.Len())
		for i := range value.Len() {
			values = append(values, value.Index(i))
		}
		return values
	case reflect.Struct:
		values := make([]reflect.Value, 0, value.NumField())
		for i := range value.NumField() {
			if value.Type().Field(i).IsExported() {
				values = append(values, value.Field(i))
			}
		}
		return values
	default:
		return []reflect.Value{value}
	}
}

func toFloat32(value reflect.Value) (float64, error) {
	for value.IsValid() && (value.Kind() == reflect.Pointer || value.Kind() == reflect.Interface) && !value.IsNil() {
		value = value.Elem()
	}

	switch value.Kind() {
	case reflect.Float32, reflect.Float64:
		return float64(float32(value.Float())), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(float32(value.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(float32(value.Uint())), nil
	case reflect.Bool:
		if value.Bool() {
			return 1, nil
		}
		return 0, nil
	case reflect.Invalid:
		return 0, errors.New("nil")
	default:
		return 0, fmt.Errorf("a %s", value.Type())
	}
}
