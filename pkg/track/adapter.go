// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package track

import (
	"context"
	"reflect"
	"runtime"

	"github.com/mia-platform/mltrack/internal/logger"
	"github.com/mia-platform/mltrack/pkg/teleport"
)

const loggerName = "mltrack:track"

// Func is a trackable free function.
type Func[A, O any] func(ctx context.Context, args A) (O, error)

// Method is a trackable method with the shape of a method expression like (*Model).Fit,
// the receiver comes first.
type Method[R, A, O any] func(recv R, ctx context.Context, args A) (O, error) //nolint:revive // method expression shape

// NoReceiver is the receiver type of adapters wrapping free functions.
type NoReceiver struct{}

// Adapter invokes a wrapped free function or method with the same calling convention.
type Adapter[R, A, O any] struct {
	fn     Func[A, O]
	method Method[R, A, O]
	store  *teleport.Store
	name   string
}

func newFuncAdapter[A, O any](fn Func[A, O], o *options) *Adapter[NoReceiver, A, O] {
	return &Adapter[NoReceiver, A, O]{fn: fn, store: o.store, name: o.name}
}

func newMethodAdapter[R, A, O any](method Method[R, A, O], o *options) *Adapter[R, A, O] {
	return &Adapter[R, A, O]{method: method, store: o.store, name: o.name}
}

// IsMemberFunction reports whether the adapter wraps a method.
func (a *Adapter[R, A, O]) IsMemberFunction() bool {
	return a.method != nil
}

// Name returns the name used for the wrapped function in logs.
func (a *Adapter[R, A, O]) Name() string {
	return a.name
}

// Invoke applies the resolved destination and calls the wrapped function, prepending
// recv for methods. Outputs are returned unmodified.
func (a *Adapter[R, A, O]) Invoke(ctx context.Context, recv R, args A) (O, error) {
	destination, err := a.store.Activate(ctx)
	if err != nil {
		var zero O
		return zero, err
	}

	logger.Named(ctx, loggerName).Trace("invoking tracked function",
		"function", a.name,
		"experiment", destination.ExperimentName,
		"member", a.IsMemberFunction(),
	)

	if a.IsMemberFunction() {
		return a.method(recv, ctx, args)
	}
	return a.fn(ctx, args)
}

// funcName returns the fully qualified name of fn.
func funcName(fn any) string {
	value := reflect.ValueOf(fn)
	if value.Kind() != reflect.Func || value.IsNil() {
		return ""
	}
	if f := runtime.FuncForPC(value.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}
