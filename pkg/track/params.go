// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package track

import (
	"context"
	"reflect"

	"github.com/mia-platform/mltrack/internal/logger"
)

// ParamTracker logs the arguments of every call as run params.
type ParamTracker[R, A, O any] struct {
	*Adapter[R, A, O]

	table   []declaredParam
	options *options
}

// NewParamTracker wraps a free function. It fails when A is not a struct.
func NewParamTracker[A, O any](fn Func[A, O], opts ...Option) (*ParamTracker[NoReceiver, A, O], error) {
	o := newOptions(funcName(fn), opts)
	table, err := paramTable(reflect.TypeFor[A]())
	if err != nil {
		return nil, err
	}

	return &ParamTracker[NoReceiver, A, O]{Adapter: newFuncAdapter(fn, o), table: table, options: o}, nil
}

// NewMethodParamTracker wraps a method. The receiver is never logged.
func NewMethodParamTracker[R, A, O any](method Method[R, A, O], opts ...Option) (*ParamTracker[R, A, O], error) {
	o := newOptions(funcName(method), opts)
	table, err := paramTable(reflect.TypeFor[A]())
	if err != nil {
		return nil, err
	}

	return &ParamTracker[R, A, O]{Adapter: newMethodAdapter(method, o), table: table, options: o}, nil
}

// Call fills the declared defaults into args, invokes the wrapped function and logs
// the params it received. The outputs are returned unchanged; a tracking failure is
// returned as the error.
func (t *ParamTracker[R, A, O]) Call(ctx context.Context, recv R, args A) (O, error) {
	args = withDefaults(t.table, args)
	outputs, err := t.Invoke(ctx, recv, args)
	if err != nil {
		return outputs, err
	}

	params := collectParams(t.table, reflect.ValueOf(&args).Elem(), t.options.keep)
	if err := t.options.store.Client().LogParams(ctx, params); err != nil {
		return outputs, err
	}

	logger.Named(ctx, loggerName).Debug("params tracked", "function", t.Name(), "params", len(params))
	return outputs, nil
}

// Bind returns the tracked function with recv threaded through on every call.
func (t *ParamTracker[R, A, O]) Bind(recv R) Func[A, O] {
	return func(ctx context.Context, args A) (O, error) {
		return t.Call(ctx, recv, args)
	}
}

// Params wraps fn so its arguments are logged as params on every call.
// It panics when fn cannot be wrapped.
func Params[A, O any](fn Func[A, O], opts ...Option) Func[A, O] {
	tracker, err := NewParamTracker(fn, opts...)
	if err != nil {
		panic(err)
	}
	return tracker.Bind(NoReceiver{})
}

// MethodParams wraps method so its arguments are logged as params on every call.
// It panics when method cannot be wrapped.
func MethodParams[R, A, O any](method Method[R, A, O], opts ...Option) Method[R, A, O] {
	tracker, err := NewMethodParamTracker(method, opts...)
	if err != nil {
		panic(err)
	}
	return func(recv R, ctx context.Context, args A) (O, error) {
		return tracker.Call(ctx, recv, args)
	}
}
