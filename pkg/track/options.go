// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package track

import (
	"context"
	"slices"

	"github.com/mia-platform/mltrack/pkg/teleport"
)

type options struct {
	collect []string
	store   *teleport.Store
	name    string
}

// Option customizes a tracker.
type Option func(*options)

// Collect keeps only the named params or metrics, without it everything is logged.
func Collect(names ...string) Option {
	return func(o *options) {
		o.collect = append(o.collect, names...)
	}
}

// WithStore uses store instead of the process wide teleport store.
func WithStore(store *teleport.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithName sets the name used for the wrapped function in logs.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

func newOptions(fnName string, opts []Option) *options {
	o := &options{name: fnName}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = teleport.Default()
	}
	return o
}

// keep reports whether name passes the collection filter.
func (o *options) keep(name string) bool {
	return o.collect == nil || slices.Contains(o.collect, name)
}

type stepKeyType struct{}

var stepKey = stepKeyType{}

// WithStep returns a copy of ctx that makes metric trackers log at step.
func WithStep(ctx context.Context, step int64) context.Context {
	return context.WithValue(ctx, stepKey, step)
}

func stepFromContext(ctx context.Context) *int64 {
	step, ok := ctx.Value(stepKey).(int64)
	if !ok {
		return nil
	}
	return &step
}
