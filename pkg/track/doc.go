// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package track wraps functions and methods so that their arguments are logged as
// run params and their return values as run metrics.
//
// Wrapped functions take a context and a single arguments struct:
//
//	type trainArgs struct {
//		LR     *float64 `track:"lr" default:"0.001"`
//		Epochs *int     `track:"epochs" default:"10"`
//		Seed   int      `track:"seed"`
//		Data   string   `track:"-"`
//	}
//
//	train := track.Params(func(ctx context.Context, args trainArgs) (float64, error) { ... })
//	fit := track.MethodMetrics((*Model).Fit, []string{"loss", "acc"})
//
// The field table is built once when the function is wrapped. Defaults are declared on
// pointer fields only: a nil field receives the default before the call, and the
// logged params are the values the function received. Before every call the
// destination resolved by the teleport package is applied to the backend.
package track
