// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package hook feeds a tracking backend from the lifecycle callbacks of a training
// loop. In multi worker jobs only the primary worker (rank 0) talks to the backend,
// every other worker sees the callbacks as no-ops.
package hook
