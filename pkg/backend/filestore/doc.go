// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package filestore implements backend.Store on a local directory using the MLflow
// "mlruns" layout, so runs logged by mltrack can be browsed with the MLflow UI.
//
//	<root>/<experiment id>/meta.yaml
//	<root>/<experiment id>/<run id>/meta.yaml
//	<root>/<experiment id>/<run id>/params/<key>
//	<root>/<experiment id>/<run id>/metrics/<key>
//	<root>/<experiment id>/<run id>/tags/<key>
//	<root>/<experiment id>/<run id>/artifacts/
package filestore
