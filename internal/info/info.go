// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package info holds application version information.
package info

import "runtime"

var (
	// AppName is the name of the application.
	AppName = "mltrack"
	// Version is dynamically set by the ci or overridden by the Makefile.
	Version = "DEV"
	// BuildDate is dynamically set at build time by the cli or overridden in the Makefile.
	BuildDate = "" // YYYY-MM-DD
)

// UserAgent returns the User-Agent string used for outgoing HTTP requests.
func UserAgent() string {
	return AppName + "/" + Version
}

// VersionString formats the version metadata for display.
func VersionString() string {
	outputString := Version
	if BuildDate != "" {
		outputString += " (" + BuildDate + ")"
	}

	return outputString + ", Go Version: " + runtime.Version()
}
