// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package functions

import "text/template"

// FuncMap returns the functions available to tag templates.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		// strings
		"quote":      Quote,
		"trim":       TrimSpace,
		"trimPrefix": TrimPrefix,
		"trimSuffix": TrimSuffix,
		"replace":    Replace,
		"upper":      ToUpper,
		"lower":      ToLower,
		"truncate":   Truncate,
		"split":      Split,

		// paths
		"base": Base,
		"dir":  Dir,
		"stem": Stem,

		// lists and objects
		"first":  First,
		"last":   Last,
		"get":    Get,
		"dig":    Dig,
		"toJson": ToJSON,

		// identifiers
		"sha256sum": Sha256Sum,
		"shortHash": ShortHash,
		"uuidv7":    UUIDV7,
		"now":       Now,
	}
}
