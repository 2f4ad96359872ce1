// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package functions

import "encoding/json"

// Get returns object[key] or defaultValue when the key is missing.
func Get(key string, object map[string]any, defaultValue any) any {
	if val, exists := object[key]; exists {
		return val
	}

	return defaultValue
}

// Dig walks nested config sections following keys, the last argument is the object.
// It returns nil when a section is missing.
func Dig(keysAndObject ...any) any {
	if len(keysAndObject) == 0 {
		return nil
	}

	current := keysAndObject[len(keysAndObject)-1]
	for _, key := range keysAndObject[:len(keysAndObject)-1] {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		if current, ok = node[castToString(key)]; !ok {
			return nil
		}
	}
	return current
}

// ToJSON converts a value to its JSON string representation.
func ToJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	return string(data)
}
