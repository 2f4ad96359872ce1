// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package functions

import (
	"fmt"
	"reflect"
)

// First returns the first element of the provided list or string, nil when it is empty.
func First(list any) (any, error) {
	value := reflect.ValueOf(list)
	switch value.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		if value.Len() == 0 {
			return nil, nil
		}
		return element(value, 0), nil
	default:
		return nil, fmt.Errorf("cannot find first element of type %s", value.Kind())
	}
}

// Last returns the last element of the provided list or string, nil when it is empty.
func Last(list any) (any, error) {
	value := reflect.ValueOf(list)
	switch value.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		if value.Len() == 0 {
			return nil, nil
		}
		return element(value, value.Len()-1), nil
	default:
		return nil, fmt.Errorf("cannot find last element of type %s", value.Kind())
	}
}

func element(value reflect.Value, idx int) any {
	if value.Kind() == reflect.String {
		return string(value.String()[idx])
	}
	return value.Index(idx).Interface()
}
