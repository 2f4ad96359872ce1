// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package track

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const (
	nameTag    = "track"
	defaultTag = "default"
)

type declaredParam struct {
	name  string
	index int
	// defaultVal holds the parsed default tag, it is only valid on pointer fields.
	defaultVal reflect.Value
}

func (p declaredParam) hasDefault() bool {
	return p.defaultVal.IsValid()
}

// paramTable walks the fields of the arguments struct once. Defaults are only
// accepted on pointer fields, a nil pointer being the only way to leave a Go
// field unsupplied, and they are parsed into the pointed type.
func paramTable(argsType reflect.Type) ([]declaredParam, error) {
	if argsType.Kind() == reflect.Pointer {
		argsType = argsType.Elem()
	}
	if argsType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: arguments must be a struct, got %s", ErrUnsupportedSignature, argsType)
	}

	table := make([]declaredParam, 0, argsType.NumField())
	seen := make(map[string]struct{}, argsType.NumField())
	for i := range argsType.NumField() {
		field := argsType.Field(i)
		if !field.IsExported() {
			continue
		}

		name, ok := paramName(field)
		if !ok {
			continue
		}
		if _, duplicated := seen[name]; duplicated {
			return nil, fmt.Errorf("%w: param %q declared twice in %s", ErrUnsupportedSignature, name, argsType)
		}
		seen[name] = struct{}{}

		param := declaredParam{name: name, index: i}
		if defaultVal, ok := field.Tag.Lookup(defaultTag); ok {
			parsed, err := parseDefault(field, defaultVal)
			if err != nil {
				return nil, err
			}
			param.defaultVal = parsed
		}
		table = append(table, param)
	}

	return table, nil
}

func parseDefault(field reflect.StructField, text string) (reflect.Value, error) {
	if field.Type.Kind() != reflect.Pointer {
		return reflect.Value{}, fmt.Errorf("%w: default on field %s requires a pointer type, got %s", ErrUnsupportedSignature, field.Name, field.Type)
	}

	parsed := reflect.New(field.Type.Elem())
	if field.Type.Elem().Kind() == reflect.String {
		parsed.Elem().SetString(text)
		return parsed.Elem(), nil
	}

	if err := yaml.Unmarshal([]byte(text), parsed.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("%w: default %q of field %s: %w", ErrUnsupportedSignature, text, field.Name, err)
	}
	return parsed.Elem(), nil
}

func paramName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get(nameTag)
	if tag == "-" {
		return "", false
	}

	name, _, _ := strings.Cut(tag, ",")
	if name != "" {
		return name, true
	}

	r, size := utf8.DecodeRuneInString(field.Name)
	return string(unicode.ToLower(r)) + field.Name[size:], true
}

// withDefaults returns args with every nil pointer field that declares a default
// pointing to a fresh copy of it. Pointer arguments are shallow copied first so
// the caller's struct is left untouched, a nil pointer argument is returned as is.
func withDefaults[A any](table []declaredParam, args A) A {
	value := reflect.ValueOf(&args).Elem()
	target := value
	if value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return args
		}
		target = reflect.New(value.Type().Elem()).Elem()
		target.Set(value.Elem())
	}

	filled := false
	for _, param := range table {
		if !param.hasDefault() {
			continue
		}

		field := target.Field(param.index)
		if !field.IsNil() {
			continue
		}
		pointer := reflect.New(field.Type().Elem())
		pointer.Elem().Set(param.defaultVal)
		field.Set(pointer)
		filled = true
	}

	if filled && value.Kind() == reflect.Pointer {
		value.Set(target.Addr())
	}
	return args
}

// collectParams reads the values the wrapped function received. Value fields are
// always logged, pointers are dereferenced and skipped when nil.
func collectParams(table []declaredParam, args reflect.Value, keep func(string) bool) map[string]any {
	if args.Kind() == reflect.Pointer {
		if args.IsNil() {
			return map[string]any{}
		}
		args = args.Elem()
	}

	params := make(map[string]any, len(table))
	for _, param := range table {
		if !keep(param.name) {
			continue
		}

		field := args.Field(param.index)
		if field.Kind() == reflect.Pointer {
			if field.IsNil() {
				continue
			}
			field = field.Elem()
		}
		params[param.name] = field.Interface()
	}

	return params
}
