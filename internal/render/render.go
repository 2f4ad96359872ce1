// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package render

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"text/template"

	"github.com/mia-platform/mltrack/internal/render/functions"
)

// Renderer turns a set of named go templates into strings, one per name.
// Values without template actions render to themselves.
type Renderer struct {
	templates map[string]*template.Template
}

// New parses every template of templates, parsing errors are collected and returned together.
func New(templates map[string]string) (*Renderer, error) {
	var parsingErrs error
	root := template.New("main").Funcs(functions.FuncMap()).Option("missingkey=error")

	parsed := make(map[string]*template.Template, len(templates))
	for name, text := range templates {
		tmpl, err := root.New(name).Parse(text)
		if err != nil {
			parsingErrs = errors.Join(parsingErrs, err)
			continue
		}
		parsed[name] = tmpl
	}

	if parsingErrs != nil {
		return nil, NewParsingError(parsingErrs)
	}

	return &Renderer{templates: parsed}, nil
}

// Render executes every template against data. A nil Renderer renders nothing.
func (r *Renderer) Render(data map[string]any) (map[string]string, error) {
	if r == nil {
		return map[string]string{}, nil
	}

	var renderErrs error
	output := make(map[string]string, len(r.templates))
	for _, name := range slices.Sorted(maps.Keys(r.templates)) {
		builder := new(strings.Builder)
		if err := r.templates[name].Execute(builder, data); err != nil {
			renderErrs = errors.Join(renderErrs, err)
			continue
		}
		output[name] = builder.String()
	}

	if renderErrs != nil {
		return nil, NewRenderError(renderErrs)
	}
	return output, nil
}
