// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package render

// Ensure the error types implement the error interface.
var (
	_ error = &ParsingError{}
	_ error = &RenderError{}
)

const (
	errTemplateParsing   = "template parsing error"
	errTemplateRendering = "template rendering error"
)

// ParsingError is returned when one or more templates cannot be parsed.
type ParsingError struct {
	msg string
	err error
}

func NewParsingError(err error) *ParsingError {
	return &ParsingError{
		msg: withCause(errTemplateParsing, err),
		err: err,
	}
}

func (e *ParsingError) Error() string {
	return e.msg
}

func (e *ParsingError) Unwrap() error {
	return e.err
}

func (e *ParsingError) Is(target error) bool {
	_, ok := target.(*ParsingError)
	return ok
}

// RenderError is returned when one or more templates fail against the provided data.
type RenderError struct {
	msg string
	err error
}

func NewRenderError(err error) *RenderError {
	return &RenderError{
		msg: withCause(errTemplateRendering, err),
		err: err,
	}
}

func (e *RenderError) Error() string {
	return e.msg
}

func (e *RenderError) Unwrap() error {
	return e.err
}

func (e *RenderError) Is(target error) bool {
	_, ok := target.(*RenderError)
	return ok
}

func withCause(msg string, err error) string {
	if err != nil {
		msg = msg + "\n" + err.Error()
	}
	return msg
}
