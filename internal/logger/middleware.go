// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logger

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	requestIDHeaderName = "x-request-id"
	forwardedForHeader  = "x-forwarded-for"

	IncomingRequestMessage  = "incoming request"
	RequestCompletedMessage = "request completed"
)

// requestFields are the request attributes attached to both request log lines.
type requestFields struct {
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	IP        string `json:"ip,omitempty"`
}

type responseFields struct {
	StatusCode int `json:"statusCode,omitempty"`
	Bytes      int `json:"bytes,omitempty"`
}

// requestID returns the caller supplied request id or a freshly generated one.
func requestID(c *fiber.Ctx) string {
	if id := c.Get(requestIDHeaderName); id != "" {
		return id
	}
	return uuid.NewString()
}

func statusCode(c *fiber.Ctx, handlerErr error) int {
	if fiberErr, ok := handlerErr.(*fiber.Error); ok {
		return fiberErr.Code
	}
	return c.Response().StatusCode()
}

// RequestMiddlewareLogger is a fiber middleware that logs every request, the paths
// starting with one of excludedPrefix are skipped. The request logger is stored in
// the user context so handlers can retrieve it with FromContext.
func RequestMiddlewareLogger(logger Logger, excludedPrefix []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, prefix := range excludedPrefix {
			if strings.HasPrefix(path, prefix) {
				return c.Next()
			}
		}

		start := time.Now()
		reqLogger := logger.WithName("request").With("requestId", requestID(c))
		c.SetUserContext(WithContext(c.UserContext(), reqLogger))

		request := requestFields{
			Method:    c.Method(),
			Path:      path,
			UserAgent: c.Get(fiber.HeaderUserAgent),
			IP:        c.Get(forwardedForHeader, c.IP()),
		}
		reqLogger.Trace(IncomingRequestMessage, "request", request)

		err := c.Next()

		reqLogger.Info(RequestCompletedMessage,
			"request", request,
			"response", responseFields{
				StatusCode: statusCode(c, err),
				Bytes:      len(c.Response().Body()),
			},
			"responseTime", float64(time.Since(start).Milliseconds()),
		)
		return err
	}
}
