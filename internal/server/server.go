// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/mia-platform/mltrack/internal/info"
	"github.com/mia-platform/mltrack/internal/logger"
	"github.com/mia-platform/mltrack/pkg/backend"
)

const (
	serviceName = "mltrack"
	loggerName  = "mltrack:server"
)

// Server is a tracking server that can be started and stopped.
type Server interface {
	Start() error
	Stop() error
	StartAsync(ctx context.Context)
}

var _ Server = &impServer{}

type impServer struct {
	config

	app *fiber.App
}

var (
	ErrServerListen   = errors.New("server listen error")
	ErrServerShutdown = errors.New("server shutdown error")
)

// NewServer returns a server exposing store, configured from the environment.
func NewServer(ctx context.Context, store backend.Store) (Server, error) {
	cfg, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	return &impServer{
		app:    newApp(ctx, cfg, store),
		config: *cfg,
	}, nil
}

func newApp(ctx context.Context, cfg *config, store backend.Store) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: cfg.DisableStartupMessage,
		ErrorHandler:          errorHandler,
	})

	metrics := newMetrics()
	log := logger.FromContext(ctx)
	app.Use(logger.RequestMiddlewareLogger(log, []string{"/-/"}))
	app.Use(metrics.middleware())

	statusRoutes(app, serviceName, info.Version)
	app.Get("/-/metrics", metrics.handler())
	trackingRoutes(app, store, metrics)

	return app
}

func (s *impServer) Start() error {
	address := net.JoinHostPort(s.HTTPHost, strconv.Itoa(s.HTTPPort))
	if err := s.app.Listen(address); err != nil {
		return fmt.Errorf("%w: %w", ErrServerListen, err)
	}
	return nil
}

func (s *impServer) Stop() error {
	if err := s.app.Shutdown(); err != nil {
		return fmt.Errorf("%w: %w", ErrServerShutdown, err)
	}
	return nil
}

func (s *impServer) StartAsync(ctx context.Context) {
	log := logger.FromContext(ctx).WithName(loggerName)
	go func() {
		if err := s.Start(); err != nil {
			log.Error(err.Error())
		}
	}()
}
