// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mia-platform/mltrack/internal/logger"
	"github.com/mia-platform/mltrack/pkg/backend"
)

const apiPrefix = "/api/2.0/mlflow"

type apiError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func sendError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(apiError{ErrorCode: code, Message: message})
}

// sendStoreError maps the backend error taxonomy onto MLflow error codes.
func sendStoreError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, backend.ErrExperimentAlreadyExists):
		return sendError(c, http.StatusBadRequest, "RESOURCE_ALREADY_EXISTS", err.Error())
	case errors.Is(err, backend.ErrExperimentNotFound), errors.Is(err, backend.ErrRunNotFound):
		return sendError(c, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", err.Error())
	case errors.Is(err, backend.ErrInvalidParameter):
		return sendError(c, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", err.Error())
	default:
		logger.Named(c.UserContext(), loggerName).Error("tracking store failure", "error", err.Error())
		return sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code := "INTERNAL_ERROR"
		switch {
		case fiberErr.Code == http.StatusNotFound:
			code = "ENDPOINT_NOT_FOUND"
		case fiberErr.Code < http.StatusInternalServerError:
			code = "INVALID_PARAMETER_VALUE"
		}
		return sendError(c, fiberErr.Code, code, fiberErr.Message)
	}
	return sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(http.StatusBadRequest, "malformed request body: "+err.Error())
	}
	return nil
}

type handlers struct {
	store   backend.Store
	metrics *metrics
}

func trackingRoutes(app *fiber.App, store backend.Store, metrics *metrics) {
	h := &handlers{store: store, metrics: metrics}

	api := app.Group(apiPrefix)
	api.Get("/experiments/get-by-name", h.getExperimentByName)
	api.Post("/experiments/create", h.createExperiment)
	api.Post("/runs/create", h.createRun)
	api.Post("/runs/update", h.updateRun)
	api.Get("/runs/get", h.getRun)
	api.Post("/runs/search", h.searchRuns)
	api.Post("/runs/log-batch", h.logBatch)
}

func (h *handlers) getExperimentByName(c *fiber.Ctx) error {
	name := c.Query("experiment_name")
	if name == "" {
		return sendError(c, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", "experiment_name is required")
	}

	experiment, err := h.store.GetExperimentByName(c.UserContext(), name)
	if err != nil {
		return sendStoreError(c, err)
	}
	if experiment == nil {
		return sendError(c, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "Could not find experiment with name '"+name+"'")
	}
	return c.JSON(fiber.Map{"experiment": experiment})
}

func (h *handlers) createExperiment(c *fiber.Ctx) error {
	var request struct {
		Name             string `json:"name"`
		ArtifactLocation string `json:"artifact_location"`
	}
	if err := parseBody(c, &request); err != nil {
		return err
	}
	if request.Name == "" {
		return sendError(c, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", "name is required")
	}

	id, err := h.store.CreateExperiment(c.UserContext(), request.Name, request.ArtifactLocation)
	if err != nil {
		return sendStoreError(c, err)
	}
	return c.JSON(fiber.Map{"experiment_id": id})
}

func (h *handlers) createRun(c *fiber.Ctx) error {
	var request struct {
		ExperimentID string        `json:"experiment_id"`
		StartTime    int64         `json:"start_time"`
		Tags         []backend.Tag `json:"tags"`
	}
	if err := parseBody(c, &request); err != nil {
		return err
	}

	info, err := h.store.CreateRun(c.UserContext(), request.ExperimentID, request.StartTime, request.Tags)
	if err != nil {
		return sendStoreError(c, err)
	}

	h.metrics.runs.WithLabelValues(string(info.Status)).Inc()
	return c.JSON(fiber.Map{"run": backend.Run{Info: *info, Data: backend.RunData{Tags: request.Tags}}})
}

func (h *handlers) updateRun(c *fiber.Ctx) error {
	var request struct {
		RunID   string            `json:"run_id"`
		Status  backend.RunStatus `json:"status"`
		EndTime int64             `json:"end_time"`
	}
	if err := parseBody(c, &request); err != nil {
		return err
	}

	info, err := h.store.UpdateRun(c.UserContext(), request.RunID, request.Status, request.EndTime)
	if err != nil {
		return sendStoreError(c, err)
	}

	h.metrics.runs.WithLabelValues(string(info.Status)).Inc()
	return c.JSON(fiber.Map{"run_info": info})
}

func (h *handlers) getRun(c *fiber.Ctx) error {
	run, err := h.store.GetRun(c.UserContext(), c.Query("run_id"))
	if err != nil {
		return sendStoreError(c, err)
	}
	return c.JSON(fiber.Map{"run": run})
}

func (h *handlers) searchRuns(c *fiber.Ctx) error {
	var request struct {
		ExperimentIDs []string `json:"experiment_ids"`
	}
	if err := parseBody(c, &request); err != nil {
		return err
	}

	runs, err := h.store.SearchRuns(c.UserContext(), request.ExperimentIDs)
	if err != nil {
		return sendStoreError(c, err)
	}
	return c.JSON(fiber.Map{"runs": runs})
}

func (h *handlers) logBatch(c *fiber.Ctx) error {
	var request struct {
		RunID   string           `json:"run_id"`
		Metrics []backend.Metric `json:"metrics"`
		Params  []backend.Param  `json:"params"`
		Tags    []backend.Tag    `json:"tags"`
	}
	if err := parseBody(c, &request); err != nil {
		return err
	}

	if err := h.store.LogBatch(c.UserContext(), request.RunID, request.Metrics, request.Params, request.Tags); err != nil {
		return sendStoreError(c, err)
	}

	h.metrics.logged.WithLabelValues("metric").Add(float64(len(request.Metrics)))
	h.metrics.logged.WithLabelValues("param").Add(float64(len(request.Params)))
	h.metrics.logged.WithLabelValues("tag").Add(float64(len(request.Tags)))
	return c.JSON(fiber.Map{})
}
