// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/mia-platform/mltrack/internal/info"
	"github.com/mia-platform/mltrack/pkg/backend"
)

const (
	apiPrefix      = "/api/2.0/mlflow/"
	searchPageSize = 1000

	errorCodeAlreadyExists    = "RESOURCE_ALREADY_EXISTS"
	errorCodeDoesNotExist     = "RESOURCE_DOES_NOT_EXIST"
	errorCodeInvalidParameter = "INVALID_PARAMETER_VALUE"
)

var _ backend.Store = &Store{}

// APIError is an error answered by the tracking server.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("tracking server answered %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("tracking server answered %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps the MLflow error codes onto the backend error taxonomy.
func (e *APIError) Unwrap() error {
	switch {
	case e.Code == errorCodeAlreadyExists:
		return backend.ErrExperimentAlreadyExists
	case e.Code == errorCodeInvalidParameter:
		return backend.ErrInvalidParameter
	case e.StatusCode >= http.StatusInternalServerError:
		return backend.ErrBackendUnavailable
	default:
		return nil
	}
}

// Store talks to a tracking server over HTTP.
type Store struct {
	config

	endpoint *url.URL
	client   atomic.Pointer[http.Client]
}

// New returns a Store for the tracking server at endpoint.
func New(endpoint string) (*Store, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s", backend.ErrUnsupportedEndpoint, endpoint)
	}

	cfg, err := loadConfigFromEnv(parsed)
	if err != nil {
		return nil, err
	}

	return &Store{config: *cfg, endpoint: parsed}, nil
}

type experimentResponse struct {
	Experiment *backend.Experiment `json:"experiment"`
}

// GetExperimentByName implements backend.Store.
func (s *Store) GetExperimentByName(ctx context.Context, name string) (*backend.Experiment, error) {
	var response experimentResponse
	query := url.Values{"experiment_name": []string{name}}
	err := s.do(ctx, http.MethodGet, "experiments/get-by-name", query, nil, &response)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == errorCodeDoesNotExist {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return response.Experiment, nil
}

// CreateExperiment implements backend.Store.
func (s *Store) CreateExperiment(ctx context.Context, name, artifactLocation string) (string, error) {
	request := map[string]string{"name": name}
	if artifactLocation != "" {
		request["artifact_location"] = artifactLocation
	}

	var response struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := s.do(ctx, http.MethodPost, "experiments/create", nil, request, &response); err != nil {
		return "", err
	}
	return response.ExperimentID, nil
}

type runResponse struct {
	Run *backend.Run `json:"run"`
}

// CreateRun implements backend.Store.
func (s *Store) CreateRun(ctx context.Context, experimentID string, startTime int64, tags []backend.Tag) (*backend.RunInfo, error) {
	request := struct {
		ExperimentID string        `json:"experiment_id"`
		StartTime    int64         `json:"start_time"`
		Tags         []backend.Tag `json:"tags,omitempty"`
	}{
		ExperimentID: experimentID,
		StartTime:    startTime,
		Tags:         tags,
	}

	var response runResponse
	if err := s.do(ctx, http.MethodPost, "runs/create", nil, request, &response); err != nil {
		return nil, err
	}
	if response.Run == nil {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "empty run in response"}
	}
	return &response.Run.Info, nil
}

// UpdateRun implements backend.Store.
func (s *Store) UpdateRun(ctx context.Context, runID string, status backend.RunStatus, endTime int64) (*backend.RunInfo, error) {
	request := struct {
		RunID   string            `json:"run_id"`
		Status  backend.RunStatus `json:"status"`
		EndTime int64             `json:"end_time,omitempty"`
	}{
		RunID:   runID,
		Status:  status,
		EndTime: endTime,
	}

	var response struct {
		RunInfo *backend.RunInfo `json:"run_info"`
	}
	if err := s.do(ctx, http.MethodPost, "runs/update", nil, request, &response); err != nil {
		return nil, err
	}
	if response.RunInfo == nil {
		return &backend.RunInfo{RunID: runID, Status: status, EndTime: endTime}, nil
	}
	return response.RunInfo, nil
}

// GetRun implements backend.Store.
func (s *Store) GetRun(ctx context.Context, runID string) (*backend.Run, error) {
	var response runResponse
	err := s.do(ctx, http.MethodGet, "runs/get", url.Values{"run_id": []string{runID}}, nil, &response)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == errorCodeDoesNotExist {
		return nil, fmt.Errorf("%w: %s", backend.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	if response.Run == nil {
		return nil, fmt.Errorf("%w: %s", backend.ErrRunNotFound, runID)
	}
	return response.Run, nil
}

// SearchRuns implements backend.Store, following the page tokens until the last page.
func (s *Store) SearchRuns(ctx context.Context, experimentIDs []string) ([]*backend.Run, error) {
	runs := make([]*backend.Run, 0)
	pageToken := ""
	for {
		request := struct {
			ExperimentIDs []string `json:"experiment_ids"`
			MaxResults    int      `json:"max_results"`
			OrderBy       []string `json:"order_by"`
			PageToken     string   `json:"page_token,omitempty"`
		}{
			ExperimentIDs: experimentIDs,
			MaxResults:    searchPageSize,
			OrderBy:       []string{"attributes.start_time DESC"},
			PageToken:     pageToken,
		}

		var response struct {
			Runs          []*backend.Run `json:"runs"`
			NextPageToken string         `json:"next_page_token"`
		}
		if err := s.do(ctx, http.MethodPost, "runs/search", nil, request, &response); err != nil {
			return nil, err
		}

		runs = append(runs, response.Runs...)
		if response.NextPageToken == "" {
			return runs, nil
		}
		pageToken = response.NextPageToken
	}
}

// LogBatch implements backend.Store.
func (s *Store) LogBatch(ctx context.Context, runID string, metrics []backend.Metric, params []backend.Param, tags []backend.Tag) error {
	request := struct {
		RunID   string           `json:"run_id"`
		Metrics []backend.Metric `json:"metrics,omitempty"`
		Params  []backend.Param  `json:"params,omitempty"`
		Tags    []backend.Tag    `json:"tags,omitempty"`
	}{
		RunID:   runID,
		Metrics: metrics,
		Params:  params,
		Tags:    tags,
	}

	return s.do(ctx, http.MethodPost, "runs/log-batch", nil, request, nil)
}

// do sends a request to the api path and decodes the JSON answer into response when not nil.
func (s *Store) do(ctx context.Context, method, path string, query url.Values, body, response any) error {
	target := *s.endpoint
	target.Path = strings.TrimSuffix(target.Path, "/") + apiPrefix + path
	target.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}

	request.Header.Set("User-Agent", info.UserAgent())
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if s.Username != "" {
		request.SetBasicAuth(s.Username, s.Password)
	}

	//nolint:contextcheck // the token source outlives the single request
	resp, err := s.getClient(context.Background()).Do(request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", backend.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if response == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (s *Store) getClient(ctx context.Context) *http.Client {
	client := s.client.Load()
	if client != nil {
		return client
	}

	client = &http.Client{Transport: newTransport(ctx, &s.config)}
	s.client.Store(client)
	return client
}
