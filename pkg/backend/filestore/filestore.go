// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package filestore

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mia-platform/mltrack/pkg/backend"
)

const (
	defaultExperimentID = "0"

	paramsDir    = "params"
	metricsDir   = "metrics"
	tagsDir      = "tags"
	artifactsDir = "artifacts"
)

var _ backend.Store = &Store{}

// Store is a backend.Store persisted in a local directory.
type Store struct {
	root string
	now  func() time.Time

	lock sync.Mutex
}

// New opens the file store rooted at root, creating it together with the default
// experiment when it does not exist yet.
func New(root string) (*Store, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrBackendUnavailable, err)
	}

	store := &Store{root: absRoot, now: time.Now}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrBackendUnavailable, err)
	}

	if _, err := os.Stat(filepath.Join(absRoot, defaultExperimentID, metaFileName)); errors.Is(err, fs.ErrNotExist) {
		if err := store.writeExperiment(defaultExperimentID, backend.DefaultExperimentName, ""); err != nil {
			return nil, fmt.Errorf("%w: %w", backend.ErrBackendUnavailable, err)
		}
	}

	return store, nil
}

// Root returns the absolute path of the store.
func (s *Store) Root() string {
	return s.root
}

// GetExperimentByName implements backend.Store.
func (s *Store) GetExperimentByName(_ context.Context, name string) (*backend.Experiment, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	experiments, err := s.experiments()
	if err != nil {
		return nil, err
	}

	for _, experiment := range experiments {
		if experiment.Name == name {
			return experiment.toExperiment(), nil
		}
	}
	return nil, nil
}

// GetExperiment returns the experiment with id.
func (s *Store) GetExperiment(_ context.Context, id string) (*backend.Experiment, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	dir, err := s.experimentDir(id)
	if err != nil {
		return nil, err
	}

	var meta experimentMeta
	if err := readMeta(filepath.Join(dir, metaFileName), &meta); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", backend.ErrExperimentNotFound, id)
		}
		return nil, err
	}
	return meta.toExperiment(), nil
}

// CreateExperiment implements backend.Store. Ids are assigned sequentially.
func (s *Store) CreateExperiment(_ context.Context, name, artifactLocation string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: experiment name must not be empty", backend.ErrInvalidParameter)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	experiments, err := s.experiments()
	if err != nil {
		return "", err
	}

	nextID := 0
	for _, experiment := range experiments {
		if experiment.Name == name {
			return "", fmt.Errorf("%w: %s", backend.ErrExperimentAlreadyExists, name)
		}
		if id, err := strconv.Atoi(experiment.ExperimentID); err == nil && id >= nextID {
			nextID = id + 1
		}
	}

	id := strconv.Itoa(nextID)
	if err := s.writeExperiment(id, name, artifactLocation); err != nil {
		return "", err
	}
	return id, nil
}

// CreateRun implements backend.Store.
func (s *Store) CreateRun(_ context.Context, experimentID string, startTime int64, tags []backend.Tag) (*backend.RunInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	experimentDir, err := s.experimentDir(experimentID)
	if err != nil {
		return nil, err
	}

	var experiment experimentMeta
	if err := readMeta(filepath.Join(experimentDir, metaFileName), &experiment); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", backend.ErrExperimentNotFound, experimentID)
		}
		return nil, err
	}

	runID := strings.ReplaceAll(uuid.NewString(), "-", "")
	runDir := filepath.Join(experimentDir, runID)
	for _, dir := range []string{paramsDir, metricsDir, tagsDir, artifactsDir} {
		if err := os.MkdirAll(filepath.Join(runDir, dir), 0o755); err != nil {
			return nil, err
		}
	}

	meta := runMeta{
		RunID:          runID,
		RunUUID:        runID,
		ExperimentID:   experimentID,
		Status:         statusToCode[backend.RunStatusRunning],
		StartTime:      startTime,
		ArtifactURI:    joinLocation(experiment.ArtifactLocation, runID, artifactsDir),
		LifecycleStage: backend.LifecycleActive,
		Tags:           []string{},
	}
	if err := writeMeta(filepath.Join(runDir, metaFileName), meta); err != nil {
		return nil, err
	}

	for _, tag := range tags {
		if err := s.writeValue(runDir, tagsDir, tag.Key, tag.Value); err != nil {
			return nil, err
		}
	}

	return meta.toRunInfo(), nil
}

// UpdateRun implements backend.Store. A zero endTime leaves the end time unset.
func (s *Store) UpdateRun(_ context.Context, runID string, status backend.RunStatus, endTime int64) (*backend.RunInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	runDir, meta, err := s.findRun(runID)
	if err != nil {
		return nil, err
	}

	code, ok := statusToCode[status]
	if !ok {
		return nil, fmt.Errorf("%w: unknown run status %q", backend.ErrInvalidParameter, status)
	}

	meta.Status = code
	meta.EndTime = nil
	if endTime != 0 {
		meta.EndTime = &endTime
	}

	if err := writeMeta(filepath.Join(runDir, metaFileName), meta); err != nil {
		return nil, err
	}
	return meta.toRunInfo(), nil
}

// GetRun implements backend.Store.
func (s *Store) GetRun(_ context.Context, runID string) (*backend.Run, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	runDir, meta, err := s.findRun(runID)
	if err != nil {
		return nil, err
	}
	return s.readRun(runDir, meta)
}

// SearchRuns implements backend.Store. Runs are sorted by start time, newest first.
func (s *Store) SearchRuns(_ context.Context, experimentIDs []string) ([]*backend.Run, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	runs := make([]*backend.Run, 0)
	for _, experimentID := range experimentIDs {
		experimentDir, err := s.experimentDir(experimentID)
		if err != nil {
			return nil, err
		}

		entries, err := os.ReadDir(experimentDir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", backend.ErrExperimentNotFound, experimentID)
			}
			return nil, err
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			runDir := filepath.Join(experimentDir, entry.Name())
			var meta runMeta
			if err := readMeta(filepath.Join(runDir, metaFileName), &meta); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, err
			}

			run, err := s.readRun(runDir, meta)
			if err != nil {
				return nil, err
			}
			runs = append(runs, run)
		}
	}

	slices.SortStableFunc(runs, func(a, b *backend.Run) int {
		return cmp.Compare(b.Info.StartTime, a.Info.StartTime)
	})
	return runs, nil
}

// LogBatch implements backend.Store. Params are immutable: logging an existing
// param again is accepted only with the same value.
func (s *Store) LogBatch(_ context.Context, runID string, metrics []backend.Metric, params []backend.Param, tags []backend.Tag) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	runDir, meta, err := s.findRun(runID)
	if err != nil {
		return err
	}
	if codeToStatus[meta.Status] != backend.RunStatusRunning {
		return fmt.Errorf("%w: run %s is not active", backend.ErrInvalidParameter, runID)
	}

	for _, param := range params {
		if err := s.writeParam(runDir, param); err != nil {
			return err
		}
	}

	for _, metric := range metrics {
		if err := s.appendMetric(runDir, metric); err != nil {
			return err
		}
	}

	for _, tag := range tags {
		if err := s.writeValue(runDir, tagsDir, tag.Key, tag.Value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) experiments() ([]experimentMeta, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrBackendUnavailable, err)
	}

	experiments := make([]experimentMeta, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		var meta experimentMeta
		if err := readMeta(filepath.Join(s.root, entry.Name(), metaFileName), &meta); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		experiments = append(experiments, meta)
	}
	return experiments, nil
}

func (s *Store) writeExperiment(id, name, artifactLocation string) error {
	experimentDir := filepath.Join(s.root, id)
	if err := os.MkdirAll(experimentDir, 0o755); err != nil {
		return err
	}

	if artifactLocation == "" {
		artifactLocation = experimentDir
	}

	now := s.now().UnixMilli()
	return writeMeta(filepath.Join(experimentDir, metaFileName), experimentMeta{
		ExperimentID:     id,
		Name:             name,
		ArtifactLocation: artifactLocation,
		LifecycleStage:   backend.LifecycleActive,
		CreationTime:     now,
		LastUpdateTime:   now,
	})
}

// experimentDir returns the directory of the experiment id, ids that could escape
// the root are reported as not found.
func (s *Store) experimentDir(id string) (string, error) {
	if !validID(id) {
		return "", fmt.Errorf("%w: %q", backend.ErrExperimentNotFound, id)
	}
	return filepath.Join(s.root, id), nil
}

func (s *Store) findRun(runID string) (string, runMeta, error) {
	if !validID(runID) {
		return "", runMeta{}, fmt.Errorf("%w: %q", backend.ErrRunNotFound, runID)
	}

	matches, err := filepath.Glob(filepath.Join(s.root, "*", runID, metaFileName))
	if err != nil {
		return "", runMeta{}, err
	}
	if len(matches) == 0 {
		return "", runMeta{}, fmt.Errorf("%w: %s", backend.ErrRunNotFound, runID)
	}

	var meta runMeta
	if err := readMeta(matches[0], &meta); err != nil {
		return "", runMeta{}, err
	}
	return filepath.Dir(matches[0]), meta, nil
}

// validID reports whether id names a single directory entry below the root.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\.`)
}

func (s *Store) readRun(runDir string, meta runMeta) (*backend.Run, error) {
	run := &backend.Run{Info: *meta.toRunInfo()}

	params, err := readValues(filepath.Join(runDir, paramsDir))
	if err != nil {
		return nil, err
	}
	for _, key := range sortedKeys(params) {
		run.Data.Params = append(run.Data.Params, backend.Param{Key: key, Value: params[key]})
	}

	tags, err := readValues(filepath.Join(runDir, tagsDir))
	if err != nil {
		return nil, err
	}
	for _, key := range sortedKeys(tags) {
		run.Data.Tags = append(run.Data.Tags, backend.Tag{Key: key, Value: tags[key]})
	}

	metrics, err := readLatestMetrics(filepath.Join(runDir, metricsDir))
	if err != nil {
		return nil, err
	}
	run.Data.Metrics = metrics
	return run, nil
}

func (s *Store) writeParam(runDir string, param backend.Param) error {
	path, err := keyPath(runDir, paramsDir, param.Key)
	if err != nil {
		return err
	}

	existing, err := os.ReadFile(path)
	switch {
	case err == nil && string(existing) != param.Value:
		return fmt.Errorf("%w: changing param %q from %q to %q is not allowed", backend.ErrInvalidParameter, param.Key, existing, param.Value)
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	return s.writeValue(runDir, paramsDir, param.Key, param.Value)
}

func (s *Store) writeValue(runDir, kind, key, value string) error {
	path, err := keyPath(runDir, kind, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(value), 0o644)
}

func (s *Store) appendMetric(runDir string, metric backend.Metric) error {
	path, err := keyPath(runDir, metricsDir, metric.Key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	line := fmt.Sprintf("%d %s %d\n", metric.Timestamp, strconv.FormatFloat(metric.Value, 'g', -1, 64), metric.Step)
	if _, err := file.WriteString(line); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// keyPath validates key and returns its file path under runDir/kind.
func keyPath(runDir, kind, key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(cleaned) || cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("%w: invalid key %q", backend.ErrInvalidParameter, key)
	}
	return filepath.Join(runDir, kind, cleaned), nil
}

// readValues reads every file below dir, keys use slash separators.
func readValues(dir string) (map[string]string, error) {
	values := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		relative, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		values[filepath.ToSlash(relative)] = string(content)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	return values, err
}

// readLatestMetrics returns the metric with the highest step, then timestamp, for every key.
func readLatestMetrics(dir string) ([]backend.Metric, error) {
	latest := make(map[string]backend.Metric)
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		relative, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(relative)

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			metric, err := parseMetricLine(key, scanner.Text())
			if err != nil {
				return fmt.Errorf("%w: metric %s: %w", errCorruptedStore, key, err)
			}

			current, found := latest[key]
			if !found || metric.Step > current.Step || (metric.Step == current.Step && metric.Timestamp >= current.Timestamp) {
				latest[key] = metric
			}
		}
		return scanner.Err()
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	metrics := make([]backend.Metric, 0, len(latest))
	for _, key := range sortedKeys(latest) {
		metrics = append(metrics, latest[key])
	}
	return metrics, nil
}

func parseMetricLine(key, line string) (backend.Metric, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return backend.Metric{}, fmt.Errorf("malformed line %q", line)
	}

	timestamp, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return backend.Metric{}, err
	}

	value, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return backend.Metric{}, err
	}

	var step int64
	if len(fields) > 2 {
		if step, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
			return backend.Metric{}, err
		}
	}

	return backend.Metric{Key: key, Value: value, Timestamp: timestamp, Step: step}, nil
}

func sortedKeys[V any](values map[string]V) []string {
	return slices.Sorted(maps.Keys(values))
}

// joinLocation appends elements to an artifact location, which may be a path or a uri.
func joinLocation(location string, elements ...string) string {
	if strings.Contains(location, "://") {
		return strings.TrimSuffix(location, "/") + "/" + strings.Join(elements, "/")
	}
	return filepath.Join(append([]string{location}, elements...)...)
}
