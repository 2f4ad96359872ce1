// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package filestore

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mia-platform/mltrack/pkg/backend"
)

const metaFileName = "meta.yaml"

// experimentMeta is the content of an experiment meta.yaml file.
type experimentMeta struct {
	ExperimentID     string `yaml:"experiment_id"`
	Name             string `yaml:"name"`
	ArtifactLocation string `yaml:"artifact_location"`
	LifecycleStage   string `yaml:"lifecycle_stage"`
	CreationTime     int64  `yaml:"creation_time"`
	LastUpdateTime   int64  `yaml:"last_update_time"`
}

func (m experimentMeta) toExperiment() *backend.Experiment {
	return &backend.Experiment{
		ID:               m.ExperimentID,
		Name:             m.Name,
		ArtifactLocation: m.ArtifactLocation,
		LifecycleStage:   m.LifecycleStage,
	}
}

// runMeta is the content of a run meta.yaml file. Status uses the numeric
// encoding of the MLflow file store.
type runMeta struct {
	RunID          string   `yaml:"run_id"`
	RunUUID        string   `yaml:"run_uuid"`
	RunName        string   `yaml:"run_name"`
	ExperimentID   string   `yaml:"experiment_id"`
	Status         int      `yaml:"status"`
	StartTime      int64    `yaml:"start_time"`
	EndTime        *int64   `yaml:"end_time"`
	ArtifactURI    string   `yaml:"artifact_uri"`
	LifecycleStage string   `yaml:"lifecycle_stage"`
	UserID         string   `yaml:"user_id"`
	Tags           []string `yaml:"tags"`
}

var (
	statusToCode = map[backend.RunStatus]int{
		backend.RunStatusRunning:   1,
		backend.RunStatusScheduled: 2,
		backend.RunStatusFinished:  3,
		backend.RunStatusFailed:    4,
		backend.RunStatusKilled:    5,
	}
	codeToStatus = map[int]backend.RunStatus{
		1: backend.RunStatusRunning,
		2: backend.RunStatusScheduled,
		3: backend.RunStatusFinished,
		4: backend.RunStatusFailed,
		5: backend.RunStatusKilled,
	}
)

func (m runMeta) toRunInfo() *backend.RunInfo {
	info := &backend.RunInfo{
		RunID:          m.RunID,
		ExperimentID:   m.ExperimentID,
		Status:         codeToStatus[m.Status],
		StartTime:      m.StartTime,
		ArtifactURI:    m.ArtifactURI,
		LifecycleStage: m.LifecycleStage,
	}
	if m.EndTime != nil {
		info.EndTime = *m.EndTime
	}
	return info
}

func readMeta(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: malformed %s: %w", errCorruptedStore, path, err)
	}
	return nil
}

func writeMeta(path string, in any) error {
	data, err := yaml.Marshal(in)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var errCorruptedStore = errors.New("corrupted file store")
