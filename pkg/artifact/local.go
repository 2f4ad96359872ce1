// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package artifact

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

var _ Repository = &localRepository{}

type localRepository struct {
	root string
}

func newLocalRepository(root string) *localRepository {
	return &localRepository{root: root}
}

func (r *localRepository) LogArtifact(ctx context.Context, localPath, artifactPath string) error {
	return walkArtifact(ctx, localPath, artifactPath, r.copyFile)
}

func (r *localRepository) copyFile(_ context.Context, localPath, key string) error {
	destination := filepath.Join(r.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return err
	}

	source, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(destination)
	if err != nil {
		return err
	}

	if _, err := io.Copy(target, source); err != nil {
		_ = target.Close()
		return err
	}

	return target.Close()
}
