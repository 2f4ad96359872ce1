// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package artifact

import (
	"context"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"github.com/caarlos0/env/v11"
	"google.golang.org/api/option"

	"github.com/mia-platform/mltrack/internal/info"
)

var _ Repository = &gcsRepository{}

type gcsConfig struct {
	CredentialsFile string `env:"MLFLOW_GCS_CREDENTIALS_FILE"`
}

type gcsRepository struct {
	location bucketLocation
	client   *storage.Client
}

func newGCSRepository(ctx context.Context, location bucketLocation) (*gcsRepository, error) {
	var cfg gcsConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	clientOptions := []option.ClientOption{option.WithUserAgent(info.UserAgent())}
	if cfg.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOptions...)
	if err != nil {
		return nil, err
	}

	return &gcsRepository{location: location, client: client}, nil
}

func (r *gcsRepository) LogArtifact(ctx context.Context, localPath, artifactPath string) error {
	return walkArtifact(ctx, localPath, artifactPath, r.writeObject)
}

func (r *gcsRepository) writeObject(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := r.client.Bucket(r.location.bucket).Object(r.location.objectKey(key)).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"

	if _, err := io.Copy(writer, file); err != nil {
		_ = writer.Close()
		return err
	}

	return writer.Close()
}
