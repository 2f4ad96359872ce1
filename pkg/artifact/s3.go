// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package artifact

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/caarlos0/env/v11"
)

var _ Repository = &s3Repository{}

// s3Config holds the optional overrides for S3 compatible storages such as MinIO.
type s3Config struct {
	EndpointURL string `env:"MLFLOW_S3_ENDPOINT_URL"`
}

// s3PutObjectAPI is the subset of the S3 client used by the repository.
type s3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Repository struct {
	location bucketLocation
	client   s3PutObjectAPI
}

func newS3Repository(ctx context.Context, location bucketLocation) (*s3Repository, error) {
	var cfg s3Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	awsConfig, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	return &s3Repository{location: location, client: client}, nil
}

func (r *s3Repository) LogArtifact(ctx context.Context, localPath, artifactPath string) error {
	return walkArtifact(ctx, localPath, artifactPath, r.putObject)
}

func (r *s3Repository) putObject(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.location.bucket),
		Key:    aws.String(r.location.objectKey(key)),
		Body:   file,
	})
	return err
}
