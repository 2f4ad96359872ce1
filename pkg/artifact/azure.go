// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package artifact

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/caarlos0/env/v11"
)

var _ Repository = &azureRepository{}

type azureConfig struct {
	ConnectionString string `env:"AZURE_STORAGE_CONNECTION_STRING"`
}

// azureLocation is parsed from wasbs://<container>@<account>.blob.core.windows.net/<prefix>.
type azureLocation struct {
	bucketLocation

	serviceURL string
}

func parseAzureURI(parsed *url.URL) (azureLocation, error) {
	container := parsed.User.Username()
	if container == "" || parsed.Host == "" {
		return azureLocation{}, fmt.Errorf("%w: expected wasbs://<container>@<account>.blob.core.windows.net/<path>, got %q", ErrInvalidURI, parsed.String())
	}

	host := parsed.Host
	if !strings.Contains(host, ".blob.core.windows.net") {
		host += ".blob.core.windows.net"
	}

	return azureLocation{
		bucketLocation: bucketLocation{
			bucket: container,
			prefix: strings.Trim(parsed.Path, "/"),
		},
		serviceURL: "https://" + host + "/",
	}, nil
}

type azureRepository struct {
	location azureLocation
	client   *azblob.Client
}

func newAzureRepository(location azureLocation) (*azureRepository, error) {
	var cfg azureConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	if cfg.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, err
		}
		return &azureRepository{location: location, client: client}, nil
	}

	credentials, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}

	client, err := newAzureClient(location.serviceURL, credentials)
	if err != nil {
		return nil, err
	}

	return &azureRepository{location: location, client: client}, nil
}

func newAzureClient(serviceURL string, credentials azcore.TokenCredential) (*azblob.Client, error) {
	return azblob.NewClient(serviceURL, credentials, nil)
}

func (r *azureRepository) LogArtifact(ctx context.Context, localPath, artifactPath string) error {
	return walkArtifact(ctx, localPath, artifactPath, r.uploadBlob)
}

func (r *azureRepository) uploadBlob(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = r.client.UploadFile(ctx, r.location.bucket, r.location.objectKey(key), file, nil)
	return err
}
