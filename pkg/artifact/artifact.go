// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedScheme reports an artifact URI whose scheme has no repository.
	ErrUnsupportedScheme = errors.New("unsupported artifact uri scheme")
	// ErrInvalidURI reports a malformed artifact URI.
	ErrInvalidURI = errors.New("invalid artifact uri")
)

// Repository stores the artifacts of a single run.
type Repository interface {
	// LogArtifact uploads the file or directory at localPath under artifactPath.
	// Directories keep their relative layout below their base name.
	LogArtifact(ctx context.Context, localPath, artifactPath string) error
}

// New returns the repository for uri, choosing the implementation from its scheme.
func New(ctx context.Context, uri string) (Repository, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidURI, uri, err)
	}

	switch parsed.Scheme {
	case "", "file":
		return newLocalRepository(localRoot(uri, parsed)), nil
	case "s3":
		location, err := parseBucketURI(parsed)
		if err != nil {
			return nil, err
		}
		return newS3Repository(ctx, location)
	case "gs":
		location, err := parseBucketURI(parsed)
		if err != nil {
			return nil, err
		}
		return newGCSRepository(ctx, location)
	case "wasbs", "wasb":
		location, err := parseAzureURI(parsed)
		if err != nil {
			return nil, err
		}
		return newAzureRepository(location)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, parsed.Scheme)
	}
}

// localRoot returns the filesystem path of a plain path or file:// uri.
func localRoot(uri string, parsed *url.URL) string {
	if parsed.Scheme == "" {
		return uri
	}
	return filepath.FromSlash(parsed.Path)
}

// bucketLocation is the bucket and key prefix of an object storage uri.
type bucketLocation struct {
	bucket string
	prefix string
}

func parseBucketURI(parsed *url.URL) (bucketLocation, error) {
	if parsed.Host == "" {
		return bucketLocation{}, fmt.Errorf("%w: missing bucket in %q", ErrInvalidURI, parsed.String())
	}

	return bucketLocation{
		bucket: parsed.Host,
		prefix: strings.Trim(parsed.Path, "/"),
	}, nil
}

// objectKey joins the repository prefix, the artifact path and the relative file name.
func (l bucketLocation) objectKey(parts ...string) string {
	return strings.TrimPrefix(path.Join(append([]string{l.prefix}, parts...)...), "/")
}

// uploadFunc stores the local file at localPath under the relative name key.
type uploadFunc func(ctx context.Context, localPath, key string) error

// walkArtifact calls upload for every regular file below localPath. Keys are slash separated
// and relative to artifactPath, a directory contributes its base name.
func walkArtifact(ctx context.Context, localPath, artifactPath string, upload uploadFunc) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return upload(ctx, localPath, path.Join(filepath.ToSlash(artifactPath), filepath.Base(localPath)))
	}

	base := filepath.Base(filepath.Clean(localPath))
	return filepath.WalkDir(localPath, func(walkedPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relative, err := filepath.Rel(localPath, walkedPath)
		if err != nil {
			return err
		}

		key := path.Join(filepath.ToSlash(artifactPath), base, filepath.ToSlash(relative))
		return upload(ctx, walkedPath, key)
	})
}
