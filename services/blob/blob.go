// Package blobsvc provides the BlobStore implementations: a local directory & a Backblaze B2 bucket.
package blobsvc

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
)

// New returns the BlobStore selected by conf.Blob.Engine.
func New(ctx context.Context, conf *core.Config) (core.BlobStore, error) {
	switch conf.Blob.Engine {
	case core.BlobLocal:
		return NewLocalStore(conf.Blob.LocalDir, conf.Blob.BaseURL)
	case core.BlobB2:
		return NewB2Store(ctx, conf.Blob.B2Account, conf.Blob.B2Key, conf.Blob.B2Bucket, conf.Blob.BaseURL)
	default:
		return nil, errors.Errorf("unknown blob engine %q", conf.Blob.Engine)
	}
}

var errBadBlobPath = errors.New("invalid blob path")

// cleanKey returns path without leading or trailing slashes, rejecting empty and relative segments.
func cleanKey(path string) (string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." || strings.Contains(seg, "\\") {
			return "", core.NewValidationError(errors.Wrapf(errBadBlobPath, "%q", path))
		}
	}
	return strings.Join(segments, "/"), nil
}
