package blobsvc

import (
	"context"
	"io"
	"strings"

	"github.com/kurin/blazer/b2"
	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
)

// B2Store keeps blobs in a Backblaze B2 bucket.
type B2Store struct {
	client  *b2.Client
	bucket  *b2.Bucket
	baseURL string // optional CDN in front of the bucket
}

var _ core.BlobStore = (*B2Store)(nil)

func NewB2Store(ctx context.Context, account, key, bucketName, baseURL string) (*B2Store, error) {
	client, err := b2.NewClient(ctx, account, key)
	if err != nil {
		return nil, core.NewBackendError("creating b2 client", err)
	}
	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, core.NewBackendError("getting b2 bucket", err)
	}
	return &B2Store{client: client, bucket: bucket, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *B2Store) Upload(ctx context.Context, path string, r io.Reader, size int64) *core.Upload {
	key, err := cleanKey(path)
	if err != nil {
		return core.FailedUpload(err)
	}
	return core.StartUpload(ctx, r, size, func(ctx context.Context, r io.Reader) (string, error) {
		obj := s.bucket.Object(key)
		w := obj.NewWriter(ctx)
		if _, err := io.Copy(w, r); err != nil {
			_ = w.Close()
			return "", errors.Wrap(err, "writing object")
		}
		if err := w.Close(); err != nil {
			return "", errors.Wrap(err, "closing object writer")
		}
		if s.baseURL != "" {
			return s.baseURL + "/" + key, nil
		}
		return obj.URL(), nil
	})
}

func (s *B2Store) Delete(ctx context.Context, path string) error {
	key, err := cleanKey(path)
	if err != nil {
		return err
	}
	if err = s.bucket.Object(key).Delete(ctx); err != nil {
		if b2.IsNotExist(err) {
			return errors.Wrap(core.ErrNotFound, key)
		}
		return core.NewBackendError("deleting object", err)
	}
	return nil
}
