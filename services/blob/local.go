package blobsvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
)

// LocalStore keeps blobs as files under a directory, served at baseURL by the API.
type LocalStore struct {
	dir     string
	baseURL string
}

var _ core.BlobStore = (*LocalStore)(nil)

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("blob directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating blob directory")
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir is the directory the API serves downloads from.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Upload(ctx context.Context, path string, r io.Reader, size int64) *core.Upload {
	target, err := s.file(path)
	if err != nil {
		return core.FailedUpload(err)
	}
	return core.StartUpload(ctx, r, size, func(ctx context.Context, r io.Reader) (string, error) {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", errors.Wrap(err, "creating blob directory")
		}
		tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
		if err != nil {
			return "", errors.Wrap(err, "creating blob file")
		}
		defer func() { _ = os.Remove(tmp.Name()) }()

		if _, err = io.Copy(tmp, r); err != nil {
			_ = tmp.Close()
			return "", errors.Wrap(err, "writing blob")
		}
		if err = tmp.Close(); err != nil {
			return "", errors.Wrap(err, "closing blob")
		}
		if err = ctx.Err(); err != nil {
			return "", err
		}
		if err = os.Rename(tmp.Name(), target); err != nil {
			return "", errors.Wrap(err, "moving blob")
		}
		return s.baseURL + "/" + path, nil
	})
}

func (s *LocalStore) Delete(ctx context.Context, path string) error {
	target, err := s.file(path)
	if err != nil {
		return err
	}
	if err = os.Remove(target); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(core.ErrNotFound, path)
		}
		return core.NewBackendError("deleting file", err)
	}
	return nil
}

func (s *LocalStore) file(path string) (string, error) {
	clean, err := cleanKey(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}
