package core

import (
	"context"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// BlobStore stores uploaded files (thumbnails, media assets, task attachments).
type BlobStore interface {
	// Upload starts writing r under path. size may be -1 when unknown.
	Upload(ctx context.Context, path string, r io.Reader, size int64) *Upload
	Delete(ctx context.Context, path string) error
}

// UploadProgress is an advisory progress event.
type UploadProgress struct {
	Written int64
	Total   int64 // -1 when unknown
}

// WriteFunc writes the content of r and returns the download URL of the stored blob.
type WriteFunc func(ctx context.Context, r io.Reader) (string, error)

// Upload is a cancellable upload task.
// Progress events are delivered on Progress() until the task terminates; Wait returns the terminal result.
type Upload struct {
	progress chan UploadProgress
	done     chan struct{}
	cancel   context.CancelFunc

	url string
	err error
}

// StartUpload runs write in its own goroutine, reporting the bytes read from r as progress.
func StartUpload(ctx context.Context, r io.Reader, size int64, write WriteFunc) *Upload {
	ctx, cancel := context.WithCancel(ctx)
	up := &Upload{
		progress: make(chan UploadProgress, 16),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	go func() {
		defer close(up.done)
		defer close(up.progress)
		defer cancel()

		cr := &countingReader{ctx: ctx, r: r, total: size, report: up.report}
		up.url, up.err = write(ctx, cr)
		if up.err == nil && ctx.Err() != nil {
			up.url, up.err = "", ctx.Err()
		}
		if up.err != nil {
			up.err = NewBackendError("uploading file", up.err)
		}
	}()
	return up
}

// FailedUpload returns an already terminated Upload.
func FailedUpload(err error) *Upload {
	up := &Upload{
		progress: make(chan UploadProgress),
		done:     make(chan struct{}),
		cancel:   func() {},
		err:      err,
	}
	close(up.progress)
	close(up.done)
	return up
}

// report drops events when the consumer lags behind; progress is advisory.
func (up *Upload) report(p UploadProgress) {
	select {
	case up.progress <- p:
	default:
	}
}

func (up *Upload) Progress() <-chan UploadProgress { return up.progress }

func (up *Upload) Cancel() { up.cancel() }

// Wait blocks until the upload terminates and returns the download URL.
func (up *Upload) Wait() (string, error) {
	<-up.done
	return up.url, up.err
}

type countingReader struct {
	ctx    context.Context
	r      io.Reader
	total  int64
	report func(UploadProgress)

	mu      sync.Mutex
	written int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.mu.Lock()
		cr.written += int64(n)
		written := cr.written
		cr.mu.Unlock()
		cr.report(UploadProgress{Written: written, Total: cr.total})
	}
	return n, err
}

// BlobName prefixes the base name of filename with a random id, dropping characters unsafe in urls.
func BlobName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, base)
	if base == "" || base == "." || base == ".." {
		return ""
	}
	return uuid.New().String() + "-" + base
}
