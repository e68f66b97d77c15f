package core

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartUpload(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 4096)

	t.Run("success", func(t *testing.T) {
		var stored []byte
		up := StartUpload(context.Background(), bytes.NewReader(data), int64(len(data)),
			func(ctx context.Context, r io.Reader) (string, error) {
				var err error
				stored, err = ioutil.ReadAll(r)
				return "http://blobs/a.bin", err
			},
		)
		var last UploadProgress
		for p := range up.Progress() {
			last = p
		}
		url, err := up.Wait()
		assert.NoError(t, err)
		assert.Equal(t, "http://blobs/a.bin", url)
		assert.Equal(t, data, stored)
		if last.Written != 0 { // events may be dropped, but never exceed the total
			assert.LessOrEqual(t, last.Written, int64(len(data)))
			assert.Equal(t, int64(len(data)), last.Total)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		started := make(chan struct{})
		up := StartUpload(context.Background(), bytes.NewReader(data), -1,
			func(ctx context.Context, r io.Reader) (string, error) {
				close(started)
				<-ctx.Done()
				_, err := r.Read(make([]byte, 8))
				return "", err
			},
		)
		<-started
		up.Cancel()
		url, err := up.Wait()
		assert.Empty(t, url)
		assert.True(t, IsBackendUnavailable(err))
	})

	t.Run("failed", func(t *testing.T) {
		up := FailedUpload(ErrAccessDenied)
		_, ok := <-up.Progress()
		assert.False(t, ok)
		_, err := up.Wait()
		assert.Equal(t, ErrAccessDenied, err)
	})
}
