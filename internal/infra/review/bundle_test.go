package review

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryArchive struct {
	bundles map[string][]byte
}

func (m *memoryArchive) ArchiveFrame(context.Context, string, []byte) error { return nil }

func (m *memoryArchive) UploadReviewBundle(_ context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	m.bundles[key] = data
	return nil
}

func TestPublishUploadsZipAndKeepsFrames(t *testing.T) {
	frameDir := t.TempDir()
	var frames []entity.Frame
	for i := 1; i <= 3; i++ {
		p := filepath.Join(frameDir, fmt.Sprintf("frame-%d.jpg", i))
		require.NoError(t, os.WriteFile(p, []byte(fmt.Sprintf("frame %d", i)), 0o644))
		frames = append(frames, entity.Frame{Index: i, Path: p})
	}

	archive := &memoryArchive{bundles: map[string][]byte{}}
	tmp := t.TempDir()
	b := NewBundler(archive, tmp, zap.NewNop())

	jobID := uuid.New()
	key, err := b.Publish(context.Background(), jobID, frames)
	require.NoError(t, err)
	assert.Equal(t, ObjectKey(jobID), key)

	data := archive.bundles[key]
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
	assert.Equal(t, "frame-1.jpg", zr.File[0].Name)

	for _, f := range frames {
		assert.FileExists(t, f.Path)
	}
	entries, _ := os.ReadDir(tmp)
	assert.Empty(t, entries, "scratch zip is removed")
}

func TestPublishWithoutFrames(t *testing.T) {
	b := NewBundler(&memoryArchive{bundles: map[string][]byte{}}, t.TempDir(), zap.NewNop())
	_, err := b.Publish(context.Background(), uuid.New(), nil)
	assert.Error(t, err)
}
