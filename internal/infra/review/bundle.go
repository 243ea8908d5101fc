// Package review packs the archived frames of a flagged video into a zip for
// manual moderation and hands it to the remote archive.
package review

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/port"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Bundler struct {
	archive port.FrameArchive
	tempDir string
	logger  *zap.Logger
}

func NewBundler(archive port.FrameArchive, tempDir string, logger *zap.Logger) *Bundler {
	return &Bundler{archive: archive, tempDir: tempDir, logger: logger}
}

// ObjectKey is where the bundle for jobID is stored in the review bucket.
func ObjectKey(jobID uuid.UUID) string {
	return fmt.Sprintf("%s/review_%s.zip", jobID, jobID)
}

// Publish zips the frame files and uploads the archive. The zip is built in a
// scratch file that is removed afterwards; the frames themselves are untouched.
func (b *Bundler) Publish(ctx context.Context, jobID uuid.UUID, frames []entity.Frame) (string, error) {
	if len(frames) == 0 {
		return "", fmt.Errorf("no frames to bundle")
	}
	if err := os.MkdirAll(b.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}

	zipPath := filepath.Join(b.tempDir, fmt.Sprintf("review_%s.zip", jobID))
	defer os.Remove(zipPath)

	paths := make([]string, 0, len(frames))
	for _, f := range frames {
		paths = append(paths, f.Path)
	}
	if err := b.CreateZip(ctx, paths, zipPath); err != nil {
		return "", err
	}

	zipFile, err := os.Open(zipPath)
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}
	defer zipFile.Close()

	info, err := zipFile.Stat()
	if err != nil {
		return "", fmt.Errorf("stat zip: %w", err)
	}

	key := ObjectKey(jobID)
	if err := b.archive.UploadReviewBundle(ctx, key, zipFile, info.Size()); err != nil {
		return "", fmt.Errorf("upload review bundle: %w", err)
	}

	b.logger.Info("review bundle uploaded",
		zap.String("job_id", jobID.String()),
		zap.String("object_key", key),
		zap.Int("frames", len(frames)),
		zap.Int64("bytes", info.Size()),
	)
	return key, nil
}

// CreateZip writes filePaths into outputPath. JPEG frames are already compressed,
// so entries are stored rather than deflated.
func (b *Bundler) CreateZip(ctx context.Context, filePaths []string, outputPath string) error {
	zipFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer zipFile.Close()

	zw := zip.NewWriter(zipFile)
	for _, fp := range filePaths {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return err
		}
		if err := addFileToZip(zw, fp); err != nil {
			zw.Close()
			return fmt.Errorf("add %s to zip: %w", fp, err)
		}
	}
	return zw.Close()
}

func addFileToZip(zw *zip.Writer, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(filename)
	header.Method = zip.Store

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, file)
	return err
}
