package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/port"
	"go.uber.org/zap"
)

type SamplerConfig struct {
	// Root is the durable storage root; frames land in {Root}/frames/{jobID}/frame-{i}.jpg.
	Root    string
	Width   int
	Height  int
	Timeout time.Duration
}

// Sampler grabs evenly spaced stills from a video and keeps them on disk for
// later audit. It never deletes what it writes.
type Sampler struct {
	binary  string
	cfg     SamplerConfig
	archive port.FrameArchive
	run     commandRunner
	logger  *zap.Logger
}

// NewSampler builds a Sampler. archive may be nil, in which case frames are only kept locally.
func NewSampler(cfg SamplerConfig, archive port.FrameArchive, logger *zap.Logger) *Sampler {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 320, 240
	}
	return &Sampler{binary: "ffmpeg", cfg: cfg, archive: archive, run: execRunner, logger: logger}
}

func (s *Sampler) frameDir(jobID string) string {
	return filepath.Join(s.cfg.Root, "frames", jobID)
}

func (s *Sampler) Extract(ctx context.Context, req port.FrameRequest) ([]entity.Frame, error) {
	count := req.Count
	if count <= 0 {
		count = entity.DefaultFrameCount
	}

	dir := s.frameDir(req.JobID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &entity.ExtractionError{JobID: req.JobID, Err: fmt.Errorf("create frame dir: %w", err)}
	}

	timestamps := sampleTimestamps(req.Duration, count)
	paths := make([]string, len(timestamps))
	for i, ts := range timestamps {
		paths[i] = filepath.Join(dir, fmt.Sprintf("frame-%d.jpg", i+1))
		if err := s.captureFrame(ctx, req.VideoPath, ts, paths[i]); err != nil {
			return nil, &entity.ExtractionError{JobID: req.JobID, Err: fmt.Errorf("frame %d at %.3fs: %w", i+1, ts, err)}
		}
	}

	frames := make([]entity.Frame, 0, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &entity.ExtractionError{JobID: req.JobID, Err: fmt.Errorf("read frame %d: %w", i+1, err)}
		}
		if len(data) == 0 {
			return nil, &entity.ExtractionError{JobID: req.JobID, Err: fmt.Errorf("frame %d is empty", i+1)}
		}
		frames = append(frames, entity.Frame{
			Index:     i + 1,
			Data:      data,
			Path:      path,
			ObjectKey: fmt.Sprintf("frames/%s/frame-%d.jpg", req.JobID, i+1),
		})
	}

	s.mirror(ctx, frames)

	s.logger.Info("frames extracted",
		zap.String("job_id", req.JobID.String()),
		zap.Int("count", len(frames)),
		zap.Float64("video_duration", req.Duration),
		zap.String("dir", dir),
	)
	return frames, nil
}

func (s *Sampler) captureFrame(ctx context.Context, videoPath string, at float64, outPath string) error {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	output, err := s.run(ctx, s.binary,
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", s.cfg.Width, s.cfg.Height),
		"-q:v", "2",
		"-y",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg error: %w, output: %s", err, string(output))
	}
	return nil
}

// mirror copies frames to the remote archive. The local copy is the
// authoritative archive, so failures here are only logged.
func (s *Sampler) mirror(ctx context.Context, frames []entity.Frame) {
	if s.archive == nil {
		return
	}
	for _, f := range frames {
		if err := s.archive.ArchiveFrame(ctx, f.ObjectKey, f.Data); err != nil {
			s.logger.Warn("failed to mirror frame to archive",
				zap.String("object_key", f.ObjectKey),
				zap.Error(err),
			)
		}
	}
}

// sampleTimestamps spreads n capture points from 5% to 95% of the duration,
// so the first and last frames sit close to the start and end of the video.
func sampleTimestamps(duration float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if duration <= 0 {
		return make([]float64, n)
	}
	if n == 1 {
		return []float64{duration / 2}
	}

	const head, span = 0.05, 0.90
	out := make([]float64, n)
	for i := range n {
		out[i] = duration * (head + span*float64(i)/float64(n-1))
	}
	return out
}
