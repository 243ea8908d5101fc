package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"go.uber.org/zap"
)

type Prober struct {
	binary  string
	timeout time.Duration
	run     commandRunner
	logger  *zap.Logger
}

func NewProber(timeout time.Duration, logger *zap.Logger) *Prober {
	return &Prober{binary: "ffprobe", timeout: timeout, run: stdoutRunner, logger: logger}
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

type probeStream struct {
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

func (p *Prober) Probe(ctx context.Context, videoPath string) (entity.VideoMetadata, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	output, err := p.run(ctx, p.binary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)
	if err != nil {
		return entity.VideoMetadata{}, &entity.ProbeError{Path: videoPath, Err: fmt.Errorf("ffprobe: %w", err)}
	}

	metadata, err := parseProbeOutput(output)
	if err != nil {
		return entity.VideoMetadata{}, &entity.ProbeError{Path: videoPath, Err: err}
	}

	p.logger.Debug("video probed",
		zap.String("path", videoPath),
		zap.Float64("duration", metadata.Duration),
		zap.String("resolution", metadata.Resolution()),
		zap.String("codec", metadata.Codec),
	)
	return metadata, nil
}

// parseProbeOutput reads the first video stream; container-level duration and
// bitrate win over the stream's own values.
func parseProbeOutput(output []byte) (entity.VideoMetadata, error) {
	var probe probeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return entity.VideoMetadata{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var video *probeStream
	for i := range probe.Streams {
		if probe.Streams[i].CodecType == "video" {
			video = &probe.Streams[i]
			break
		}
	}
	if video == nil {
		return entity.VideoMetadata{}, fmt.Errorf("no video stream found")
	}

	metadata := entity.VideoMetadata{
		Duration: parseNonNegativeFloat(probe.Format.Duration),
		Bitrate:  parseNonNegativeInt(probe.Format.BitRate),
		FPS:      parseFrameRate(video.RFrameRate),
		Codec:    video.CodecName,
	}
	if video.Width > 0 && video.Height > 0 {
		metadata.Width = video.Width
		metadata.Height = video.Height
	}
	if metadata.Duration == 0 {
		metadata.Duration = parseNonNegativeFloat(video.Duration)
	}
	if metadata.Bitrate == 0 {
		metadata.Bitrate = parseNonNegativeInt(video.BitRate)
	}
	return metadata, nil
}

// parseFrameRate evaluates ffprobe's "num/den" rational, e.g. "30000/1001" -> 29.97.
// Absent or malformed values give 0.
func parseFrameRate(value string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		return parseNonNegativeFloat(num)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	if rate := n / d; rate > 0 && !math.IsInf(rate, 0) {
		return rate
	}
	return 0
}

func parseNonNegativeFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func parseNonNegativeInt(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
