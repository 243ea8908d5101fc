package ffmpeg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleProbeJSON = `{
  "streams": [
    {"index": 0, "codec_name": "aac", "codec_type": "audio", "r_frame_rate": "0/0"},
    {"index": 1, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080,
     "r_frame_rate": "30000/1001", "duration": "11.5", "bit_rate": "4000000"},
    {"index": 2, "codec_name": "hevc", "codec_type": "video", "width": 640, "height": 360, "r_frame_rate": "25/1"}
  ],
  "format": {"duration": "12.012000", "bit_rate": "4500000"}
}`

func TestParseProbeOutput(t *testing.T) {
	md, err := parseProbeOutput([]byte(sampleProbeJSON))
	require.NoError(t, err)

	assert.InDelta(t, 12.012, md.Duration, 1e-9)
	assert.Equal(t, int64(4500000), md.Bitrate)
	assert.Equal(t, 1920, md.Width)
	assert.Equal(t, 1080, md.Height)
	assert.Equal(t, "h264", md.Codec)
	assert.InDelta(t, 29.97, md.FPS, 0.001)
}

func TestParseProbeOutputFallsBackToStream(t *testing.T) {
	md, err := parseProbeOutput([]byte(`{"streams":[{"codec_type":"video","codec_name":"vp9","duration":"3.5","bit_rate":"800"}],"format":{}}`))
	require.NoError(t, err)

	assert.InDelta(t, 3.5, md.Duration, 1e-9)
	assert.Equal(t, int64(800), md.Bitrate)
	assert.Equal(t, "", md.Resolution())
	assert.Equal(t, 0.0, md.FPS)
}

func TestParseProbeOutputWithoutVideo(t *testing.T) {
	_, err := parseProbeOutput([]byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"3"}}`))
	assert.Error(t, err)
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"30000/1001", 29.97002997},
		{"25/1", 25},
		{"24", 24},
		{"", 0},
		{"0/0", 0},
		{"abc/1", 0},
		{"30/x", 0},
		{"N/A", 0},
		{"-30/1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.InDelta(t, tt.want, parseFrameRate(tt.input), 1e-6)
		})
	}
}

func TestProbeWrapsToolFailure(t *testing.T) {
	p := NewProber(time.Second, zap.NewNop())
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "ffprobe", name)
		return nil, errors.New("exit status 1")
	}

	_, err := p.Probe(context.Background(), "/videos/missing.mp4")

	var probeErr *entity.ProbeError
	require.ErrorAs(t, err, &probeErr)
	assert.Equal(t, "/videos/missing.mp4", probeErr.Path)
}

func TestProbeParsesToolOutput(t *testing.T) {
	p := NewProber(time.Second, zap.NewNop())
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "/videos/clip.mp4", args[len(args)-1])
		return []byte(sampleProbeJSON), nil
	}

	md, err := p.Probe(context.Background(), "/videos/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, "1920x1080", md.Resolution())
}
