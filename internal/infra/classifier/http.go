package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

var errMalformedResponse = errors.New("malformed classifier response")

type HTTPConfig struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

// HTTPClassifier posts raw JPEG bytes to an image-classification endpoint
// (Hugging Face inference style) and normalises the label scores it returns.
type HTTPClassifier struct {
	endpoint   string
	token      string
	timeout    time.Duration
	vocabulary Vocabulary
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPClassifier(cfg HTTPConfig, vocabulary Vocabulary, logger *zap.Logger) *HTTPClassifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClassifier{
		endpoint:   cfg.Endpoint,
		token:      cfg.Token,
		timeout:    timeout,
		vocabulary: vocabulary,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, image []byte) (entity.ClassificationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return entity.ClassificationResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return entity.ClassificationResult{}, fmt.Errorf("call classifier: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return entity.ClassificationResult{}, fmt.Errorf("read classifier response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return entity.ClassificationResult{}, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	scores, err := ParseResponse(body)
	if err != nil {
		return entity.ClassificationResult{}, err
	}

	result := c.vocabulary.Normalize(scores)
	c.logger.Debug("frame classified",
		zap.Int("labels", len(scores)),
		zap.Float64("nsfw_score", result.NsfwScore),
		zap.Float64("normal_score", result.NormalScore),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// ParseResponse accepts either a list of {label, score} objects (optionally nested
// one level, as some inference servers batch their output) or a flat label->score map.
func ParseResponse(body []byte) ([]LabelScore, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", errMalformedResponse)
	}

	switch body[0] {
	case '[':
		var list []LabelScore
		if err := json.Unmarshal(body, &list); err == nil {
			return list, nil
		}
		var nested [][]LabelScore
		if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 {
			return nested[0], nil
		}
		return nil, fmt.Errorf("%w: unexpected list shape", errMalformedResponse)
	case '{':
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedResponse, err)
		}
		scores := make([]LabelScore, 0, len(raw))
		for label, v := range raw {
			if f, ok := v.(float64); ok {
				scores = append(scores, LabelScore{Label: label, Score: f})
			}
		}
		if len(scores) == 0 {
			return nil, fmt.Errorf("%w: no numeric scores in %s", errMalformedResponse, truncate(body, 200))
		}
		return scores, nil
	default:
		return nil, fmt.Errorf("%w: %s", errMalformedResponse, truncate(body, 200))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
