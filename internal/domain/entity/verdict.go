package entity

// DefaultFrameCount is how many stills are sampled when no count is configured.
const DefaultFrameCount = 5

// Frame is one still sampled from a video. Path and ObjectKey point at the
// archived copy, which outlives the pipeline run.
type Frame struct {
	Index     int
	Data      []byte
	Path      string
	ObjectKey string
}

// ClassificationResult is the normalised output of the image classifier for one frame.
type ClassificationResult struct {
	NsfwScore   float64 `json:"nsfw_score"`
	NormalScore float64 `json:"normal_score"`
}

type PolicyThresholds struct {
	FrameFlag       float64 `json:"frame_flag"`
	AverageSafe     float64 `json:"average_safe"`
	ConfidenceScale float64 `json:"confidence_scale"`
	ConfidenceCap   float64 `json:"confidence_cap"`
}

type VerdictDetails struct {
	TotalFrames       int              `json:"total_frames"`
	AnalyzedFrames    int              `json:"analyzed_frames"`
	FlaggedFrames     int              `json:"flagged_frames"`
	AverageNsfwScore  float64          `json:"average_nsfw_score"`
	Thresholds        PolicyThresholds `json:"thresholds"`
	Mock              bool             `json:"mock"`
	MockReason        string           `json:"mock_reason,omitempty"`
	VocabularyVersion string           `json:"vocabulary_version,omitempty"`
}

type Verdict struct {
	SensitivityFlag SensitivityFlag `json:"sensitivity_flag"`
	Confidence      float64         `json:"confidence"`
	DetectedIssues  []string        `json:"detected_issues"`
	Details         VerdictDetails  `json:"details"`
}
