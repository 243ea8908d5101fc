package classifier

import (
	"strings"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
)

// Vocabulary maps classifier labels onto the two scores the decision policy uses.
// Label matching is a substring heuristic tied to the classifier in use, so the
// word lists are configuration and carry a version that ends up in every verdict.
type Vocabulary struct {
	Version         string
	Unsafe          []string
	Safe            []string
	Ambiguous       []string
	AmbiguousWeight float64
}

func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Version:         "v1",
		Unsafe:          []string{"nsfw", "unsafe", "porn", "adult", "sexual", "explicit", "nude", "erotic"},
		Safe:            []string{"normal", "sfw", "safe", "neutral", "clean", "appropriate"},
		Ambiguous:       []string{"bikini", "underwear", "swimsuit"},
		AmbiguousWeight: 0.5,
	}
}

type labelClass int

const (
	labelUnknown labelClass = iota
	labelUnsafe
	labelSafe
	labelAmbiguous
)

// classify checks the unsafe list first: "unsafe" contains "safe" and "nsfw" contains "sfw".
func (v Vocabulary) classify(label string) labelClass {
	label = strings.ToLower(strings.TrimSpace(label))
	switch {
	case containsAny(label, v.Unsafe):
		return labelUnsafe
	case containsAny(label, v.Safe):
		return labelSafe
	case containsAny(label, v.Ambiguous):
		return labelAmbiguous
	default:
		return labelUnknown
	}
}

func containsAny(label string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(label, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// LabelScore is one entry of a list-shaped classifier response.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// defaultNormalScore is assumed when the classifier output has no recognisable label.
const defaultNormalScore = 0.95

// Normalize folds raw label scores into an entity.ClassificationResult.
func (v Vocabulary) Normalize(scores []LabelScore) entity.ClassificationResult {
	var (
		res                  entity.ClassificationResult
		haveNsfw, haveNormal bool
	)

	for _, s := range scores {
		score := clamp01(s.Score)
		switch v.classify(s.Label) {
		case labelUnsafe:
			res.NsfwScore = max(res.NsfwScore, score)
			haveNsfw = true
		case labelSafe:
			res.NormalScore = max(res.NormalScore, score)
			haveNormal = true
		case labelAmbiguous:
			res.NsfwScore = max(res.NsfwScore, score*v.AmbiguousWeight)
			haveNsfw = true
		}
	}

	if !haveNsfw && !haveNormal {
		res.NormalScore = defaultNormalScore
	}
	return res
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
