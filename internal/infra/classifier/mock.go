package classifier

import (
	"math/rand/v2"
	"sync"

	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sensitivity-service/internal/domain/policy"
)

const (
	mockMinConfidence = 0.7
	mockMaxConfidence = 0.99
)

// MockClassifier stands in when the real classifier is not configured or could not
// score a single frame. Its verdicts are random and marked as mock in the details.
type MockClassifier struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewMockClassifier(seed uint64) *MockClassifier {
	return &MockClassifier{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (m *MockClassifier) Verdict(totalFrames int, reason string) entity.Verdict {
	m.mu.Lock()
	flagged := m.rnd.IntN(2) == 1
	confidence := mockMinConfidence + m.rnd.Float64()*(mockMaxConfidence-mockMinConfidence)
	m.mu.Unlock()

	verdict := entity.Verdict{
		SensitivityFlag: entity.SensitivitySafe,
		Confidence:      confidence,
		DetectedIssues:  []string{},
		Details: entity.VerdictDetails{
			TotalFrames: totalFrames,
			Thresholds:  policy.DefaultThresholds,
			Mock:        true,
			MockReason:  reason,
		},
	}
	if flagged {
		verdict.SensitivityFlag = entity.SensitivityFlagged
		verdict.DetectedIssues = []string{"Mock analysis: content flagged for manual review"}
	}
	return verdict
}
