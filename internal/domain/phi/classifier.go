package phi

import (
	"context"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
)

// Candidate is one span a probabilistic classifier proposes.
type Candidate struct {
	Type       catalog.PHIType `json:"type"`
	Start      int             `json:"start"`
	End        int             `json:"end"`
	Confidence float64         `json:"confidence"`
}

// Classifier is the narrow capability interface isolating the probabilistic
// assist layer. The concrete model or service is swappable behind it; its
// unavailability is a degrade-not-fail condition, never a pipeline failure.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]Candidate, error)
}
