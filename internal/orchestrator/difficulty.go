package orchestrator

import "github.com/yoockh/yoointerview/internal/models"

// NextComplexity applies the adaptive difficulty policy to the model's proposal.
// An Expert answer never lowers the level, a Basic answer never raises it, and an
// Intermediate answer moves at most one step. An unusable proposal is derived from
// the answer quality alone.
func NextComplexity(prior, quality, proposed models.Complexity) models.Complexity {
	if !prior.Valid() {
		prior = models.ComplexityBasic
	}
	if !quality.Valid() {
		quality = models.ComplexityIntermediate
	}

	if !proposed.Valid() {
		switch quality {
		case models.ComplexityExpert:
			return prior.Step(1)
		case models.ComplexityBasic:
			return prior.Step(-1)
		default:
			return prior
		}
	}

	switch quality {
	case models.ComplexityExpert:
		if proposed.Rank() < prior.Rank() {
			return prior
		}
	case models.ComplexityBasic:
		if proposed.Rank() > prior.Rank() {
			return prior
		}
	default:
		if d := proposed.Rank() - prior.Rank(); d > 1 {
			return prior.Step(1)
		} else if d < -1 {
			return prior.Step(-1)
		}
	}
	return proposed
}
