// Package scoring holds the pure point, level and badge rules of the
// gamification engine. Nothing in here performs I/O or logs.
package scoring

import (
	"math"

	"gamification-service/internal/domain"
)

// DefaultPoints is awarded for content types without a dedicated formula.
const DefaultPoints = 10

// CalculatePoints returns the points earned for a single submission.
//
//	QUIZ:      round(10 + pct*40)
//	FLASHCARD: score*5 (score counts cards known)
//	MINI_GAME: round(20 + pct*80)
//
// pct is score/maxScore and is not clamped. A non-positive maxScore counts as pct 0.
func CalculatePoints(contentType domain.ContentType, score, maxScore float64) int {
	switch contentType {
	case domain.ContentQuiz:
		return int(math.Round(10 + percentage(score, maxScore)*40))
	case domain.ContentFlashcard:
		return int(math.Round(score * 5))
	case domain.ContentMiniGame:
		return int(math.Round(20 + percentage(score, maxScore)*80))
	default:
		return DefaultPoints
	}
}

func percentage(score, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	pct := score / maxScore
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0
	}
	return pct
}
