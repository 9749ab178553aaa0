package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"gamification-service/internal/domain"
	"gamification-service/internal/logging"
)

// Observer is notified around every score submission.
type Observer interface {
	ScoreSubmitted(ctx context.Context, userID string, sub domain.ScoreSubmission, result domain.SubmitResult, took time.Duration)
	SubmissionFailed(ctx context.Context, userID string, sub domain.ScoreSubmission, err error)
}

type nopObserver struct{}

func (nopObserver) ScoreSubmitted(context.Context, string, domain.ScoreSubmission, domain.SubmitResult, time.Duration) {
}

func (nopObserver) SubmissionFailed(context.Context, string, domain.ScoreSubmission, error) {}

// LogObserver writes submissions to the request-scoped logrus entry.
type LogObserver struct {
	base *logrus.Entry
}

func NewLogObserver(base *logrus.Entry) *LogObserver {
	return &LogObserver{base: base}
}

func (o *LogObserver) entry(ctx context.Context) *logrus.Entry {
	if e := logging.FromContext(ctx); e != nil {
		return e
	}
	return o.base
}

func (o *LogObserver) ScoreSubmitted(ctx context.Context, userID string, sub domain.ScoreSubmission, result domain.SubmitResult, took time.Duration) {
	fields := logrus.Fields{
		"user_id":       userID,
		"content_id":    sub.ContentID,
		"points_earned": result.PointsEarned,
		"total_points":  result.Gamification.TotalPoints,
		"level":         result.Gamification.Level,
		"took":          took,
	}
	e := o.entry(ctx).WithFields(fields)
	if result.LevelUp || len(result.NewBadges) > 0 {
		names := make([]string, 0, len(result.NewBadges))
		for _, b := range result.NewBadges {
			names = append(names, b.Name)
		}
		e.WithField("new_badges", names).WithField("level_up", result.LevelUp).Info("score submitted")
		return
	}
	e.Debug("score submitted")
}

func (o *LogObserver) SubmissionFailed(ctx context.Context, userID string, sub domain.ScoreSubmission, err error) {
	e := o.entry(ctx).WithFields(logrus.Fields{
		"user_id":    userID,
		"content_id": sub.ContentID,
	}).WithError(err)
	switch {
	case errors.Is(err, domain.ErrInvalidSubmission), errors.Is(err, domain.ErrContentNotFound):
		e.Debug("score rejected")
	case errors.Is(err, domain.ErrAggregateNotFound):
		// user exists without a provisioned aggregate
		e.Warn("score rejected")
	default:
		e.Error("score submission failed")
	}
}
