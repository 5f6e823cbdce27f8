package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/chatbot-factory/backend/internal/models"
)

// FeedbackSource reads and cleans up stored feedback submissions.
type FeedbackSource interface {
	ListFeedback(ctx context.Context) ([]models.Feedback, error)
	DeleteFeedback(ctx context.Context, ids []int64) error
}

// InboxMatcher applies one feedback onto its inbox record, if any. matched
// reports whether an inbox status was actually updated.
type InboxMatcher interface {
	ApplyFeedback(ctx context.Context, f models.Feedback) (bool, error)
}

// ReconciliationService replays stored feedback against the inbox table on
// its own cadence, independent of consolidation. Applied rows are deleted
// in one batch at the end; unmatched rows stay and are retried next run,
// since their inbox record may simply not have been consolidated yet.
type ReconciliationService struct {
	Feedback FeedbackSource
	Matcher  InboxMatcher
	Logger   zerolog.Logger
}

type ReconciliationSummary struct {
	Fetched int `json:"fetched"`
	Applied int `json:"applied"`
	Pending int `json:"pending"`
}

func (s *ReconciliationService) Run(ctx context.Context) (ReconciliationSummary, error) {
	summary := ReconciliationSummary{}

	feedbacks, err := s.Feedback.ListFeedback(ctx)
	if err != nil {
		return summary, err
	}
	summary.Fetched = len(feedbacks)
	if len(feedbacks) == 0 {
		return summary, nil
	}

	var applied []int64
	for _, f := range feedbacks {
		matched, err := s.Matcher.ApplyFeedback(ctx, f)
		if err != nil {
			return summary, err
		}
		if matched {
			applied = append(applied, f.ID)
		}
	}

	if len(applied) > 0 {
		if err := s.Feedback.DeleteFeedback(ctx, applied); err != nil {
			return summary, err
		}
	}
	summary.Applied = len(applied)
	summary.Pending = summary.Fetched - summary.Applied

	s.Logger.Info().
		Int("fetched", summary.Fetched).
		Int("applied", summary.Applied).
		Int("pending", summary.Pending).
		Msg("feedback reconciliation finished")
	return summary, nil
}
