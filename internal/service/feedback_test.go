package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/chatbot-factory/backend/internal/models"
)

type fakeFeedbackStore struct {
	rows []models.Feedback
}

func (f *fakeFeedbackStore) ListFeedback(ctx context.Context) ([]models.Feedback, error) {
	out := make([]models.Feedback, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeFeedbackStore) DeleteFeedback(ctx context.Context, ids []int64) error {
	kept := f.rows[:0]
	for _, r := range f.rows {
		deleted := false
		for _, id := range ids {
			if r.ID == id {
				deleted = true
				break
			}
		}
		if !deleted {
			kept = append(kept, r)
		}
	}
	f.rows = kept
	return nil
}

type fakeMatcher struct {
	inboxes map[string]models.InboxStatus // keyed by question
}

func (f *fakeMatcher) ApplyFeedback(ctx context.Context, fb models.Feedback) (bool, error) {
	if _, ok := f.inboxes[fb.UserQuestion]; !ok {
		return false, nil
	}
	f.inboxes[fb.UserQuestion] = fb.Status.InboxStatus()
	return true, nil
}

func TestReconciliationAppliesAndDeletesMatched(t *testing.T) {
	store := &fakeFeedbackStore{rows: []models.Feedback{
		{ID: 1, UserQuestion: "how do I reset my password", Timestamp: 10.0, Status: models.FeedbackWrong},
		{ID: 2, UserQuestion: "not consolidated yet", Timestamp: 11.0, Status: models.FeedbackRelevant},
	}}
	matcher := &fakeMatcher{inboxes: map[string]models.InboxStatus{
		"how do I reset my password": models.StatusConfirmed,
	}}
	svc := &ReconciliationService{Feedback: store, Matcher: matcher, Logger: zerolog.Nop()}

	summary, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Fetched != 2 || summary.Applied != 1 || summary.Pending != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if matcher.inboxes["how do I reset my password"] != models.StatusToVerify {
		t.Fatalf("wrong feedback must send the inbox back to review, got %s", matcher.inboxes["how do I reset my password"])
	}
	if len(store.rows) != 1 || store.rows[0].ID != 2 {
		t.Fatalf("expected only the unmatched row to survive, got %+v", store.rows)
	}
}

func TestReconciliationRetriesPendingOnNextRun(t *testing.T) {
	store := &fakeFeedbackStore{rows: []models.Feedback{
		{ID: 1, UserQuestion: "late question", Timestamp: 5.0, Status: models.FeedbackRelevant},
	}}
	matcher := &fakeMatcher{inboxes: map[string]models.InboxStatus{}}
	svc := &ReconciliationService{Feedback: store, Matcher: matcher, Logger: zerolog.Nop()}

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(store.rows) != 1 {
		t.Fatal("unmatched feedback must be kept for retry")
	}

	// the consolidation job catches up in between
	matcher.inboxes["late question"] = models.StatusPending

	summary, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Applied != 1 || len(store.rows) != 0 {
		t.Fatalf("expected retry to apply and delete, got %+v rows=%d", summary, len(store.rows))
	}
	if matcher.inboxes["late question"] != models.StatusConfirmed {
		t.Fatalf("relevant feedback must confirm the inbox, got %s", matcher.inboxes["late question"])
	}
}

func TestReconciliationNoFeedbackIsNoOp(t *testing.T) {
	store := &fakeFeedbackStore{}
	svc := &ReconciliationService{Feedback: store, Matcher: &fakeMatcher{}, Logger: zerolog.Nop()}

	summary, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Fetched != 0 || summary.Applied != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}
