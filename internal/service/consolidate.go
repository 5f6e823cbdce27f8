package service

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatbot-factory/backend/internal/models"
	"github.com/chatbot-factory/backend/internal/utils"
)

const (
	// QuestionMaxLen caps the stored user utterance.
	QuestionMaxLen = 1900

	// RankingDepth is how many NLU candidates are kept per record.
	RankingDepth = 5

	// DefaultResponseTimeMs stands in when a turn has no measurable
	// user-to-bot latency.
	DefaultResponseTimeMs = 100
)

// EventSource reads the dialogue engine's append-only event log.
type EventSource interface {
	ListEventsAfter(ctx context.Context, ts float64) ([]models.Event, error)
}

// InboxStore holds consolidated turns and exposes the processing watermark.
type InboxStore interface {
	MaxInboxTimestamp(ctx context.Context) (float64, bool, error)
	InsertInboxes(ctx context.Context, inboxes []models.Inbox) (int64, error)
}

// IntentRegistry is the authoritative set of known intent names.
type IntentRegistry interface {
	IntentExists(ctx context.Context, name string) (bool, error)
}

// ConsolidationService turns raw dialogue events into inbox records. Each
// run picks up where the stored data ends: the watermark is the max inbox
// timestamp, so a failed persist simply causes the next run to redo the
// same events, and the (sender_id, event_id) uniqueness in the store keeps
// redone work from duplicating rows.
type ConsolidationService struct {
	Events  EventSource
	Inbox   InboxStore
	Intents IntentRegistry
	Logger  zerolog.Logger

	// ListenAction and FallbackIntent default to the engine's standard
	// names when left empty.
	ListenAction   string
	FallbackIntent string
}

type ConsolidationSummary struct {
	Watermark     float64 `json:"watermark"`
	EventsFetched int     `json:"events_fetched"`
	Turns         int     `json:"turns"`
	Skipped       int     `json:"skipped"`
	Inserted      int64   `json:"inserted"`
	ElapsedMs     int64   `json:"elapsed_ms"`
}

func (s *ConsolidationService) Run(ctx context.Context) (ConsolidationSummary, error) {
	start := time.Now()
	summary := ConsolidationSummary{}

	watermark, _, err := s.Inbox.MaxInboxTimestamp(ctx)
	if err != nil {
		return summary, err
	}
	summary.Watermark = watermark

	events, err := s.Events.ListEventsAfter(ctx, watermark)
	if err != nil {
		return summary, err
	}
	summary.EventsFetched = len(events)
	if len(events) == 0 {
		return summary, nil
	}

	var candidates []models.Inbox
	it := NewTurnIterator(events, s.listenAction())
	for {
		turn, ok := it.Next()
		if !ok {
			break
		}
		summary.Turns++

		inbox, ok := BuildInbox(turn, s.fallbackIntent())
		if !ok {
			summary.Skipped++
			continue
		}
		known, err := s.Intents.IntentExists(ctx, inbox.Intent)
		if err != nil {
			return summary, err
		}
		if !known {
			summary.Skipped++
			continue
		}
		candidates = append(candidates, inbox)
	}

	if len(candidates) > 0 {
		inserted, err := s.Inbox.InsertInboxes(ctx, candidates)
		if err != nil {
			return summary, err
		}
		summary.Inserted = inserted
		s.Logger.Info().
			Int("events", len(events)).
			Int64("inserted", inserted).
			Int("skipped", summary.Skipped).
			Msg("inbox consolidation finished")
	}
	summary.ElapsedMs = time.Since(start).Milliseconds()
	return summary, nil
}

func (s *ConsolidationService) listenAction() string {
	if s.ListenAction == "" {
		return models.ListenAction
	}
	return s.ListenAction
}

func (s *ConsolidationService) fallbackIntent() string {
	if s.FallbackIntent == "" {
		return models.FallbackIntent
	}
	return s.FallbackIntent
}

// TurnIterator yields turns from one ordered event fetch without mutating
// it. A turn is the prefix up to and including the next listen action; a
// trailing unterminated slice is still yielded and left for validation to
// reject or accept.
type TurnIterator struct {
	events []models.Event
	listen string
	pos    int
}

func NewTurnIterator(events []models.Event, listenAction string) *TurnIterator {
	return &TurnIterator{events: events, listen: listenAction}
}

func (it *TurnIterator) Next() ([]models.Event, bool) {
	if it.pos >= len(it.events) {
		return nil, false
	}
	for i := it.pos; i < len(it.events); i++ {
		if it.events[i].ActionName == it.listen {
			turn := it.events[it.pos : i+1]
			it.pos = i + 1
			return turn, true
		}
	}
	turn := it.events[it.pos:]
	it.pos = len(it.events)
	return turn, true
}

// BuildInbox interprets one turn into a candidate inbox record. ok is false
// for malformed turns: no user leg, no bot leg, or an undecodable payload.
// Those are normal incomplete conversations, skipped without error.
func BuildInbox(turn []models.Event, fallbackIntent string) (models.Inbox, bool) {
	if len(turn) == 0 || !hasTypes(turn, models.EventTypeUser, models.EventTypeBot) {
		return models.Inbox{}, false
	}

	inbox := models.Inbox{
		SenderID: turn[0].SenderID,
		EventID:  turn[0].ID,
	}
	responses := make([]models.BotResponse, 0, len(turn))
	ranking := []models.IntentRank{}

	var sendTs, recvTs float64
	var haveSend, haveRecv bool

	for _, e := range turn {
		if e.Timestamp > inbox.Timestamp {
			inbox.Timestamp = e.Timestamp
		}

		var p models.EventPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return models.Inbox{}, false
		}

		switch p.Kind {
		case models.PayloadBot:
			responses = append(responses, models.BotResponse{Text: p.Text, Data: p.Data})
			sendTs = p.Timestamp
			haveSend = true
		case models.PayloadUser:
			top, rank := rewriteFallback(p.ParseData, fallbackIntent)
			inbox.Question = utils.Truncate(p.Text, QuestionMaxLen)
			if top != nil {
				inbox.Confidence = top.Confidence
				inbox.Intent = top.Name
			}
			if len(rank) > RankingDepth {
				rank = rank[:RankingDepth]
			}
			if rank != nil {
				ranking = rank
			}
			inbox.Status = Classify(inbox.Confidence)
			recvTs = p.Timestamp
			haveRecv = true
		}
	}

	inbox.ResponseTime = DefaultResponseTimeMs
	if haveSend && haveRecv {
		inbox.ResponseTime = int64(math.Round((sendTs - recvTs) * 1000))
	}

	rawResponses, _ := json.Marshal(responses)
	inbox.Responses = string(rawResponses)
	rawRanking, _ := json.Marshal(ranking)
	inbox.IntentRanking = string(rawRanking)
	return inbox, true
}

// rewriteFallback drops the engine's fallback entry from the ranking and
// promotes the next candidate. The fallback outcome hides the real
// second-best guess, which is the one worth triaging.
func rewriteFallback(pd *models.ParseData, fallbackIntent string) (*models.IntentRank, []models.IntentRank) {
	if pd == nil {
		return nil, nil
	}
	top := pd.Intent
	ranking := pd.IntentRanking
	if top == nil || top.Name != fallbackIntent {
		return top, ranking
	}

	kept := make([]models.IntentRank, 0, len(ranking))
	for _, r := range ranking {
		if r.Name != fallbackIntent {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil, kept
	}
	return &kept[0], kept
}

// Classify maps NLU confidence to a triage status. Both bounds are
// inclusive on the higher tier.
func Classify(confidence float64) models.InboxStatus {
	switch {
	case confidence >= 0.95:
		return models.StatusConfirmed
	case confidence >= 0.6:
		return models.StatusToVerify
	default:
		return models.StatusPending
	}
}

func hasTypes(turn []models.Event, wanted ...string) bool {
	for _, w := range wanted {
		found := false
		for _, e := range turn {
			if e.TypeName == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
