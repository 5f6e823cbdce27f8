package models

import (
	"encoding/json"
	"time"
)

// InboxStatus is the triage state of a consolidated question/answer turn.
type InboxStatus string

const (
	StatusPending   InboxStatus = "pending"
	StatusToVerify  InboxStatus = "to_verify"
	StatusConfirmed InboxStatus = "confirmed"
	StatusArchived  InboxStatus = "archived"
)

// FeedbackStatus is the outcome reported by an end user about a bot answer.
type FeedbackStatus string

const (
	FeedbackRelevant FeedbackStatus = "relevant"
	FeedbackWrong    FeedbackStatus = "wrong"
)

// InboxStatus maps a feedback outcome to the triage status it should set on
// the matched inbox record. A wrong answer goes back to human review.
func (f FeedbackStatus) InboxStatus() InboxStatus {
	if f == FeedbackRelevant {
		return StatusConfirmed
	}
	return StatusToVerify
}

// Event is one row of the dialogue engine's append-only event log.
// Timestamps are fractional seconds, strictly increasing per sender only.
type Event struct {
	ID         int64   `json:"id"`
	SenderID   string  `json:"sender_id"`
	TypeName   string  `json:"type_name"`
	Timestamp  float64 `json:"timestamp"`
	IntentName string  `json:"intent_name"`
	ActionName string  `json:"action_name"`
	Data       []byte  `json:"data"`
}

const (
	EventTypeUser = "user"
	EventTypeBot  = "bot"

	// ListenAction terminates a turn: the engine pauses for user input.
	ListenAction = "action_listen"

	// FallbackIntent masks the real second-best NLU guess and is rewritten
	// away during interpretation.
	FallbackIntent = "nlu_fallback"
)

// EventPayload is the decoded form of Event.Data. The engine serializes one
// of three shapes, discriminated by the embedded "event" field.
type EventPayload struct {
	Kind      string          `json:"event"`
	Timestamp float64         `json:"timestamp"`
	Text      string          `json:"text"`
	Data      json.RawMessage `json:"data"`
	ParseData *ParseData      `json:"parse_data"`
}

const (
	PayloadAction = "action"
	PayloadBot    = "bot"
	PayloadUser   = "user"
)

// ParseData carries the NLU interpretation attached to a user message.
type ParseData struct {
	Intent        *IntentRank  `json:"intent"`
	IntentRanking []IntentRank `json:"intent_ranking"`
}

// IntentRank is one candidate of the NLU intent ranking.
type IntentRank struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// BotResponse is one bot reply fragment collected from a turn.
type BotResponse struct {
	Text string          `json:"text"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbox is the consolidated representation of one well-formed turn.
// Responses and IntentRanking are stored serialized, as the engine shapes
// them; EventID joins back to the raw log.
type Inbox struct {
	ID            int64       `json:"id"`
	SenderID      string      `json:"sender_id"`
	EventID       int64       `json:"event_id"`
	Timestamp     float64     `json:"timestamp"`
	Question      string      `json:"question"`
	Intent        string      `json:"intent"`
	Confidence    float64     `json:"confidence"`
	IntentRanking string      `json:"intent_ranking"`
	Responses     string      `json:"responses"`
	ResponseTime  int64       `json:"response_time"`
	Status        InboxStatus `json:"status"`
	AssignedTo    *string     `json:"assigned_to,omitempty"`
}

// Feedback is an out-of-band signal about one bot answer, keyed by
// (user_question, timestamp) and deleted once reconciled onto an inbox row.
type Feedback struct {
	ID           int64          `json:"id"`
	UserQuestion string         `json:"user_question"`
	Timestamp    float64        `json:"timestamp"`
	Status       FeedbackStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Intent is one entry of the intent registry.
type Intent struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Archived    bool       `json:"archived"`
	CreatedAt   time.Time  `json:"created_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Status     string     `json:"status"`
	Summary    []byte     `json:"summary"`
}
