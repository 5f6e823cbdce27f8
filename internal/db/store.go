package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatbot-factory/backend/internal/models"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListEventsAfter returns all raw dialogue events strictly newer than ts.
// Ordering by (sender_id, timestamp) groups each conversation into one
// contiguous ascending block, which the consolidation pipeline relies on.
func (s *Store) ListEventsAfter(ctx context.Context, ts float64) ([]models.Event, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, sender_id, type_name, timestamp, COALESCE(intent_name, ''), COALESCE(action_name, ''), data
		FROM events
		WHERE timestamp > $1
		ORDER BY sender_id ASC, timestamp ASC
	`, ts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.SenderID, &e.TypeName, &e.Timestamp, &e.IntentName, &e.ActionName, &e.Data); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MaxInboxTimestamp returns the consolidation watermark. ok is false when
// the inbox table is empty and processing should start from zero.
func (s *Store) MaxInboxTimestamp(ctx context.Context) (float64, bool, error) {
	var ts *float64
	if err := s.Pool.QueryRow(ctx, `SELECT MAX(timestamp) FROM inbox`).Scan(&ts); err != nil {
		return 0, false, err
	}
	if ts == nil {
		return 0, false, nil
	}
	return *ts, true, nil
}

// InsertInboxes persists a consolidation batch in one transaction. The
// unique index on (sender_id, event_id) makes overlapping runs harmless:
// conflicting rows are skipped, not duplicated.
func (s *Store) InsertInboxes(ctx context.Context, inboxes []models.Inbox) (int64, error) {
	var inserted int64
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		for _, in := range inboxes {
			tag, err := tx.Exec(ctx, `
				INSERT INTO inbox (sender_id, event_id, timestamp, question, intent, confidence, intent_ranking, responses, response_time, status)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
				ON CONFLICT (sender_id, event_id) DO NOTHING
			`, in.SenderID, in.EventID, in.Timestamp, in.Question, in.Intent, in.Confidence, in.IntentRanking, in.Responses, in.ResponseTime, in.Status)
			if err != nil {
				return err
			}
			inserted += tag.RowsAffected()
		}
		return nil
	})
	return inserted, err
}

func (s *Store) ListInboxes(ctx context.Context, status, intent, q string, limit, offset int) ([]models.Inbox, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, sender_id, event_id, timestamp, question, intent, confidence, intent_ranking, responses, response_time, status, assigned_to FROM inbox`
	var args []any
	var wheres []string
	if status != "" {
		args = append(args, status)
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if intent != "" {
		args = append(args, intent)
		wheres = append(wheres, fmt.Sprintf("intent = $%d", len(args)))
	}
	if q != "" {
		args = append(args, "%"+q+"%")
		wheres = append(wheres, fmt.Sprintf("question ILIKE $%d", len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Inbox
	for rows.Next() {
		var in models.Inbox
		if err := rows.Scan(&in.ID, &in.SenderID, &in.EventID, &in.Timestamp, &in.Question, &in.Intent, &in.Confidence, &in.IntentRanking, &in.Responses, &in.ResponseTime, &in.Status, &in.AssignedTo); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *Store) GetInbox(ctx context.Context, id int64) (models.Inbox, error) {
	var in models.Inbox
	err := s.Pool.QueryRow(ctx, `
		SELECT id, sender_id, event_id, timestamp, question, intent, confidence, intent_ranking, responses, response_time, status, assigned_to
		FROM inbox WHERE id = $1
	`, id).Scan(&in.ID, &in.SenderID, &in.EventID, &in.Timestamp, &in.Question, &in.Intent, &in.Confidence, &in.IntentRanking, &in.Responses, &in.ResponseTime, &in.Status, &in.AssignedTo)
	return in, err
}

func (s *Store) UpdateInboxStatus(ctx context.Context, id int64, status models.InboxStatus) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `UPDATE inbox SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) AssignInbox(ctx context.Context, id int64, email string) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `UPDATE inbox SET assigned_to = $1 WHERE id = $2`, email, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) UpdateInbox(ctx context.Context, in models.Inbox) (models.Inbox, error) {
	err := s.Pool.QueryRow(ctx, `
		UPDATE inbox SET question = $1, intent = $2, status = $3
		WHERE id = $4
		RETURNING id, sender_id, event_id, timestamp, question, intent, confidence, intent_ranking, responses, response_time, status, assigned_to
	`, in.Question, in.Intent, in.Status, in.ID).Scan(
		&in.ID, &in.SenderID, &in.EventID, &in.Timestamp, &in.Question, &in.Intent, &in.Confidence, &in.IntentRanking, &in.Responses, &in.ResponseTime, &in.Status, &in.AssignedTo)
	return in, err
}

// ArchiveInbox flips the status to archived; inbox rows are never deleted
// by the service, only hidden from the default listings.
func (s *Store) ArchiveInbox(ctx context.Context, id int64) (bool, error) {
	return s.UpdateInboxStatus(ctx, id, models.StatusArchived)
}

// ApplyFeedback locates the inbox record produced from the same question at
// the same engine timestamp and applies triage derived from the feedback.
// The matched result drives feedback cleanup: only applied rows may be
// removed from the feedback table.
func (s *Store) ApplyFeedback(ctx context.Context, f models.Feedback) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE inbox SET status = $1
		WHERE question = $2 AND timestamp = $3 AND status <> $4
	`, f.Status.InboxStatus(), f.UserQuestion, f.Timestamp, models.StatusArchived)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListFeedback(ctx context.Context) ([]models.Feedback, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, user_question, timestamp, status, created_at
		FROM feedback
		ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Feedback
	for rows.Next() {
		var f models.Feedback
		if err := rows.Scan(&f.ID, &f.UserQuestion, &f.Timestamp, &f.Status, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpsertOutcome reports what a feedback submission did to the stored row
// behind its (user_question, timestamp) natural key.
type UpsertOutcome string

const (
	UpsertInserted  UpsertOutcome = "inserted"
	UpsertUpdated   UpsertOutcome = "updated"
	UpsertUnchanged UpsertOutcome = "unchanged"
)

// UpsertFeedback stores a submission, keeping at most one row per natural
// key. A repeated submission updates the status in place only when it
// actually changed.
func (s *Store) UpsertFeedback(ctx context.Context, f models.Feedback) (UpsertOutcome, error) {
	outcome := UpsertUnchanged
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var id int64
		var status models.FeedbackStatus
		err := tx.QueryRow(ctx, `
			SELECT id, status FROM feedback WHERE user_question = $1 AND timestamp = $2
		`, f.UserQuestion, f.Timestamp).Scan(&id, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			_, err = tx.Exec(ctx, `
				INSERT INTO feedback (user_question, timestamp, status, created_at)
				VALUES ($1,$2,$3,$4)
			`, f.UserQuestion, f.Timestamp, f.Status, time.Now().UTC())
			if err == nil {
				outcome = UpsertInserted
			}
			return err
		}
		if err != nil {
			return err
		}
		if status == f.Status {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE feedback SET status = $1 WHERE id = $2`, f.Status, id); err != nil {
			return err
		}
		outcome = UpsertUpdated
		return nil
	})
	return outcome, err
}

func (s *Store) DeleteFeedback(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.Pool.Exec(ctx, `DELETE FROM feedback WHERE id = ANY($1)`, ids)
	return err
}

// IntentExists reports whether name is a live entry of the intent registry.
func (s *Store) IntentExists(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	var exists bool
	err := s.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM intents WHERE name = $1 AND NOT archived)
	`, name).Scan(&exists)
	return exists, err
}

func (s *Store) ListIntents(ctx context.Context, includeArchived bool) ([]models.Intent, error) {
	query := `SELECT name, COALESCE(description, ''), archived, created_at, archived_at FROM intents`
	if !includeArchived {
		query += ` WHERE NOT archived`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Intent
	for rows.Next() {
		var it models.Intent
		if err := rows.Scan(&it.Name, &it.Description, &it.Archived, &it.CreatedAt, &it.ArchivedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) SearchIntents(ctx context.Context, query string, limit int) ([]models.Intent, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT name, COALESCE(description, ''), archived, created_at, archived_at
		FROM intents
		WHERE NOT archived AND (name ILIKE $1 OR description ILIKE $1)
		ORDER BY name ASC
		LIMIT $2
	`, "%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Intent
	for rows.Next() {
		var it models.Intent
		if err := rows.Scan(&it.Name, &it.Description, &it.Archived, &it.CreatedAt, &it.ArchivedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) CreateIntent(ctx context.Context, it models.Intent) (models.Intent, error) {
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO intents (name, description, archived, created_at)
		VALUES ($1, $2, false, NOW())
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			archived = false,
			archived_at = NULL
		RETURNING name, COALESCE(description, ''), archived, created_at, archived_at
	`, it.Name, it.Description).Scan(&it.Name, &it.Description, &it.Archived, &it.CreatedAt, &it.ArchivedAt)
	return it, err
}

func (s *Store) ArchiveIntent(ctx context.Context, name string) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `UPDATE intents SET archived = true, archived_at = NOW() WHERE name = $1 AND NOT archived`, name)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) CreateRun(ctx context.Context, kind string, status string) (string, error) {
	var id string
	err := s.Pool.QueryRow(ctx, `INSERT INTO runs (kind, status, started_at) VALUES ($1, $2, NOW()) RETURNING id`, kind, status).Scan(&id)
	return id, err
}

func (s *Store) FinishRun(ctx context.Context, runID string, status string, summary []byte) error {
	_, err := s.Pool.Exec(ctx, `UPDATE runs SET status = $1, summary = $2, finished_at = NOW() WHERE id = $3`, status, summary, runID)
	return err
}

func (s *Store) GetLatestRun(ctx context.Context, kind string) (models.Run, error) {
	var r models.Run
	err := s.Pool.QueryRow(ctx, `
		SELECT id, started_at, finished_at, status, summary
		FROM runs WHERE kind = $1
		ORDER BY started_at DESC LIMIT 1
	`, kind).Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Summary)
	return r, err
}
