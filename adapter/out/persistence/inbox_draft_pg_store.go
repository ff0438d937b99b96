package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"inbox_worker/core/domain"
	"inbox_worker/core/port/out"
	"inbox_worker/pkg/apperr"
	"inbox_worker/pkg/logger"

	json "github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
)

// DraftPgStore implements out.DraftRepository on Postgres.
// Enabled when DATABASE_URL is set; requires the reply_drafts table.
type DraftPgStore struct {
	db *sqlx.DB
}

// NewDraftPgStore creates a DraftPgStore and ensures the schema exists.
func NewDraftPgStore(ctx context.Context, db *sqlx.DB) (*DraftPgStore, error) {
	s := &DraftPgStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DraftPgStore) ensureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS reply_drafts (
			id              TEXT PRIMARY KEY,
			contact_id      TEXT NOT NULL,
			thread_id       TEXT NOT NULL,
			subject         TEXT NOT NULL DEFAULT '',
			thread_summary  TEXT NOT NULL DEFAULT '',
			generated_reply TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL,
			last_message_ts TEXT NOT NULL DEFAULT '',
			history         JSONB NOT NULL DEFAULT '[]',
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reply_drafts_thread
			ON reply_drafts (contact_id, thread_id);
		CREATE INDEX IF NOT EXISTS idx_reply_drafts_contact
			ON reply_drafts (contact_id, created_at DESC)`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return apperr.StoreError("ensure draft schema", err)
	}
	return nil
}

func (s *DraftPgStore) Insert(ctx context.Context, draft *domain.ReplyDraft) error {
	history, _ := json.Marshal(draft.History)

	query := `
		INSERT INTO reply_drafts (
			id, contact_id, thread_id, subject, thread_summary,
			generated_reply, status, last_message_ts, history,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query,
		draft.ID, draft.ContactID, draft.ThreadID, draft.Subject, draft.ThreadSummary,
		draft.GeneratedReply, draft.Status, draft.LastMessageTS, history,
		draft.CreatedAt, draft.UpdatedAt,
	)
	if err != nil {
		return apperr.StoreError("insert draft", fmt.Errorf("insert draft: %w", err))
	}
	return nil
}

func (s *DraftPgStore) Update(ctx context.Context, draft *domain.ReplyDraft) error {
	history, _ := json.Marshal(draft.History)

	query := `
		UPDATE reply_drafts SET
			subject = $2, thread_summary = $3, generated_reply = $4,
			status = $5, last_message_ts = $6, history = $7, updated_at = $8
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		draft.ID, draft.Subject, draft.ThreadSummary, draft.GeneratedReply,
		draft.Status, draft.LastMessageTS, history, draft.UpdatedAt,
	)
	if err != nil {
		return apperr.StoreError("update draft", fmt.Errorf("update draft: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("draft")
	}
	return nil
}

func (s *DraftPgStore) Get(ctx context.Context, id string) (*domain.ReplyDraft, error) {
	query := `
		SELECT id, contact_id, thread_id, subject, thread_summary,
		       generated_reply, status, last_message_ts, history,
		       created_at, updated_at
		FROM reply_drafts
		WHERE id = $1`

	var row draftRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("draft")
		}
		return nil, apperr.StoreError("get draft", fmt.Errorf("get draft: %w", err))
	}
	return row.toDomain(), nil
}

func (s *DraftPgStore) ListByThread(ctx context.Context, contactID, threadID string) ([]*domain.ReplyDraft, error) {
	query := `
		SELECT id, contact_id, thread_id, subject, thread_summary,
		       generated_reply, status, last_message_ts, history,
		       created_at, updated_at
		FROM reply_drafts
		WHERE contact_id = $1 AND thread_id = $2
		ORDER BY created_at DESC`

	var rows []draftRow
	if err := s.db.SelectContext(ctx, &rows, query, contactID, threadID); err != nil {
		return nil, apperr.StoreError("list drafts by thread", fmt.Errorf("list by thread: %w", err))
	}

	drafts := make([]*domain.ReplyDraft, len(rows))
	for i := range rows {
		drafts[i] = rows[i].toDomain()
	}
	return drafts, nil
}

func (s *DraftPgStore) ListByContact(ctx context.Context, contactID string) ([]*domain.ReplyDraft, error) {
	query := `
		SELECT id, contact_id, thread_id, subject, thread_summary,
		       generated_reply, status, last_message_ts, history,
		       created_at, updated_at
		FROM reply_drafts`
	args := []interface{}{}
	if contactID != "" {
		query += " WHERE contact_id = $1"
		args = append(args, contactID)
	}
	query += " ORDER BY created_at DESC"

	var rows []draftRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.StoreError("list drafts by contact", fmt.Errorf("list by contact: %w", err))
	}

	drafts := make([]*domain.ReplyDraft, len(rows))
	for i := range rows {
		drafts[i] = rows[i].toDomain()
	}
	return drafts, nil
}

type draftRow struct {
	ID             string    `db:"id"`
	ContactID      string    `db:"contact_id"`
	ThreadID       string    `db:"thread_id"`
	Subject        string    `db:"subject"`
	ThreadSummary  string    `db:"thread_summary"`
	GeneratedReply string    `db:"generated_reply"`
	Status         string    `db:"status"`
	LastMessageTS  string    `db:"last_message_ts"`
	History        []byte    `db:"history"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r *draftRow) toDomain() *domain.ReplyDraft {
	draft := &domain.ReplyDraft{
		ID:             r.ID,
		ContactID:      r.ContactID,
		ThreadID:       r.ThreadID,
		Subject:        r.Subject,
		ThreadSummary:  r.ThreadSummary,
		GeneratedReply: r.GeneratedReply,
		Status:         domain.DraftStatus(r.Status),
		LastMessageTS:  r.LastMessageTS,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if len(r.History) > 0 {
		if err := json.Unmarshal(r.History, &draft.History); err != nil {
			logger.WithError(apperr.MalformedData("draft history", err)).
				WithField("draft_id", r.ID).
				Warn("dropping unparseable draft history")
		}
	}
	return draft
}

var _ out.DraftRepository = (*DraftPgStore)(nil)
