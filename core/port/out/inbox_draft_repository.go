package out

import (
	"context"

	"inbox_worker/core/domain"
)

// DraftRepository is the outbound port for reply-draft persistence.
// Implemented by the JSON file store and the Postgres adapter.
type DraftRepository interface {
	Insert(ctx context.Context, draft *domain.ReplyDraft) error
	Update(ctx context.Context, draft *domain.ReplyDraft) error
	Get(ctx context.Context, id string) (*domain.ReplyDraft, error)

	// ListByThread returns all drafts for one (contact, thread) pair,
	// newest first.
	ListByThread(ctx context.Context, contactID, threadID string) ([]*domain.ReplyDraft, error)

	// ListByContact returns all drafts for a contact, newest first.
	// Empty contactID lists everything.
	ListByContact(ctx context.Context, contactID string) ([]*domain.ReplyDraft, error)
}
