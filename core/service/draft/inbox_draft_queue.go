// Package draft manages the reply-draft queue: generation gating, duplicate
// suppression, and the review state machine.
package draft

import (
	"context"
	"fmt"
	"strings"

	"inbox_worker/core/domain"
	out "inbox_worker/core/port/out"
	"inbox_worker/pkg/apperr"
	"inbox_worker/pkg/logger"
)

const replyPromptTemplate = `You are an email assistant helping a busy professional write a reply.

Original Email:
From: %s
Subject: %s
Body: %s

Summary: %s

Generate a professional, concise reply. Consider:
- The tone and context of the original email
- Whether a reply is needed (some emails don't need responses)
- Keep it brief and actionable
- Match the formality level of the original

If no reply is needed, say "No reply needed" and explain why.
Otherwise, write the reply directly (no greetings like "Here's a reply:").`

// Queue persists generated reply drafts and guards their lifecycle.
type Queue struct {
	repo out.DraftRepository
	llm  out.CompletionClient
}

// NewQueue wires the draft queue. llm may be nil when drafts are enqueued
// with pre-generated reply text only.
func NewQueue(repo out.DraftRepository, llm out.CompletionClient) *Queue {
	return &Queue{repo: repo, llm: llm}
}

// HasRecentDraft reports whether a draft in any of the given statuses
// already exists for the thread at the same or later last_message_ts.
// Such a draft suppresses creation of a new one.
func (q *Queue) HasRecentDraft(ctx context.Context, contactID, threadID, lastMessageTS string, statuses []domain.DraftStatus) (bool, error) {
	drafts, err := q.repo.ListByThread(ctx, contactID, threadID)
	if err != nil {
		return false, err
	}
	for _, d := range drafts {
		for _, s := range statuses {
			if d.Status == s && d.LastMessageTS >= lastMessageTS {
				return true, nil
			}
		}
	}
	return false, nil
}

// EnqueueForThread generates and persists a reply draft for one thread.
// Creation is skipped when the thread's importance is Low, or when an
// active draft already covers the thread at this last_message_ts. Returns
// (nil, nil) on a skip.
func (q *Queue) EnqueueForThread(ctx context.Context, contact *domain.Contact, thread *domain.Thread) (*domain.ReplyDraft, error) {
	if thread.Importance == domain.ImportanceLow {
		return nil, nil
	}

	suppressed, err := q.HasRecentDraft(ctx, contact.ID, thread.ID, thread.LastMessageTS, domain.ActiveDraftStatuses)
	if err != nil {
		return nil, err
	}
	if suppressed {
		logger.WithFields(map[string]interface{}{
			"contact_id": contact.ID,
			"thread_id":  thread.ID,
		}).Debug("draft suppressed, active draft already covers this thread state")
		return nil, nil
	}

	reply, err := q.generateReply(ctx, thread)
	if err != nil {
		return nil, err
	}
	if reply == "" {
		return nil, nil
	}

	d := domain.NewReplyDraft(contact.ID, thread.ID, thread.LastSubject, thread.Summary, reply, thread.LastMessageTS)
	if err := q.repo.Insert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Enqueue persists an already-built draft, applying the same suppression
// rules as EnqueueForThread. Returns (nil, nil) when suppressed.
func (q *Queue) Enqueue(ctx context.Context, d *domain.ReplyDraft) (*domain.ReplyDraft, error) {
	suppressed, err := q.HasRecentDraft(ctx, d.ContactID, d.ThreadID, d.LastMessageTS, domain.ActiveDraftStatuses)
	if err != nil {
		return nil, err
	}
	if suppressed {
		return nil, nil
	}
	if err := q.repo.Insert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (q *Queue) generateReply(ctx context.Context, thread *domain.Thread) (string, error) {
	if q.llm == nil {
		return "", apperr.Internal("no completion client configured for reply generation")
	}
	latest := thread.Latest()
	sender, subject, body := "", thread.LastSubject, thread.LastBody
	if latest != nil {
		sender, subject, body = latest.Sender, latest.Subject, latest.Body
	}

	text, err := q.llm.Complete(ctx, fmt.Sprintf(replyPromptTemplate, sender, subject, body, thread.Summary))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if strings.HasPrefix(strings.ToLower(text), "no reply needed") {
		return "", nil
	}
	return text, nil
}

// UpdateStatus transitions a draft through the review state machine.
func (q *Queue) UpdateStatus(ctx context.Context, id string, next domain.DraftStatus) (*domain.ReplyDraft, error) {
	d, err := q.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFound("draft")
	}
	if !d.Transition(next) {
		return nil, apperr.InvalidTransition(string(d.Status), string(next))
	}
	if err := q.repo.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Get returns one draft by ID.
func (q *Queue) Get(ctx context.Context, id string) (*domain.ReplyDraft, error) {
	d, err := q.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFound("draft")
	}
	return d, nil
}

// List returns drafts newest first, optionally scoped to one contact.
func (q *Queue) List(ctx context.Context, contactID string) ([]*domain.ReplyDraft, error) {
	return q.repo.ListByContact(ctx, contactID)
}
