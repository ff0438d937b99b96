package domain

import (
	"time"

	"github.com/google/uuid"
)

// DraftStatus is the review lifecycle state of a generated reply draft.
type DraftStatus string

const (
	DraftStatusPendingReview DraftStatus = "pending_review"
	DraftStatusApproved      DraftStatus = "approved"
	DraftStatusRejected      DraftStatus = "rejected"
	DraftStatusSent          DraftStatus = "sent"
)

// draftTransitions encodes the allowed state machine:
// pending_review → approved | rejected; approved → sent.
// sent and rejected are terminal.
var draftTransitions = map[DraftStatus][]DraftStatus{
	DraftStatusPendingReview: {DraftStatusApproved, DraftStatusRejected},
	DraftStatusApproved:      {DraftStatusSent},
	DraftStatusRejected:      {},
	DraftStatusSent:          {},
}

// CanTransition reports whether moving from s to next is allowed.
func (s DraftStatus) CanTransition(next DraftStatus) bool {
	for _, allowed := range draftTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s DraftStatus) Terminal() bool {
	return len(draftTransitions[s]) == 0
}

// ActiveDraftStatuses are the states that suppress creation of a new draft
// for the same thread at the same or older last_message_ts.
var ActiveDraftStatuses = []DraftStatus{
	DraftStatusPendingReview,
	DraftStatusApproved,
	DraftStatusSent,
}

// DraftTransition is one entry of a draft's append-only status history.
type DraftTransition struct {
	From DraftStatus `json:"from"`
	To   DraftStatus `json:"to"`
	At   time.Time   `json:"at"`
}

// ReplyDraft is an LLM-generated candidate reply awaiting human review.
// Uniquely scoped per (ContactID, ThreadID, LastMessageTS).
type ReplyDraft struct {
	ID             string            `json:"id"`
	ContactID      string            `json:"contact_id"`
	ThreadID       string            `json:"thread_id"`
	Subject        string            `json:"subject"`
	ThreadSummary  string            `json:"thread_summary"`
	GeneratedReply string            `json:"generated_reply"`
	Status         DraftStatus       `json:"status"`
	LastMessageTS  string            `json:"last_message_ts"`
	History        []DraftTransition `json:"history,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewReplyDraft creates a pending_review draft with a fresh ID.
func NewReplyDraft(contactID, threadID, subject, threadSummary, reply, lastMessageTS string) *ReplyDraft {
	now := time.Now().UTC()
	return &ReplyDraft{
		ID:             uuid.NewString(),
		ContactID:      contactID,
		ThreadID:       threadID,
		Subject:        subject,
		ThreadSummary:  threadSummary,
		GeneratedReply: reply,
		Status:         DraftStatusPendingReview,
		LastMessageTS:  lastMessageTS,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Transition moves the draft to the next status, appending to History.
// Returns false when the state machine forbids the move.
func (d *ReplyDraft) Transition(next DraftStatus) bool {
	if !d.Status.CanTransition(next) {
		return false
	}
	now := time.Now().UTC()
	d.History = append(d.History, DraftTransition{From: d.Status, To: next, At: now})
	d.Status = next
	d.UpdatedAt = now
	return true
}
