package draft

import (
	"context"
	"sort"
	"testing"

	"inbox_worker/core/domain"
	"inbox_worker/pkg/apperr"
)

// memRepo is an in-memory DraftRepository for tests.
type memRepo struct {
	drafts map[string]*domain.ReplyDraft
}

func newMemRepo() *memRepo {
	return &memRepo{drafts: make(map[string]*domain.ReplyDraft)}
}

func (r *memRepo) Insert(_ context.Context, d *domain.ReplyDraft) error {
	cp := *d
	r.drafts[d.ID] = &cp
	return nil
}

func (r *memRepo) Update(_ context.Context, d *domain.ReplyDraft) error {
	cp := *d
	r.drafts[d.ID] = &cp
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*domain.ReplyDraft, error) {
	d, ok := r.drafts[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *memRepo) ListByThread(_ context.Context, contactID, threadID string) ([]*domain.ReplyDraft, error) {
	var list []*domain.ReplyDraft
	for _, d := range r.drafts {
		if d.ContactID == contactID && d.ThreadID == threadID {
			cp := *d
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (r *memRepo) ListByContact(_ context.Context, contactID string) ([]*domain.ReplyDraft, error) {
	var list []*domain.ReplyDraft
	for _, d := range r.drafts {
		if contactID == "" || d.ContactID == contactID {
			cp := *d
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

type staticLLM struct {
	reply string
	calls int
}

func (s *staticLLM) Complete(context.Context, string) (string, error) {
	s.calls++
	return s.reply, nil
}

func importantThread(id, ts string) *domain.Thread {
	t := &domain.Thread{
		ID: id,
		Messages: []domain.Message{
			{Sender: "a@x.com", Subject: "URGENT: deadline today", Body: "Please respond before the deadline today.", Date: ts},
		},
		Summary:    "needs a reply",
		Importance: domain.ImportanceHigh,
	}
	t.SyncTail()
	return t
}

func TestEnqueueDedup(t *testing.T) {
	repo := newMemRepo()
	q := NewQueue(repo, &staticLLM{reply: "Sure, I will send it over today."})
	ctx := context.Background()
	contact := domain.NewContact(domain.SourceGmail, "a@x.com")

	thread := importantThread("t1", "2024-01-01T00:00:00Z")
	d1, err := q.EnqueueForThread(ctx, contact, thread)
	if err != nil {
		t.Fatal(err)
	}
	if d1 == nil || d1.Status != domain.DraftStatusPendingReview {
		t.Fatalf("first enqueue: %+v", d1)
	}

	// Same thread state again: suppressed.
	d2, err := q.EnqueueForThread(ctx, contact, thread)
	if err != nil {
		t.Fatal(err)
	}
	if d2 != nil {
		t.Fatal("duplicate draft created for unchanged thread")
	}
	if len(repo.drafts) != 1 {
		t.Fatalf("drafts = %d, want 1", len(repo.drafts))
	}

	// Thread advanced: a second draft is allowed.
	advanced := importantThread("t1", "2024-02-01T00:00:00Z")
	d3, err := q.EnqueueForThread(ctx, contact, advanced)
	if err != nil {
		t.Fatal(err)
	}
	if d3 == nil {
		t.Fatal("advanced thread must yield a new draft")
	}
	if len(repo.drafts) != 2 {
		t.Fatalf("drafts = %d, want 2", len(repo.drafts))
	}
}

func TestEnqueueSkipsLowImportance(t *testing.T) {
	llm := &staticLLM{reply: "text"}
	q := NewQueue(newMemRepo(), llm)
	contact := domain.NewContact(domain.SourceGmail, "a@x.com")

	thread := importantThread("t1", "2024-01-01T00:00:00Z")
	thread.Importance = domain.ImportanceLow

	d, err := q.EnqueueForThread(context.Background(), contact, thread)
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Error("low-importance thread must not produce a draft")
	}
	if llm.calls != 0 {
		t.Error("model must not be called for skipped threads")
	}
}

func TestEnqueueSkipsNoReplyNeeded(t *testing.T) {
	q := NewQueue(newMemRepo(), &staticLLM{reply: "No reply needed: this is an automated notification."})
	contact := domain.NewContact(domain.SourceGmail, "a@x.com")

	d, err := q.EnqueueForThread(context.Background(), contact, importantThread("t1", "2024-01-01T00:00:00Z"))
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Error("model declining to reply must not produce a draft")
	}
}

func TestRejectedDraftDoesNotSuppress(t *testing.T) {
	repo := newMemRepo()
	q := NewQueue(repo, &staticLLM{reply: "reply"})
	ctx := context.Background()
	contact := domain.NewContact(domain.SourceGmail, "a@x.com")

	thread := importantThread("t1", "2024-01-01T00:00:00Z")
	d1, err := q.EnqueueForThread(ctx, contact, thread)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.UpdateStatus(ctx, d1.ID, domain.DraftStatusRejected); err != nil {
		t.Fatal(err)
	}

	d2, err := q.EnqueueForThread(ctx, contact, thread)
	if err != nil {
		t.Fatal(err)
	}
	if d2 == nil {
		t.Error("a rejected draft must not suppress a fresh one")
	}
}

func TestUpdateStatusStateMachine(t *testing.T) {
	repo := newMemRepo()
	q := NewQueue(repo, &staticLLM{reply: "reply"})
	ctx := context.Background()
	contact := domain.NewContact(domain.SourceGmail, "a@x.com")

	d, err := q.EnqueueForThread(ctx, contact, importantThread("t1", "2024-01-01T00:00:00Z"))
	if err != nil {
		t.Fatal(err)
	}

	// pending_review cannot go straight to sent.
	if _, err := q.UpdateStatus(ctx, d.ID, domain.DraftStatusSent); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("err = %v, want invalid transition", err)
	}

	d, err = q.UpdateStatus(ctx, d.ID, domain.DraftStatusApproved)
	if err != nil {
		t.Fatal(err)
	}

	// approved can only advance to sent.
	if _, err := q.UpdateStatus(ctx, d.ID, domain.DraftStatusRejected); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("err = %v, want invalid transition", err)
	}

	d, err = q.UpdateStatus(ctx, d.ID, domain.DraftStatusSent)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != domain.DraftStatusSent {
		t.Errorf("status = %q", d.Status)
	}
	if len(d.History) != 2 {
		t.Errorf("history = %d entries, want 2", len(d.History))
	}

	// sent is terminal.
	if _, err := q.UpdateStatus(ctx, d.ID, domain.DraftStatusRejected); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("err = %v, want invalid transition", err)
	}
}

func TestUpdateStatusNotFound(t *testing.T) {
	q := NewQueue(newMemRepo(), nil)
	if _, err := q.UpdateStatus(context.Background(), "missing", domain.DraftStatusApproved); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}
