package worker

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"inbox_worker/core/domain"
	"inbox_worker/core/port/out"
	"inbox_worker/core/service/classification"
	"inbox_worker/core/service/contact"
	"inbox_worker/core/service/draft"
	"inbox_worker/core/service/sheetsync"
	"inbox_worker/core/service/summary"
)

type fakeProvider struct {
	source  domain.Source
	threads []*out.ProviderThread
	lists   int
}

func (p *fakeProvider) Source() domain.Source { return p.source }

func (p *fakeProvider) ListThreads(_ context.Context, _ int) ([]*out.ProviderThread, error) {
	p.lists++
	return p.threads, nil
}

func (p *fakeProvider) GetThread(_ context.Context, id string) (*out.ProviderThread, error) {
	for _, t := range p.threads {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func (p *fakeProvider) SendReply(_ context.Context, _ *out.ProviderReply) error { return nil }

type fakeLLM struct{ calls int }

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	if strings.Contains(prompt, "multiple email threads") {
		return "contact recap", nil
	}
	if strings.Contains(prompt, "reply") {
		return "Thanks, will do.", nil
	}
	return "thread summary", nil
}

type memDraftRepo struct {
	drafts []*domain.ReplyDraft
}

func (r *memDraftRepo) Insert(_ context.Context, d *domain.ReplyDraft) error {
	cp := *d
	r.drafts = append([]*domain.ReplyDraft{&cp}, r.drafts...)
	return nil
}

func (r *memDraftRepo) Update(_ context.Context, d *domain.ReplyDraft) error {
	for i, e := range r.drafts {
		if e.ID == d.ID {
			cp := *d
			r.drafts[i] = &cp
		}
	}
	return nil
}

func (r *memDraftRepo) Get(_ context.Context, id string) (*domain.ReplyDraft, error) {
	for _, d := range r.drafts {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memDraftRepo) ListByThread(_ context.Context, contactID, threadID string) ([]*domain.ReplyDraft, error) {
	var matched []*domain.ReplyDraft
	for _, d := range r.drafts {
		if d.ContactID == contactID && d.ThreadID == threadID {
			cp := *d
			matched = append(matched, &cp)
		}
	}
	return matched, nil
}

func (r *memDraftRepo) ListByContact(_ context.Context, contactID string) ([]*domain.ReplyDraft, error) {
	var matched []*domain.ReplyDraft
	for _, d := range r.drafts {
		if contactID == "" || d.ContactID == contactID {
			cp := *d
			matched = append(matched, &cp)
		}
	}
	return matched, nil
}

type fakeSheet struct {
	rows   []domain.SheetRow
	writes int
}

func (s *fakeSheet) ReadRows(_ context.Context) ([]domain.SheetRow, error) {
	return append([]domain.SheetRow(nil), s.rows...), nil
}

func (s *fakeSheet) WriteRows(_ context.Context, rows []domain.SheetRow) error {
	s.writes++
	s.rows = append([]domain.SheetRow(nil), rows...)
	return nil
}

func newTestLoop(t *testing.T, provider *fakeProvider, sheet *fakeSheet) (*PollLoop, *fakeLLM, *memDraftRepo) {
	t.Helper()

	llm := &fakeLLM{}
	repo := &memDraftRepo{}
	cache := summary.NewSummaryCache(filepath.Join(t.TempDir(), "cache.json"), time.Hour)
	summarizer := summary.NewSummarizer(llm, cache, classification.New())
	drafts := draft.NewQueue(repo, llm)
	engine := sheetsync.NewEngine(sheet)

	loop := NewPollLoop(
		[]out.MailProvider{provider},
		contact.NewStore(),
		cache,
		summarizer,
		drafts,
		engine,
		time.Minute,
		10,
	)
	return loop, llm, repo
}

func urgentThread(id, sender string) *out.ProviderThread {
	return &out.ProviderThread{
		ID: id,
		Messages: []out.ProviderMessage{
			{
				Sender:    sender,
				Subject:   "Urgent: grant deadline today",
				Body:      "The committee needs the final figures before the deadline this evening.",
				Date:      "Mon, 02 Jan 2006 15:04:05 +0000",
				MessageID: id + "-m1",
			},
		},
	}
}

func TestRunCycleIngestsAndSyncs(t *testing.T) {
	provider := &fakeProvider{
		source:  domain.SourceGmail,
		threads: []*out.ProviderThread{urgentThread("t1", "Alice <alice@example.com>")},
	}
	sheet := &fakeSheet{}
	loop, llm, repo := newTestLoop(t, provider, sheet)

	loop.RunCycle()

	if provider.lists != 1 {
		t.Fatalf("lists = %d, want 1", provider.lists)
	}
	if sheet.writes != 1 {
		t.Fatalf("sheet writes = %d, want 1", sheet.writes)
	}
	if len(sheet.rows) != 1 {
		t.Fatalf("sheet rows = %d, want 1", len(sheet.rows))
	}
	row := sheet.rows[0]
	if row.Email != "alice@example.com" || row.Source != string(domain.SourceGmail) {
		t.Errorf("row identity = %q/%q", row.Email, row.Source)
	}
	if row.ContactSummary != "contact recap" {
		t.Errorf("ContactSummary = %q", row.ContactSummary)
	}

	// The urgent thread is high importance, so a draft was queued.
	drafts, _ := repo.ListByContact(context.Background(), "")
	if len(drafts) != 1 {
		t.Fatalf("drafts = %d, want 1", len(drafts))
	}
	if drafts[0].Status != domain.DraftStatusPendingReview {
		t.Errorf("draft status = %q", drafts[0].Status)
	}
	if llm.calls == 0 {
		t.Error("expected model calls")
	}
}

func TestRunCycleIdempotentSecondPass(t *testing.T) {
	provider := &fakeProvider{
		source:  domain.SourceGmail,
		threads: []*out.ProviderThread{urgentThread("t1", "Alice <alice@example.com>")},
	}
	sheet := &fakeSheet{}
	loop, llm, repo := newTestLoop(t, provider, sheet)

	loop.RunCycle()
	callsAfterFirst := llm.calls
	loop.RunCycle()

	// Unchanged threads: no resummarize, no second sheet write, no new draft.
	if llm.calls != callsAfterFirst {
		t.Errorf("llm calls grew from %d to %d on unchanged cycle", callsAfterFirst, llm.calls)
	}
	if sheet.writes != 1 {
		t.Errorf("sheet writes = %d, want 1", sheet.writes)
	}
	drafts, _ := repo.ListByContact(context.Background(), "")
	if len(drafts) != 1 {
		t.Errorf("drafts = %d, want 1", len(drafts))
	}
}

func TestRunCycleNewActivityTriggersResummary(t *testing.T) {
	thread := urgentThread("t1", "Alice <alice@example.com>")
	provider := &fakeProvider{
		source:  domain.SourceGmail,
		threads: []*out.ProviderThread{thread},
	}
	sheet := &fakeSheet{}
	loop, llm, _ := newTestLoop(t, provider, sheet)

	loop.RunCycle()
	callsAfterFirst := llm.calls

	thread.Messages = append(thread.Messages, out.ProviderMessage{
		Sender:    "Alice <alice@example.com>",
		Subject:   "Re: Urgent: grant deadline today",
		Body:      "Figures attached now, please confirm receipt as soon as possible.",
		Date:      "Mon, 02 Jan 2006 18:04:05 +0000",
		MessageID: "t1-m2",
	})
	loop.RunCycle()

	if llm.calls <= callsAfterFirst {
		t.Error("expected resummarization after new message")
	}
	if sheet.writes != 2 {
		t.Errorf("sheet writes = %d, want 2", sheet.writes)
	}
}
