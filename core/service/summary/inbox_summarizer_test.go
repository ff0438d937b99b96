package summary

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"inbox_worker/core/domain"
	"inbox_worker/core/service/classification"
)

// fakeLLM returns canned text and counts calls. err, when set, fails every
// call.
type fakeLLM struct {
	calls int
	reply string
	err   error
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	if strings.Contains(prompt, "multiple email threads") {
		return "contact recap", nil
	}
	return "thread summary", nil
}

func newTestSummarizer(t *testing.T, llm *fakeLLM) *Summarizer {
	t.Helper()
	cache := NewSummaryCache(filepath.Join(t.TempDir(), "cache.json"), time.Hour)
	return NewSummarizer(llm, cache, classification.New())
}

func testThread(id, sender, subject, body string) *domain.Thread {
	t := &domain.Thread{
		ID: id,
		Messages: []domain.Message{
			{Sender: sender, Subject: subject, Body: body, Date: "2026-03-01T10:00:00Z"},
		},
	}
	t.SyncTail()
	return t
}

func TestSummarizeThreadCachesResult(t *testing.T) {
	llm := &fakeLLM{}
	s := newTestSummarizer(t, llm)
	ctx := context.Background()

	thread := testThread("t1", "ada@example.com", "Thesis draft", "Attached is the latest thesis chapter for your review before Friday.")

	res, err := s.SummarizeThread(ctx, domain.SourceGmail, "ada@example.com", thread, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.UsedCache {
		t.Error("first call must miss the cache")
	}
	if llm.calls != 1 {
		t.Fatalf("calls = %d, want 1", llm.calls)
	}

	// Second call with a fresh thread object hits the cache.
	again := testThread("t1", "ada@example.com", "Thesis draft", "Attached is the latest thesis chapter for your review before Friday.")
	res, err = s.SummarizeThread(ctx, domain.SourceGmail, "ada@example.com", again, false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.UsedCache {
		t.Error("second call must hit the cache")
	}
	if llm.calls != 1 {
		t.Fatalf("calls = %d after cache hit, want 1", llm.calls)
	}
	if again.Summary != "thread summary" {
		t.Errorf("summary = %q", again.Summary)
	}
	if again.Role == "" || again.Importance == "" {
		t.Errorf("classification not restored from cache: role=%q importance=%q", again.Role, again.Importance)
	}
}

func TestSummarizeThreadForceRegenerates(t *testing.T) {
	llm := &fakeLLM{}
	s := newTestSummarizer(t, llm)
	ctx := context.Background()

	thread := testThread("t1", "ada@example.com", "Status", "Here is the weekly status update with all the project details included.")
	if _, err := s.SummarizeThread(ctx, domain.SourceGmail, "ada@example.com", thread, false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SummarizeThread(ctx, domain.SourceGmail, "ada@example.com", thread, true); err != nil {
		t.Fatal(err)
	}
	if llm.calls != 2 {
		t.Fatalf("calls = %d, want 2 (force must bypass cache)", llm.calls)
	}
}

func TestSummarizeThreadSkipsTrivialContent(t *testing.T) {
	llm := &fakeLLM{}
	s := newTestSummarizer(t, llm)

	thread := &domain.Thread{ID: "t1", Messages: []domain.Message{{Body: "ok"}}}
	res, err := s.SummarizeThread(context.Background(), domain.SourceGmail, "a@b.com", thread, false)
	if err != nil {
		t.Fatal(err)
	}
	if llm.calls != 0 {
		t.Errorf("model called for trivial content")
	}
	if !strings.Contains(res.Summary, "No meaningful content") {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestSummarizeThreadKeepsCarriedSummary(t *testing.T) {
	llm := &fakeLLM{}
	s := newTestSummarizer(t, llm)

	// A thread rebuilt from a sheet row: summary and classification
	// present, no message bodies.
	seeded := &domain.Thread{
		ID:                   "t1",
		LastMessageTS:        "2026-02-01T10:00:00Z",
		LastSubject:          "Grant paperwork",
		Summary:              "Earlier recap of the grant paperwork thread.",
		Role:                 domain.RoleFaculty,
		RoleConfidence:       0.5,
		Importance:           domain.ImportanceMedium,
		ImportanceConfidence: 0.4,
	}

	res, err := s.SummarizeThread(context.Background(), domain.SourceGmail, "ada@example.com", seeded, false)
	if err != nil {
		t.Fatal(err)
	}
	if llm.calls != 0 {
		t.Errorf("calls = %d, model must not run on a body-less carried thread", llm.calls)
	}
	if res.Summary != "Earlier recap of the grant paperwork thread." {
		t.Errorf("summary = %q, carried summary was replaced", res.Summary)
	}

	// The cache is re-seeded from the carried data.
	entry, ok := s.cache.GetEntry(domain.SourceGmail, "ada@example.com", "t1")
	if !ok || entry.Summary != seeded.Summary || entry.Role != domain.RoleFaculty {
		t.Errorf("cache entry = %+v ok=%v", entry, ok)
	}
}

func TestSummarizeContactPreservesSeededThread(t *testing.T) {
	llm := &fakeLLM{}
	s := newTestSummarizer(t, llm)

	contact := domain.NewContact(domain.SourceGmail, "ada@example.com")
	contact.Threads = map[string]*domain.Thread{
		"t1": {
			ID:            "t1",
			LastMessageTS: "2026-02-01T10:00:00Z",
			LastSubject:   "Grant paperwork",
			Summary:       "Earlier recap of the grant paperwork thread.",
			Role:          domain.RoleFaculty,
		},
		"t2": testThread("t2", "ada@example.com", "Thesis draft", "Attached is the latest thesis chapter for your review before Friday."),
	}

	if _, err := s.SummarizeContact(context.Background(), contact, false); err != nil {
		t.Fatal(err)
	}
	// One call for the new thread plus the rollup; none for the seeded one.
	if llm.calls != 2 {
		t.Errorf("calls = %d, want 2", llm.calls)
	}
	if contact.Threads["t1"].Summary != "Earlier recap of the grant paperwork thread." {
		t.Errorf("seeded thread summary overwritten: %q", contact.Threads["t1"].Summary)
	}
}

func TestSummarizeThreadModelErrorNotCached(t *testing.T) {
	llm := &fakeLLM{err: errors.New("model down")}
	s := newTestSummarizer(t, llm)
	ctx := context.Background()

	thread := testThread("t1", "ada@example.com", "Question", "Could you confirm the meeting room booking for next Tuesday afternoon?")
	res, err := s.SummarizeThread(ctx, domain.SourceGmail, "ada@example.com", thread, false)
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Summary != FallbackSummary {
		t.Errorf("summary = %q", res.Summary)
	}

	// Recovery: next cycle must retry the model, not serve a cached failure.
	llm.err = nil
	res, err = s.SummarizeThread(ctx, domain.SourceGmail, "ada@example.com", thread, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.UsedCache {
		t.Error("failure was cached")
	}
	if llm.calls != 2 {
		t.Errorf("calls = %d, want 2", llm.calls)
	}
}

func TestSummarizeContactMajorityRole(t *testing.T) {
	llm := &fakeLLM{}
	s := newTestSummarizer(t, llm)

	contact := domain.NewContact(domain.SourceGmail, "chair@university.edu")
	contact.Threads = map[string]*domain.Thread{
		"t1": testThread("t1", "chair@university.edu", "Faculty meeting agenda", "The faculty meeting covers the syllabus revision and grading policy."),
		"t2": testThread("t2", "chair@university.edu", "Tenure review", "The tenure committee requests your publication list for peer review."),
		"t3": testThread("t3", "chair@university.edu", "Parking reminder", "Visitor parking passes are available at the front desk this week."),
	}

	recap, err := s.SummarizeContact(context.Background(), contact, false)
	if err != nil {
		t.Fatal(err)
	}
	if recap != "contact recap" {
		t.Errorf("recap = %q", recap)
	}
	if contact.Role != domain.RoleFaculty {
		t.Errorf("role = %q, want %q by majority vote", contact.Role, domain.RoleFaculty)
	}
	if contact.RoleConfidence <= 0 || contact.RoleConfidence > 0.95 {
		t.Errorf("role confidence out of range: %v", contact.RoleConfidence)
	}
	if contact.ContactSummary != "contact recap" {
		t.Errorf("contact summary = %q", contact.ContactSummary)
	}

	// Rollup is cached under the contact key.
	if entry, ok := s.cache.GetContactEntry(domain.SourceGmail, "chair@university.edu"); !ok || entry.Summary != "contact recap" {
		t.Errorf("rollup entry = %+v ok=%v", entry, ok)
	}

	// 3 thread calls + 1 rollup call.
	if llm.calls != 4 {
		t.Errorf("calls = %d, want 4", llm.calls)
	}
}

func TestSummarizeContactNoThreads(t *testing.T) {
	s := newTestSummarizer(t, &fakeLLM{})
	contact := domain.NewContact(domain.SourceGmail, "empty@example.com")

	recap, err := s.SummarizeContact(context.Background(), contact, false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(recap, "No threads") {
		t.Errorf("recap = %q", recap)
	}
}

func TestMajorityRoleTieBreak(t *testing.T) {
	votes := map[domain.Role][]float64{
		domain.RoleStudent: {0.5},
		domain.RoleFaculty: {0.9},
	}
	role, conf := majorityRole(votes)
	if role != domain.RoleFaculty {
		t.Errorf("role = %q, higher-priority role must win ties", role)
	}
	if conf != 0.9 {
		t.Errorf("conf = %v", conf)
	}
}
