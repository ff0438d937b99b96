package contact

import (
	"testing"

	"inbox_worker/core/domain"
	out "inbox_worker/core/port/out"
)

func fetchedThread(id, ts string) *domain.Thread {
	t := &domain.Thread{
		ID: id,
		Messages: []domain.Message{
			{Sender: "ada@example.com", Subject: "s", Body: "b", Date: ts},
		},
	}
	t.SyncTail()
	return t
}

func knownThread(id, ts, summaryText string) *domain.Thread {
	t := fetchedThread(id, ts)
	t.Summary = summaryText
	return t
}

func TestNormalizeThread(t *testing.T) {
	pt := &out.ProviderThread{
		ID: "t1",
		Messages: []out.ProviderMessage{
			{Sender: "Ada <ada@example.com>", Subject: "later", Body: "b2", Date: "Tue, 02 Jan 2024 15:04:05 +0000"},
			{Sender: "Ada <ada@example.com>", Subject: "earlier", Body: "b1", Date: "Mon, 01 Jan 2024 15:04:05 +0000"},
			{Sender: "Ada <ada@example.com>", Subject: "bad", Body: "b3", Date: "not a date"},
		},
	}

	thread, ok := NormalizeThread(domain.SourceGmail, pt)
	if !ok {
		t.Fatal("expected ok")
	}
	if len(thread.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 (malformed date dropped)", len(thread.Messages))
	}
	if thread.Messages[0].Subject != "earlier" {
		t.Error("messages not re-sorted chronologically")
	}
	if thread.LastSubject != "later" {
		t.Errorf("last_subject = %q", thread.LastSubject)
	}
	if thread.LastMessageTS != "2024-01-02T15:04:05Z" {
		t.Errorf("last_message_ts = %q, want normalized RFC3339 UTC", thread.LastMessageTS)
	}
}

func TestNormalizeThreadAllMalformed(t *testing.T) {
	pt := &out.ProviderThread{
		ID:       "t1",
		Messages: []out.ProviderMessage{{Sender: "x@y.com", Body: "b", Date: "garbage"}},
	}
	if _, ok := NormalizeThread(domain.SourceGmail, pt); ok {
		t.Error("thread with no valid messages must be rejected")
	}
}

func TestGroupBySender(t *testing.T) {
	raw := []*out.ProviderThread{
		{ID: "t1", Messages: []out.ProviderMessage{{Sender: "Ada <Ada@Example.com>", Body: "x", Date: "2024-01-01T00:00:00Z"}}},
		{ID: "t2", Messages: []out.ProviderMessage{{Sender: "ada@example.com", Body: "y", Date: "2024-01-02T00:00:00Z"}}},
		{ID: "t3", Messages: []out.ProviderMessage{{Sender: "bob@example.com", Body: "z", Date: "2024-01-03T00:00:00Z"}}},
		{ID: "t4", Messages: []out.ProviderMessage{{Sender: "no address here", Body: "w", Date: "2024-01-04T00:00:00Z"}}},
	}

	grouped := GroupBySender(domain.SourceGmail, raw)
	if len(grouped) != 2 {
		t.Fatalf("groups = %d, want 2", len(grouped))
	}
	if len(grouped["ada@example.com"]) != 2 {
		t.Errorf("ada threads = %d, want 2 (case-insensitive grouping)", len(grouped["ada@example.com"]))
	}
	if len(grouped["bob@example.com"]) != 1 {
		t.Errorf("bob threads = %d, want 1", len(grouped["bob@example.com"]))
	}
}

func TestMergeNoThreadLoss(t *testing.T) {
	prev := domain.NewContact(domain.SourceGmail, "ada@example.com")
	prev.Threads = map[string]*domain.Thread{
		"A": knownThread("A", "2024-01-01T00:00:00Z", "summary A"),
		"B": knownThread("B", "2024-01-02T00:00:00Z", "summary B"),
	}

	fetched := []*domain.Thread{
		fetchedThread("B", "2024-01-02T00:00:00Z"),
		fetchedThread("C", "2024-01-05T00:00:00Z"),
	}

	res := Merge(prev, domain.SourceGmail, "ada@example.com", fetched)
	if !res.Changed {
		t.Fatal("new thread C must mark the contact changed")
	}
	for _, id := range []string{"A", "B", "C"} {
		if _, ok := res.Contact.Threads[id]; !ok {
			t.Errorf("thread %s missing from merge", id)
		}
	}
	if res.Contact.Threads["A"].Summary != "summary A" {
		t.Error("unfetched thread lost its cached summary")
	}
	if res.Contact.Threads["B"].Summary != "summary B" {
		t.Error("unchanged fetched thread must reuse the cached record")
	}
	if len(res.NeedsSummary) != 1 || res.NeedsSummary[0].ID != "C" {
		t.Errorf("NeedsSummary = %v, want just C", res.NeedsSummary)
	}
	if res.Contact.LastSummary != "2024-01-05T00:00:00Z" {
		t.Errorf("last_summary = %q", res.Contact.LastSummary)
	}
}

func TestMergeUnchangedSkips(t *testing.T) {
	prev := domain.NewContact(domain.SourceGmail, "ada@example.com")
	prev.ContactSummary = "settled recap"
	prev.Threads = map[string]*domain.Thread{
		"A": knownThread("A", "2024-01-01T00:00:00Z", "summary A"),
	}

	res := Merge(prev, domain.SourceGmail, "ada@example.com", []*domain.Thread{
		fetchedThread("A", "2024-01-01T00:00:00Z"),
	})
	if res.Changed {
		t.Fatal("identical fetch must not mark the contact changed")
	}
	if res.Contact != prev {
		t.Error("unchanged contact must reuse the previous record verbatim")
	}
	if len(res.NeedsSummary) != 0 {
		t.Errorf("NeedsSummary = %v, want none", res.NeedsSummary)
	}
}

func TestMergeAdvancedTimestampResummarizes(t *testing.T) {
	prev := domain.NewContact(domain.SourceGmail, "ada@example.com")
	prev.Threads = map[string]*domain.Thread{
		"A": knownThread("A", "2024-01-01T00:00:00Z", "stale summary"),
	}

	res := Merge(prev, domain.SourceGmail, "ada@example.com", []*domain.Thread{
		fetchedThread("A", "2024-02-01T00:00:00Z"),
	})
	if !res.Changed {
		t.Fatal("advanced last_message_ts must mark the contact changed")
	}
	if res.Contact.Threads["A"].Summary != "" {
		t.Error("advanced thread must drop the stale summary")
	}
	if len(res.NeedsSummary) != 1 || res.NeedsSummary[0].ID != "A" {
		t.Errorf("NeedsSummary = %v, want just A", res.NeedsSummary)
	}
}

func TestMergeNoPrevious(t *testing.T) {
	res := Merge(nil, domain.SourceOutlook, "new@example.com", []*domain.Thread{
		fetchedThread("A", "2024-01-01T00:00:00Z"),
	})
	if !res.Changed {
		t.Fatal("first sighting must be changed")
	}
	if res.Contact.ID != "outlook:new@example.com" {
		t.Errorf("contact id = %q", res.Contact.ID)
	}
}

func TestPropagateRole(t *testing.T) {
	c := domain.NewContact(domain.SourceGmail, "ada@example.com")
	c.Role = domain.RoleStudent
	c.RoleConfidence = 0.8
	c.Threads = map[string]*domain.Thread{
		"A": {ID: "A", Role: domain.RoleFaculty, Importance: domain.ImportanceHigh},
		"B": {ID: "B", Importance: domain.ImportanceLow},
	}

	PropagateRole(c)
	for id, thread := range c.Threads {
		if thread.Role != domain.RoleStudent {
			t.Errorf("thread %s role = %q, want contact role", id, thread.Role)
		}
	}
	if c.Threads["A"].Importance != domain.ImportanceHigh || c.Threads["B"].Importance != domain.ImportanceLow {
		t.Error("importance must stay per-thread")
	}
}

func TestStoreListOrder(t *testing.T) {
	s := NewStore()
	older := domain.NewContact(domain.SourceGmail, "older@example.com")
	older.LastSummary = "2024-01-01T00:00:00Z"
	newer := domain.NewContact(domain.SourceGmail, "newer@example.com")
	newer.LastSummary = "2024-06-01T00:00:00Z"
	s.Put(older)
	s.Put(newer)

	list := s.List()
	if len(list) != 2 || list[0].Email != "newer@example.com" {
		t.Errorf("list order wrong: %+v", list)
	}
	if _, ok := s.GetByEmail(domain.SourceGmail, "OLDER@example.com"); !ok {
		t.Error("lookup must be case-insensitive")
	}
}
