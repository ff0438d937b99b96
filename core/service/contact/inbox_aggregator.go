// Package contact groups provider threads into contact-centric records and
// merges them with previously known state across polling cycles.
package contact

import (
	"sort"
	"strings"
	"sync"

	"inbox_worker/core/domain"
	out "inbox_worker/core/port/out"
	"inbox_worker/pkg/logger"
	"inbox_worker/pkg/timeutil"
)

// ============================================================
// Normalization
// ============================================================

// NormalizeThread converts a provider thread into the canonical domain
// shape. Messages with unparseable dates are dropped individually; a thread
// whose every message is malformed yields ok=false. Messages come out in
// chronological order regardless of provider ordering.
func NormalizeThread(source domain.Source, pt *out.ProviderThread) (*domain.Thread, bool) {
	if pt == nil || pt.ID == "" {
		return nil, false
	}

	thread := &domain.Thread{ID: pt.ID}
	for _, pm := range pt.Messages {
		date := timeutil.Normalize(pm.Date)
		if date == "" {
			logger.WithFields(map[string]interface{}{
				"source":    string(source),
				"thread_id": pt.ID,
				"date":      pm.Date,
			}).Warn("dropping message with unparseable date")
			continue
		}
		if strings.TrimSpace(pm.Sender) == "" && strings.TrimSpace(pm.Body) == "" {
			continue
		}
		thread.Messages = append(thread.Messages, domain.Message{
			Sender:    pm.Sender,
			Subject:   pm.Subject,
			Body:      pm.Body,
			Date:      date,
			MessageID: pm.MessageID,
		})
	}
	if len(thread.Messages) == 0 {
		return nil, false
	}

	sort.SliceStable(thread.Messages, func(i, j int) bool {
		return thread.Messages[i].Date < thread.Messages[j].Date
	})
	thread.SyncTail()
	return thread, true
}

// GroupBySender buckets normalized threads by the counterpart's bare email,
// lower-cased. The counterpart is taken from the newest message's sender.
// Threads with no resolvable address are dropped.
func GroupBySender(source domain.Source, raw []*out.ProviderThread) map[string][]*domain.Thread {
	grouped := make(map[string][]*domain.Thread)
	for _, pt := range raw {
		thread, ok := NormalizeThread(source, pt)
		if !ok {
			continue
		}
		_, email := domain.ParseAddress(thread.Latest().Sender)
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" || !strings.Contains(email, "@") {
			logger.WithFields(map[string]interface{}{
				"source":    string(source),
				"thread_id": thread.ID,
			}).Warn("dropping thread with no resolvable sender")
			continue
		}
		grouped[email] = append(grouped[email], thread)
	}
	return grouped
}

// ============================================================
// Merge
// ============================================================

// MergeResult reports what a merge produced. Threads in NeedsSummary lost
// their cached summary either because they are new or because their
// last_message_ts advanced; everything else was carried over verbatim.
type MergeResult struct {
	Contact      *domain.Contact
	NeedsSummary []*domain.Thread
	Changed      bool
}

// Merge combines the previous cycle's contact record with freshly fetched
// threads. Every fetched thread is included; every previously known thread
// absent from the fetch is retained unchanged, so a provider's rolling
// "recent N" window never loses history. A thread is re-summarized only
// when it is new or its last_message_ts advanced; when nothing advanced and
// the thread-id set is unchanged, the previous record is returned as-is
// with Changed=false so the caller can skip all model work.
func Merge(prev *domain.Contact, source domain.Source, email string, fetched []*domain.Thread) MergeResult {
	merged := domain.NewContact(source, email)

	existing := make(map[string]*domain.Thread)
	if prev != nil {
		merged.Role = prev.Role
		merged.RoleConfidence = prev.RoleConfidence
		merged.ContactSummary = prev.ContactSummary
		for id, t := range prev.Threads {
			existing[id] = t
		}
	}

	result := MergeResult{Contact: merged}
	for _, t := range fetched {
		old, known := existing[t.ID]
		delete(existing, t.ID)

		if known && old.LastMessageTS >= t.LastMessageTS {
			// Content did not advance; keep the summarized record.
			merged.Threads[t.ID] = old
			continue
		}
		result.Changed = true
		merged.Threads[t.ID] = t
		result.NeedsSummary = append(result.NeedsSummary, t)
	}

	// Whatever was not refreshed this cycle is carried over untouched.
	for id, t := range existing {
		merged.Threads[id] = t
	}

	if !result.Changed && prev != nil {
		result.Contact = prev
		return result
	}

	merged.LastSummary = merged.LatestActivity()
	return result
}

// PropagateRole stamps the contact-scoped role onto every thread.
// Importance stays per-thread.
func PropagateRole(c *domain.Contact) {
	for _, t := range c.Threads {
		t.Role = c.Role
		t.RoleConfidence = c.RoleConfidence
	}
}

// ============================================================
// Store
// ============================================================

// Store is the in-memory view of merged contacts, read by the dashboard
// API while the poll loop keeps writing new cycles into it. Seeded from
// the external sheet at startup so history survives restarts.
type Store struct {
	mu       sync.RWMutex
	contacts map[string]*domain.Contact
}

// NewStore creates an empty contact store.
func NewStore() *Store {
	return &Store{contacts: make(map[string]*domain.Contact)}
}

// Put stores or replaces a contact record.
func (s *Store) Put(c *domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = c
}

// Get looks a contact up by its normalized ID.
func (s *Store) Get(id string) (*domain.Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	return c, ok
}

// GetByEmail looks a contact up by source and email.
func (s *Store) GetByEmail(source domain.Source, email string) (*domain.Contact, bool) {
	return s.Get(domain.ContactID(source, email))
}

// List returns every contact sorted by last activity, newest first.
func (s *Store) List() []*domain.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*domain.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].LastSummary != list[j].LastSummary {
			return list[i].LastSummary > list[j].LastSummary
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Len returns the number of stored contacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contacts)
}
