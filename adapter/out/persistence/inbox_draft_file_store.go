package persistence

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"inbox_worker/core/domain"
	"inbox_worker/core/port/out"
	"inbox_worker/pkg/apperr"
	"inbox_worker/pkg/logger"

	json "github.com/goccy/go-json"
)

// maxStoredDrafts bounds the file store. Oldest drafts in terminal states
// are evicted first once the limit is exceeded.
const maxStoredDrafts = 200

// DraftFileStore is a JSON-file implementation of out.DraftRepository,
// used when no DATABASE_URL is configured. Drafts are kept newest first.
type DraftFileStore struct {
	mu     sync.Mutex
	path   string
	drafts []*domain.ReplyDraft
}

// NewDraftFileStore opens (or creates) the store at path.
func NewDraftFileStore(path string) (*DraftFileStore, error) {
	s := &DraftFileStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DraftFileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperr.StoreError("load drafts", err)
	}

	var drafts []*domain.ReplyDraft
	if err := json.Unmarshal(data, &drafts); err != nil {
		quarantine := s.path + ".corrupt"
		if renameErr := os.Rename(s.path, quarantine); renameErr == nil {
			logger.WithFields(map[string]interface{}{
				"path":       s.path,
				"quarantine": quarantine,
			}).Warn("Draft store corrupt, starting empty")
			return nil
		}
		return apperr.MalformedData("draft store", err)
	}

	s.drafts = drafts
	s.sortLocked()
	return nil
}

func (s *DraftFileStore) saveLocked() error {
	data, err := json.MarshalIndent(s.drafts, "", "  ")
	if err != nil {
		return apperr.StoreError("encode drafts", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperr.StoreError("create draft dir", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return apperr.StoreError("write drafts", err)
	}
	return nil
}

func (s *DraftFileStore) sortLocked() {
	sort.SliceStable(s.drafts, func(i, j int) bool {
		return s.drafts[i].CreatedAt.After(s.drafts[j].CreatedAt)
	})
}

// pruneLocked evicts beyond maxStoredDrafts, preferring terminal drafts
// from the tail. Active drafts are never evicted.
func (s *DraftFileStore) pruneLocked() {
	if len(s.drafts) <= maxStoredDrafts {
		return
	}
	excess := len(s.drafts) - maxStoredDrafts
	kept := make([]*domain.ReplyDraft, 0, maxStoredDrafts)
	for i := 0; i < len(s.drafts); i++ {
		d := s.drafts[len(s.drafts)-1-i]
		if excess > 0 && d.Status.Terminal() {
			excess--
			continue
		}
		kept = append(kept, d)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	s.drafts = kept
}

func (s *DraftFileStore) Insert(_ context.Context, draft *domain.ReplyDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *draft
	s.drafts = append([]*domain.ReplyDraft{&cp}, s.drafts...)
	s.pruneLocked()
	return s.saveLocked()
}

func (s *DraftFileStore) Update(_ context.Context, draft *domain.ReplyDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, d := range s.drafts {
		if d.ID == draft.ID {
			cp := *draft
			s.drafts[i] = &cp
			return s.saveLocked()
		}
	}
	return apperr.NotFound("draft")
}

func (s *DraftFileStore) Get(_ context.Context, id string) (*domain.ReplyDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.drafts {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("draft")
}

func (s *DraftFileStore) ListByThread(_ context.Context, contactID, threadID string) ([]*domain.ReplyDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*domain.ReplyDraft
	for _, d := range s.drafts {
		if d.ContactID == contactID && d.ThreadID == threadID {
			cp := *d
			matched = append(matched, &cp)
		}
	}
	return matched, nil
}

func (s *DraftFileStore) ListByContact(_ context.Context, contactID string) ([]*domain.ReplyDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*domain.ReplyDraft
	for _, d := range s.drafts {
		if contactID == "" || d.ContactID == contactID {
			cp := *d
			matched = append(matched, &cp)
		}
	}
	return matched, nil
}

// Len returns the number of stored drafts.
func (s *DraftFileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}

var _ out.DraftRepository = (*DraftFileStore)(nil)
