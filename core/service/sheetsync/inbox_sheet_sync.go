// Package sheetsync idempotently upserts contact records into the external
// tabular store, writing only when semantic content actually changed.
package sheetsync

import (
	"context"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"inbox_worker/core/domain"
	out "inbox_worker/core/port/out"
	"inbox_worker/pkg/apperr"
	"inbox_worker/pkg/logger"
)

// sheetThread is the thread projection serialized into a row's threads
// column. Message bodies are not carried to the sheet; last_* fields plus
// the summary are enough to rebuild merge state after a restart.
type sheetThread struct {
	ID                   string  `json:"id"`
	LastMessageTS        string  `json:"last_message_ts"`
	LastMessageID        string  `json:"last_message_id,omitempty"`
	LastSubject          string  `json:"last_subject,omitempty"`
	Summary              string  `json:"summary,omitempty"`
	Importance           string  `json:"importance,omitempty"`
	ImportanceConfidence float64 `json:"importance_confidence,omitempty"`
	Role                 string  `json:"role,omitempty"`
	RoleConfidence       float64 `json:"role_confidence,omitempty"`
}

// CanonicalThreads serializes a contact's threads deterministically:
// sorted by thread ID with a fixed field order, so equal content always
// produces byte-equal JSON regardless of map iteration or input order.
func CanonicalThreads(threads map[string]*domain.Thread) (string, error) {
	list := make([]sheetThread, 0, len(threads))
	for _, t := range threads {
		list = append(list, sheetThread{
			ID:                   t.ID,
			LastMessageTS:        t.LastMessageTS,
			LastMessageID:        t.LastMessageID,
			LastSubject:          t.LastSubject,
			Summary:              t.Summary,
			Importance:           string(t.Importance),
			ImportanceConfidence: t.ImportanceConfidence,
			Role:                 string(t.Role),
			RoleConfidence:       t.RoleConfidence,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// BuildRow projects a contact into its sheet row.
func BuildRow(c *domain.Contact) (domain.SheetRow, error) {
	threads, err := CanonicalThreads(c.Threads)
	if err != nil {
		return domain.SheetRow{}, apperr.MalformedData("contact threads", err)
	}
	return domain.SheetRow{
		ID:             c.ID,
		Email:          c.Email,
		Source:         string(c.Source),
		Role:           string(c.Role),
		RoleConfidence: c.RoleConfidence,
		ContactSummary: c.ContactSummary,
		Threads:        threads,
		LastSummary:    c.LastSummary,
	}, nil
}

// RowToContact rebuilds a contact record from its sheet row, used to seed
// merge state at startup. Rows with unparseable thread JSON yield a contact
// with no threads rather than an error.
func RowToContact(row domain.SheetRow) *domain.Contact {
	c := domain.NewContact(domain.Source(row.Source), row.Email)
	if row.ID != "" {
		c.ID = row.ID
	}
	c.Role = domain.Role(row.Role)
	c.RoleConfidence = row.RoleConfidence
	c.ContactSummary = row.ContactSummary
	c.LastSummary = row.LastSummary

	if row.Threads != "" {
		var list []sheetThread
		if err := json.Unmarshal([]byte(row.Threads), &list); err != nil {
			logger.WithError(err).WithField("row_id", row.ID).Warn("skipping unparseable threads column")
		} else {
			for _, st := range list {
				if st.ID == "" {
					continue
				}
				c.Threads[st.ID] = &domain.Thread{
					ID:                   st.ID,
					LastMessageTS:        st.LastMessageTS,
					LastMessageID:        st.LastMessageID,
					LastSubject:          st.LastSubject,
					Summary:              st.Summary,
					Importance:           domain.Importance(st.Importance),
					ImportanceConfidence: st.ImportanceConfidence,
					Role:                 domain.Role(st.Role),
					RoleConfidence:       st.RoleConfidence,
				}
			}
		}
	}
	return c
}

// ============================================================
// Engine
// ============================================================

// Engine performs the idempotent upsert against a SheetStore.
type Engine struct {
	store out.SheetStore

	// now is swappable for tests.
	now func() time.Time
}

// NewEngine creates a sync engine over the given store.
func NewEngine(store out.SheetStore) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Result reports what one upsert pass did.
type Result struct {
	Inserted int
	Updated  int
	Skipped  int
	Wrote    bool
}

// Upsert merges the incoming rows into the store. Existing rows are indexed
// by dedup key; an incoming row stages an update only when a semantic field
// (contact_summary, role, role_confidence, canonical threads) differs, and
// last_summary is bumped only when contact_summary changed. When nothing
// was staged, the store is not written at all. Written rows are sorted by
// last_summary descending so the most recently active contacts come first.
func (e *Engine) Upsert(ctx context.Context, incoming []domain.SheetRow) (Result, error) {
	var res Result

	existing, err := e.store.ReadRows(ctx)
	if err != nil {
		return res, apperr.StoreError("read rows", err)
	}

	index := make(map[string]int, len(existing))
	order := make([]domain.SheetRow, 0, len(existing)+len(incoming))
	for _, row := range existing {
		if row.ID == "" && row.Email == "" {
			continue
		}
		key := row.DedupKey()
		if _, dup := index[key]; dup {
			// Keep the first occurrence; later duplicates are dropped.
			continue
		}
		index[key] = len(order)
		order = append(order, row)
	}

	for _, row := range incoming {
		if row.ID == "" && row.Email == "" {
			logger.Warn("skipping sheet row with no identity")
			continue
		}
		key := row.DedupKey()

		pos, known := index[key]
		if !known {
			if row.LastSummary == "" {
				row.LastSummary = e.now().UTC().Format(time.RFC3339)
			}
			index[key] = len(order)
			order = append(order, row)
			res.Inserted++
			continue
		}

		stored := order[pos]
		if rowsEqual(stored, row) {
			res.Skipped++
			continue
		}

		if row.ContactSummary != stored.ContactSummary {
			row.LastSummary = e.now().UTC().Format(time.RFC3339)
		} else {
			row.LastSummary = stored.LastSummary
		}
		order[pos] = row
		res.Updated++
	}

	if res.Inserted == 0 && res.Updated == 0 {
		return res, nil
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].LastSummary > order[j].LastSummary
	})
	if err := e.store.WriteRows(ctx, order); err != nil {
		return res, apperr.StoreError("write rows", err)
	}
	res.Wrote = true

	logger.WithFields(map[string]interface{}{
		"inserted": res.Inserted,
		"updated":  res.Updated,
		"skipped":  res.Skipped,
		"total":    len(order),
	}).Info("sheet sync wrote rows")
	return res, nil
}

// rowsEqual compares the semantic fields of two rows. last_summary is
// bookkeeping, not content, so it does not participate.
func rowsEqual(a, b domain.SheetRow) bool {
	return a.ContactSummary == b.ContactSummary &&
		a.Role == b.Role &&
		a.RoleConfidence == b.RoleConfidence &&
		a.Threads == b.Threads
}
