package worker

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"inbox_worker/core/domain"
	"inbox_worker/core/port/out"
	"inbox_worker/core/service/contact"
	"inbox_worker/core/service/draft"
	"inbox_worker/core/service/sheetsync"
	"inbox_worker/core/service/summary"
	"inbox_worker/pkg/logger"
)

// =============================================================================
// PollLoop - periodic inbox ingestion
// =============================================================================
//
// Each cycle fetches recent threads from every configured provider, groups
// them by sender, merges them into the contact store, summarizes what
// changed, queues reply drafts for new activity and pushes the result to
// the sheet.

const (
	DefaultPollInterval = 5 * time.Minute
	DefaultFetchLimit   = 25
	CycleTimeout        = 10 * time.Minute
)

type PollLoop struct {
	providers  []out.MailProvider
	store      *contact.Store
	cache      *summary.SummaryCache
	summarizer *summary.Summarizer
	drafts     *draft.Queue
	sheet      *sheetsync.Engine

	interval   time.Duration
	fetchLimit int

	ctx    context.Context
	cancel context.CancelFunc
	zlog   zerolog.Logger
}

// NewPollLoop creates a poll loop over the given providers.
func NewPollLoop(
	providers []out.MailProvider,
	store *contact.Store,
	cache *summary.SummaryCache,
	summarizer *summary.Summarizer,
	drafts *draft.Queue,
	sheet *sheetsync.Engine,
	interval time.Duration,
	fetchLimit int,
) *PollLoop {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if fetchLimit <= 0 {
		fetchLimit = DefaultFetchLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PollLoop{
		providers:  providers,
		store:      store,
		cache:      cache,
		summarizer: summarizer,
		drafts:     drafts,
		sheet:      sheet,
		interval:   interval,
		fetchLimit: fetchLimit,
		ctx:        ctx,
		cancel:     cancel,
		zlog: zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("component", "poll_loop").Logger(),
	}
}

// Start starts the poll loop.
func (l *PollLoop) Start() {
	l.zlog.Info().
		Int("providers", len(l.providers)).
		Dur("interval", l.interval).
		Msg("Starting poll loop")
	go l.run()
}

// Stop stops the poll loop.
func (l *PollLoop) Stop() {
	l.zlog.Info().Msg("Stopping poll loop")
	l.cancel()
}

func (l *PollLoop) run() {
	// First cycle right away, then on the ticker.
	l.RunCycle()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			l.zlog.Info().Msg("Poll loop stopped")
			return
		case <-ticker.C:
			l.RunCycle()
		}
	}
}

// RunCycle executes one full ingestion cycle across all providers.
func (l *PollLoop) RunCycle() {
	ctx, cancel := context.WithTimeout(l.ctx, CycleTimeout)
	defer cancel()

	start := time.Now()
	var changed []*domain.Contact

	for _, provider := range l.providers {
		contacts, err := l.pollProvider(ctx, provider)
		if err != nil {
			logger.WithError(err).Error("[PollLoop] Provider %s poll failed", provider.Source())
			continue
		}
		changed = append(changed, contacts...)
	}

	if removed := l.cache.CleanupExpired(); removed > 0 {
		l.zlog.Info().Int("removed", removed).Msg("Expired cache entries")
	}

	if len(changed) > 0 && l.sheet != nil {
		if err := l.syncSheet(ctx, changed); err != nil {
			logger.WithError(err).Error("[PollLoop] Sheet sync failed")
		}
	}

	l.zlog.Info().
		Dur("duration", time.Since(start)).
		Int("contacts_changed", len(changed)).
		Msg("Cycle complete")
}

// pollProvider fetches and ingests one provider. A failing contact is
// logged and skipped so the rest of the cycle continues.
func (l *PollLoop) pollProvider(ctx context.Context, provider out.MailProvider) ([]*domain.Contact, error) {
	source := provider.Source()

	raw, err := provider.ListThreads(ctx, l.fetchLimit)
	if err != nil {
		return nil, err
	}

	grouped := contact.GroupBySender(source, raw)

	var changed []*domain.Contact
	for email, threads := range grouped {
		c, ok := l.ingestContact(ctx, source, email, threads)
		if !ok {
			continue
		}
		if c != nil {
			changed = append(changed, c)
		}
	}

	for _, pt := range raw {
		l.cache.MarkSeen(source, pt.ID)
	}

	l.zlog.Info().
		Str("source", string(source)).
		Int("threads", len(raw)).
		Int("contacts", len(grouped)).
		Int("changed", len(changed)).
		Msg("Provider poll complete")

	return changed, nil
}

// ingestContact merges fetched threads into a contact, summarizes changes
// and queues reply drafts. Returns (nil, true) when nothing changed.
func (l *PollLoop) ingestContact(ctx context.Context, source domain.Source, email string, threads []*domain.Thread) (*domain.Contact, bool) {
	prev, _ := l.store.GetByEmail(source, email)
	res := contact.Merge(prev, source, email, threads)
	if !res.Changed {
		return nil, true
	}

	c := res.Contact
	for _, t := range res.NeedsSummary {
		l.cache.Invalidate(source, email, t.ID)
	}
	if _, err := l.summarizer.SummarizeContact(ctx, c, false); err != nil {
		logger.WithError(err).WithFields(map[string]any{
			"source": source,
			"email":  email,
		}).Error("[PollLoop] Contact summarization failed")
	}
	contact.PropagateRole(c)

	for _, t := range res.NeedsSummary {
		if _, err := l.drafts.EnqueueForThread(ctx, c, t); err != nil {
			logger.WithError(err).WithFields(map[string]any{
				"contact": c.ID,
				"thread":  t.ID,
			}).Warn("[PollLoop] Draft enqueue failed")
		}
	}

	l.store.Put(c)
	return c, true
}

// syncSheet pushes changed contacts through the upsert engine.
func (l *PollLoop) syncSheet(ctx context.Context, contacts []*domain.Contact) error {
	rows := make([]domain.SheetRow, 0, len(contacts))
	for _, c := range contacts {
		row, err := sheetsync.BuildRow(c)
		if err != nil {
			logger.WithError(err).WithField("contact", c.ID).Warn("[PollLoop] Row build failed")
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}

	res, err := l.sheet.Upsert(ctx, rows)
	if err != nil {
		return err
	}
	l.zlog.Info().
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Bool("wrote", res.Wrote).
		Msg("Sheet upsert complete")
	return nil
}

// SetInterval overrides the poll interval (for testing).
func (l *PollLoop) SetInterval(interval time.Duration) {
	l.interval = interval
}
