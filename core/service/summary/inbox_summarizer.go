package summary

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"inbox_worker/core/domain"
	out "inbox_worker/core/port/out"
	"inbox_worker/core/service/classification"
	"inbox_worker/pkg/logger"
)

// FallbackSummary is returned when the model cannot produce a summary.
// It is never written to the cache, so the thread is retried next cycle.
const FallbackSummary = "Summary unavailable due to model error."

// minMeaningfulLen is the shortest subject-plus-body text worth sending to
// the model. Header boilerplate does not count toward it.
const minMeaningfulLen = 20

const threadPromptTemplate = `You are an AI email summarization assistant for a busy professional.

Summarize the following thread into one natural, human-like paragraph that:
- Captures the main topic and purpose of the conversation
- Includes who is involved and any meeting times, decisions, or next steps
- Keeps the tone professional but easy to read
- Avoids unnecessary greetings, repetition, or formal sign-offs
- Should be no longer than 5-6 lines

Email Thread:
%s

Write the summary as if you're briefing a colleague who didn't read the thread.`

const contactPromptTemplate = `You are an AI assistant that creates email briefings for a busy professional.

Below are multiple email threads between contacts.

Summarize them into one cohesive, human-like summary that:
- Captures the overall context and purpose of communication
- Mentions key decisions, updates, people, and dates
- Includes next steps, meetings, or follow-ups if mentioned
- Keeps it natural and conversational (avoid bullet points)
- Is no longer than 6 lines
- Feels like an executive recap, not a formal email

Threads:
%s

Write the summary as if you're briefing your manager in plain English.`

// ============================================================
// Summarizer
// ============================================================

// Summarizer produces thread and contact summaries through the completion
// client, consulting the TTL cache before every model call. Classification
// rides along with each summary so downstream consumers get both from one
// pass over the thread.
type Summarizer struct {
	llm        out.CompletionClient
	cache      *SummaryCache
	classifier *classification.Classifier
}

// NewSummarizer wires a summarizer. The classifier may not be nil; callers
// that do not care about classification should pass classification.New().
func NewSummarizer(llm out.CompletionClient, cache *SummaryCache, classifier *classification.Classifier) *Summarizer {
	return &Summarizer{llm: llm, cache: cache, classifier: classifier}
}

// ThreadResult reports one thread summarization.
type ThreadResult struct {
	ThreadID  string
	Summary   string
	UsedCache bool
}

// SummarizeThread summarizes one thread and annotates it with its
// classification. force clears every cached key for the contact before the
// cache lookup, so a forced call regenerates the whole contact, not just
// this thread. A cache hit returns without touching the model.
func (s *Summarizer) SummarizeThread(ctx context.Context, source domain.Source, contactEmail string, thread *domain.Thread, force bool) (ThreadResult, error) {
	if force {
		s.cache.ClearContact(source, contactEmail)
	}

	if entry, ok := s.cache.GetEntry(source, contactEmail, thread.ID); ok {
		s.applyEntry(source, contactEmail, thread, entry)
		return ThreadResult{ThreadID: thread.ID, Summary: entry.Summary, UsedCache: true}, nil
	}

	// Threads rebuilt from the sheet carry their last summary but no
	// message bodies. Keep the carried summary and re-seed the cache from
	// it rather than regenerating from subject-only input.
	if len(thread.Messages) == 0 && thread.Summary != "" && thread.Summary != FallbackSummary {
		s.cache.Set(source, contactEmail, thread.ID, CacheEntry{
			Summary:              thread.Summary,
			Role:                 thread.Role,
			RoleConfidence:       thread.RoleConfidence,
			Importance:           thread.Importance,
			ImportanceConfidence: thread.ImportanceConfidence,
		})
		return ThreadResult{ThreadID: thread.ID, Summary: thread.Summary, UsedCache: true}, nil
	}

	if threadContentLen(thread) < minMeaningfulLen {
		thread.Summary = "No meaningful content to summarize."
		return ThreadResult{ThreadID: thread.ID, Summary: thread.Summary}, nil
	}

	combined := combineThread(thread)

	text, err := s.llm.Complete(ctx, fmt.Sprintf(threadPromptTemplate, combined))
	if err != nil {
		thread.Summary = FallbackSummary
		return ThreadResult{ThreadID: thread.ID, Summary: FallbackSummary}, err
	}
	text = strings.TrimSpace(text)

	cls := s.classifyThread(thread)
	thread.Summary = text
	s.applyClassification(thread, cls)

	s.cache.Set(source, contactEmail, thread.ID, CacheEntry{
		Summary:              text,
		Role:                 cls.Role,
		RoleConfidence:       cls.RoleConfidence,
		Importance:           cls.Importance,
		ImportanceConfidence: cls.ImportanceConfidence,
	})

	return ThreadResult{ThreadID: thread.ID, Summary: text}, nil
}

// SummarizeContact summarizes every thread of a contact, derives the
// contact-level role by majority vote across thread classifications, and
// produces the contact rollup summary. Threads whose model call fails keep
// the fallback text and are excluded from the rollup input; the first such
// error is returned after the remaining threads were still processed.
func (s *Summarizer) SummarizeContact(ctx context.Context, contact *domain.Contact, force bool) (string, error) {
	if len(contact.Threads) == 0 {
		return "No threads found for this contact.", nil
	}

	source := contact.Source
	if force {
		s.cache.ClearContact(source, contact.Email)
	}

	threads := make([]*domain.Thread, 0, len(contact.Threads))
	for _, t := range contact.Threads {
		threads = append(threads, t)
	}
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].LastMessageTS > threads[j].LastMessageTS
	})

	var firstErr error
	summaries := make([]string, 0, len(threads))
	votes := make(map[domain.Role][]float64)
	for _, t := range threads {
		res, err := s.SummarizeThread(ctx, source, contact.Email, t, false)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		summaries = append(summaries, res.Summary)
		if t.Role != "" {
			votes[t.Role] = append(votes[t.Role], t.RoleConfidence)
		}
	}

	role, roleConf := majorityRole(votes)
	contact.Role = role
	contact.RoleConfidence = roleConf

	if len(summaries) == 0 {
		return FallbackSummary, firstErr
	}

	prompt := fmt.Sprintf(contactPromptTemplate, strings.Join(summaries, "\n\n---\n\n"))
	recap, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		logger.WithError(err).WithField("contact", contact.Email).Warn("contact rollup summarization failed")
		if firstErr == nil {
			firstErr = err
		}
		return FallbackSummary, firstErr
	}
	recap = strings.TrimSpace(recap)

	contact.ContactSummary = recap
	s.cache.SetContactSummary(source, contact.Email, recap)
	return recap, firstErr
}

func (s *Summarizer) classifyThread(thread *domain.Thread) domain.Classification {
	latest := thread.Latest()
	if latest == nil {
		return s.classifier.Classify("", thread.LastSubject, thread.LastBody)
	}
	return s.classifier.Classify(latest.Sender, latest.Subject, latest.Body)
}

func (s *Summarizer) applyEntry(source domain.Source, contactEmail string, thread *domain.Thread, entry CacheEntry) {
	thread.Summary = entry.Summary
	if entry.Role == "" {
		// Entry predates classification fields; backfill them.
		cls := s.classifyThread(thread)
		s.applyClassification(thread, cls)
		s.cache.UpdateEntry(source, contactEmail, thread.ID, func(e *CacheEntry) {
			e.Role = cls.Role
			e.RoleConfidence = cls.RoleConfidence
			e.Importance = cls.Importance
			e.ImportanceConfidence = cls.ImportanceConfidence
		})
		return
	}
	thread.Role = entry.Role
	thread.RoleConfidence = entry.RoleConfidence
	thread.Importance = entry.Importance
	thread.ImportanceConfidence = entry.ImportanceConfidence
}

func (s *Summarizer) applyClassification(thread *domain.Thread, cls domain.Classification) {
	thread.Role = cls.Role
	thread.RoleConfidence = cls.RoleConfidence
	thread.Importance = cls.Importance
	thread.ImportanceConfidence = cls.ImportanceConfidence
}

// threadContentLen measures the subject and body text of a thread, ignoring
// the synthesized header lines combineThread adds around every message.
func threadContentLen(thread *domain.Thread) int {
	if len(thread.Messages) == 0 {
		return len(strings.TrimSpace(thread.LastSubject)) + len(strings.TrimSpace(thread.LastBody))
	}
	n := 0
	for _, m := range thread.Messages {
		n += len(strings.TrimSpace(m.Subject)) + len(strings.TrimSpace(m.Body))
	}
	return n
}

// combineThread flattens a thread into the model input text.
func combineThread(thread *domain.Thread) string {
	if len(thread.Messages) == 0 {
		return strings.TrimSpace("From: Unknown Sender\nSubject: " + thread.LastSubject + "\n\n" + thread.LastBody)
	}
	parts := make([]string, 0, len(thread.Messages))
	for _, m := range thread.Messages {
		sender := m.Sender
		if sender == "" {
			sender = "Unknown Sender"
		}
		subject := m.Subject
		if subject == "" {
			subject = "No Subject"
		}
		parts = append(parts, "From: "+sender+"\nSubject: "+subject+"\n\n"+m.Body)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// majorityRole picks the role with the most thread votes, breaking ties by
// the fixed role priority order. Confidence is the mean confidence of the
// winning role's votes.
func majorityRole(votes map[domain.Role][]float64) (domain.Role, float64) {
	if len(votes) == 0 {
		return domain.RoleGeneralExternal, classification.DefaultWeights().DefaultConfidence
	}

	var winner domain.Role
	best := -1
	for _, role := range domain.RolePriority {
		if n := len(votes[role]); n > best {
			winner, best = role, n
		}
	}

	var sum float64
	for _, c := range votes[winner] {
		sum += c
	}
	conf := sum / float64(len(votes[winner]))
	return winner, math.Round(conf*1000) / 1000
}
