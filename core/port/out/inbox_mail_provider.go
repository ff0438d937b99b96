// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"

	"inbox_worker/core/domain"
)

// =============================================================================
// Mail Provider Port (Gmail, Outlook)
// =============================================================================

// ProviderMessage is the raw per-provider message shape. Date keeps the
// provider-native timestamp format; normalization to UTC RFC3339 happens in
// the aggregator via pkg/timeutil.
type ProviderMessage struct {
	Sender    string
	Subject   string
	Body      string
	Date      string
	MessageID string
}

// ProviderThread is one conversation as reported by a provider, messages in
// chronological order.
type ProviderThread struct {
	ID       string
	Messages []ProviderMessage
}

// ProviderReply describes an outgoing reply to an existing thread.
type ProviderReply struct {
	ThreadID  string
	To        string
	Subject   string
	Body      string
	MessageID string // message being replied to, for threading headers
}

// MailProvider is the outbound port for a mail backend. Token acquisition
// and refresh are the adapter's concern; the core only asks for data.
type MailProvider interface {
	Source() domain.Source

	// ListThreads returns up to limit of the most recent conversations.
	// Providers only report a recent window, so absence of a thread here
	// never means the conversation is gone.
	ListThreads(ctx context.Context, limit int) ([]*ProviderThread, error)

	// GetThread fetches the full message list of one conversation.
	GetThread(ctx context.Context, threadID string) (*ProviderThread, error)

	// SendReply sends a reply on an existing thread.
	SendReply(ctx context.Context, reply *ProviderReply) error
}
