// Package gmail provides the Gmail API mail provider adapter.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/jaytaylor/html2text"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"inbox_worker/core/domain"
	out "inbox_worker/core/port/out"
	"inbox_worker/pkg/apperr"
)

// Provider implements out.MailProvider for Gmail.
type Provider struct {
	service *gmail.Service
	email   string
}

// NewProvider creates a Gmail provider from an OAuth token.
func NewProvider(ctx context.Context, token *oauth2.Token, config *oauth2.Config) (*Provider, error) {
	client := config.Client(ctx, token)
	service, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	profile, err := service.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	return &Provider{
		service: service,
		email:   profile.EmailAddress,
	}, nil
}

// Source returns the provider identity.
func (p *Provider) Source() domain.Source {
	return domain.SourceGmail
}

// GetEmail returns the authenticated user's address.
func (p *Provider) GetEmail() string {
	return p.email
}

// ListThreads returns up to limit recent inbox conversations with their
// full message lists.
func (p *Provider) ListThreads(ctx context.Context, limit int) ([]*out.ProviderThread, error) {
	if limit <= 0 {
		limit = 20
	}

	resp, err := p.service.Users.Threads.List("me").
		LabelIds("INBOX").
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, apperr.ProviderError("gmail", err)
	}

	threads := make([]*out.ProviderThread, 0, len(resp.Threads))
	for _, t := range resp.Threads {
		full, err := p.GetThread(ctx, t.Id)
		if err != nil {
			// One bad thread must not abort the listing.
			continue
		}
		threads = append(threads, full)
	}
	return threads, nil
}

// GetThread fetches one conversation.
func (p *Provider) GetThread(ctx context.Context, threadID string) (*out.ProviderThread, error) {
	thread, err := p.service.Users.Threads.Get("me", threadID).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, apperr.ProviderError("gmail", err)
	}

	pt := &out.ProviderThread{ID: thread.Id}
	for _, msg := range thread.Messages {
		pt.Messages = append(pt.Messages, parseMessage(msg))
	}
	return pt, nil
}

// SendReply sends a reply on an existing thread, threading it under the
// replied-to message.
func (p *Provider) SendReply(ctx context.Context, reply *out.ProviderReply) error {
	raw := buildRawReply(reply)
	msg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
		ThreadId: reply.ThreadID,
	}

	if _, err := p.service.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return apperr.ProviderError("gmail", err)
	}
	return nil
}

// Helper functions

func parseMessage(msg *gmail.Message) out.ProviderMessage {
	pm := out.ProviderMessage{MessageID: msg.Id}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "From":
				pm.Sender = header.Value
			case "Subject":
				pm.Subject = header.Value
			case "Date":
				pm.Date = header.Value
			}
		}
		pm.Body = parseBody(msg.Payload)
	}
	if pm.Body == "" {
		pm.Body = msg.Snippet
	}
	return pm
}

// parseBody walks the MIME tree. text/plain wins; an HTML-only message is
// stripped to plain text.
func parseBody(payload *gmail.MessagePart) string {
	text, html := collectParts(payload)
	if text != "" {
		return text
	}
	if html != "" {
		if stripped, err := html2text.FromString(html, html2text.Options{TextOnly: true}); err == nil {
			return stripped
		}
	}
	return ""
}

func collectParts(payload *gmail.MessagePart) (text, html string) {
	if payload == nil {
		return "", ""
	}

	if payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			switch payload.MimeType {
			case "text/plain":
				text = string(data)
			case "text/html":
				html = string(data)
			}
		}
	}

	for _, part := range payload.Parts {
		t, h := collectParts(part)
		if text == "" {
			text = t
		}
		if html == "" {
			html = h
		}
	}
	return text, html
}

func buildRawReply(reply *out.ProviderReply) string {
	var sb strings.Builder

	sb.WriteString("To: " + reply.To + "\r\n")
	subject := reply.Subject
	if subject != "" && !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	sb.WriteString("Subject: " + subject + "\r\n")
	if reply.MessageID != "" {
		sb.WriteString("In-Reply-To: " + reply.MessageID + "\r\n")
		sb.WriteString("References: " + reply.MessageID + "\r\n")
	}
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(reply.Body)

	return sb.String()
}

// Ensure Provider implements out.MailProvider
var _ out.MailProvider = (*Provider)(nil)
