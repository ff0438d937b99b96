// Package outlook provides the Microsoft Graph mail provider adapter.
package outlook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"

	"github.com/goccy/go-json"
	"github.com/jaytaylor/html2text"
	"golang.org/x/oauth2"

	"inbox_worker/core/domain"
	out "inbox_worker/core/port/out"
	"inbox_worker/pkg/apperr"
	"inbox_worker/pkg/httputil"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// Provider implements out.MailProvider for Outlook.
type Provider struct {
	client *http.Client
	email  string
}

// NewProvider creates an Outlook provider from an OAuth token. Graph calls
// go through the pooled httputil client underneath the oauth2 transport.
func NewProvider(ctx context.Context, token *oauth2.Token, config *oauth2.Config) (*Provider, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httputil.NewClient(nil))
	p := &Provider{client: config.Client(ctx, token)}

	var user graphUser
	if err := p.get(ctx, "/me", &user); err != nil {
		return nil, err
	}
	p.email = user.Mail

	return p, nil
}

// Source returns the provider identity.
func (p *Provider) Source() domain.Source {
	return domain.SourceOutlook
}

// GetEmail returns the authenticated user's address.
func (p *Provider) GetEmail() string {
	return p.email
}

// ListThreads lists recent inbox messages and groups them into
// conversations by conversationId. Graph has no thread listing endpoint,
// so the grouping happens here. limit bounds the conversation count.
func (p *Provider) ListThreads(ctx context.Context, limit int) ([]*out.ProviderThread, error) {
	if limit <= 0 {
		limit = 20
	}

	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", limit*3))
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$select", "id,conversationId,subject,body,bodyPreview,from,receivedDateTime")

	var resp struct {
		Value []graphMessage `json:"value"`
	}
	if err := p.get(ctx, "/me/mailFolders/inbox/messages?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	byConversation := make(map[string]*out.ProviderThread)
	var order []string
	for _, m := range resp.Value {
		cid := m.ConversationID
		if cid == "" {
			cid = m.ID
		}
		t, ok := byConversation[cid]
		if !ok {
			if len(byConversation) >= limit {
				continue
			}
			t = &out.ProviderThread{ID: cid}
			byConversation[cid] = t
			order = append(order, cid)
		}
		t.Messages = append(t.Messages, convertMessage(&m))
	}

	threads := make([]*out.ProviderThread, 0, len(order))
	for _, cid := range order {
		t := byConversation[cid]
		// Listing came newest first; conversations carry oldest first.
		sort.SliceStable(t.Messages, func(i, j int) bool {
			return t.Messages[i].Date < t.Messages[j].Date
		})
		threads = append(threads, t)
	}
	return threads, nil
}

// GetThread fetches every message of one conversation.
func (p *Provider) GetThread(ctx context.Context, threadID string) (*out.ProviderThread, error) {
	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("conversationId eq '%s'", threadID))
	params.Set("$orderby", "receivedDateTime asc")
	params.Set("$select", "id,conversationId,subject,body,bodyPreview,from,receivedDateTime")

	var resp struct {
		Value []graphMessage `json:"value"`
	}
	if err := p.get(ctx, "/me/messages?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	thread := &out.ProviderThread{ID: threadID}
	for _, m := range resp.Value {
		thread.Messages = append(thread.Messages, convertMessage(&m))
	}
	return thread, nil
}

// SendReply replies to the referenced message within its conversation.
func (p *Provider) SendReply(ctx context.Context, reply *out.ProviderReply) error {
	if reply.MessageID == "" {
		return apperr.MissingField("message_id")
	}
	body := map[string]interface{}{
		"comment": reply.Body,
	}
	return p.post(ctx, fmt.Sprintf("/me/messages/%s/reply", reply.MessageID), body, nil)
}

// HTTP helpers

func (p *Provider) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", graphBaseURL+path, nil)
	if err != nil {
		return err
	}
	return p.doRequest(req, result)
}

func (p *Provider) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", graphBaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return p.doRequest(req, result)
}

func (p *Provider) doRequest(req *http.Request, result interface{}) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return apperr.ProviderError("outlook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return apperr.ProviderError("outlook", fmt.Errorf("graph API error: %d - %s", resp.StatusCode, string(body)))
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// Graph API types

type graphUser struct {
	ID   string `json:"id"`
	Mail string `json:"mail"`
}

type graphMessage struct {
	ID               string         `json:"id"`
	ConversationID   string         `json:"conversationId"`
	Subject          string         `json:"subject"`
	BodyPreview      string         `json:"bodyPreview"`
	Body             graphBody      `json:"body"`
	From             graphRecipient `json:"from"`
	ReceivedDateTime string         `json:"receivedDateTime"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func convertMessage(msg *graphMessage) out.ProviderMessage {
	pm := out.ProviderMessage{
		MessageID: msg.ID,
		Sender:    formatAddress(msg.From),
		Subject:   msg.Subject,
		Date:      msg.ReceivedDateTime,
	}

	body := msg.Body.Content
	if msg.Body.ContentType == "html" {
		if stripped, err := html2text.FromString(body, html2text.Options{TextOnly: true}); err == nil {
			body = stripped
		}
	}
	if body == "" {
		body = msg.BodyPreview
	}
	pm.Body = body

	return pm
}

func formatAddress(r graphRecipient) string {
	if r.EmailAddress.Name != "" {
		return fmt.Sprintf("%s <%s>", r.EmailAddress.Name, r.EmailAddress.Address)
	}
	return r.EmailAddress.Address
}

// Ensure Provider implements out.MailProvider
var _ out.MailProvider = (*Provider)(nil)
