package domain

// Message is a single mail normalized at the provider boundary.
// Bodies are plain text (HTML is stripped by the adapters) and Date is
// already UTC RFC3339; the core never sees provider-native shapes.
type Message struct {
	Sender    string `json:"sender"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Date      string `json:"date"`
	MessageID string `json:"message_id,omitempty"`
}

// Thread is one conversation scoped to a single provider.
type Thread struct {
	ID            string    `json:"id"`
	Messages      []Message `json:"messages,omitempty"`
	LastMessageTS string    `json:"last_message_ts"`
	LastMessageID string    `json:"last_message_id,omitempty"`
	LastSubject   string    `json:"last_subject,omitempty"`
	LastBody      string    `json:"last_body,omitempty"`

	// Filled lazily by the summarizer.
	Summary              string     `json:"summary,omitempty"`
	Importance           Importance `json:"importance,omitempty"`
	ImportanceConfidence float64    `json:"importance_confidence,omitempty"`
	Role                 Role       `json:"role,omitempty"`
	RoleConfidence       float64    `json:"role_confidence,omitempty"`
}

// Latest returns the chronologically last message of the thread.
// Messages are kept in chronological order, so this is the final element.
func (t *Thread) Latest() *Message {
	if len(t.Messages) == 0 {
		return nil
	}
	return &t.Messages[len(t.Messages)-1]
}

// SyncTail refreshes the last_* projection fields from the final message.
// Keeps the invariant that LastMessageTS always matches the newest message.
func (t *Thread) SyncTail() {
	last := t.Latest()
	if last == nil {
		return
	}
	t.LastMessageTS = last.Date
	t.LastMessageID = last.MessageID
	t.LastSubject = last.Subject
	t.LastBody = last.Body
}
