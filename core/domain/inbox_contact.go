package domain

// Contact aggregates every known thread of one correspondent on one
// provider. Identified by ContactID(source, email).
type Contact struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Source Source `json:"source"`

	// Role is contact-scoped: resolved once (majority vote across thread
	// classifications) and then stable across polling cycles.
	Role           Role    `json:"role"`
	RoleConfidence float64 `json:"role_confidence"`

	ContactSummary string `json:"contact_summary"`

	// Threads keyed by provider-native thread ID.
	Threads map[string]*Thread `json:"threads"`

	// LastSummary is the latest activity timestamp across all threads,
	// UTC RFC3339.
	LastSummary string `json:"last_summary"`
}

// NewContact creates an empty contact record for the given identity.
func NewContact(source Source, email string) *Contact {
	return &Contact{
		ID:      ContactID(source, email),
		Email:   email,
		Source:  source,
		Threads: make(map[string]*Thread),
	}
}

// LatestActivity recomputes the newest last_message_ts across all threads.
// RFC3339 UTC strings compare correctly as plain strings.
func (c *Contact) LatestActivity() string {
	var latest string
	for _, t := range c.Threads {
		if t.LastMessageTS > latest {
			latest = t.LastMessageTS
		}
	}
	return latest
}

// SheetRow is the denormalized projection of a Contact written to the
// external tabular store. Threads carries the canonical JSON encoding used
// for the change comparison in the sync engine.
type SheetRow struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	Source         string  `json:"source"`
	Role           string  `json:"role"`
	RoleConfidence float64 `json:"role_confidence"`
	ContactSummary string  `json:"contact_summary"`
	Threads        string  `json:"threads"`
	LastSummary    string  `json:"last_summary"`
}

// DedupKey returns the row identity used by the sync engine: the explicit
// id when present, otherwise "{source}:{email}".
func (r *SheetRow) DedupKey() string {
	if r.ID != "" {
		return r.ID
	}
	return ContactID(Source(r.Source), r.Email)
}
