package http

import (
	"inbox_worker/core/domain"
	"inbox_worker/core/service/contact"
	"inbox_worker/core/service/summary"
	"inbox_worker/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ContactHandler exposes the aggregated contact view.
type ContactHandler struct {
	store      *contact.Store
	summarizer *summary.Summarizer
}

// NewContactHandler creates a new ContactHandler
func NewContactHandler(store *contact.Store, summarizer *summary.Summarizer) *ContactHandler {
	return &ContactHandler{store: store, summarizer: summarizer}
}

// Register registers contact routes
func (h *ContactHandler) Register(router fiber.Router) {
	contacts := router.Group("/contacts")

	contacts.Get("/", h.List)
	contacts.Get("/:id", h.Get)
	contacts.Post("/:id/refresh", h.Refresh)
}

// ContactResponse is the API projection of a contact. Thread message
// bodies are omitted from the list view.
type ContactResponse struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	Source         string  `json:"source"`
	Role           string  `json:"role"`
	RoleConfidence float64 `json:"role_confidence"`
	ContactSummary string  `json:"contact_summary"`
	ThreadCount    int     `json:"thread_count"`
	LastSummary    string  `json:"last_summary"`
}

func toContactResponse(c *domain.Contact) ContactResponse {
	return ContactResponse{
		ID:             c.ID,
		Email:          c.Email,
		Source:         string(c.Source),
		Role:           string(c.Role),
		RoleConfidence: c.RoleConfidence,
		ContactSummary: c.ContactSummary,
		ThreadCount:    len(c.Threads),
		LastSummary:    c.LastSummary,
	}
}

// List lists all known contacts, most recent activity first.
func (h *ContactHandler) List(c *fiber.Ctx) error {
	contacts := h.store.List()

	items := make([]ContactResponse, len(contacts))
	for i, ct := range contacts {
		items[i] = toContactResponse(ct)
	}
	return response.OKWithMeta(c, items, &response.Meta{Total: len(items)})
}

// Get returns a single contact with its threads.
func (h *ContactHandler) Get(c *fiber.Ctx) error {
	ct, ok := h.store.Get(c.Params("id"))
	if !ok {
		return response.NotFound(c, "contact not found")
	}
	return response.OK(c, ct)
}

// Refresh forces regeneration of every summary for a contact, bypassing
// the cache.
func (h *ContactHandler) Refresh(c *fiber.Ctx) error {
	ct, ok := h.store.Get(c.Params("id"))
	if !ok {
		return response.NotFound(c, "contact not found")
	}

	recap, err := h.summarizer.SummarizeContact(c.Context(), ct, true)
	if err != nil {
		return response.AppError(c, err)
	}
	contact.PropagateRole(ct)
	h.store.Put(ct)

	return response.OK(c, fiber.Map{
		"id":              ct.ID,
		"contact_summary": recap,
		"role":            ct.Role,
		"role_confidence": ct.RoleConfidence,
	})
}
